// Package ir wires the sniffers, decoders and sinks into one pass per input.
package ir

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/wudi/legacydoc/emitter"
	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/formats/more"
	"github.com/wudi/legacydoc/formats/ragtime"
	"github.com/wudi/legacydoc/formats/readysetgo"
	"github.com/wudi/legacydoc/formats/studentwriting"
	"github.com/wudi/legacydoc/formats/wordmaker"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/recovery"
	"github.com/wudi/legacydoc/scanner"
	"github.com/wudi/legacydoc/security"
	"github.com/wudi/legacydoc/writer"
)

type Pipeline struct {
	registry *formats.Registry
	recovery recovery.Strategy
	logger   observability.Logger
	tracer   observability.Tracer
	limits   security.Limits
	writer   writer.Writer
}

type Option func(*Pipeline)

func WithLogger(l observability.Logger) Option { return func(p *Pipeline) { p.logger = l } }

func WithTracer(t observability.Tracer) Option { return func(p *Pipeline) { p.tracer = t } }

// WithRecovery sets the anomaly strategy shared by every decode. Nil means a
// fresh lenient strategy per document.
func WithRecovery(s recovery.Strategy) Option { return func(p *Pipeline) { p.recovery = s } }

func WithLimits(l security.Limits) Option { return func(p *Pipeline) { p.limits = l } }

func WithRegistry(r *formats.Registry) Option { return func(p *Pipeline) { p.registry = r } }

func WithWriter(w writer.Writer) Option { return func(p *Pipeline) { p.writer = w } }

// DefaultRegistry holds every supported format family.
func DefaultRegistry() *formats.Registry {
	return formats.NewRegistry(
		more.New(),
		readysetgo.NewGen1(),
		readysetgo.NewGen2(),
		studentwriting.New(),
		wordmaker.New(),
		ragtime.New(),
	)
}

func NewDefault(opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: DefaultRegistry(),
		logger:   observability.NopLogger{},
		tracer:   observability.NopTracer(),
		limits:   security.DefaultLimits(),
		writer:   writer.New(),
	}
	for _, o := range opts {
		o(p)
	}
	p.limits = p.limits.WithDefaults()
	return p
}

// read loads the whole input through the bounded cursor. Inputs that can be
// read at an offset are loaded directly; streams are buffered first, never
// past one byte over MaxInputSize.
func (p *Pipeline) read(r io.Reader) (*scanner.Cursor, error) {
	cfg := scanner.Config{MaxSize: p.limits.MaxInputSize}
	ra, ok := r.(scanner.ReaderAt)
	if !ok {
		data, err := io.ReadAll(io.LimitReader(r, p.limits.MaxInputSize+1))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", formats.ErrFileAccess, err)
		}
		ra = bytes.NewReader(data)
	}
	c, err := scanner.New(ra, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", formats.ErrFileAccess, err)
	}
	return c, nil
}

// Identify reports what the input is without decoding it. It returns
// ErrUnsupportedFormat together with the best guess when no sniffer is sure.
func (p *Pipeline) Identify(ctx context.Context, r io.Reader) (formats.Identification, error) {
	c, err := p.read(r)
	if err != nil {
		return formats.Identification{}, err
	}
	_, id, err := p.identify(ctx, c)
	return id, err
}

func (p *Pipeline) identify(ctx context.Context, c *scanner.Cursor) (formats.Decoder, formats.Identification, error) {
	_, span := p.tracer.StartSpan(ctx, "identify")
	defer span.Finish()
	d, id, err := p.registry.Identify(c)
	span.SetTag("format", id.Format)
	span.SetTag("confidence", id.Confidence.String())
	if err != nil {
		span.SetError(err)
	}
	return d, id, err
}

// Parse identifies and decodes one document.
func (p *Pipeline) Parse(ctx context.Context, r io.Reader) (*semantic.Document, error) {
	c, err := p.read(r)
	if err != nil {
		return nil, err
	}
	d, id, err := p.identify(ctx, c)
	if err != nil {
		return nil, err
	}
	return p.decode(ctx, d, c, id)
}

func (p *Pipeline) decode(ctx context.Context, d formats.Decoder, c *scanner.Cursor, id formats.Identification) (doc *semantic.Document, err error) {
	ctx, span := p.tracer.StartSpan(ctx, "decode")
	defer span.Finish()
	span.SetTag("format", id.Format)
	span.SetTag("version", id.Version)

	s := formats.NewSession(ctx, c, id, formats.SessionOptions{Logger: p.logger, Recovery: p.recovery, Limits: p.limits})
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("decoder panic", observability.String("panic", fmt.Sprint(r)), observability.String("stack", string(debug.Stack())))
			doc, err = nil, fmt.Errorf("%w: %s decoder: %v", formats.ErrUnknown, d.Name(), r)
		}
		if err != nil {
			span.SetError(err)
		}
	}()
	doc, err = d.Decode(ctx, s)
	if err != nil {
		return nil, surface(err)
	}
	span.SetTag("anomalies", s.Anomalies())
	s.Log.Info("document decoded",
		observability.Int("pages", doc.NumPages()),
		observability.Int("zones", len(doc.Zones)),
		observability.Int("anomalies", s.Anomalies()))
	return doc, nil
}

// surface maps anything that is not one of the surfaced conditions to ErrUnknown.
func surface(err error) error {
	for _, known := range []error{formats.ErrFileAccess, formats.ErrUnsupportedFormat, formats.ErrStructural, formats.ErrUnknown} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", formats.ErrUnknown, err)
}

// Convert decodes r and renders it to out. Nothing is written to out unless
// both steps succeed.
func (p *Pipeline) Convert(ctx context.Context, r io.Reader, out io.Writer, cfg writer.Config) error {
	doc, err := p.Parse(ctx, r)
	if err != nil {
		return err
	}
	return p.Emit(ctx, doc, out, cfg)
}

// Emit renders an already decoded document.
func (p *Pipeline) Emit(ctx context.Context, doc *semantic.Document, out io.Writer, cfg writer.Config) (err error) {
	ctx, span := p.tracer.StartSpan(ctx, "emit")
	defer span.Finish()
	span.SetTag("output", string(cfg.Format))
	if cfg.Logger == nil {
		cfg.Logger = p.logger
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = p.limits.MaxEmitDepth
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("emitter panic", observability.String("panic", fmt.Sprint(r)))
			err = fmt.Errorf("%w: emit: %v", formats.ErrUnknown, r)
		}
		if err != nil {
			span.SetError(err)
		}
	}()
	var buf bytes.Buffer
	if err := p.writer.Write(ctx, doc, &buf, cfg); err != nil {
		if errors.Is(err, emitter.ErrMissingZone) || errors.Is(err, emitter.ErrEmitDepth) {
			return fmt.Errorf("%w: %w", formats.ErrStructural, err)
		}
		return err
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", formats.ErrFileAccess, err)
	}
	return nil
}
