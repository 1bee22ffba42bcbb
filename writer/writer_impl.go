package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wudi/legacydoc/emitter"
	"github.com/wudi/legacydoc/images"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
)

// sink is an emitter.Sink that renders its output once emission is over.
type sink interface {
	emitter.Sink
	finish(out *bytes.Buffer) error
}

type impl struct{ interceptors []Interceptor }

func (w *impl) Write(ctx context.Context, doc *semantic.Document, out io.Writer, cfg Config) error {
	if doc == nil {
		return errors.New("writer: nil document")
	}
	cfg = withDefaults(cfg)
	for _, i := range w.interceptors {
		if err := i.BeforeWrite(ctx, doc); err != nil {
			return err
		}
	}
	s, err := newSink(cfg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := emitter.New(doc, s, emitter.Options{Logger: cfg.Logger, Charset: cfg.Charset, MaxDepth: cfg.MaxDepth})
	if err := e.Emit(); err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.finish(&buf); err != nil {
		return err
	}
	n, err := out.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	for _, i := range w.interceptors {
		if err := i.AfterWrite(ctx, doc, int64(n)); err != nil {
			return err
		}
	}
	cfg.Logger.Debug("document written", observability.String("format", string(cfg.Format)), observability.Int("bytes", n))
	return nil
}

func withDefaults(cfg Config) Config {
	if cfg.Format == "" {
		cfg.Format = FormatHTML
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.CSV = cfg.CSV.withDefaults()
	return cfg
}

func newSink(cfg Config) (sink, error) {
	switch cfg.Format {
	case FormatHTML:
		conv := cfg.Images
		if conv == nil {
			var err error
			if conv, err = images.NewConverter(0); err != nil {
				return nil, err
			}
		}
		return newHTMLSink(conv, cfg.Now, cfg.Logger), nil
	case FormatRaw:
		return newRawSink(cfg.Flat), nil
	case FormatCSV:
		return newCSVSink(cfg.CSV, cfg.Now), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.Format)
}
