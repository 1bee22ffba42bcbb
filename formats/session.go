package formats

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wudi/legacydoc/filters"
	"github.com/wudi/legacydoc/ir/raw"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/recovery"
	"github.com/wudi/legacydoc/scanner"
	"github.com/wudi/legacydoc/security"
)

// Session is the state of one document decode. It is created once per input
// and dropped with it; two sessions never share anything mutable.
type Session struct {
	ID       uuid.UUID
	Input    *scanner.Cursor
	Table    *raw.Table
	Ident    Identification
	Log      observability.Logger
	Recovery recovery.Strategy
	Limits   security.Limits
	Filters  *filters.Pipeline

	ctx       context.Context
	anomalies int
	skipped   []error
}

type SessionOptions struct {
	Logger   observability.Logger
	Recovery recovery.Strategy
	Limits   security.Limits
}

func NewSession(ctx context.Context, input *scanner.Cursor, ident Identification, opts SessionOptions) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	strategy := opts.Recovery
	if strategy == nil {
		strategy = recovery.NewLenientStrategy()
	}
	limits := opts.Limits.WithDefaults()
	id := uuid.New()
	log = log.With(
		observability.String("session", id.String()),
		observability.String("format", ident.Format),
		observability.Int("version", ident.Version))
	return &Session{
		ID:       id,
		Input:    input,
		Table:    raw.NewTable(input.Size(), log),
		Ident:    ident,
		Log:      log,
		Recovery: strategy,
		Limits:   limits,
		Filters:  filters.NewDefaultPipeline(filters.Limits{MaxDecompressedSize: limits.MaxDecompressedSize}),
		ctx:      ctx,
	}
}

func (s *Session) Context() context.Context { return s.ctx }

// Anomaly reports a recoverable problem in a record. It returns nil when the
// recovery strategy lets decoding continue and an ErrStructural error otherwise.
// A continued anomaly is kept as a recovery.ErrRecordSkipped error.
func (s *Session) Anomaly(component string, offset int64, err error) error {
	s.anomalies++
	action := s.Recovery.OnError(s.ctx, err, recovery.Location{ByteOffset: offset, Component: component, Zone: s.Ident.Format})
	s.Log.Warn("record anomaly",
		observability.String("component", component),
		observability.Int64("offset", offset),
		observability.Error("error", err),
		observability.String("action", action.String()))
	if action == recovery.ActionFail {
		return fmt.Errorf("%w: %s at %d: %w", ErrStructural, component, offset, err)
	}
	if !errors.Is(err, recovery.ErrRecordSkipped) {
		err = fmt.Errorf("%s at %d: %w: %w", component, offset, recovery.ErrRecordSkipped, err)
	}
	s.skipped = append(s.skipped, err)
	return nil
}

func (s *Session) Anomalies() int { return s.anomalies }

// Skipped lists the anomalies decoding stepped over, oldest first.
func (s *Session) Skipped() []error { return s.skipped }

// Structural builds a surfaced structural error.
func (s *Session) Structural(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}

// Reserved logs a field of unknown meaning and keeps it on the document.
func (s *Session) Reserved(doc *semantic.Document, component string, offset int64, value []byte) {
	allZero := true
	for _, b := range value {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return
	}
	s.Log.Debug("reserved field", observability.String("component", component), observability.Int64("offset", offset), observability.Hex("value", value))
	doc.Reserved = append(doc.Reserved, semantic.Reserved{Component: component, Offset: offset, Value: append([]byte(nil), value...)})
}

// Walker starts a record walk bounded by the session limits.
func (s *Session) Walker(c *scanner.Cursor, read raw.HeaderFunc) *raw.Walker {
	return raw.NewWalker(c, read, s.Limits.MaxRecords)
}

// CheckCount rejects list counts above the session limit or larger than the
// bytes left when every item needs at least minItem bytes.
func (s *Session) CheckCount(c *scanner.Cursor, n, minItem int) error {
	if n < 0 || n > s.Limits.MaxListSize {
		return fmt.Errorf("list of %d items exceeds limit %d", n, s.Limits.MaxListSize)
	}
	if minItem > 0 && int64(n)*int64(minItem) > c.Remaining() {
		return fmt.Errorf("list of %d items needs %d bytes, %d left: %w", n, n*minItem, c.Remaining(), scanner.ErrOutOfBounds)
	}
	return nil
}

// Finish logs table coverage.
func (s *Session) Finish() {
	if left := s.Table.ReportUnparsed(); left > 0 {
		s.Log.Debug("unparsed entries", observability.Int("count", left))
	}
}
