package raw

import (
	"errors"
	"fmt"

	"github.com/wudi/legacydoc/recovery"
	"github.com/wudi/legacydoc/scanner"
)

var (
	// ErrBadLength reports a declared record length that leaves its container.
	ErrBadLength = errors.New("record length crosses container end")
	// ErrIllegalRecord is returned by header readers for a tag the format never uses.
	ErrIllegalRecord = errors.New("illegal record type")
	// ErrTrailingData reports bytes after an explicit end record.
	ErrTrailingData = errors.New("data after end record")
	// ErrTooManyRecords reports a walk exceeding its record budget.
	ErrTooManyRecords = errors.New("too many records")
)

// Header is what a format's header reader extracts from the bytes at the walk position.
type Header struct {
	Tag    string
	ID     int64
	Length int64
	// End marks the format's explicit terminator record.
	End bool
}

// HeaderFunc reads one record header at the cursor position. The bytes it
// consumes are the header size.
type HeaderFunc func(c *scanner.Cursor) (Header, error)

// Record is one step of a walk.
type Record struct {
	Tag     string
	ID      int64
	Offset  int64
	Payload int64
	Length  int64
}

// End is the offset the walk resumes at: payload start plus declared length.
func (r Record) End() int64 { return r.Payload + r.Length }

// HeaderSize is the number of bytes the header reader consumed.
func (r Record) HeaderSize() int64 { return r.Payload - r.Offset }

// Skip wraps a failure to decode the payload. The walk is already past the
// record, so it resumes at End whatever the payload held.
func (r Record) Skip(err error) error {
	return fmt.Errorf("record %q at %d, resuming at %d: %w: %w", r.Tag, r.Offset, r.End(), recovery.ErrRecordSkipped, err)
}

// Body returns a cursor restricted to the record payload.
func (r Record) Body(c *scanner.Cursor) (*scanner.Cursor, error) {
	return c.Section(r.Payload, r.End())
}

// Walker iterates the records of a container. It never touches the cursor it
// was built from, so a sniffer can replay a walk and the decoder can repeat it.
//
//	w := raw.NewWalker(c, readHeader, 0)
//	for w.Next() {
//		rec := w.Record()
//	}
//	if err := w.Err(); err != nil { ... }
type Walker struct {
	c     *scanner.Cursor
	read  HeaderFunc
	max   int
	count int
	rec   Record
	err   error
	done  bool
	ended bool
	// Strict makes trailing data after an end record an error.
	Strict bool
}

// NewWalker walks from the cursor position to the cursor window end.
// maxRecords <= 0 means unlimited.
func NewWalker(c *scanner.Cursor, read HeaderFunc, maxRecords int) *Walker {
	return &Walker{c: c.Clone(), read: read, max: maxRecords}
}

// Next advances to the next record. It returns false at the end of the
// container, on an end record, or on error.
func (w *Walker) Next() bool {
	if w.done {
		return false
	}
	if w.c.AtEnd() {
		w.done = true
		return false
	}
	start := w.c.Tell()
	h, err := w.read(w.c)
	if err != nil {
		w.fail(fmt.Errorf("record header at %d: %w", start, err))
		return false
	}
	payload := w.c.Tell()
	if h.Length < 0 || h.Length > w.c.Size()-payload {
		w.fail(fmt.Errorf("record %q at %d declares %d bytes: %w", h.Tag, start, h.Length, ErrBadLength))
		return false
	}
	if h.End {
		w.ended = true
		w.done = true
		if w.Strict && payload+h.Length != w.c.Size() {
			w.err = fmt.Errorf("end record at %d: %w", start, ErrTrailingData)
		}
		_ = w.c.Seek(payload + h.Length)
		return false
	}
	if w.max > 0 && w.count >= w.max {
		w.fail(fmt.Errorf("after %d records: %w", w.count, ErrTooManyRecords))
		return false
	}
	w.rec = Record{Tag: h.Tag, ID: h.ID, Offset: start, Payload: payload, Length: h.Length}
	// The declared length is authoritative for the next position.
	if err := w.c.Seek(w.rec.End()); err != nil {
		w.fail(err)
		return false
	}
	w.count++
	return true
}

func (w *Walker) fail(err error) {
	w.err = err
	w.done = true
}

// Record returns the record produced by the last successful Next.
func (w *Walker) Record() Record { return w.rec }

func (w *Walker) Err() error { return w.err }

// Ended reports whether the walk stopped on an explicit end record.
func (w *Walker) Ended() bool { return w.ended }

// Count is the number of records produced so far.
func (w *Walker) Count() int { return w.count }

// Offset is the position the walk will resume at.
func (w *Walker) Offset() int64 { return w.c.Tell() }

// Replay walks the whole container without side effects and reports whether it
// ends exactly at the container end with no illegal record. Sniffers use it as
// their structural plausibility scan.
func Replay(c *scanner.Cursor, read HeaderFunc, maxRecords int) (int, error) {
	w := NewWalker(c, read, maxRecords)
	w.Strict = true
	for w.Next() {
	}
	if err := w.Err(); err != nil {
		return w.Count(), err
	}
	if w.Offset() != c.Size() {
		return w.Count(), fmt.Errorf("walk stopped at %d of %d: %w", w.Offset(), c.Size(), ErrTrailingData)
	}
	return w.Count(), nil
}
