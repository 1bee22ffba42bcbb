package writer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wudi/legacydoc/emitter"
	"github.com/wudi/legacydoc/ir/semantic"
)

type CSVOptions struct {
	FieldSeparator   rune
	DecimalSeparator rune
	TextSeparator    rune
	// DateFormat and TimeFormat are Go layouts for date and time fields.
	DateFormat string
	TimeFormat string
	// Sheet selects the table to export, counted in emission order from 0.
	Sheet int
}

func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		FieldSeparator:   ',',
		DecimalSeparator: '.',
		TextSeparator:    '"',
		DateFormat:       "2006-01-02",
		TimeFormat:       "15:04:05",
	}
}

func (o CSVOptions) withDefaults() CSVOptions {
	d := DefaultCSVOptions()
	if o.FieldSeparator == 0 {
		o.FieldSeparator = d.FieldSeparator
	}
	if o.DecimalSeparator == 0 {
		o.DecimalSeparator = d.DecimalSeparator
	}
	if o.TextSeparator == 0 {
		o.TextSeparator = d.TextSeparator
	}
	if o.DateFormat == "" {
		o.DateFormat = d.DateFormat
	}
	if o.TimeFormat == "" {
		o.TimeFormat = d.TimeFormat
	}
	return o
}

// csvSink keeps the cells of one table and ignores everything else.
type csvSink struct {
	emitter.NopSink
	opts CSVOptions
	now  func() time.Time

	tables int
	active bool
	found  bool
	rows   [][]string
	cell   *strings.Builder
}

func newCSVSink(opts CSVOptions, now func() time.Time) *csvSink {
	return &csvSink{opts: opts, now: now}
}

func (c *csvSink) OpenTable(emitter.TableInfo) {
	c.active = c.tables == c.opts.Sheet
	c.found = c.found || c.active
	c.tables++
}

func (c *csvSink) CloseTable() { c.active = false }

func (c *csvSink) OpenRow(int) {
	if c.active {
		c.rows = append(c.rows, nil)
	}
}

func (c *csvSink) OpenCell(info emitter.CellInfo) {
	if !c.active {
		return
	}
	c.cell = &strings.Builder{}
	if info.Kind == semantic.CellNumber {
		c.cell.WriteString(c.number(info.Number))
	}
}

func (c *csvSink) CloseCell() {
	if !c.active || c.cell == nil {
		return
	}
	last := len(c.rows) - 1
	c.rows[last] = append(c.rows[last], c.cell.String())
	c.cell = nil
}

func (c *csvSink) InsertText(text string) {
	if c.cell != nil {
		c.cell.WriteString(text)
	}
}

func (c *csvSink) InsertField(kind semantic.FieldKind) {
	if c.cell == nil {
		return
	}
	switch kind {
	case semantic.FieldDate:
		c.cell.WriteString(c.now().Format(c.opts.DateFormat))
	case semantic.FieldTime:
		c.cell.WriteString(c.now().Format(c.opts.TimeFormat))
	}
}

func (c *csvSink) number(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if c.opts.DecimalSeparator != '.' {
		s = strings.Replace(s, ".", string(c.opts.DecimalSeparator), 1)
	}
	return s
}

// quote wraps s in the text separator when it holds a field separator, the
// text separator or a line break. Embedded text separators are doubled.
func (c *csvSink) quote(s string) string {
	q := string(c.opts.TextSeparator)
	if !strings.ContainsRune(s, c.opts.FieldSeparator) && !strings.Contains(s, q) && !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return q + strings.ReplaceAll(s, q, q+q) + q
}

func (c *csvSink) finish(out *bytes.Buffer) error {
	if !c.found {
		return fmt.Errorf("%w: sheet %d of %d", ErrNoTable, c.opts.Sheet, c.tables)
	}
	sep := string(c.opts.FieldSeparator)
	for _, row := range c.rows {
		fields := make([]string, len(row))
		for i, f := range row {
			fields[i] = c.quote(f)
		}
		out.WriteString(strings.Join(fields, sep))
		out.WriteByte('\n')
	}
	return nil
}
