// Package raw holds the byte-range layer of a decode: validated entries
// pointing into the input stream and the record walker shared by sniffers
// and decoders.
package raw

import (
	"fmt"
	"sort"

	"github.com/wudi/legacydoc/observability"
)

// Entry is a validated byte range of the input stream.
type Entry struct {
	Begin  int64
	Length int64
	Type   string
	ID     int
	parsed bool
}

func (e *Entry) End() int64 { return e.Begin + e.Length }

// Parsed reports whether the entry bytes were consumed into the document model.
func (e *Entry) Parsed() bool { return e.parsed }

func (e *Entry) String() string {
	return fmt.Sprintf("%s[%d]@%d+%d", e.Type, e.ID, e.Begin, e.Length)
}

// Table registers the entries discovered in a format directory.
// Several entries may share a type; callers pick Find or FindAll per type.
type Table struct {
	size    int64
	entries []*Entry
	byType  map[string][]*Entry
	log     observability.Logger
}

// NewTable returns a table validating entries against a stream of streamSize bytes.
func NewTable(streamSize int64, log observability.Logger) *Table {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Table{size: streamSize, byType: make(map[string][]*Entry), log: log}
}

// Insert validates e and registers it under tag. Invalid entries are logged and
// rejected; they are never reachable through Find afterwards.
func (t *Table) Insert(tag string, e Entry) (*Entry, bool) {
	if e.Begin < 0 || e.Length < 0 || e.Begin > t.size || e.Length > t.size-e.Begin {
		t.log.Warn("entry rejected",
			observability.String("type", tag),
			observability.Int("id", e.ID),
			observability.Int64("begin", e.Begin),
			observability.Int64("length", e.Length),
			observability.Int64("stream", t.size))
		return nil, false
	}
	e.Type = tag
	e.parsed = false
	stored := &e
	t.entries = append(t.entries, stored)
	t.byType[tag] = append(t.byType[tag], stored)
	return stored, true
}

// Find returns the first entry registered under tag.
func (t *Table) Find(tag string) (*Entry, bool) {
	list := t.byType[tag]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// FindAll returns every entry registered under tag, in insertion order.
func (t *Table) FindAll(tag string) []*Entry {
	list := t.byType[tag]
	out := make([]*Entry, len(list))
	copy(out, list)
	return out
}

// FindID returns the entry registered under tag with the given id.
func (t *Table) FindID(tag string, id int) (*Entry, bool) {
	for _, e := range t.byType[tag] {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// MarkParsed flags e as consumed.
func (t *Table) MarkParsed(e *Entry) {
	if e != nil {
		e.parsed = true
	}
}

// Entries returns every entry in insertion order.
func (t *Table) Entries() []*Entry {
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Types returns the registered tags, sorted.
func (t *Table) Types() []string {
	out := make([]string, 0, len(t.byType))
	for k := range t.byType {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Unparsed returns the entries never marked parsed.
func (t *Table) Unparsed() []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		if !e.parsed {
			out = append(out, e)
		}
	}
	return out
}

// ReportUnparsed logs every entry left unparsed. It is a coverage diagnostic only.
func (t *Table) ReportUnparsed() int {
	left := t.Unparsed()
	for _, e := range left {
		t.log.Debug("entry not parsed",
			observability.String("type", e.Type),
			observability.Int("id", e.ID),
			observability.Int64("begin", e.Begin),
			observability.Int64("length", e.Length))
	}
	return len(left)
}
