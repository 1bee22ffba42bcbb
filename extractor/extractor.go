// Package extractor pulls plain data out of a decoded document: metadata,
// text per zone, font usage and pictures.
package extractor

import (
	"errors"
	"sort"
	"strings"

	"github.com/wudi/legacydoc/emitter"
	"github.com/wudi/legacydoc/fonts"
	"github.com/wudi/legacydoc/images"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
)

// Extractor reads one decoded document. It never modifies it.
type Extractor struct {
	doc *semantic.Document
	cs  *fonts.Charset
	log observability.Logger
}

type Option func(*Extractor)

func WithCharset(cs *fonts.Charset) Option { return func(e *Extractor) { e.cs = cs } }

func WithLogger(l observability.Logger) Option { return func(e *Extractor) { e.log = l } }

func New(doc *semantic.Document, opts ...Option) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("decoded document is required")
	}
	e := &Extractor{doc: doc, cs: fonts.MacRoman, log: observability.NopLogger{}}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Metadata is the document summary.
type Metadata struct {
	Format    string
	Version   int
	Kind      semantic.DocKind
	PageCount int
	FirstPage int
	Layout    semantic.PageLayout
	Zones     int
	Frames    int
	Pictures  int
	Tables    int
	// Reserved counts fields of unknown meaning that held data.
	Reserved int
}

func (e *Extractor) ExtractMetadata() Metadata {
	d := e.doc
	return Metadata{
		Format:    d.Format,
		Version:   d.Version,
		Kind:      d.Kind,
		PageCount: d.NumPages(),
		FirstPage: d.FirstPageNumber,
		Layout:    d.Layout,
		Zones:     len(d.Zones),
		Frames:    len(d.Frames),
		Pictures:  len(d.Pictures),
		Tables:    len(d.Tables),
		Reserved:  len(d.Reserved),
	}
}

type Role string

const (
	RoleBody   Role = "body"
	RoleHeader Role = "header"
	RoleFooter Role = "footer"
	RoleFrame  Role = "frame"
	RoleNote   Role = "note"
	RoleOther  Role = "other"
)

// ZoneText is the plain text of one zone. Page is the page index of the
// frame showing a frame zone, -1 for the master page, 0 otherwise.
type ZoneText struct {
	Zone    int
	Role    Role
	Page    int
	Content string
}

// roles assigns every zone the first role found for it.
func (e *Extractor) roles() map[int]ZoneText {
	d := e.doc
	out := make(map[int]ZoneText, len(d.Zones))
	set := func(id int, r Role, page int) {
		if _, ok := d.Zones[id]; !ok {
			return
		}
		if _, done := out[id]; !done {
			out[id] = ZoneText{Zone: id, Role: r, Page: page}
		}
	}
	set(d.BodyZone, RoleBody, 0)
	for _, hf := range d.HeaderFooters {
		r := RoleHeader
		if hf.Kind == semantic.Footer {
			r = RoleFooter
		}
		set(hf.Zone, r, 0)
	}
	ids := make([]int, 0, len(d.Frames))
	for id := range d.Frames {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if f := d.Frames[id]; f.TextZone != semantic.NoLink && f.IsChainHead() {
			set(f.TextZone, RoleFrame, f.Page)
		}
	}
	for _, z := range d.TextZones() {
		for _, sub := range z.Anchors {
			if sub.Kind == semantic.SubText {
				set(sub.ID, RoleNote, 0)
			}
		}
	}
	for id := range d.Zones {
		set(id, RoleOther, 0)
	}
	return out
}

// ExtractText returns the text of every zone ordered by zone id. Notes are
// left out of the zone quoting them and appear as zones of their own.
func (e *Extractor) ExtractText() ([]ZoneText, error) {
	roles := e.roles()
	var out []ZoneText
	for _, z := range e.doc.TextZones() {
		sink := &plainSink{}
		em := emitter.New(e.doc, sink, emitter.Options{Logger: e.log, Charset: e.cs})
		if err := em.EmitZone(z.ID); err != nil {
			return nil, err
		}
		zt := roles[z.ID]
		zt.Content = strings.TrimRight(sink.b.String(), "\n")
		out = append(out, zt)
	}
	return out, nil
}

// FontUsage counts the characters set in one font name.
type FontUsage struct {
	Name  string
	Sizes []float64
	Chars int
}

// ExtractFonts reports the fonts in use, most used first.
func (e *Extractor) ExtractFonts() []FontUsage {
	byName := map[string]*FontUsage{}
	sizes := map[string]map[float64]bool{}
	for _, z := range e.doc.TextZones() {
		for pos := 0; pos < z.Len(); {
			f, end := z.FontAt(pos), z.NextFontChange(pos)
			if end <= pos {
				end = z.Len()
			}
			u := byName[f.Name]
			if u == nil {
				u = &FontUsage{Name: f.Name}
				byName[f.Name] = u
				sizes[f.Name] = map[float64]bool{}
			}
			u.Chars += end - pos
			if !sizes[f.Name][f.Size] {
				sizes[f.Name][f.Size] = true
				u.Sizes = append(u.Sizes, f.Size)
			}
			pos = end
		}
	}
	out := make([]FontUsage, 0, len(byName))
	for _, u := range byName {
		sort.Float64s(u.Sizes)
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chars != out[j].Chars {
			return out[i].Chars > out[j].Chars
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// PictureData is a picture ready to be saved: bitmaps as BMP, QuickDraw
// pictures as the stored PICT bytes.
type PictureData struct {
	ID        int
	Kind      semantic.PictureKind
	Extension string
	Data      []byte
}

// ExtractPictures converts every picture. A bitmap that cannot be converted
// is logged and left out.
func (e *Extractor) ExtractPictures(conv *images.Converter) ([]PictureData, error) {
	if conv == nil {
		var err error
		if conv, err = images.NewConverter(0); err != nil {
			return nil, err
		}
	}
	ids := make([]int, 0, len(e.doc.Pictures))
	for id := range e.doc.Pictures {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []PictureData
	for _, id := range ids {
		pic := e.doc.Pictures[id]
		if pic.Kind != semantic.PictureBitmap {
			out = append(out, PictureData{ID: id, Kind: pic.Kind, Extension: "pict", Data: pic.Data})
			continue
		}
		data, err := conv.BMP(pic)
		if err != nil {
			e.log.Warn("picture not converted", observability.Int("picture", id), observability.Error("error", err))
			continue
		}
		out = append(out, PictureData{ID: id, Kind: pic.Kind, Extension: "bmp", Data: data})
	}
	return out, nil
}

// plainSink keeps text and layout breaks and skips notes.
type plainSink struct {
	emitter.NopSink
	b     strings.Builder
	notes int
}

func (p *plainSink) write(s string) {
	if p.notes == 0 {
		p.b.WriteString(s)
	}
}

func (p *plainSink) InsertText(s string)        { p.write(s) }
func (p *plainSink) InsertTab()                 { p.write("\t") }
func (p *plainSink) InsertLineBreak()           { p.write("\n") }
func (p *plainSink) InsertPageBreak()           { p.write("\f") }
func (p *plainSink) CloseParagraph()            { p.write("\n") }
func (p *plainSink) OpenNote(semantic.NoteKind) { p.notes++ }
func (p *plainSink) CloseNote()                 { p.notes-- }
