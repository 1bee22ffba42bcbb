package more

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/legacydoc/builder"
	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/recovery"
	"github.com/wudi/legacydoc/scanner"
)

type topicSpec struct {
	level   uint8
	flags   uint8
	ruler   uint16
	text    string
	comment int16
	note    int16
}

// fixture lays out a More file: header, then blocks appended in call order.
type fixture struct {
	w *builder.Buffer
}

func newFixture() *fixture {
	return &fixture{w: builder.New().U16(8).U16(magic).PadTo(headerSize)}
}

func (f *fixture) slot(name string, begin, length int) {
	for i, s := range slots {
		if s == name {
			f.w.PatchU32(4+8*i, uint32(begin)).PatchU32(8+8*i, uint32(length))
		}
	}
}

// text appends a text block with a single font run and returns its range.
func (f *fixture) text(s string) (int, int) {
	begin := f.w.Len()
	f.w.U16(uint16(len(s))).Str(s).PadEven()
	f.w.U16(1).U16(0).U16(20).U8(14).U8(1).U16(0)
	return begin, f.w.Len() - begin
}

func (f *fixture) zone(name string, build func(w *builder.Buffer)) {
	begin := f.w.Len()
	build(f.w)
	f.slot(name, begin, f.w.Len()-begin)
}

func (f *fixture) topics(list ...topicSpec) {
	type rng struct{ b, l int }
	texts := make([]rng, len(list))
	for i, t := range list {
		if t.text != "" {
			b, l := f.text(t.text)
			texts[i] = rng{b, l}
		}
	}
	f.zone(ZoneTopics, func(w *builder.Buffer) {
		w.U16(uint16(len(list)))
		for i, t := range list {
			w.U8(t.level).U8(t.flags).U16(t.ruler).U32(uint32(texts[i].b)).U32(uint32(texts[i].l)).I16(t.comment).I16(t.note).U32(0)
		}
	})
}

func (f *fixture) textList(name string, texts ...string) {
	type rng struct{ b, l int }
	var list []rng
	for _, s := range texts {
		b, l := f.text(s)
		list = append(list, rng{b, l})
	}
	f.zone(name, func(w *builder.Buffer) {
		w.U16(uint16(len(list)))
		for _, r := range list {
			w.U32(uint32(r.b)).U32(uint32(r.l))
		}
	})
}

func plain(s string) topicSpec { return topicSpec{text: s, ruler: 0xFFFF, comment: -1, note: -1} }

func decode(t *testing.T, data []byte, strategy recovery.Strategy) (*semantic.Document, error) {
	t.Helper()
	c := scanner.FromBytes(data)
	d := New()
	id := d.Identify(c)
	s := formats.NewSession(context.Background(), c, id, formats.SessionOptions{Recovery: strategy})
	return d.Decode(context.Background(), s)
}

func TestIdentify(t *testing.T) {
	f := newFixture()
	id := New().Identify(scanner.FromBytes(f.w.Bytes()))
	assert.Equal(t, formats.ConfidencePoor, id.Confidence)
	assert.Equal(t, 3, id.Version)

	f.topics(plain("One"))
	id = New().Identify(scanner.FromBytes(f.w.Bytes()))
	assert.Equal(t, formats.ConfidenceExcellent, id.Confidence)

	// a slot overlapping the header demotes the file
	f.slot(ZoneFonts, 0x10, 4)
	id = New().Identify(scanner.FromBytes(f.w.Bytes()))
	assert.Equal(t, formats.ConfidencePoor, id.Confidence)

	id = New().Identify(scanner.FromBytes([]byte("not a more file at all")))
	assert.Equal(t, formats.ConfidenceNone, id.Confidence)
}

func TestOutlineParagraphs(t *testing.T) {
	f := newFixture()
	f.zone(ZoneRulers, func(w *builder.Buffer) {
		w.U16(1).Mark("r").U16(0)
		w.I16(10).I16(-5).I16(20).U8(1).U8(1).I16(150).I16(2).I16(4).I16(72).U8(0).U8('.')
		w.PatchU16(w.Offset("r"), uint16(w.Since("r")-2))
	})
	second := topicSpec{level: 1, flags: flagBullet, ruler: 0, text: "Two", comment: -1, note: -1}
	hidden := plain("Gone")
	hidden.flags = flagHidden
	f.topics(plain("One"), second, hidden)

	doc, err := decode(t, f.w.Bytes(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, doc.BodyZone)
	body := doc.Zones[0]
	assert.Equal(t, "One\rTwo\r", string(body.Text))
	assert.Equal(t, 2, body.ParagraphCount())

	p := body.ParagraphStyleAt(4)
	assert.Equal(t, 28.0, p.LeftMargin)
	assert.Equal(t, 1, p.ListLevel)
	assert.True(t, p.Bullet)
	assert.Equal(t, semantic.JustifyCenter, p.Justify)
	assert.Equal(t, 1.5, p.Interline)
	require.Len(t, p.Tabs, 1)
	assert.Equal(t, uint8('.'), p.Tabs[0].Leader)

	assert.Equal(t, 0.0, body.ParagraphStyleAt(0).LeftMargin)
	font := body.FontAt(5)
	assert.Equal(t, 14.0, font.Size)
	assert.True(t, font.Flags.Has(semantic.Bold))
}

func TestCommentsAndNotesAnchorAtParagraphEnd(t *testing.T) {
	f := newFixture()
	f.textList(ZoneComments, "remember")
	f.textList(ZoneSpeakerNotes, "say hi")
	first := plain("One")
	first.comment, first.note = 0, 0
	missing := plain("Two")
	missing.comment = 5
	f.topics(first, missing)

	doc, err := decode(t, f.w.Bytes(), nil)
	require.NoError(t, err)
	body := doc.Zones[0]
	assert.Equal(t, "One\x1f\x1f\rTwo\r", string(body.Text))
	sub, ok := body.Anchors[3]
	require.True(t, ok)
	assert.Equal(t, commentBase, sub.ID)
	assert.Equal(t, semantic.NoteComment, sub.Note)
	sub, ok = body.Anchors[4]
	require.True(t, ok)
	assert.Equal(t, noteBase, sub.ID)
	assert.Equal(t, semantic.NoteSpeaker, sub.Note)
	assert.Equal(t, "remember", string(doc.Zones[commentBase].Text))
	assert.Len(t, body.Anchors, 2)
}

func TestBadSlotLeavesSiblings(t *testing.T) {
	f := newFixture()
	f.zone(ZoneFonts, func(w *builder.Buffer) { w.U16(1).U16(20).Pstr("Times") })
	f.topics(plain("One"))
	f.slot(ZoneRulers, 0x90, 1<<20)

	doc, err := decode(t, f.w.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Times", doc.Fonts[20])
	assert.Equal(t, "Times", doc.Zones[0].FontAt(0).Name)
}

func TestMissingTopicsIsStructural(t *testing.T) {
	f := newFixture()
	f.zone(ZoneFonts, func(w *builder.Buffer) { w.U16(0) })
	_, err := decode(t, f.w.Bytes(), nil)
	assert.ErrorIs(t, err, formats.ErrStructural)

	f.slot(ZoneTopics, 0x80, 1<<20)
	_, err = decode(t, f.w.Bytes(), nil)
	assert.ErrorIs(t, err, formats.ErrStructural)
}

func TestSlidesStartPages(t *testing.T) {
	f := newFixture()
	f.topics(plain("A"), plain("B"), plain("C"))
	f.zone(ZoneSlides, func(w *builder.Buffer) {
		w.U16(2).U16(0).U16(1).U32(0).U16(2).U16(2).U32(0)
	})
	doc, err := decode(t, f.w.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount)
	body := doc.Zones[0]
	assert.False(t, body.ParagraphStyleAt(2).BreakBefore)
	assert.True(t, body.ParagraphStyleAt(4).BreakBefore)
}

func TestStrictFailsOnEveryAnomaly(t *testing.T) {
	// broken appends a text block that claims more characters than it holds.
	broken := func(f *fixture) (int, int) {
		begin := f.w.Len()
		f.w.U16(50).Str("ab")
		return begin, f.w.Len() - begin
	}
	cases := map[string]func(f *fixture){
		"topic text": func(f *fixture) {
			b, l := broken(f)
			f.zone(ZoneTopics, func(w *builder.Buffer) {
				w.U16(1).U8(0).U8(0).U16(0xFFFF).U32(uint32(b)).U32(uint32(l)).I16(-1).I16(-1).U32(0)
			})
		},
		"ruler reference": func(f *fixture) {
			one := plain("One")
			one.ruler = 7
			f.topics(one)
		},
		"comment text": func(f *fixture) {
			b, l := broken(f)
			f.zone(ZoneComments, func(w *builder.Buffer) { w.U16(1).U32(uint32(b)).U32(uint32(l)) })
			f.topics(plain("One"))
		},
		"print info": func(f *fixture) {
			f.zone(ZonePrintInfo, func(w *builder.Buffer) { w.U16(1).U16(2) })
			f.topics(plain("One"))
		},
		"ruler zone": func(f *fixture) {
			f.zone(ZoneRulers, func(w *builder.Buffer) { w.U16(1).U16(400) })
			f.topics(plain("One"))
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			build(f)
			data := f.w.Bytes()

			c := scanner.FromBytes(data)
			d := New()
			s := formats.NewSession(context.Background(), c, d.Identify(c), formats.SessionOptions{})
			doc, err := d.Decode(context.Background(), s)
			require.NoError(t, err)
			require.NotNil(t, doc.Zones[0])
			require.Len(t, s.Skipped(), 1)
			assert.ErrorIs(t, s.Skipped()[0], recovery.ErrRecordSkipped)

			_, err = decode(t, data, recovery.NewStrictStrategy())
			assert.ErrorIs(t, err, formats.ErrStructural)
		})
	}
}

func FuzzDecode(f *testing.F) {
	fx := newFixture()
	fx.textList(ZoneComments, "c")
	fx.topics(plain("One"), topicSpec{level: 2, text: "x", ruler: 3, comment: 0, note: -1})
	f.Add(fx.w.Bytes())
	f.Fuzz(func(t *testing.T, data []byte) {
		c := scanner.FromBytes(data)
		d := New()
		id := d.Identify(c)
		if id.Confidence != formats.ConfidenceExcellent {
			return
		}
		s := formats.NewSession(context.Background(), c, id, formats.SessionOptions{})
		_, _ = d.Decode(context.Background(), s)
	})
}
