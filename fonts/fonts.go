// Package fonts resolves classic Mac OS font ids to names and converts legacy
// 8-bit text to UTF-8.
package fonts

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// System font ids shipped with classic Mac OS.
var macFonts = map[int]string{
	0:  "Chicago",
	1:  "Geneva",
	2:  "New York",
	3:  "Geneva",
	4:  "Monaco",
	5:  "Venice",
	6:  "London",
	7:  "Athens",
	8:  "San Francisco",
	9:  "Toronto",
	11: "Cairo",
	12: "Los Angeles",
	13: "Zapf Dingbats",
	14: "Bookman",
	15: "Helvetica Narrow",
	16: "Palatino",
	18: "Zapf Chancery",
	19: "Souvenir",
	20: "Times",
	21: "Helvetica",
	22: "Courier",
	23: "Symbol",
	24: "Mobile",
	33: "Avant Garde",
	34: "New Century Schlbk",
}

// DefaultName returns the built-in name for a system font id.
func DefaultName(id int) (string, bool) {
	n, ok := macFonts[id]
	return n, ok
}

// Name resolves id against the document font table first, then the system
// fonts. Unknown ids get a synthetic name so output stays stable.
func Name(table map[int]string, id int) string {
	if n, ok := table[id]; ok && n != "" {
		return n
	}
	if n, ok := macFonts[id]; ok {
		return n
	}
	return fmt.Sprintf("Font%d", id)
}

// Charset converts stored text to UTF-8.
type Charset struct {
	name string
	cm   *charmap.Charmap
}

// MacRoman is the charset every supported format stores text in.
var MacRoman = newCharset(charmap.Macintosh)

func newCharset(cm *charmap.Charmap) *Charset {
	return &Charset{name: cm.String(), cm: cm}
}

// CharsetByName looks a charmap up by its display name, e.g. "Macintosh" or "Windows 1252".
func CharsetByName(name string) (*Charset, bool) {
	want := normalize(name)
	for _, e := range charmap.All {
		cm, ok := e.(*charmap.Charmap)
		if !ok {
			continue
		}
		if normalize(cm.String()) == want {
			return newCharset(cm), true
		}
	}
	return nil, false
}

func normalize(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s))
}

func (c *Charset) Name() string { return c.name }

// Decode converts b to a UTF-8 string. Each call uses its own decoder, so a
// Charset is safe for concurrent use.
func (c *Charset) Decode(b []byte) string {
	out, err := c.cm.NewDecoder().Bytes(b)
	if err != nil {
		// charmaps map every byte, so this only happens on internal failure
		var sb strings.Builder
		for _, x := range b {
			sb.WriteRune(c.cm.DecodeByte(x))
		}
		return sb.String()
	}
	return string(out)
}

// DecodeByte converts a single byte.
func (c *Charset) DecodeByte(b byte) rune { return c.cm.DecodeByte(b) }
