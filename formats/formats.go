// Package formats defines what every legacy format decoder implements and the
// decode session they share.
package formats

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/scanner"
)

// Conditions surfaced to callers. Everything else stays inside a decoder.
var (
	ErrFileAccess        = errors.New("file access error")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrStructural        = errors.New("structural parse error")
	ErrUnknown           = errors.New("unknown error")
)

// Confidence is how sure a sniffer is. Only Excellent authorises a decode.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidencePoor
	ConfidenceExcellent
)

func (c Confidence) String() string {
	switch c {
	case ConfidencePoor:
		return "poor"
	case ConfidenceExcellent:
		return "excellent"
	}
	return "none"
}

type Identification struct {
	Format     string
	Version    int
	Kind       semantic.DocKind
	Confidence Confidence
}

func (id Identification) String() string {
	return fmt.Sprintf("%s v%d (%s, %s)", id.Format, id.Version, id.Kind, id.Confidence)
}

// Decoder is one format family.
//
// Identify must be pure: it reads through its own clone of the cursor and may
// be called any number of times. Decode runs one full pass and returns a
// completely built document or an error wrapping one of the surfaced conditions.
type Decoder interface {
	Name() string
	Identify(c *scanner.Cursor) Identification
	Decode(ctx context.Context, s *Session) (*semantic.Document, error)
}

// Registry selects a decoder from sniff results.
type Registry struct {
	decoders []Decoder
}

func NewRegistry(decoders ...Decoder) *Registry {
	return &Registry{decoders: decoders}
}

func (r *Registry) Register(d Decoder) { r.decoders = append(r.decoders, d) }

func (r *Registry) Decoders() []Decoder {
	out := make([]Decoder, len(r.decoders))
	copy(out, r.decoders)
	return out
}

// Identify runs every sniffer and returns the first decoder claiming excellent
// confidence. Without one it returns the best guess and ErrUnsupportedFormat.
func (r *Registry) Identify(c *scanner.Cursor) (Decoder, Identification, error) {
	var best Identification
	for _, d := range r.decoders {
		id := d.Identify(c.Clone())
		if id.Confidence == ConfidenceExcellent {
			return d, id, nil
		}
		if id.Confidence > best.Confidence {
			best = id
		}
	}
	if best.Confidence == ConfidenceNone {
		return nil, best, ErrUnsupportedFormat
	}
	return nil, best, fmt.Errorf("%w: best match %s", ErrUnsupportedFormat, best)
}
