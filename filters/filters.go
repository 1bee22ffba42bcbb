// Package filters holds the byte codecs used inside legacy document containers:
// the LZW variant wrapping compressed zones and PackBits bitmap rows.
package filters

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBadCode            = errors.New("lzw: code out of range")
	ErrDictionaryOverflow = errors.New("lzw: dictionary overflow")
	ErrTruncated          = errors.New("truncated input")
	ErrOutputLimit        = errors.New("decoded output exceeds limit")
	ErrUnknownFilter      = errors.New("unknown filter")
)

// Params carries what a codec needs beyond the bytes themselves.
type Params struct {
	// ExpectedSize is the exact decoded size when the container declares it, else 0.
	ExpectedSize int
}

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params Params) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
}

// Pipeline chains codecs looked up by name in its registry.
type Pipeline struct {
	registry Registry
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{limits: limits}
	for _, d := range decoders {
		p.registry.Register(d)
	}
	return p
}

// NewDefaultPipeline knows every codec in this package.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{NewLZWDecoder(limits.MaxDecompressedSize), NewPackBitsDecoder()}, limits)
}

// Register adds or replaces a codec.
func (p *Pipeline) Register(d Decoder) { p.registry.Register(d) }

// Decode applies the named filters in order.
func (p *Pipeline) Decode(ctx context.Context, input []byte, names []string, params []Params) ([]byte, error) {
	data := input
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec, ok := p.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		var param Params
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, fmt.Errorf("%s: %w", name, ErrOutputLimit)
		}
		data = out
	}
	return data, nil
}

// Registry maps codec names to decoders. The zero value is empty and ready.
type Registry struct{ decoders map[string]Decoder }

func (r *Registry) Register(d Decoder) {
	if r.decoders == nil {
		r.decoders = make(map[string]Decoder)
	}
	r.decoders[d.Name()] = d
}
func (r *Registry) Get(name string) (Decoder, bool) { d, ok := r.decoders[name]; return d, ok }

type lzwDecoder struct{ limit int64 }

func (lzwDecoder) Name() string { return "LZW" }
func (d lzwDecoder) Decode(ctx context.Context, in []byte, params Params) ([]byte, error) {
	limit := d.limit
	if params.ExpectedSize > 0 && (limit <= 0 || int64(params.ExpectedSize) < limit) {
		limit = int64(params.ExpectedSize)
	}
	out, err := Decompress(in, limit)
	if err != nil {
		return nil, err
	}
	if params.ExpectedSize > 0 && len(out) != params.ExpectedSize {
		return out, fmt.Errorf("lzw: got %d bytes, want %d: %w", len(out), params.ExpectedSize, ErrTruncated)
	}
	return out, nil
}

// NewLZWDecoder returns the container LZW codec; limit <= 0 means unlimited.
func NewLZWDecoder(limit int64) Decoder { return lzwDecoder{limit: limit} }

type packBitsDecoder struct{}

func (packBitsDecoder) Name() string { return "PackBits" }
func (packBitsDecoder) Decode(ctx context.Context, in []byte, params Params) ([]byte, error) {
	out, _, err := UnpackBits(in, params.ExpectedSize)
	return out, err
}
func NewPackBitsDecoder() Decoder { return packBitsDecoder{} }
