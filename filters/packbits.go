package filters

import "fmt"

// UnpackBits expands a PackBits stream. With expected > 0 it stops once that
// many bytes are produced and returns exactly expected bytes; running out of
// input first is ErrTruncated. It also returns the number of input bytes used.
func UnpackBits(in []byte, expected int) ([]byte, int, error) {
	out := make([]byte, 0, max(expected, len(in)))
	i := 0
	for i < len(in) && (expected <= 0 || len(out) < expected) {
		n := int(int8(in[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(in) {
				return nil, i, fmt.Errorf("packbits: literal of %d at %d: %w", n+1, i-1, ErrTruncated)
			}
			out = append(out, in[i:i+n+1]...)
			i += n + 1
		case n != -128:
			if i >= len(in) {
				return nil, i, fmt.Errorf("packbits: run at %d: %w", i-1, ErrTruncated)
			}
			for k := 0; k < 1-n; k++ {
				out = append(out, in[i])
			}
			i++
		}
	}
	if expected > 0 {
		if len(out) < expected {
			return nil, i, fmt.Errorf("packbits: %d of %d bytes: %w", len(out), expected, ErrTruncated)
		}
		out = out[:expected]
	}
	return out, i, nil
}

// UnpackBitmap expands a PackBits bitmap of height rows of rowBytes each.
func UnpackBitmap(in []byte, rowBytes, width, height int) ([]byte, error) {
	if err := validateBitmapBounds(rowBytes, width, height); err != nil {
		return nil, err
	}
	out, _, err := UnpackBits(in, rowBytes*height)
	return out, err
}
