package filters

import (
	"context"
	"testing"
)

func FuzzFilters(f *testing.F) {
	f.Add(Compress([]byte("some compressed data")), "LZW")
	f.Add([]byte{0xFE, 0xAA, 0x02, 0x80, 0x00, 0x2A}, "PackBits")
	f.Add([]byte{0x80, 0x00}, "LZW")

	f.Fuzz(func(t *testing.T, data []byte, filterName string) {
		if filterName != "LZW" && filterName != "PackBits" {
			return
		}
		p := NewDefaultPipeline(Limits{MaxDecompressedSize: 1024 * 1024})
		_, _ = p.Decode(context.Background(), data, []string{filterName}, []Params{{}})
	})
}
