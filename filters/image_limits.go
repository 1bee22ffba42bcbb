package filters

import "fmt"

const (
	// maxBitmapDimension caps width/height so a corrupt header cannot request huge buffers.
	maxBitmapDimension = 32768
	// maxBitmapBytes bounds a one-bit bitmap (rowBytes x height) at 16 MB.
	maxBitmapBytes int64 = 16 * 1024 * 1024
)

func validateBitmapBounds(rowBytes, width, height int) error {
	if width <= 0 || height <= 0 || rowBytes <= 0 {
		return fmt.Errorf("bitmap bounds invalid (%d x %d, %d bytes per row)", width, height, rowBytes)
	}
	if width > maxBitmapDimension || height > maxBitmapDimension {
		return fmt.Errorf("bitmap dimension exceeds limit (%d x %d)", width, height)
	}
	if rowBytes*8 < width {
		return fmt.Errorf("bitmap row of %d bytes cannot hold %d pixels", rowBytes, width)
	}
	if size := int64(rowBytes) * int64(height); size > maxBitmapBytes {
		return fmt.Errorf("bitmap size %d exceeds limit %d", size, maxBitmapBytes)
	}
	return nil
}
