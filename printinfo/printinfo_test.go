package printinfo

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/legacydoc/scanner"
)

// Build returns a 120-byte record with the given resolution and rectangles
// (top, left, bottom, right).
func build(res int16, page, paper [4]int16) []byte {
	b := make([]byte, Size)
	binary.BigEndian.PutUint16(b[0:], 3)
	binary.BigEndian.PutUint16(b[4:], uint16(res))
	binary.BigEndian.PutUint16(b[6:], uint16(res))
	for i, v := range page {
		binary.BigEndian.PutUint16(b[8+2*i:], uint16(v))
	}
	for i, v := range paper {
		binary.BigEndian.PutUint16(b[16+2*i:], uint16(v))
	}
	return b
}

func TestLayoutFromLetterRecord(t *testing.T) {
	rec, err := Parse(build(72, [4]int16{0, 0, 730, 552}, [4]int16{-41, -30, 751, 582}))
	require.NoError(t, err)
	assert.Equal(t, uint16(3), rec.Version)

	l, err := rec.Layout()
	require.NoError(t, err)
	assert.Equal(t, 612.0, l.PaperWidth)
	assert.Equal(t, 792.0, l.PaperHeight)
	assert.Equal(t, 14.0, l.Margins.Left)
	assert.Equal(t, 14.0, l.Margins.Top)
	assert.Equal(t, 26.0, l.Margins.Right)
	assert.Equal(t, 39.0, l.Margins.Bottom)
}

func TestLayoutSmallOffsetsAreKept(t *testing.T) {
	rec, err := Parse(build(72, [4]int16{0, 0, 780, 600}, [4]int16{-6, -6, 786, 606}))
	require.NoError(t, err)
	l, err := rec.Layout()
	require.NoError(t, err)
	assert.Equal(t, 6.0, l.Margins.Left)
	assert.Equal(t, 6.0, l.Margins.Top)
	assert.Equal(t, 0.0, l.Margins.Right, "shrunk below zero must clamp")
	assert.Equal(t, 0.0, l.Margins.Bottom)
}

func TestResolutionScaling(t *testing.T) {
	rec, err := Parse(build(144, [4]int16{0, 0, 1460, 1104}, [4]int16{-82, -60, 1502, 1164}))
	require.NoError(t, err)
	assert.Equal(t, 552.0, rec.Page.Width())
	assert.Equal(t, 612.0, rec.Paper.Width())
	assert.Equal(t, 792.0, rec.Paper.Height())
}

func TestInvalidRecord(t *testing.T) {
	rec, err := Parse(build(72, [4]int16{0, 0, 0, 552}, [4]int16{-41, -30, 751, 582}))
	assert.True(t, errors.Is(err, ErrInvalid))
	require.NotNil(t, rec)
	_, err = rec.Layout()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestShortRecord(t *testing.T) {
	c := scanner.FromBytes(make([]byte, Size-1))
	_, err := Read(c)
	assert.ErrorIs(t, err, scanner.ErrOutOfBounds)
	assert.Equal(t, int64(0), c.Tell())
}

func TestReadConsumesWholeRecord(t *testing.T) {
	data := append(build(72, [4]int16{0, 0, 730, 552}, [4]int16{-41, -30, 751, 582}), 0xAB)
	c := scanner.FromBytes(data)
	_, err := Read(c)
	require.NoError(t, err)
	assert.Equal(t, int64(Size), c.Tell())
}
