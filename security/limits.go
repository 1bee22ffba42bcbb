package security

// Limits defines resource boundaries for decoding legacy documents.
// They keep hostile or corrupt files from exhausting memory or recursing without end.
type Limits struct {
	// Maximum size of an input document (bytes). Default: 256 MB.
	MaxInputSize int64

	// Maximum decompressed size of one packed container (bytes). Default: 64 MB.
	MaxDecompressedSize int64

	// Maximum number of records walked in one container. Default: 1,000,000.
	MaxRecords int

	// Maximum nesting of packed containers inside one another. Default: 8.
	MaxZoneDepth int

	// Maximum nesting of sub-document emission (notes inside notes). Default: 32.
	MaxEmitDepth int

	// Maximum number of entries in one list (fonts, styles, frames, cells). Default: 65,535.
	MaxListSize int
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxInputSize:        256 * 1024 * 1024, // 256 MB
		MaxDecompressedSize: 64 * 1024 * 1024,  // 64 MB
		MaxRecords:          1000000,
		MaxZoneDepth:        8,
		MaxEmitDepth:        32,
		MaxListSize:         65535,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	def := DefaultLimits()
	if l.MaxInputSize <= 0 {
		l.MaxInputSize = def.MaxInputSize
	}
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = def.MaxDecompressedSize
	}
	if l.MaxRecords <= 0 {
		l.MaxRecords = def.MaxRecords
	}
	if l.MaxZoneDepth <= 0 {
		l.MaxZoneDepth = def.MaxZoneDepth
	}
	if l.MaxEmitDepth <= 0 {
		l.MaxEmitDepth = def.MaxEmitDepth
	}
	if l.MaxListSize <= 0 {
		l.MaxListSize = def.MaxListSize
	}
	return l
}
