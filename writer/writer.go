// Package writer renders decoded documents through the reference sinks: an
// HTML page, a raw structural dump and CSV for spreadsheets.
package writer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/wudi/legacydoc/fonts"
	"github.com/wudi/legacydoc/images"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatRaw  Format = "raw"
	FormatCSV  Format = "csv"
)

var (
	ErrUnknownFormat = errors.New("unknown output format")
	ErrNoTable       = errors.New("document has no table to export")
)

type Config struct {
	Format   Format
	CSV      CSVOptions
	Logger   observability.Logger
	Charset  *fonts.Charset
	MaxDepth int
	// Flat drops the call nesting indentation from the raw dump.
	Flat bool
	// Images converts bitmap pictures for HTML; nil makes one per Write.
	Images *images.Converter
	// Now stamps date and time fields. Default: time.Now.
	Now func() time.Time
}

// Writer renders one document. Output is produced in memory and written to
// out only when rendering succeeded, so a failed run writes nothing.
type Writer interface {
	Write(ctx context.Context, doc *semantic.Document, out io.Writer, cfg Config) error
}

type Interceptor interface {
	BeforeWrite(ctx context.Context, doc *semantic.Document) error
	AfterWrite(ctx context.Context, doc *semantic.Document, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// New returns a writer without interceptors.
func New() Writer { return (&WriterBuilder{}).Build() }
