// Command legacydoc converts legacy word-processing, layout and spreadsheet
// documents to HTML, CSV, plain text or a raw structural dump.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wudi/legacydoc/config"
	"github.com/wudi/legacydoc/extractor"
	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/recovery"
	"github.com/wudi/legacydoc/writer"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = -1
)

// runError marks a failure of the conversion itself rather than of the
// command line.
type runError struct{ err error }

func (e runError) Error() string { return e.err.Error() }
func (e runError) Unwrap() error { return e.err }

type flags struct {
	configPath string
	output     string
	strict     bool
	logLevel   string
	flat       bool

	fieldSep   string
	decimalSep string
	textSep    string
	dateFormat string
	timeFormat string
	sheet      int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var re runError
	if errors.As(err, &re) {
		fmt.Fprintf(stderr, "legacydoc: %s: %v\n", kind(re.err), re.err)
		return exitError
	}
	fmt.Fprintf(stderr, "legacydoc: %v\n", err)
	return exitUsage
}

// kind names the surfaced error class for the diagnostic line.
func kind(err error) string {
	switch {
	case errors.Is(err, formats.ErrFileAccess):
		return "file access error"
	case errors.Is(err, formats.ErrUnsupportedFormat):
		return "unsupported format"
	case errors.Is(err, formats.ErrStructural):
		return "structural parse error"
	case errors.Is(err, writer.ErrNoTable):
		return "no table"
	}
	return "unknown error"
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "legacydoc",
		Short:         "Convert legacy Macintosh documents",
		Long:          `Decode More, RagTime, ReadySetGo, Student Writing Center and WordMaker files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "TOML option file")
	pf.BoolVar(&f.strict, "strict", false, "Fail on the first damaged record")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	convert := func(use, short string, format writer.Format) *cobra.Command {
		cmd := &cobra.Command{
			Use:   use + " <file>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConvert(cmd, f, format, args[0])
			},
		}
		cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output file (default stdout)")
		return cmd
	}

	rawCmd := convert("raw", "Dump the decoded document structure", writer.FormatRaw)
	rawCmd.Flags().BoolVar(&f.flat, "flat", false, "Do not indent nested sink calls")

	csvCmd := convert("csv", "Export a spreadsheet table as CSV", writer.FormatCSV)
	cf := csvCmd.Flags()
	cf.StringVar(&f.fieldSep, "field-separator", "", "Field separator")
	cf.StringVar(&f.decimalSep, "decimal-separator", "", "Decimal separator")
	cf.StringVar(&f.textSep, "text-separator", "", "Text quote character")
	cf.StringVar(&f.dateFormat, "date-format", "", "Go layout for dates")
	cf.StringVar(&f.timeFormat, "time-format", "", "Go layout for times")
	cf.IntVar(&f.sheet, "sheet", 0, "Table to export, counted from 0")

	root.AddCommand(
		convert("html", "Convert a document to HTML", writer.FormatHTML),
		rawCmd,
		csvCmd,
		&cobra.Command{
			Use:   "info <file>",
			Short: "Summarise a document and the fonts it uses",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runExtract(cmd, f, args[0], printInfo)
			},
		},
		&cobra.Command{
			Use:   "text <file>",
			Short: "Print the plain text of every text zone",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runExtract(cmd, f, args[0], printText)
			},
		},
		&cobra.Command{
			Use:   "identify <file>...",
			Short: "Report the format of each file",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runIdentify(cmd, f, args)
			},
		},
	)
	return root
}

// options merges the option file with the flags set on the command line.
func options(cmd *cobra.Command, f *flags) (config.Options, error) {
	o, err := config.Load(f.configPath)
	if err != nil {
		return o, err
	}
	changed := cmd.Flags().Changed
	if changed("strict") {
		o.Decode.Strict = f.strict
	}
	if changed("log-level") {
		o.Log.Level = f.logLevel
	}
	for _, s := range []struct {
		flag     string
		src, dst *string
	}{
		{"field-separator", &f.fieldSep, &o.CSV.FieldSeparator},
		{"decimal-separator", &f.decimalSep, &o.CSV.DecimalSeparator},
		{"text-separator", &f.textSep, &o.CSV.TextSeparator},
		{"date-format", &f.dateFormat, &o.CSV.DateFormat},
		{"time-format", &f.timeFormat, &o.CSV.TimeFormat},
	} {
		if changed(s.flag) {
			*s.dst = *s.src
		}
	}
	if changed("sheet") {
		o.CSV.Sheet = f.sheet
	}
	return o, o.Validate()
}

func pipeline(cmd *cobra.Command, o config.Options) *ir.Pipeline {
	level, _ := o.SlogLevel()
	log := observability.NewSlogLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	opts := []ir.Option{ir.WithLogger(log)}
	if o.Decode.Strict {
		opts = append(opts, ir.WithRecovery(recovery.NewStrictStrategy()))
	}
	return ir.NewDefault(opts...)
}

func open(path string) (*os.File, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, runError{fmt.Errorf("%w: %w", formats.ErrFileAccess, err)}
	}
	return in, nil
}

func runConvert(cmd *cobra.Command, f *flags, format writer.Format, path string) error {
	o, err := options(cmd, f)
	if err != nil {
		return err
	}
	in, err := open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	var buf bytes.Buffer
	cfg := writer.Config{Format: format, CSV: o.CSVOptions(), Flat: f.flat}
	if err := pipeline(cmd, o).Convert(context.Background(), in, &buf, cfg); err != nil {
		return runError{err}
	}
	if f.output == "" {
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
	} else {
		err = os.WriteFile(f.output, buf.Bytes(), 0o644)
	}
	if err != nil {
		return runError{fmt.Errorf("%w: %w", formats.ErrFileAccess, err)}
	}
	return nil
}

func runIdentify(cmd *cobra.Command, f *flags, paths []string) error {
	o, err := options(cmd, f)
	if err != nil {
		return err
	}
	p := pipeline(cmd, o)
	var first error
	for _, path := range paths {
		id, err := identify(p, path)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
			if first == nil {
				first = err
			}
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, id)
	}
	if first != nil {
		return runError{first}
	}
	return nil
}

func identify(p *ir.Pipeline, path string) (formats.Identification, error) {
	in, err := os.Open(path)
	if err != nil {
		return formats.Identification{}, fmt.Errorf("%w: %w", formats.ErrFileAccess, err)
	}
	defer in.Close()
	return p.Identify(context.Background(), in)
}

func runExtract(cmd *cobra.Command, f *flags, path string, render func(io.Writer, *extractor.Extractor) error) error {
	o, err := options(cmd, f)
	if err != nil {
		return err
	}
	in, err := open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	doc, err := pipeline(cmd, o).Parse(context.Background(), in)
	if err != nil {
		return runError{err}
	}
	e, err := extractor.New(doc)
	if err != nil {
		return runError{err}
	}
	var buf bytes.Buffer
	if err := render(&buf, e); err != nil {
		return runError{err}
	}
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}

func printInfo(w io.Writer, e *extractor.Extractor) error {
	m := e.ExtractMetadata()
	fmt.Fprintf(w, "format:   %s %d\n", m.Format, m.Version)
	fmt.Fprintf(w, "kind:     %s\n", m.Kind)
	fmt.Fprintf(w, "pages:    %d (first number %d)\n", m.PageCount, m.FirstPage)
	fmt.Fprintf(w, "paper:    %gx%g pt\n", m.Layout.PaperWidth, m.Layout.PaperHeight)
	fmt.Fprintf(w, "contents: %d zones, %d frames, %d pictures, %d tables\n", m.Zones, m.Frames, m.Pictures, m.Tables)
	for _, u := range e.ExtractFonts() {
		fmt.Fprintf(w, "font:     %s %v (%d chars)\n", u.Name, u.Sizes, u.Chars)
	}
	return nil
}

func printText(w io.Writer, e *extractor.Extractor) error {
	zones, err := e.ExtractText()
	if err != nil {
		return err
	}
	for _, z := range zones {
		fmt.Fprintf(w, "--- zone %d (%s)\n%s\n", z.Zone, z.Role, z.Content)
	}
	return nil
}
