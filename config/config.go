// Package config reads converter option files.
//
// A file looks like
//
//	[csv]
//	field_separator = ";"
//	decimal_separator = ","
//	text_separator = "'"
//	date_format = "02.01.2006"
//	time_format = "15:04"
//	sheet = 0
//
//	[decode]
//	strict = false
//
//	[log]
//	level = "warn"
//
// Missing keys keep their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"

	"github.com/wudi/legacydoc/writer"
)

var ErrInvalid = errors.New("invalid configuration")

type CSV struct {
	FieldSeparator   string `toml:"field_separator"`
	DecimalSeparator string `toml:"decimal_separator"`
	TextSeparator    string `toml:"text_separator"`
	DateFormat       string `toml:"date_format"`
	TimeFormat       string `toml:"time_format"`
	Sheet            int    `toml:"sheet"`
}

type Decode struct {
	Strict bool `toml:"strict"`
}

type Log struct {
	Level string `toml:"level"`
}

type Options struct {
	CSV    CSV    `toml:"csv"`
	Decode Decode `toml:"decode"`
	Log    Log    `toml:"log"`
}

func Default() Options {
	d := writer.DefaultCSVOptions()
	return Options{
		CSV: CSV{
			FieldSeparator:   string(d.FieldSeparator),
			DecimalSeparator: string(d.DecimalSeparator),
			TextSeparator:    string(d.TextSeparator),
			DateFormat:       d.DateFormat,
			TimeFormat:       d.TimeFormat,
		},
		Log: Log{Level: "warn"},
	}
}

// Parse decodes a TOML document over the defaults. Unknown keys are errors;
// values are checked by Validate once every override is applied.
func Parse(data []byte) (Options, error) {
	o := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		var sm *toml.StrictMissingError
		if errors.As(err, &sm) {
			return Options{}, fmt.Errorf("%w: %s", ErrInvalid, strings.TrimSpace(sm.String()))
		}
		return Options{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return o, nil
}

// Load reads path. An empty path yields the defaults.
func Load(path string) (Options, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	return Parse(data)
}

func singleRune(name, v string) error {
	if utf8.RuneCountInString(v) != 1 {
		return fmt.Errorf("%w: %s must be one character, got %q", ErrInvalid, name, v)
	}
	return nil
}

func (o Options) Validate() error {
	for _, f := range []struct{ name, v string }{
		{"csv.field_separator", o.CSV.FieldSeparator},
		{"csv.decimal_separator", o.CSV.DecimalSeparator},
		{"csv.text_separator", o.CSV.TextSeparator},
	} {
		if err := singleRune(f.name, f.v); err != nil {
			return err
		}
	}
	if o.CSV.FieldSeparator == o.CSV.DecimalSeparator {
		return fmt.Errorf("%w: field and decimal separators are both %q", ErrInvalid, o.CSV.FieldSeparator)
	}
	if o.CSV.Sheet < 0 {
		return fmt.Errorf("%w: csv.sheet is negative", ErrInvalid)
	}
	if _, err := o.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps log.level to a slog level.
func (o Options) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(o.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, o.Log.Level)
	}
	return l, nil
}

// CSVOptions converts the [csv] table. Options must be valid.
func (o Options) CSVOptions() writer.CSVOptions {
	first := func(s string) rune {
		r, _ := utf8.DecodeRuneInString(s)
		return r
	}
	return writer.CSVOptions{
		FieldSeparator:   first(o.CSV.FieldSeparator),
		DecimalSeparator: first(o.CSV.DecimalSeparator),
		TextSeparator:    first(o.CSV.TextSeparator),
		DateFormat:       o.CSV.DateFormat,
		TimeFormat:       o.CSV.TimeFormat,
		Sheet:            o.CSV.Sheet,
	}
}
