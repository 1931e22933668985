package wattsup

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwesterb/go-wattsup/csv"
	"github.com/pkg/errors"
)

// Output formats understood by NewEncoder.
const (
	FormatRaw    = "raw"
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

// Formats lists the output formats in the order they are documented.
var Formats = []string{FormatRaw, FormatPretty, FormatJSON}

// An Encoder writes one record at a time.
type Encoder interface {
	Encode(interface{}) error
}

// NewEncoder returns the encoder for the given output format.
func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch strings.ToLower(format) {
	case FormatRaw:
		return csv.NewEncoder(w), nil
	case FormatPretty:
		return PrettyEncoder{w}, nil
	case FormatJSON:
		return json.NewEncoder(w), nil
	}
	return nil, errors.Errorf("invalid output format %q (want %s)",
		format, strings.Join(Formats, ", "))
}

// PrettyEncoder writes records as "<value> <label>" lists, one per line.
type PrettyEncoder struct {
	w io.Writer
}

func (pe PrettyEncoder) Encode(v interface{}) (err error) {
	if r, ok := v.(*Record); ok {
		_, err = fmt.Fprintln(pe.w, r.Pretty())
	} else {
		_, err = fmt.Fprintln(pe.w, v)
	}
	return
}

// WriteLogPreamble writes the comment lines and the CSV header row that
// start a raw log file.
func WriteLogPreamble(w io.Writer, labels []string, now time.Time) error {
	_, err := fmt.Fprintf(w, "# Readings from a Watts Up? Meter\n# %s\n",
		now.Format("2006-01-02 15:04:05"))
	if err != nil {
		return errors.Wrap(err, "writing preamble")
	}
	return csv.NewEncoder(w).WriteRow(append([]string{"timestamp"}, labels...))
}

// LogFileName is the name used for auto-saved logs.
func LogFileName(now time.Time) string {
	return fmt.Sprintf("wattsup_%s.data", now.Format("2006-01-02_15-04-05"))
}
