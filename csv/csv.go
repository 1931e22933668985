// Package csv writes records as comma separated lines.
package csv

import (
	"encoding/csv"
	"io"

	"golang.org/x/xerrors"
)

// Produces a list of fields making up a record.
type Recorder interface {
	Record() []string
}

// An Encoder writes CSV records to an output stream.
type Encoder struct {
	w *csv.Writer
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: csv.NewWriter(w)}
}

// Encode writes v, which must implement Recorder, as one CSV line and
// flushes it.
func (enc *Encoder) Encode(v interface{}) (err error) {
	defer func() {
		if r, ok := recover().(error); ok && r != nil {
			err = xerrors.Errorf("recovered: %w", r)
		}
	}()

	return enc.WriteRow(v.(Recorder).Record())
}

// WriteRow writes a plain row, e.g. a header.
func (enc *Encoder) WriteRow(row []string) error {
	if err := enc.w.Write(row); err != nil {
		return xerrors.Errorf("csv: %w", err)
	}
	enc.w.Flush()
	return enc.w.Error()
}
