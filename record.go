package wattsup

// Measurement records decoded from #d lines

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// FieldSpec describes one payload field of a #d line.
type FieldSpec struct {
	Label   string
	Divisor float64
}

// Variant is the field layout of the #d lines of one firmware generation.
// Field order and divisors must match the meter; the protocol itself does
// not tell them apart, so a wrong variant yields nonsense, not an error.
type Variant struct {
	Name   string
	Fields []FieldSpec
}

// Labels returns the labels of the variant's fields in order.
func (v *Variant) Labels() []string {
	ret := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		ret[i] = f.Label
	}
	return ret
}

var (
	// Newer meters, with dollars and duty cycle.
	VariantPro = &Variant{
		Name: "pro",
		Fields: []FieldSpec{
			{"watts", 10},
			{"volts", 10},
			{"amps", 1000},
			{"watt-hours", 10},
			{"dollars", 1000},
			{"watt-hours monthly", 1},
			{"dollars monthly", 1000},
			{"power factor", 1},
			{"duty cycle", 1},
			{"power cycle", 1},
			{"frequency", 10},
			{"volt-amps", 10},
		},
	}

	// Older meters, with min/max readings instead of cost.
	VariantLegacy = &Variant{
		Name: "legacy",
		Fields: []FieldSpec{
			{"watts", 10},
			{"volts", 10},
			{"amps", 1000},
			{"watt-hours", 10},
			{"max watts", 10},
			{"max volts", 10},
			{"max amps", 1000},
			{"min watts", 10},
			{"min volts", 10},
			{"min amps", 1000},
			{"power factor", 1},
			{"duty cycle", 1},
			{"power cycle", 1},
			{"frequency", 10},
			{"volt-amps", 10},
		},
	}
)

var (
	variantMutex sync.Mutex
	variants     = map[string]*Variant{
		VariantPro.Name:    VariantPro,
		VariantLegacy.Name: VariantLegacy,
	}
)

// RegisterVariant makes a field layout available to LookupVariant.
func RegisterVariant(v *Variant) {
	variantMutex.Lock()
	defer variantMutex.Unlock()

	if v == nil || len(v.Fields) == 0 {
		panic("wattsup: variant has no fields")
	}
	if _, dup := variants[v.Name]; dup {
		panic(fmt.Sprintf("wattsup: variant already registered (%s)", v.Name))
	}
	variants[v.Name] = v
}

// LookupVariant returns the registered variant with the given name.
func LookupVariant(name string) (*Variant, error) {
	variantMutex.Lock()
	defer variantMutex.Unlock()

	if v, ok := variants[strings.ToLower(name)]; ok {
		return v, nil
	}
	return nil, errors.Errorf("unknown protocol variant %q (known: %s)",
		name, strings.Join(variantNames(), ", "))
}

func variantNames() []string {
	ret := make([]string, 0, len(variants))
	for name := range variants {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Field is one rescaled value of a record.
type Field struct {
	Label string
	Value float64
}

// Record is one decoded and rescaled sample.
type Record struct {
	Time   time.Time
	Device string
	Fields []Field
}

// Millis returns the record's timestamp in milliseconds since the epoch.
func (r *Record) Millis() int64 {
	return r.Time.UnixNano() / int64(time.Millisecond)
}

// Get returns the value of the field with the given label.
func (r *Record) Get(label string) (float64, bool) {
	for _, f := range r.Fields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return 0, false
}

// ParseRecord decodes the payload of a #d line with the given variant.
// Trailing fields beyond the variant's layout are ignored.
func (v *Variant) ParseRecord(l *Line, now time.Time) (*Record, error) {
	if l.Tag != TagData {
		return nil, &ProtocolError{Line: l.String(), Reason: "not a data line"}
	}
	if len(l.Fields) < len(v.Fields) {
		return nil, &ProtocolError{
			Line: l.String(),
			Reason: fmt.Sprintf("%s record needs %d fields, got %d",
				v.Name, len(v.Fields), len(l.Fields)),
		}
	}

	ret := Record{
		Time:   now,
		Fields: make([]Field, len(v.Fields)),
	}
	for i, spec := range v.Fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(l.Fields[i]), 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, &ProtocolError{
				Line:   l.String(),
				Reason: fmt.Sprintf("%s: could not parse %q", spec.Label, l.Fields[i]),
			}
		}
		ret.Fields[i] = Field{Label: spec.Label, Value: x / spec.Divisor}
	}
	return &ret, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Record returns the CSV fields of the record: the timestamp in
// milliseconds followed by the values in order.
func (r *Record) Record() []string {
	ret := make([]string, 0, len(r.Fields)+1)
	ret = append(ret, strconv.FormatInt(r.Millis(), 10))
	for _, f := range r.Fields {
		ret = append(ret, formatValue(f.Value))
	}
	return ret
}

// Pretty renders the record as "<value> <label>" pairs.
func (r *Record) Pretty() string {
	bits := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		bits[i] = fmt.Sprintf("%s %s", formatValue(f.Value), f.Label)
	}
	return strings.Join(bits, ", ")
}

func (r *Record) String() string {
	return r.Pretty()
}

// MarshalJSON renders the record as a single object whose keys keep the
// field order: "time" first, then "id" if the record has a device, then
// the fields.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"time":`)
	buf.WriteString(strconv.FormatInt(r.Millis(), 10))
	if r.Device != "" {
		id, _ := json.Marshal(r.Device)
		buf.WriteString(`,"id":`)
		buf.Write(id)
	}
	for _, f := range r.Fields {
		label, _ := json.Marshal(f.Label)
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", f.Label)
		}
		buf.WriteByte(',')
		buf.Write(label)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON is the inverse of MarshalJSON; field order is taken from
// the order of the keys in the object.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("record: expected object")
	}
	*r = Record{}
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		switch val := tok.(type) {
		case string:
			if key == "id" {
				r.Device = val
			}
		case json.Number:
			if key == "time" {
				ms, err := val.Int64()
				if err != nil {
					return errors.Wrap(err, "record: time")
				}
				r.Time = time.Unix(0, ms*int64(time.Millisecond))
				continue
			}
			f, err := val.Float64()
			if err != nil {
				return errors.Wrapf(err, "record: %s", key)
			}
			r.Fields = append(r.Fields, Field{Label: key, Value: f})
		default:
			return errors.Errorf("record: unexpected value for %s", key)
		}
	}
	_, err = dec.Token()
	return err
}
