package ingest

import (
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bwesterb/go-wattsup"
)

// Submission is one reading posted by a meter. Fields tagged with "form"
// are required; "scale" divides the posted value.
type Submission struct {
	Time        int64   `json:"time"`
	ID          string  `json:"id" form:"id"`
	Watts       float64 `json:"watts" form:"w" scale:"10"`
	Volts       float64 `json:"volts" form:"v" scale:"10"`
	Amps        float64 `json:"amps" form:"a" scale:"10"`
	WattHours   float64 `json:"watt-hours" form:"wh" scale:"10"`
	MaxWatts    float64 `json:"max watts" form:"wmx" scale:"10"`
	MaxVolts    float64 `json:"max volts" form:"vmx" scale:"10"`
	MaxAmps     float64 `json:"max amps" form:"amx" scale:"10"`
	MinWatts    float64 `json:"min watts" form:"wmi" scale:"10"`
	MinVolts    float64 `json:"min volts" form:"vmi" scale:"10"`
	MinAmps     float64 `json:"min amps" form:"ami" scale:"10"`
	PowerFactor float64 `json:"power factor" form:"pf"`
	PowerCycle  float64 `json:"power cycle" form:"pcy"`
	Frequency   float64 `json:"frequency" form:"frq" scale:"10"`
	VoltAmps    float64 `json:"volt-amps" form:"va" scale:"10"`
}

// A FieldError names a form key that is missing or cannot be parsed.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

// FieldErrors collects every problem with a submission.
type FieldErrors []*FieldError

func (es FieldErrors) Error() string {
	bits := make([]string, len(es))
	for i, e := range es {
		bits[i] = e.Error()
	}
	return "invalid submission: " + strings.Join(bits, "; ")
}

// Decode parses an application/x-www-form-urlencoded body.
func Decode(body []byte, now time.Time) (*Submission, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, FieldErrors{{Key: "body", Reason: err.Error()}}
	}

	var ret Submission
	if errs := fillStruct(&ret, form); len(errs) != 0 {
		return nil, errs
	}
	ret.Time = now.UnixNano() / int64(time.Millisecond)
	return &ret, nil
}

// Fills the given struct (annotated by "form" and "scale" tags) with the
// values from the form.
func fillStruct(s interface{}, form url.Values) FieldErrors {
	var ret FieldErrors
	sv := reflect.Indirect(reflect.ValueOf(s))
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		fieldType := st.Field(i)
		key, ok := fieldType.Tag.Lookup("form")
		if !ok {
			continue
		}
		vals, ok := form[key]
		if !ok || len(vals) == 0 {
			ret = append(ret, &FieldError{Key: key, Reason: "missing"})
			continue
		}
		field := sv.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(vals[0])
		case reflect.Float64:
			x, err := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
			if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
				ret = append(ret, &FieldError{Key: key,
					Reason: fmt.Sprintf("%q is not a number", vals[0])})
				continue
			}
			if scale, ok := fieldType.Tag.Lookup("scale"); ok {
				d, err := strconv.ParseFloat(scale, 64)
				if err != nil {
					panic(fmt.Sprintf("ingest: bad scale tag on %s", fieldType.Name))
				}
				x /= d
			}
			field.SetFloat(x)
		}
	}
	return ret
}

// Record converts the submission into a meter record, labelled like the
// JSON keys.
func (s *Submission) Record() *wattsup.Record {
	ret := wattsup.Record{
		Time:   time.Unix(0, s.Time*int64(time.Millisecond)),
		Device: s.ID,
	}
	sv := reflect.ValueOf(s).Elem()
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		if _, ok := st.Field(i).Tag.Lookup("form"); !ok {
			continue
		}
		if sv.Field(i).Kind() != reflect.Float64 {
			continue
		}
		ret.Fields = append(ret.Fields, wattsup.Field{
			Label: st.Field(i).Tag.Get("json"),
			Value: sv.Field(i).Float(),
		})
	}
	return &ret
}
