package wattsup

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestParseLine(t *testing.T) {
	for _, tc := range []struct {
		in     string
		tag    string
		fields []string
		bad    bool
	}{
		{"#h,-,3,W,V,A;\r\n", "#h", []string{"W", "V", "A"}, false},
		{"#d,-,2,1,2;trailing junk", "#d", []string{"1", "2"}, false},
		{"#i,q,0;", "#i", []string{}, false},
		{"#v", "", nil, true},
		{"hello", "", nil, true},
		{"", "", nil, true},
	} {
		l, err := ParseLine(tc.in)
		if tc.bad {
			if !IsProtocolError(err) {
				t.Fatalf("%q: expected protocol error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %+v", tc.in, err)
		}
		if l.Tag != tc.tag || strings.Join(l.Fields, ",") != strings.Join(tc.fields, ",") {
			t.Fatalf("%q: got %+v", tc.in, l)
		}
	}
}

func TestDecodeMAC(t *testing.T) {
	mac, err := DecodeMAC("0A1B2C3D4E5F")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if mac != "0a:1b:2c:3d:4e:5f" {
		t.Fatalf("got %q", mac)
	}
	if _, err := DecodeMAC("0A1B2Z"); err == nil {
		t.Fatal("expected error for non-hex mac")
	}
}

func parseProRecord(t *testing.T, line string) *Record {
	l, err := ParseLine(line)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	r, err := VariantPro.ParseRecord(l, time.Unix(1316524469, 500*int64(time.Millisecond)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return r
}

func TestRescale(t *testing.T) {
	r := parseProRecord(t, proLine)
	for label, want := range map[string]float64{
		"watts":        123.4,
		"volts":        230,
		"amps":         0.45,
		"watt-hours":   50,
		"dollars":      0.012,
		"power factor": 95,
		"frequency":    60,
		"volt-amps":    105,
	} {
		got, ok := r.Get(label)
		if !ok || got != want {
			t.Fatalf("%s: got %v, want %v", label, got, want)
		}
	}
}

func TestLegacyVariant(t *testing.T) {
	v, err := LookupVariant("LEGACY")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	l, _ := ParseLine("#d,-,15,1000,2300,450,500,1100,2400,500,900,2200,400,95,50,1,600,1050;")
	r, err := v.ParseRecord(l, time.Now())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(r.Fields) != 15 {
		t.Fatalf("got %d fields", len(r.Fields))
	}
	if w, _ := r.Get("max watts"); w != 110 {
		t.Fatalf("max watts %v", w)
	}

	// A pro line is too short for the legacy layout.
	l, _ = ParseLine(proLine)
	if _, err := v.ParseRecord(l, time.Now()); !IsProtocolError(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}

	if _, err := LookupVariant("nope"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

// The three renderers show the same values; JSON reads back to the raw
// CSV fields in the same order.
func TestRenderersAgree(t *testing.T) {
	r := parseProRecord(t, proLine)

	var raw, pretty, js bytes.Buffer
	for format, buf := range map[string]*bytes.Buffer{
		FormatRaw:    &raw,
		FormatPretty: &pretty,
		FormatJSON:   &js,
	} {
		enc, err := NewEncoder(format, buf)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if err := enc.Encode(r); err != nil {
			t.Fatalf("%s: %+v", format, err)
		}
	}

	csvFields := strings.Split(strings.TrimSpace(raw.String()), ",")
	if len(csvFields) != len(r.Fields)+1 {
		t.Fatalf("raw has %d fields: %q", len(csvFields), raw.String())
	}
	if csvFields[0] != "1316524469500" || csvFields[1] != "123.4" {
		t.Fatalf("unexpected raw output %q", raw.String())
	}

	var back Record
	if err := json.Unmarshal(js.Bytes(), &back); err != nil {
		t.Fatalf("%+v", err)
	}
	if back.Millis() != r.Millis() {
		t.Fatalf("time %d, want %d", back.Millis(), r.Millis())
	}
	for i, f := range back.Fields {
		want, _ := strconv.ParseFloat(csvFields[i+1], 64)
		if f.Label != r.Fields[i].Label || f.Value != want {
			t.Fatalf("field %d: got %s=%v, want %s=%v", i, f.Label, f.Value,
				r.Fields[i].Label, want)
		}
	}

	prettyBits := strings.Split(strings.TrimSpace(pretty.String()), ", ")
	for i, bit := range prettyBits {
		want := csvFields[i+1] + " " + r.Fields[i].Label
		if bit != want {
			t.Fatalf("pretty field %d: got %q, want %q", i, bit, want)
		}
	}
}

func TestJSONKeyOrder(t *testing.T) {
	r := &Record{
		Time:   time.Unix(1, 0),
		Device: "dev1",
		Fields: []Field{{"watts", 1.5}, {"volts", 230}},
	}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got, want := string(b), `{"time":1000,"id":"dev1","watts":1.5,"volts":230}`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestInvalidFormat(t *testing.T) {
	if _, err := NewEncoder("xml", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLogPreamble(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2011, 9, 20, 9, 14, 29, 0, time.UTC)
	if err := WriteLogPreamble(&buf, []string{"watts", "volts"}, now); err != nil {
		t.Fatalf("%+v", err)
	}
	want := "# Readings from a Watts Up? Meter\n# 2011-09-20 09:14:29\ntimestamp,watts,volts\n"
	if buf.String() != want {
		t.Fatalf("got %q", buf.String())
	}
	if name := LogFileName(now); name != "wattsup_2011-09-20_09-14-29.data" {
		t.Fatalf("got %q", name)
	}
}

func TestCommand(t *testing.T) {
	if got := Command("logging", 5); got != "#L,W,3,E,,5;" {
		t.Fatalf("got %q", got)
	}
	if got := Command("header"); got != "#H,R,0;" {
		t.Fatalf("got %q", got)
	}
}
