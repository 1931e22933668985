package wattsup

// Watts Up? serial protocol: commands and response lines

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Two-character tags that start every response line.
const (
	TagHeader  = "#h"
	TagVersion = "#v"
	TagNetwork = "#i"
	TagData    = "#d"
)

// Maximum length of the URL and post file in the extended network settings.
const MaxNetworkStringLen = 40

// Command templates, sent verbatim once formatted.
var commands = map[string]string{
	"header":               "#H,R,0;",
	"version":              "#V,R,0;",
	"logging":              "#L,W,3,E,,%d;",
	"reset":                "#V,W,0;",
	"network-basic":        "#I,Q,0;",
	"network-extended":     "#I,E,0;",
	"set-network-basic":    "#I,S,6,%s,%s,%s,%s,%s,%d;",
	"set-network-extended": "#I,X,5,%s,%d,%s,%s,%d;",
	"commit-network":       "#I,W,0;",
}

// Command returns the named command with its arguments filled in.
func Command(name string, args ...interface{}) string {
	tmpl, ok := commands[name]
	if !ok {
		panic(fmt.Sprintf("wattsup: unknown command %q", name))
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// A ProtocolError is returned for a response line that cannot be decoded.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (line %q)", e.Reason, e.Line)
}

// A ValidationError is returned before anything is sent to the meter when
// a setting does not fit the device's limits.
type ValidationError struct {
	Field string
	Value string
	Max   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q is %d characters long, the meter accepts at most %d",
		e.Field, e.Value, len(e.Value), e.Max)
}

// Line is one decoded response line.
type Line struct {
	Tag    string
	Sub    string
	Fields []string
}

// ParseLine splits a response line of the form "#t,s,n,f1,f2,...;".
// Everything after the first ';' is discarded and the three positional
// fields (tag, subcommand and count) are kept apart from the payload.
func ParseLine(raw string) (*Line, error) {
	s := strings.TrimRight(raw, "\r\n")
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	if len(s) < 2 || s[0] != '#' {
		return nil, &ProtocolError{Line: raw, Reason: "missing tag"}
	}
	bits := strings.Split(s, ",")
	if len(bits) < 3 {
		return nil, &ProtocolError{Line: raw, Reason: "missing positional fields"}
	}
	return &Line{
		Tag:    bits[0],
		Sub:    bits[1],
		Fields: bits[3:],
	}, nil
}

// Expect checks that the payload has exactly n fields.
func (l *Line) Expect(n int) error {
	if len(l.Fields) != n {
		return &ProtocolError{
			Line:   l.String(),
			Reason: fmt.Sprintf("expected %d fields, got %d", n, len(l.Fields)),
		}
	}
	return nil
}

func (l *Line) String() string {
	return fmt.Sprintf("%s,%s,%d,%s;", l.Tag, l.Sub, len(l.Fields),
		strings.Join(l.Fields, ","))
}

// IsProtocolError reports whether err is (or wraps) a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
