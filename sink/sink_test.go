package sink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwesterb/go-wattsup"
)

type countSink struct {
	writes int
	closed bool
	err    error
}

func (s *countSink) Write(ctx context.Context, r *wattsup.Record) error {
	s.writes++
	return s.err
}

func (s *countSink) Close() error {
	s.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	a := &countSink{}
	b := &countSink{err: errors.New("broker down")}
	c := &countSink{}
	m := Multi{a, b, c}

	r := &wattsup.Record{Time: time.Now(), Fields: []wattsup.Field{{Label: "watts", Value: 1}}}
	err := m.Write(context.Background(), r)
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected broker error, got %v", err)
	}
	// A failing sink does not keep the others from getting the record.
	if a.writes != 1 || b.writes != 1 || c.writes != 1 {
		t.Fatalf("writes %d %d %d", a.writes, b.writes, c.writes)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("%+v", err)
	}
	if !a.closed || !b.closed || !c.closed {
		t.Fatal("not every sink was closed")
	}
}

func TestOpenNothing(t *testing.T) {
	m, err := Open(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(m) != 0 {
		t.Fatalf("got %d sinks", len(m))
	}
	if err := m.Write(context.Background(), &wattsup.Record{}); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestFormatTopic(t *testing.T) {
	for _, tc := range []struct {
		pattern, device, want string
	}{
		{"wattsup/{device_id}/reading", "dev1", "wattsup/dev1/reading"},
		{"wattsup/{device_id}/reading", "", "wattsup/unknown/reading"},
		{"meters", "dev1", "meters"},
	} {
		if got := formatTopic(tc.pattern, tc.device); got != tc.want {
			t.Fatalf("%q/%q: got %q, want %q", tc.pattern, tc.device, got, tc.want)
		}
	}
}
