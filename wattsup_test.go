package wattsup

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// fakePort replays canned meter output and records what is written to it.
type fakePort struct {
	r      io.Reader
	w      bytes.Buffer
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *fakePort) Close() error {
	p.closed = true
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

func newTestMeter(output string, cfg Config) (*Meter, *fakePort) {
	p := &fakePort{r: strings.NewReader(output)}
	cfg.Logger = quietLogger()
	m := NewMeter(p, cfg)
	m.now = func() time.Time { return time.Unix(1316524469, 0) }
	return m, p
}

const proLine = "#d,-,18,1234,2300,450,500,12,3,40,95,100,1,600,1050;"

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(Config{
		Port:   filepath.Join(os.TempDir(), "no-such-wattsup-device"),
		Logger: quietLogger(),
	})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestOpenReplay(t *testing.T) {
	f, err := ioutil.TempFile("", "wattsup-replay")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.Remove(f.Name())
	f.WriteString("#h,-,3,W,V,A;\n" + proLine + "\n" + proLine + "\n")
	f.Close()

	m, err := Open(Config{Port: f.Name(), Replay: true, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer m.Close()

	// Commands go nowhere; replies come from the capture.
	h, err := m.Header()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if strings.Join(h, ",") != "W,V,A" {
		t.Fatalf("unexpected header %v", h)
	}

	n := 0
	err = m.Log(context.Background(), 1, func(r *Record) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if n != 2 {
		t.Fatalf("got %d records, want 2", n)
	}
}

func TestHeader(t *testing.T) {
	m, p := newTestMeter(proLine+"\n#h,-,6,W,V,A,WH,Cost,PF;\n", Config{})

	h, err := m.Header()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := []string{"W", "V", "A", "WH", "Cost", "PF"}
	if strings.Join(h, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", h, want)
	}
	// The request is repeated until the right tag comes back.
	if got := p.w.String(); got != "#H,R,0;#H,R,0;" {
		t.Fatalf("unexpected commands %q", got)
	}
}

func TestExchangeGivesUp(t *testing.T) {
	m, p := newTestMeter("#d,-,1,1;\n#d,-,1,1;\n#d,-,1,1;\n", Config{Retries: 3})

	_, err := m.Header()
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
	if n := strings.Count(p.w.String(), "#H,R,0;"); n != 3 {
		t.Fatalf("sent %d requests, want 3", n)
	}
}

func TestVersion(t *testing.T) {
	m, _ := newTestMeter("#v,R,7,1,64,1,2,3,4,20110920;\n"+
		"#v,R,8,1,64,1,2,3,4,20110920091429,ab12;\n", Config{})

	v, err := m.Version()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if v.Model != "PRO" || v.Memory != 64 || v.FirmwareMajor != 3 || v.FirmwareMinor != 4 {
		t.Fatalf("unexpected version %+v", v)
	}
	if v.HardwareMajor != "Watts Up? PRO" || v.HardwareMinor != "rev C" {
		t.Fatalf("unexpected hardware %q %q", v.HardwareMajor, v.HardwareMinor)
	}
	want := time.Date(2011, 9, 20, 9, 14, 29, 0, time.UTC)
	if !v.Compiled.Equal(want) {
		t.Fatalf("compiled %v, want %v", v.Compiled, want)
	}
}

func TestVersionUnknownModel(t *testing.T) {
	l, _ := ParseLine("#v,R,8,42,64,9,9,1,0,20110920091429,0;")
	v, err := ParseVersion(l)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if v.Model != "unknown (42)" {
		t.Fatalf("model %q", v.Model)
	}
}

func TestNetwork(t *testing.T) {
	m, p := newTestMeter(
		"#i,q,7,192.168.1.10,192.168.1.1,8.8.8.8,8.8.4.4,255.255.255.0,1,0A1B2C3D4E5F;\n"+
			"#i,e,5,example.com,80,/post,WattsUp.NET,60;\n", Config{})

	n, err := m.Network()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if n.MAC != "0a:1b:2c:3d:4e:5f" || !n.DHCP || n.IP != "192.168.1.10" {
		t.Fatalf("unexpected basic info %+v", n)
	}
	if n.PostHost != "example.com" || n.PostPort != 80 || n.PostInterval != 60 {
		t.Fatalf("unexpected extended info %+v", n)
	}
	if got := p.w.String(); got != "#I,Q,0;#I,E,0;" {
		t.Fatalf("unexpected commands %q", got)
	}
	if !strings.Contains(n.String(), "MAC address:      0a:1b:2c:3d:4e:5f") {
		t.Fatalf("report missing mac:\n%s", n)
	}
}

func TestSetNetworkExtended(t *testing.T) {
	m, p := newTestMeter("#s;\n#w;\n", Config{})

	err := m.SetNetworkExtended(&NetworkInfo{
		PostHost:     "example.com",
		PostPort:     8080,
		PostFile:     "/wattsup",
		UserAgent:    "WattsUp.NET",
		PostInterval: 1,
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := "#I,X,5,example.com,8080,/wattsup,WattsUp.NET,1;#I,W,0;"
	if got := p.w.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSetNetworkExtendedTooLong(t *testing.T) {
	m, p := newTestMeter("", Config{})

	err := m.SetNetworkExtended(&NetworkInfo{
		PostHost: strings.Repeat("a", MaxNetworkStringLen+1),
		PostFile: "/",
	})
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if p.w.Len() != 0 {
		t.Fatalf("sent %q despite validation error", p.w.String())
	}

	err = m.SetNetworkExtended(&NetworkInfo{
		PostHost: "example.com",
		PostFile: strings.Repeat("f", MaxNetworkStringLen+1),
	})
	if !IsValidationError(err) {
		t.Fatalf("expected validation error for post file, got %v", err)
	}
}

func TestSetNetworkBasic(t *testing.T) {
	m, p := newTestMeter("#s;\n#w;\n", Config{})

	err := m.SetNetworkBasic(&NetworkInfo{
		IP: "10.0.0.2", Gateway: "10.0.0.1", DNS1: "10.0.0.1", DNS2: "0.0.0.0",
		Netmask: "255.255.255.0", DHCP: true,
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := "#I,S,6,10.0.0.2,10.0.0.1,10.0.0.1,0.0.0.0,255.255.255.0,1;#I,W,0;"
	if got := p.w.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReset(t *testing.T) {
	m, p := newTestMeter("", Config{})
	if err := m.Reset(); err != nil {
		t.Fatalf("%+v", err)
	}
	if got := p.w.String(); got != "#V,W,0;" {
		t.Fatalf("got %q", got)
	}
}

func TestLogSkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"#h,-,2,W,V;",
		proLine,
		"#d,-,3,12,3;",
		"#d,-,12,x,2300,450,500,12,3,40,95,100,1,600,1050;",
		"#d,-,12,nan,2300,450,500,12,3,40,95,100,1,600,1050;",
		"#d,-,12,1234,Inf,450,500,12,3,40,95,100,1,600,1050;",
		"garbage",
		proLine,
	}, "\r\n") + "\r\n"
	m, p := newTestMeter(input, Config{Device: "meter1"})

	var got []*Record
	err := m.Log(context.Background(), 2, func(r *Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if w, _ := got[0].Get("watts"); w != 123.4 {
		t.Fatalf("watts %v, want 123.4", w)
	}
	if got[0].Device != "meter1" {
		t.Fatalf("device %q", got[0].Device)
	}
	if p.w.String() != "#L,W,3,E,,2;" {
		t.Fatalf("unexpected logging command %q", p.w.String())
	}
}

func TestLogStopsOnCallbackError(t *testing.T) {
	m, _ := newTestMeter(proLine+"\n"+proLine+"\n", Config{})
	boom := errors.New("boom")

	err := m.Log(context.Background(), 1, func(r *Record) error { return boom })
	if errors.Cause(err) != boom {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestLogCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := &fakePort{r: pr}
	m := NewMeter(p, Config{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Log(ctx, 1, func(r *Record) error { return nil })
	}()

	pw.Write([]byte(proLine + "\n"))
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("%+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Log did not return after cancel")
	}
	if !p.closed {
		t.Fatal("port not closed after cancel")
	}
}

func TestStream(t *testing.T) {
	m, _ := newTestMeter(proLine+"\n"+proLine+"\n", Config{})

	n := 0
	for r := range m.Stream(context.Background(), 1) {
		if v, _ := r.Get("volts"); v != 230 {
			t.Fatalf("volts %v", v)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("got %d records, want 2", n)
	}
}

func TestDeviceID(t *testing.T) {
	if id := DeviceID("/dev/ttyUSB0"); id != "ttyUSB0" {
		t.Fatalf("got %q", id)
	}
}
