// Package wattsup talks to Watts Up? power meters over their USB serial
// port: it queries the meter's header, version and network settings and
// decodes the stream of readings the meter sends while logging.
package wattsup

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

const (
	DefaultBaud    = 115200
	DefaultRetries = 10
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNoResponse     = errors.New("no matching response from meter")

	errTimeout = errors.New("read timed out")
)

// Config holds everything a Meter needs; nothing is read from globals.
type Config struct {
	// Path of the serial device, or of a capture file when Replay is set.
	Port string
	Baud int

	// Field layout of #d lines. Defaults to VariantPro.
	Variant *Variant

	// Zero blocks on reads forever, like the meter's own tools.
	ReadTimeout time.Duration

	// Attempts per request/response exchange. Zero means DefaultRetries,
	// a negative value retries forever.
	Retries int

	// Identifier attached to every record.
	Device string

	// Read lines from the file at Port instead of a serial device;
	// commands are discarded.
	Replay bool

	Logger logrus.FieldLogger
}

func (c *Config) setDefaults() {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.Variant == nil {
		c.Variant = VariantPro
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

type Meter struct {
	cfg     Config
	port    io.ReadWriteCloser
	r       *bufio.Reader
	log     logrus.FieldLogger
	pending string
	now     func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// replayPort reads a capture file and discards whatever is written to it.
type replayPort struct {
	f *os.File
}

func (p replayPort) Read(b []byte) (int, error) { return p.f.Read(b) }
func (p replayPort) Close() error               { return p.f.Close() }

func (replayPort) Write(b []byte) (int, error) {
	return len(b), nil
}

// DeviceID is the identifier attached to readings from the meter at port
// when none is configured.
func DeviceID(port string) string {
	return filepath.Base(port)
}

// Open connects to the meter at cfg.Port.
func Open(cfg Config) (*Meter, error) {
	cfg.setDefaults()
	cfg.Logger.WithField("port", cfg.Port).Debug("Looking for meter")

	if _, err := os.Stat(cfg.Port); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrDeviceNotFound, "unable to find %s", cfg.Port)
		}
		return nil, errors.Wrapf(err, "unable to find %s", cfg.Port)
	}

	if cfg.Replay {
		f, err := os.Open(cfg.Port)
		if err != nil {
			return nil, errors.Wrap(err, "opening capture file")
		}
		return NewMeter(replayPort{f}, cfg), nil
	}

	s, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", cfg.Port)
	}
	return NewMeter(s, cfg), nil
}

// NewMeter wraps an already opened port.
func NewMeter(port io.ReadWriteCloser, cfg Config) *Meter {
	cfg.setDefaults()
	return &Meter{
		cfg:  cfg,
		port: port,
		r:    bufio.NewReader(port),
		log:  cfg.Logger.WithField("port", cfg.Port),
		now:  time.Now,
	}
}

// Variant returns the field layout used to decode readings.
func (m *Meter) Variant() *Variant {
	return m.cfg.Variant
}

// Close closes the port. It is safe to call more than once.
func (m *Meter) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.port.Close()
	})
	return m.closeErr
}

func (m *Meter) write(cmd string) error {
	m.log.WithField("command", cmd).Debug("Sending command")
	if _, err := io.WriteString(m.port, cmd); err != nil {
		return errors.Wrapf(err, "sending %s", cmd)
	}
	return nil
}

// readLine returns the next line without its line break. A line cut short
// by a read timeout is kept and completed by the next call.
func (m *Meter) readLine() (string, error) {
	line, err := m.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && m.cfg.ReadTimeout > 0 && !m.cfg.Replay {
			m.pending += line
			return "", errTimeout
		}
		if err == io.EOF && line != "" {
			err = nil
		} else {
			return "", err
		}
	}
	line = m.pending + line
	m.pending = ""
	return strings.TrimRight(line, "\r\n"), nil
}

// exchange sends cmd until a reply with the given tag and, if n is not
// negative, exactly n payload fields comes back.
func (m *Meter) exchange(cmd, tag string, n int) (*Line, error) {
	log := m.log.WithField("tag", tag)
	for attempt := 1; m.cfg.Retries < 0 || attempt <= m.cfg.Retries; attempt++ {
		if err := m.write(cmd); err != nil {
			return nil, err
		}
		raw, err := m.readLine()
		if err == errTimeout {
			log.WithField("attempt", attempt).Debug("Timed out waiting for reply")
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading from meter")
		}
		l, err := ParseLine(raw)
		if err != nil {
			log.WithError(err).Debug("Skipping line")
			continue
		}
		if l.Tag != tag {
			log.WithField("line", raw).Debug("Skipping line with other tag")
			continue
		}
		if n >= 0 {
			if err := l.Expect(n); err != nil {
				log.WithError(err).Debug("Skipping reply")
				continue
			}
		}
		return l, nil
	}
	return nil, errors.Wrapf(ErrNoResponse, "%s: gave up after %d attempts", cmd, m.cfg.Retries)
}

// command sends cmd and discards the one line the meter acknowledges it
// with.
func (m *Meter) command(cmd string) error {
	if err := m.write(cmd); err != nil {
		return err
	}
	ack, err := m.readLine()
	if err == errTimeout {
		m.log.WithField("command", cmd).Warn("No acknowledgement from meter")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reading acknowledgement")
	}
	m.log.WithField("ack", ack).Debug("Discarding acknowledgement")
	return nil
}

// Header returns the names of the columns of the meter's readings.
func (m *Meter) Header() ([]string, error) {
	m.log.Debug("Retrieving header information")
	l, err := m.exchange(Command("header"), TagHeader, -1)
	if err != nil {
		return nil, err
	}
	return l.Fields, nil
}

// Version returns the meter's identifying information.
func (m *Meter) Version() (*VersionInfo, error) {
	m.log.Debug("Retrieving version information")
	l, err := m.exchange(Command("version"), TagVersion, versionFields)
	if err != nil {
		return nil, err
	}
	return ParseVersion(l)
}

// Network returns the meter's network settings.
func (m *Meter) Network() (*NetworkInfo, error) {
	var ret NetworkInfo

	m.log.Debug("Retrieving network information")
	l, err := m.exchange(Command("network-basic"), TagNetwork, networkBasicFields)
	if err != nil {
		return nil, err
	}
	if err := ret.parseNetworkBasic(l); err != nil {
		return nil, err
	}

	l, err = m.exchange(Command("network-extended"), TagNetwork, networkExtendedFields)
	if err != nil {
		return nil, err
	}
	if err := ret.parseNetworkExtended(l); err != nil {
		return nil, err
	}
	return &ret, nil
}

// SetNetworkBasic writes the address settings of n and commits them.
func (m *Meter) SetNetworkBasic(n *NetworkInfo) error {
	m.log.WithField("ip", n.IP).Info("Writing network settings")
	if err := m.command(n.BasicCommand()); err != nil {
		return err
	}
	return m.command(Command("commit-network"))
}

// SetNetworkExtended writes the POST settings of n and commits them.
// Nothing is sent when a setting is too long.
func (m *Meter) SetNetworkExtended(n *NetworkInfo) error {
	cmd, err := n.ExtendedCommand()
	if err != nil {
		return err
	}
	m.log.WithField("url", n.PostHost).Info("Writing POST settings")
	if err := m.command(cmd); err != nil {
		return err
	}
	return m.command(Command("commit-network"))
}

// Reset soft-resets the meter.
func (m *Meter) Reset() error {
	m.log.Info("Resetting the meter")
	return m.write(Command("reset"))
}

// closeOnDone closes the port once ctx is done, which unblocks a pending
// read. The returned func stops watching.
func (m *Meter) closeOnDone(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Log starts external logging at the given interval in seconds and calls
// fn for every reading until ctx is done, the input ends or fn fails.
// Lines that cannot be decoded are logged and skipped.
func (m *Meter) Log(ctx context.Context, interval int, fn func(*Record) error) error {
	if interval < 1 {
		interval = 1
	}
	if err := m.write(Command("logging", interval)); err != nil {
		return err
	}

	stop := m.closeOnDone(ctx)
	defer func() {
		stop()
		if ctx.Err() != nil {
			m.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := m.readLine()
		if err == errTimeout {
			continue
		}
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "reading from meter")
		}
		if !strings.HasPrefix(raw, TagData) {
			m.log.WithField("line", raw).Debug("Skipping line")
			continue
		}

		r, err := m.parseRecord(raw)
		if err != nil {
			m.log.WithError(err).Warn("Skipping malformed reading")
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
}

func (m *Meter) parseRecord(raw string) (*Record, error) {
	l, err := ParseLine(raw)
	if err != nil {
		return nil, err
	}
	r, err := m.cfg.Variant.ParseRecord(l, m.now())
	if err != nil {
		return nil, err
	}
	r.Device = m.cfg.Device
	return r, nil
}

// Stream runs Log in the background and delivers the readings on the
// returned channel, which is closed when logging stops.
func (m *Meter) Stream(ctx context.Context, interval int) <-chan *Record {
	c := make(chan *Record, 1)
	go func() {
		defer close(c)
		err := m.Log(ctx, interval, func(r *Record) error {
			select {
			case c <- r:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			m.log.WithError(err).Error("Logging stopped")
		}
	}()
	return c
}
