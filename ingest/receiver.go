// Package ingest receives readings that network-enabled Watts Up? meters
// POST to a server and prints each of them as a JSON line.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bwesterb/go-wattsup"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Body of every successful reply; the meter only checks the status.
const replyBody = "[0]"

const maxAcceptDelay = time.Second

// Sink receives every accepted submission, e.g. an MQTT publisher.
type Sink interface {
	Write(ctx context.Context, r *wattsup.Record) error
}

type Config struct {
	// Destination of the JSON lines. Defaults to os.Stdout.
	Out io.Writer

	// Deadline for reading a whole request. Zero waits forever.
	ReadTimeout time.Duration

	Sink   Sink
	Logger logrus.FieldLogger
}

// Receiver handles one connection at a time.
type Receiver struct {
	cfg Config
	enc *json.Encoder
	log logrus.FieldLogger
	now func() time.Time
}

func NewReceiver(cfg Config) *Receiver {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Receiver{
		cfg: cfg,
		enc: json.NewEncoder(cfg.Out),
		log: cfg.Logger,
		now: time.Now,
	}
}

func writeResponse(w io.Writer, status int, body string) error {
	_, err := fmt.Fprintf(w,
		"HTTP/1.0 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(body), body)
	return err
}

// Handle serves a single request on conn and closes it.
func (rc *Receiver) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := rc.log.WithField("remote", conn.RemoteAddr().String())

	if rc.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(rc.now().Add(rc.cfg.ReadTimeout))
	}

	req, err := ReadRequest(bufio.NewReader(conn))
	if err != nil {
		log.WithError(err).Warn("Could not read request")
		if errors.Is(err, ErrBadRequest) {
			writeResponse(conn, http.StatusBadRequest, err.Error())
		}
		return
	}
	log = log.WithField("path", req.Path)

	sub, err := Decode(req.Body, rc.now())
	if err != nil {
		log.WithError(err).Warn("Rejecting submission")
		writeResponse(conn, http.StatusBadRequest, err.Error())
		return
	}

	if err := rc.enc.Encode(sub); err != nil {
		log.WithError(err).Error("Could not write submission")
	}
	if rc.cfg.Sink != nil {
		if err := rc.cfg.Sink.Write(ctx, sub.Record()); err != nil {
			log.WithError(err).Warn("Could not forward submission")
		}
	}

	if err := writeResponse(conn, http.StatusOK, replyBody); err != nil {
		log.WithError(err).Debug("Could not write reply")
	}
}

// Serve accepts connections on ln and handles them one after the other
// until ctx is done, at which point ln is closed.
func (rc *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	rc.log.WithField("addr", ln.Addr().String()).Info("Started receiver")
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				rc.log.Info("Shutting down the receiver")
				return nil
			}
			// Back off like net/http does and keep accepting.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			rc.log.WithError(err).WithField("retry", delay).Warn("Could not accept connection")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0
		rc.Handle(ctx, conn)
	}
}
