package ingest

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Limits on what a meter is expected to send.
const (
	maxHeaderBytes = 8 << 10
	maxBodyBytes   = 64 << 10
)

var headerEnd = []byte("\r\n\r\n")

// ErrBadRequest marks requests that get a 400 reply.
var ErrBadRequest = errors.New("bad request")

// Request is a minimally parsed HTTP request.
type Request struct {
	Method string
	Path   string
	Header []string
	Body   []byte
}

// ReadRequest reads header bytes up to the blank line, finds the
// Content-Length header and reads exactly that many body bytes.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	var head []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "reading request header")
		}
		head = append(head, b)
		if bytes.HasSuffix(head, headerEnd) {
			break
		}
		if len(head) > maxHeaderBytes {
			return nil, errors.Wrap(ErrBadRequest, "request header too large")
		}
	}

	var ret Request
	lines := strings.Split(string(head[:len(head)-len(headerEnd)]), "\r\n")
	if bits := strings.Fields(lines[0]); len(bits) >= 2 {
		ret.Method = bits[0]
		ret.Path = bits[1]
	}
	ret.Header = lines[1:]

	length := -1
	for _, line := range ret.Header {
		bits := strings.SplitN(line, ":", 2)
		if len(bits) != 2 || !strings.EqualFold(strings.TrimSpace(bits[0]), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(bits[1]))
		if err != nil || n < 0 {
			return nil, errors.Wrapf(ErrBadRequest, "invalid Content-Length %q", bits[1])
		}
		length = n
		break
	}
	if length < 0 {
		return nil, errors.Wrap(ErrBadRequest, "missing Content-Length")
	}
	if length > maxBodyBytes {
		return nil, errors.Wrapf(ErrBadRequest, "body of %d bytes is too large", length)
	}

	ret.Body = make([]byte, length)
	if _, err := io.ReadFull(r, ret.Body); err != nil {
		return nil, errors.Wrap(err, "reading request body")
	}
	return &ret, nil
}
