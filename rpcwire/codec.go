// Package rpcwire implements the Content-Length-prefixed JSON-RPC framing
// used by the Language Server Protocol (spec §4.1). It satisfies
// jsonrpc2.ObjectStream so github.com/sourcegraph/jsonrpc2 can drive the
// request multiplexing in package lsp on top of it.
package rpcwire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ProtocolError is returned when the framing itself is malformed: the
// connection closed mid-header, or Content-Length is missing/non-numeric
// (spec §4.1).
type ProtocolError struct {
	Reason string
	Cause  error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rpcwire: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("rpcwire: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// Stream frames JSON-RPC messages over an underlying io.ReadWriteCloser
// using `Content-Length: N\r\n\r\n` headers, exactly as the LSP spec
// requires. It implements jsonrpc2.ObjectStream.
type Stream struct {
	rw  io.ReadWriteCloser
	r   *bufio.Reader
	w   io.Writer
}

// NewStream wraps rw for framed JSON-RPC traffic.
func NewStream(rw io.ReadWriteCloser) *Stream {
	return &Stream{rw: rw, r: bufio.NewReader(rw), w: rw}
}

// WriteObject serializes v to JSON and writes it with a Content-Length
// header.
func (s *Stream) WriteObject(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(s.w, header); err != nil {
		return &ProtocolError{Reason: "failed writing header", Cause: err}
	}
	if _, err := s.w.Write(body); err != nil {
		return &ProtocolError{Reason: "failed writing body", Cause: err}
	}
	return nil
}

// ReadObject reads one framed message and decodes its JSON body into v.
// Other header fields (e.g. Content-Type) are tolerated and ignored, per
// spec §4.1.
func (s *Stream) ReadObject(v any) error {
	length, err := s.readHeaders()
	if err != nil {
		return err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(s.r, body); err != nil {
		return &ProtocolError{Reason: "connection closed mid-body", Cause: err}
	}

	return json.Unmarshal(body, v)
}

func (s *Stream) readHeaders() (int, error) {
	length := -1
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			return 0, &ProtocolError{Reason: "connection closed mid-header", Cause: err}
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if strings.EqualFold(key, "Content-Length") {
			n, err := strconv.Atoi(val)
			if err != nil {
				return 0, &ProtocolError{Reason: "Content-Length is non-numeric", Cause: err}
			}
			length = n
		}
		// Other headers (Content-Type, ...) are tolerated and ignored.
	}

	if length < 0 {
		return 0, &ProtocolError{Reason: "Content-Length header absent"}
	}
	return length, nil
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	return s.rw.Close()
}
