package lsp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
)

// TransportError surfaces a closed connection or malformed frame to every
// pending waiter and to the calling handler (spec §7).
type TransportError struct {
	ServerName string
	Cause      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("lsp: transport error talking to %s: %v", e.ServerName, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// LSPErrorKind subcategorizes a structured LSPResponseError (spec §4.2).
type LSPErrorKind int

const (
	LSPErrorGeneric LSPErrorKind = iota
	LSPErrorMethodNotFound
	LSPErrorUnsupported
)

// ResponseError wraps a structured {code, message, data} error returned by
// the language server.
type ResponseError struct {
	Kind    LSPErrorKind
	Code    int64
	Message string
	Data    json.RawMessage
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("lsp: server error %d: %s", e.Code, e.Message)
}

// classifyResponseError buckets a *jsonrpc2.Error per spec §4.2:
//   - MethodNotFound: code -32601, or message containing "not found" or
//     "not yet implemented"
//   - Unsupported: message containing "unsupported", or code -32603
//     ("internal error") combined with "internal error" in the message
//   - otherwise Generic
func classifyResponseError(rpcErr *jsonrpc2.Error) *ResponseError {
	msg := strings.ToLower(rpcErr.Message)
	kind := LSPErrorGeneric

	switch {
	case int64(rpcErr.Code) == jsonrpc2.CodeMethodNotFound,
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "not yet implemented"):
		kind = LSPErrorMethodNotFound
	case strings.Contains(msg, "unsupported"):
		kind = LSPErrorUnsupported
	case int64(rpcErr.Code) == jsonrpc2.CodeInternalError && strings.Contains(msg, "internal error"):
		kind = LSPErrorUnsupported
	}

	resp := &ResponseError{
		Kind:    kind,
		Code:    int64(rpcErr.Code),
		Message: rpcErr.Message,
	}
	if rpcErr.Data != nil {
		resp.Data = json.RawMessage(*rpcErr.Data)
	}
	return resp
}

// MethodNotSupportedError is the typed error handlers see at the boundary
// when a method-not-found/unsupported response comes back (spec §4.2, §7).
type MethodNotSupportedError struct {
	Method     string
	ServerName string
}

func (e *MethodNotSupportedError) Error() string {
	return fmt.Sprintf("%s is not supported by %s", e.Method, e.ServerName)
}

// AsMethodNotSupported translates a classified ResponseError into a
// MethodNotSupportedError when applicable, otherwise returns err unchanged.
func AsMethodNotSupported(err error, method, serverName string) error {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		if respErr.Kind == LSPErrorMethodNotFound || respErr.Kind == LSPErrorUnsupported {
			return &MethodNotSupportedError{Method: method, ServerName: serverName}
		}
	}
	return err
}

// TimeoutError is returned when a request does not receive a response
// within its timeout (spec §4.2). The pending waiter is removed; the
// caller degrades by proceeding with possibly-incomplete state.
type TimeoutError struct {
	Method string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lsp: request %s timed out", e.Method)
}
