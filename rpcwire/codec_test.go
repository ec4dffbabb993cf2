package rpcwire

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeStreams() (*Stream, *Stream) {
	a, b := net.Pipe()
	return NewStream(a), NewStream(b)
}

func TestFrameRoundTrip(t *testing.T) {
	client, server := pipeStreams()
	defer client.Close()
	defer server.Close()

	type msg struct {
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}

	want := msg{Method: "initialize", Params: map[string]any{"processId": float64(123)}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, client.WriteObject(want))
	}()

	var got msg
	require.NoError(t, server.ReadObject(&got))
	<-done

	assert.Equal(t, want, got)
}

func TestReadObject_MissingContentLength(t *testing.T) {
	client, server := pipeStreams()
	defer client.Close()
	defer server.Close()

	go func() {
		io.WriteString(client.w, "Content-Type: application/json\r\n\r\n{}")
		client.Close()
	}()

	var got map[string]any
	err := server.ReadObject(&got)
	require.Error(t, err)

	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
}

func TestReadObject_ClosedMidHeader(t *testing.T) {
	client, server := pipeStreams()
	defer server.Close()

	go func() {
		io.WriteString(client.w, "Content-Length: 10\r\n")
		client.Close()
	}()

	var got map[string]any
	err := server.ReadObject(&got)
	require.Error(t, err)

	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
}
