package wire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pipePair(t *testing.T) (*FramedSocket, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return New(client, NUL), server
}

func TestSendRequestAppendsDotAndNUL(t *testing.T) {
	fs, server := pipePair(t)
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()
	require.NoError(t, fs.SendRequest("generate"))
	got := <-done
	require.Equal(t, "generate.\x00", string(got))
}

func TestSendRequestKeepsExistingDot(t *testing.T) {
	fs, server := pipePair(t)
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()
	require.NoError(t, fs.SendRequest("halt."))
	got := <-done
	require.Equal(t, "halt.\x00", string(got))
}

func TestReadResponseStripsTerminator(t *testing.T) {
	fs, server := pipePair(t)
	go func() {
		server.Write([]byte("Port: 1234\n\x00"))
	}()
	resp, err := fs.ReadResponse(time.Second)
	require.NoError(t, err)
	require.Equal(t, "Port: 1234\n", resp)
}

func TestReadResponseSOH(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	fs := New(client, SOH)
	go func() {
		server.Write([]byte("yes(bindings)\x01"))
	}()
	resp, err := fs.ReadResponse(time.Second)
	require.NoError(t, err)
	require.Equal(t, "yes(bindings)", resp)
}
