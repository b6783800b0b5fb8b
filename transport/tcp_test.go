package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPSocketSendReceive(t *testing.T) {
	server, err := NewTCPSocket(DirectDialer{}, "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	server.RegisterHandler(func(data []byte, addr net.Addr) {
		mu.Lock()
		got = append([]byte(nil), data...)
		mu.Unlock()
		close(done)
	})

	client, err := NewTCPSocket(DirectDialer{}, "")
	require.NoError(t, err)
	defer client.Close()

	err = client.Send([]byte("relay-payload"), server.LocalAddr())
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tcp message")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("relay-payload"), got)
}

func TestTCPSocketRejectsOversizedSend(t *testing.T) {
	client, err := NewTCPSocket(DirectDialer{}, "")
	require.NoError(t, err)
	defer client.Close()

	big := make([]byte, maxTCPFrameSize+1)
	err = client.Send(big, TCPRelayAddr("127.0.0.1:1"))
	assert.ErrorIs(t, err, ErrOversized)
}
