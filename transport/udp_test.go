package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPSocketSendReceive(t *testing.T) {
	a, err := NewUDPSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	b, err := NewUDPSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	b.RegisterHandler(func(data []byte, addr net.Addr) {
		mu.Lock()
		got = append([]byte(nil), data...)
		mu.Unlock()
		close(done)
	})

	err = a.Send([]byte("hello"), b.LocalAddr())
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for udp packet")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("hello"), got)
}
