package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPO2HandshakeAndRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverCh := make(chan *TCPO2Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		srv, err := AcceptTCPO2(raw)
		if err != nil {
			errCh <- err
			return
		}
		serverCh <- srv
	}()

	client, err := DialTCPO2(DirectDialer{}, ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	var server *TCPO2Conn
	select {
	case server = <-serverCh:
	case err := <-errCh:
		t.Fatalf("server handshake failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server handshake")
	}
	defer server.Close()

	n, err := client.Write([]byte("obfuscated-message"))
	require.NoError(t, err)
	assert.Equal(t, len("obfuscated-message"), n)

	msg, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("obfuscated-message"), msg)

	n, err = server.Write([]byte("reply"))
	require.NoError(t, err)
	assert.Equal(t, len("reply"), n)

	reply, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("reply"), reply)
}

func TestEncodeTCPO2LengthShortForm(t *testing.T) {
	header := encodeTCPO2Length(8)
	assert.Len(t, header, 1)
	assert.Equal(t, byte(2), header[0])
}

func TestEncodeTCPO2LengthExtendedForm(t *testing.T) {
	header := encodeTCPO2Length(7) // not a multiple of 4
	assert.Len(t, header, 4)
	assert.Equal(t, byte(extLenMarker), header[0])
}

func TestGenerateObfuscationNonceAvoidsBlockedPrefixes(t *testing.T) {
	for i := 0; i < 64; i++ {
		nonce, err := generateObfuscationNonce()
		require.NoError(t, err)
		assert.NotEqual(t, byte(0xEF), nonce[0])
		for _, prefix := range badNoncePrefixes {
			assert.NotEqual(t, prefix[:], nonce[:4])
		}
	}
}
