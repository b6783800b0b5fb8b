package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxDatagramSize bounds the read buffer; anything the kernel hands
// back larger than this is a malformed or hostile packet.
const maxDatagramSize = 2048

// UDPSocket is the primary P2P and UDP-relay transport: unframed
// datagrams read in a background loop and dispatched to a single
// registered handler.
type UDPSocket struct {
	conn       net.PacketConn
	listenAddr net.Addr
	handler    PacketHandler
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewUDPSocket binds a UDP socket on listenAddr (e.g. ":0" for an
// ephemeral port) and starts its receive loop.
func NewUDPSocket(listenAddr string) (*UDPSocket, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &UDPSocket{
		conn:       conn,
		listenAddr: conn.LocalAddr(),
		ctx:        ctx,
		cancel:     cancel,
	}

	go s.receiveLoop()
	return s, nil
}

// RegisterHandler sets the single inbound-datagram callback.
func (s *UDPSocket) RegisterHandler(handler PacketHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Send writes data to addr as a single datagram.
func (s *UDPSocket) Send(data []byte, addr net.Addr) error {
	_, err := s.conn.WriteTo(data, addr)
	return err
}

// LocalAddr returns the bound local address.
func (s *UDPSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close stops the receive loop and releases the socket.
func (s *UDPSocket) Close() error {
	s.cancel()
	return s.conn.Close()
}

func (s *UDPSocket) receiveLoop() {
	logger := logrus.WithFields(logrus.Fields{
		"function": "UDPSocket.receiveLoop",
		"package":  "transport",
		"addr":     s.listenAddr.String(),
	})

	buf := make([]byte, maxDatagramSize)
	for {
		if ctxDone(s.ctx) {
			return
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctxDone(s.ctx) {
				return
			}
			logger.WithFields(logrus.Fields{
				"error": err.Error(),
			}).Debug("udp read error")
			continue
		}

		s.mu.RLock()
		handler := s.handler
		s.mu.RUnlock()
		if handler == nil {
			continue
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])
		go handler(msg, addr)
	}
}
