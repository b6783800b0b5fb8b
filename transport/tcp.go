package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxTCPFrameSize matches the TCPO2 receive limit so both framings
// reject the same oversized messages (§4.1).
const maxTCPFrameSize = 1500

// frameAddr is a net.Addr wrapper for TCP relay peers, keyed by the
// dial target rather than a resolved socket address, since relay
// connections are kept open and reused by address string.
type frameAddr struct{ addr string }

func (a frameAddr) Network() string { return "tcp" }
func (a frameAddr) String() string  { return a.addr }

// TCPRelayAddr builds the net.Addr a TCPSocket expects for Send/dial.
func TCPRelayAddr(hostPort string) net.Addr { return frameAddr{addr: hostPort} }

// Dialer abstracts net.Dialer so a SOCKS5 proxy dialer can stand in
// for direct dials (see proxy.go).
type Dialer interface {
	Dial(network, address string) (net.Conn, error)
}

// TCPSocket manages persistent length-framed TCP connections to one
// or more relays. Each outbound message is length-prefixed with a
// 4-byte big-endian count so the reader can recover message
// boundaries from the underlying stream.
type TCPSocket struct {
	dialer     Dialer
	listenAddr net.Addr
	listener   net.Listener
	handler    PacketHandler
	conns      map[string]net.Conn
	mu         sync.RWMutex
	closed     bool
}

// NewTCPSocket creates a TCP socket that dials relays on demand using
// dialer (net.Dialer wrapped as Dialer, or a SOCKS5 dialer from
// proxy.go). listenAddr may be empty to skip accepting inbound
// connections (the common case for a client dialing out to relays).
func NewTCPSocket(dialer Dialer, listenAddr string) (*TCPSocket, error) {
	s := &TCPSocket{dialer: dialer, conns: make(map[string]net.Conn)}

	if listenAddr != "" {
		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return nil, err
		}
		s.listener = ln
		s.listenAddr = ln.Addr()
		go s.acceptLoop()
	}
	return s, nil
}

// RegisterHandler sets the single inbound-message callback.
func (s *TCPSocket) RegisterHandler(handler PacketHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// LocalAddr returns the listener's bound address, or nil if this
// socket does not accept inbound connections.
func (s *TCPSocket) LocalAddr() net.Addr {
	return s.listenAddr
}

// Send writes data as one length-framed message to addr, dialing a
// new connection if none is open yet.
func (s *TCPSocket) Send(data []byte, addr net.Addr) error {
	if len(data) > maxTCPFrameSize {
		return ErrOversized
	}

	conn, err := s.getOrDial(addr.String())
	if err != nil {
		return err
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(frame); err != nil {
		s.dropConn(addr.String())
		return fmt.Errorf("transport: tcp write: %w", err)
	}
	return nil
}

// IsReadyToSend reports whether the TCP relay connection to addr can
// accept a write within timeoutMs milliseconds, without blocking the
// send thread on a congested relay (spec §4.4 "send thread... writes
// to sockets"; §4.6 pacer backlog handling). A connection not yet
// dialed is reported ready, since Send will dial it fresh.
func (s *TCPSocket) IsReadyToSend(addr net.Addr, timeoutMs int) (bool, error) {
	s.mu.RLock()
	conn, ok := s.conns[addr.String()]
	s.mu.RUnlock()
	if !ok {
		return true, nil
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return true, nil
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return true, nil
	}

	var ready bool
	var pollErr error
	err = rawConn.Control(func(fd uintptr) {
		ready, pollErr = pollWritable(int(fd), timeoutMs)
	})
	if err != nil {
		return true, nil
	}
	if pollErr != nil {
		return false, fmt.Errorf("transport: poll tcp relay writability: %w", pollErr)
	}
	return ready, nil
}

func (s *TCPSocket) getOrDial(key string) (net.Conn, error) {
	s.mu.RLock()
	conn, ok := s.conns[key]
	s.mu.RUnlock()
	if ok {
		return conn, nil
	}

	conn, err := s.dialer.Dial("tcp", key)
	if err != nil {
		return nil, fmt.Errorf("transport: tcp dial %s: %w", key, err)
	}

	s.mu.Lock()
	s.conns[key] = conn
	s.mu.Unlock()

	go s.readLoop(key, conn)
	return conn, nil
}

func (s *TCPSocket) dropConn(key string) {
	s.mu.Lock()
	conn, ok := s.conns[key]
	if ok {
		delete(s.conns, key)
	}
	s.mu.Unlock()
	if ok {
		conn.Close()
	}
}

func (s *TCPSocket) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		key := conn.RemoteAddr().String()
		s.mu.Lock()
		s.conns[key] = conn
		s.mu.Unlock()
		go s.readLoop(key, conn)
	}
}

func (s *TCPSocket) readLoop(key string, conn net.Conn) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "TCPSocket.readLoop",
		"package":  "transport",
		"peer":     key,
	})

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			logger.WithFields(logrus.Fields{"error": err.Error()}).Debug("tcp relay connection closed")
			s.dropConn(key)
			return
		}
		n := binary.BigEndian.Uint32(header)
		if n > maxTCPFrameSize {
			logger.Warn("oversized tcp frame, dropping connection")
			s.dropConn(key)
			return
		}

		body := make([]byte, n)
		if _, err := io.ReadFull(conn, body); err != nil {
			s.dropConn(key)
			return
		}

		s.mu.RLock()
		handler := s.handler
		s.mu.RUnlock()
		if handler != nil {
			go handler(body, frameAddr{addr: key})
		}
	}
}

// Close shuts down the listener (if any) and every open relay
// connection.
func (s *TCPSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := s.conns
	s.conns = make(map[string]net.Conn)
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
