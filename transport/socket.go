package transport

import (
	"context"
	"errors"
	"net"
)

// ErrClosed is returned by Socket operations after Close.
var ErrClosed = errors.New("transport: socket closed")

// ErrOversized is returned when an inbound message exceeds the
// transport's maximum frame size.
var ErrOversized = errors.New("transport: message exceeds maximum frame size")

// ErrNotReadyToSend is returned when a congested TCP relay connection
// cannot accept a write within the poll window (spec §4.6).
var ErrNotReadyToSend = errors.New("transport: socket not ready to send")

// PacketHandler processes one inbound datagram from addr.
type PacketHandler func(data []byte, addr net.Addr)

// Socket is the minimum surface the controller needs from any
// transport: send raw bytes to a peer address, register a handler for
// inbound data, and report the local bind address. UDPSocket and
// TCPSocket both implement it; a TCPSocket can dial through a SOCKS5
// Dialer. TCPO2Conn wraps a plain net.Conn and does not implement
// Socket.
type Socket interface {
	Send(data []byte, addr net.Addr) error
	RegisterHandler(handler PacketHandler)
	LocalAddr() net.Addr
	Close() error
}

// ctxDone reports whether ctx has been cancelled, for read-loop exit
// checks shared by the UDP and TCP implementations.
func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
