// Package transport implements the socket abstraction (component D):
// raw UDP datagrams, framed TCP, TCP obfuscation (TCPO2), and SOCKS5
// proxying of the TCP path. Everything above this layer works with
// plain byte slices; packetproto owns the wire format that rides on
// top of it.
package transport
