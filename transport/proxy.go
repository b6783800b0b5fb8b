package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// DirectDialer dials TCP connections directly, with a fixed connect
// timeout, and is the default Dialer for TCPSocket when no proxy is
// configured.
type DirectDialer struct {
	Timeout time.Duration
}

// Dial implements Dialer.
func (d DirectDialer) Dial(network, address string) (net.Conn, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return net.DialTimeout(network, address, timeout)
}

// SOCKS5Config configures a SOCKS5 proxy dialer used to reach TCP
// relays through a user-configured proxy (§4.2: "If a SOCKS5 proxy is
// in use and no pongs arrive, the proxy is marked UDP-incapable").
type SOCKS5Config struct {
	Host     string
	Port     uint16
	Username string
	Password string
}

// socks5Dialer adapts golang.org/x/net/proxy.Dialer to this package's
// Dialer interface.
type socks5Dialer struct {
	inner proxy.Dialer
	addr  string
}

// NewSOCKS5Dialer builds a Dialer that routes every connection through
// the configured SOCKS5 proxy.
func NewSOCKS5Dialer(cfg SOCKS5Config) (Dialer, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var auth *proxy.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = &proxy.Auth{User: cfg.Username, Password: cfg.Password}
	}

	dialer, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "NewSOCKS5Dialer",
			"package":    "transport",
			"proxy_addr": addr,
			"error":      err.Error(),
		}).Error("failed to build SOCKS5 dialer")
		return nil, fmt.Errorf("transport: socks5 dialer: %w", err)
	}

	return socks5Dialer{inner: dialer, addr: addr}, nil
}

// Dial implements Dialer.
func (d socks5Dialer) Dial(network, address string) (net.Conn, error) {
	conn, err := d.inner.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("transport: socks5 dial via %s: %w", d.addr, err)
	}
	return conn, nil
}
