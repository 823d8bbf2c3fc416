// Package transport provides the raw connection and HTTP exchange
// primitives the protocol driver rides on: TCP dial with keepalive,
// optional HTTP CONNECT proxy tunneling, and TLS.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/textproto"
	"time"
)

// DefaultIOTimeout is applied to every blocking read/write on the
// underlying connection once established.
const DefaultIOTimeout = 300 * time.Second

// ProxyConfig describes an HTTP CONNECT proxy to tunnel through before
// the TLS handshake with the real remote.
type ProxyConfig struct {
	Host string
	Port int
	User string
	Pass string
}

// DialOptions configures Dial.
type DialOptions struct {
	Host      string
	Port      int
	UseTLS    bool
	Proxy     *ProxyConfig
	IOTimeout time.Duration
}

// Dial establishes a connection to Host:Port, optionally tunneling
// through an HTTP CONNECT proxy, and optionally wrapping the result in a
// TLS client connection. The returned conn has its read/write deadlines
// left unset; callers should call SetIOTimeout before blocking I/O.
func Dial(ctx context.Context, opts DialOptions) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}

	target := net.JoinHostPort(opts.Host, portString(opts.Port))
	dialAddr := target
	if opts.Proxy != nil {
		dialAddr = net.JoinHostPort(opts.Proxy.Host, portString(opts.Proxy.Port))
	}

	conn, err := dialer.DialContext(ctx, "tcp", dialAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", dialAddr, err)
	}

	if opts.Proxy != nil {
		if err := connectProxy(conn, target, opts.Proxy); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if opts.UseTLS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:             opts.Host,
			SessionTicketsDisabled: true,
		})
		deadline := time.Now().Add(30 * time.Second)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		tlsConn.SetDeadline(deadline)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("tls handshake with %s: %w", opts.Host, err)
		}
		tlsConn.SetDeadline(time.Time{})
		conn = tlsConn
	}

	return conn, nil
}

// SetIOTimeout arms a read/write deadline on conn, defaulting to
// DefaultIOTimeout when d is zero.
func SetIOTimeout(conn net.Conn, d time.Duration) error {
	if d <= 0 {
		d = DefaultIOTimeout
	}
	return conn.SetDeadline(time.Now().Add(d))
}

func connectProxy(conn net.Conn, target string, proxy *ProxyConfig) error {
	var auth string
	if proxy.User != "" || proxy.Pass != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(proxy.User + ":" + proxy.Pass))
		auth = fmt.Sprintf("Proxy-Authorization: Basic %s\r\n", cred)
	}
	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n%s\r\n", target, target, auth)
	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("proxy connect write: %w", err)
	}

	reader := bufio.NewReader(conn)
	tp := textproto.NewReader(reader)
	statusLine, err := tp.ReadLine()
	if err != nil {
		return fmt.Errorf("proxy connect read status: %w", err)
	}
	code, err := parseStatusLine(statusLine)
	if err != nil {
		return fmt.Errorf("proxy connect: %w", err)
	}
	if _, err := tp.ReadMIMEHeader(); err != nil {
		return fmt.Errorf("proxy connect read headers: %w", err)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("proxy connect: status %d", code)
	}
	return nil
}

func portString(p int) string {
	return fmt.Sprintf("%d", p)
}
