package transfer

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"
)

// icyStatusLinePrefix is the literal status line libcurl's
// CURLOPT_HTTP200ALIASES taught the original plugin to accept in place
// of "HTTP/1.x 200 OK" (spec section 4.3/6). net/http's response parser
// only accepts lines beginning with "HTTP/", so icyFixConn rewrites the
// prefix on the wire before it ever reaches that parser.
const icyStatusLinePrefix = "ICY "

// icyFixConn wraps a raw connection and rewrites a leading "ICY "
// status line to "HTTP/1.0 " on the first read, buffering any
// overflow produced by the rewrite (the replacement is longer than the
// original) for the next Read call.
type icyFixConn struct {
	net.Conn
	checked bool
	pending []byte
}

func (c *icyFixConn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	if c.checked {
		return c.Conn.Read(p)
	}

	tmp := make([]byte, len(p))
	n, err := c.Conn.Read(tmp)
	c.checked = true

	if n >= len(icyStatusLinePrefix) && string(tmp[:len(icyStatusLinePrefix)]) == icyStatusLinePrefix {
		fixed := append([]byte("HTTP/1.0 "), tmp[len(icyStatusLinePrefix):n]...)
		m := copy(p, fixed)
		if m < len(fixed) {
			c.pending = append(c.pending, fixed[m:]...)
		}
		return m, err
	}

	m := copy(p, tmp[:n])
	if m < n {
		c.pending = append(c.pending, tmp[m:n]...)
	}
	return m, err
}

// dialICYFixed returns a DialContext that wraps every connection in an
// icyFixConn, bounded by the given connect timeout (spec section 4.5's
// 10 second connect timeout).
func dialICYFixed(connectTimeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &icyFixConn{Conn: conn}, nil
	}
}

// ProxyConfig carries the proxy settings from spec section 6/4.5:
// CURLOPT_PROXY/PROXYPORT/PROXYUSERPWD equivalents.
type ProxyConfig struct {
	Host     string
	Port     uint
	User     string
	Password string
}

// URL builds the proxy URL a http.Transport.Proxy func should return,
// or nil if no proxy is configured.
func (p ProxyConfig) URL() *url.URL {
	if p.Host == "" {
		return nil
	}
	host := p.Host
	if p.Port > 0 {
		host = net.JoinHostPort(p.Host, strconv.FormatUint(uint64(p.Port), 10))
	}
	u := &url.URL{Scheme: "http", Host: host}
	if p.User != "" && p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u
}

