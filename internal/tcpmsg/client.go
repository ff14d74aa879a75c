// Package tcpmsg sends one JSON message over a fresh TCP connection and
// returns the peer's reply.
//
// No framing is added on the wire: the request is the bare JSON text. How
// the reply ends is decided by the client's Framing.
package tcpmsg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/net/proxy"
	"golang.org/x/text/encoding/unicode"

	"github.com/IYouKnow/atlas-probe/internal/fault"
)

const (
	// DefaultReadBufferSize caps a single-read reply.
	DefaultReadBufferSize = 1024
	// DefaultMaxResponseBytes caps an until-eof reply.
	DefaultMaxResponseBytes = 1 << 20
)

// Framing decides when a reply is complete.
type Framing string

const (
	// SingleRead takes whatever one read of up to ReadBufferSize bytes
	// returns. Longer replies are truncated.
	SingleRead Framing = "single-read"
	// UntilEOF half-closes the connection after the request and reads until
	// the peer closes, up to MaxResponseBytes.
	UntilEOF Framing = "until-eof"
)

// ParseFraming validates a framing name. The empty string means SingleRead.
func ParseFraming(s string) (Framing, error) {
	switch Framing(strings.ToLower(strings.TrimSpace(s))) {
	case "", SingleRead:
		return SingleRead, nil
	case UntilEOF:
		return UntilEOF, nil
	}
	return "", fmt.Errorf("unknown framing %q (want %s or %s)", s, SingleRead, UntilEOF)
}

// Dialer opens network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config tunes a Client. Zero fields take their defaults.
type Config struct {
	Framing          Framing
	ReadBufferSize   int
	MaxResponseBytes int64
	DialTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Framing == "" {
		c.Framing = SingleRead
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}
	return c
}

// Client sends messages. It keeps no connection between calls.
type Client struct {
	dialer Dialer
	cfg    Config
	logger *slog.Logger
}

// NewClient returns a Client dialing through d, or directly when d is nil.
func NewClient(d Dialer, cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if d == nil {
		d = &net.Dialer{Timeout: cfg.DialTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{dialer: d, cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// SOCKS5Dialer tunnels connections through the SOCKS5 proxy at addr. The
// returned connections keep CloseWrite from the TCP connection to the proxy,
// so until-eof framing works through the tunnel.
func SOCKS5Dialer(addr string, timeout time.Duration) (Dialer, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", addr, err)
	}
	return &socksDialer{addr: addr, forward: &net.Dialer{Timeout: timeout}}, nil
}

type socksDialer struct {
	addr    string
	forward *net.Dialer
}

func (s *socksDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	// proxy.SOCKS5 hides the TCP connection behind its own Conn type, so
	// the forward dial is captured here to reach CloseWrite later.
	var raw net.Conn
	fwd := forwardDialer(func(ctx context.Context, network, addr string) (net.Conn, error) {
		c, err := s.forward.DialContext(ctx, network, addr)
		raw = c
		return c, err
	})
	d, err := proxy.SOCKS5("tcp", s.addr, nil, fwd)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", s.addr, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 proxy %s: dialer does not support contexts", s.addr)
	}
	conn, err := cd.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &tunnelConn{Conn: conn, raw: raw}, nil
}

// forwardDialer satisfies both proxy.Dialer and proxy.ContextDialer.
type forwardDialer func(ctx context.Context, network, addr string) (net.Conn, error)

func (f forwardDialer) Dial(network, addr string) (net.Conn, error) {
	return f(context.Background(), network, addr)
}

func (f forwardDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// tunnelConn is a proxied connection that can still half-close.
type tunnelConn struct {
	net.Conn
	raw net.Conn
}

func (t *tunnelConn) CloseWrite() error {
	cw, ok := t.raw.(closeWriter)
	if !ok {
		return errNoHalfClose
	}
	return cw.CloseWrite()
}

// Send connects to address:port, writes message as JSON and returns the
// reply decoded as UTF-8, with invalid sequences replaced by U+FFFD.
func (c *Client) Send(ctx context.Context, address string, port uint16, message any) (string, error) {
	hostport, err := JoinAddress(address, port)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return "", fault.New(fault.SerializationError, "encode", hostport, err)
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return "", fault.New(fault.ConnectionError, "connect", hostport, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// Unblock pending I/O as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := conn.Write(payload); err != nil {
		return "", fault.New(fault.ReadError, "send", hostport, err)
	}

	var reply []byte
	switch c.cfg.Framing {
	case UntilEOF:
		reply, err = c.readToEOF(conn)
	default:
		reply, err = c.readOnce(conn)
	}
	if err != nil {
		return "", fault.New(fault.ReadError, "read", hostport, err)
	}

	c.logger.Debug("tcp exchange complete",
		"addr", hostport,
		"sent_bytes", len(payload),
		"received_bytes", len(reply),
		"framing", string(c.cfg.Framing),
	)
	return decode(reply), nil
}

func (c *Client) readOnce(conn net.Conn) ([]byte, error) {
	buf := make([]byte, c.cfg.ReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

type closeWriter interface {
	CloseWrite() error
}

// errNoHalfClose is returned for until-eof framing over a connection that
// cannot shut down only its write side; the peer would never see EOF.
var errNoHalfClose = errors.New("until-eof framing requires a half-closable connection")

func (c *Client) readToEOF(conn net.Conn) ([]byte, error) {
	cw, ok := conn.(closeWriter)
	if !ok {
		return nil, errNoHalfClose
	}
	if err := cw.CloseWrite(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(conn, c.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.cfg.MaxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", c.cfg.MaxResponseBytes)
	}
	return data, nil
}

func decode(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(true),
	idna.VerifyDNSLength(true),
)

// JoinAddress validates address and port and returns "host:port". address is
// an IP literal, optionally bracketed, or a DNS name.
func JoinAddress(address string, port uint16) (string, error) {
	host := address
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	if host == "" {
		return "", fault.New(fault.InvalidAddress, "address", address, errors.New("empty host"))
	}
	if port == 0 {
		return "", fault.New(fault.InvalidAddress, "address", address, errors.New("port must be between 1 and 65535"))
	}
	if ip := net.ParseIP(host); ip == nil {
		ascii, err := hostProfile.ToASCII(host)
		if err != nil {
			return "", fault.New(fault.InvalidAddress, "address", address, fmt.Errorf("%q: %w", host, err))
		}
		host = ascii
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port))), nil
}
