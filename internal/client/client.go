// Package client sends requests to a skyd server.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/user/skyd/internal/protocol"
)

type Option func(*Client)

func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithTimeout bounds each request after the connection is established.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client opens one connection per request, matching the server's
// one-request-per-connection protocol.
type Client struct {
	addr    string
	dialer  net.Dialer
	retry   *RetryPolicy
	timeout time.Duration
	logger  *slog.Logger
}

func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		dialer:  net.Dialer{Timeout: 5 * time.Second},
		retry:   DefaultRetryPolicy(),
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddEvent sends an EADD request. A non-OK status is returned in the
// response, not as an error; use Response.Err to convert it.
func (c *Client) AddEvent(ctx context.Context, req *protocol.AddEventRequest) (*protocol.Response, error) {
	body, err := protocol.EncodeAddEvent(req)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, protocol.TypeEADD, body)
}

// Send writes one request frame and reads the response frame.
func (c *Client) Send(ctx context.Context, typ protocol.MessageType, body []byte) (*protocol.Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if err := protocol.WriteMessage(conn, typ, body); err != nil {
		return nil, err
	}
	respType, resp, err := protocol.ReadResponse(conn, protocol.DefaultMaxBodySize)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if respType != typ {
		return nil, fmt.Errorf("response answers %s, sent %s", respType, typ)
	}
	return resp, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var (
		conn    net.Conn
		attempt int
	)
	err := c.retry.Execute(ctx, func(ctx context.Context) error {
		attempt++
		var err error
		conn, err = c.dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			c.logger.Debug("dial failed", "addr", c.addr, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	return conn, nil
}
