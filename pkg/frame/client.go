package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Reply is a decoded FRAME reply.
type Reply struct {
	Flags byte
	Key   string
	Body  []byte
}

// Err returns the server error carried by an error reply, or nil.
func (r *Reply) Err() error {
	if r.Flags&FlagError == 0 {
		return nil
	}
	return errors.New(string(r.Body))
}

// Closed reports whether the server closes the connection after this reply.
func (r *Reply) Closed() bool {
	return r.Flags&FlagClose != 0
}

// Client is a minimal synchronous FRAME client. Calls are serialized.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to a FRAME server at addr. timeout bounds every call; zero
// means no deadline.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Call sends one request and waits for its reply.
func (c *Client) Call(key string, body []byte, flags byte) (*Reply, error) {
	frame, err := AppendFrame(nil, flags, []byte(key), body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	var head [HeaderSize]byte
	if _, err := io.ReadFull(c.conn, head[:]); err != nil {
		return nil, fmt.Errorf("read reply header: %w", err)
	}
	h, err := ParseHeader(head[:])
	if err != nil {
		return nil, err
	}

	rest := make([]byte, h.KeyLen+h.BodyLen)
	if _, err := io.ReadFull(c.conn, rest); err != nil {
		return nil, fmt.Errorf("read reply body: %w", err)
	}
	return &Reply{
		Flags: h.Flags,
		Key:   string(rest[:h.KeyLen]),
		Body:  rest[h.KeyLen:],
	}, nil
}

// KV sends cmd to the KV servlet bound to key and decodes its Result.
func (c *Client) KV(key string, cmd Command) (*Result, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &cmd); err != nil {
		return nil, fmt.Errorf("encode kv command: %w", err)
	}

	reply, err := c.Call(key, buf.Bytes(), 0)
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}

	var result Result
	if _, err := xdr.Unmarshal(bytes.NewReader(reply.Body), &result); err != nil {
		return nil, fmt.Errorf("decode kv result: %w", err)
	}
	return &result, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
