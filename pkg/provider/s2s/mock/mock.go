// Package mock provides test doubles for the s2s package interfaces.
//
// Use Transport to verify Connect calls and hand out a scripted Conn. Use
// Conn to push server messages into a session and inspect what the session
// sent back.
//
// Example:
//
//	conn := mock.NewConn()
//	tr := &mock.Transport{Conn: conn}
//	// ... start the session under test ...
//	conn.Emit(s2s.ServerMessage{SetupComplete: true})
//	res := <-conn.ToolResultSent()
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

var _ s2s.Transport = (*Transport)(nil)
var _ s2s.Conn = (*Conn)(nil)

// ErrClosed is returned by the send methods after Close.
var ErrClosed = errors.New("mock: conn closed")

const (
	inboundBuffer  = 256
	outboundBuffer = 1024
)

// ConnectCall records a single invocation of Transport.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Transport is a mock implementation of s2s.Transport.
type Transport struct {
	mu sync.Mutex

	// Conn is returned by Connect. If nil, Connect returns a fresh Conn.
	Conn *Conn

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Delay makes Connect wait before returning. A cancelled context ends the
	// wait with the context's error.
	Delay time.Duration

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Conn, ConnectErr.
func (t *Transport) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.Conn, error) {
	t.mu.Lock()
	t.ConnectCalls = append(t.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	delay, connErr, conn := t.Delay, t.ConnectErr, t.Conn
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connErr != nil {
		return nil, connErr
	}
	if conn == nil {
		conn = NewConn()
	}
	return conn, nil
}

// Calls returns a copy of the recorded Connect calls. Thread-safe.
func (t *Transport) Calls() []ConnectCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ConnectCall, len(t.ConnectCalls))
	copy(out, t.ConnectCalls)
	return out
}

// Conn is a scriptable s2s.Conn. All methods are safe for concurrent use.
type Conn struct {
	mu       sync.Mutex
	messages chan s2s.ServerMessage
	ended    bool
	err      error

	// SendErr, if non-nil, is returned by both send methods.
	SendErr error

	audio      []s2s.MediaChunk
	results    []s2s.ToolResult
	audioCh    chan s2s.MediaChunk
	resultCh   chan s2s.ToolResult
	closeCalls int
	dropped    int
}

// NewConn returns an open Conn with buffered channels.
func NewConn() *Conn {
	return &Conn{
		messages: make(chan s2s.ServerMessage, inboundBuffer),
		audioCh:  make(chan s2s.MediaChunk, outboundBuffer),
		resultCh: make(chan s2s.ToolResult, outboundBuffer),
	}
}

// ── scripting ────────────────────────────────────────────────────────────────

// Emit queues msg on the inbound stream. It reports false when the stream
// already ended or its buffer is full.
func (c *Conn) Emit(msg s2s.ServerMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return false
	}
	select {
	case c.messages <- msg:
		return true
	default:
		c.dropped++
		return false
	}
}

// Fail ends the inbound stream with err, as a transport failure would.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.err = err
	c.ended = true
	close(c.messages)
}

// End closes the inbound stream without an error, as a remote close would.
func (c *Conn) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked()
}

func (c *Conn) endLocked() {
	if c.ended {
		return
	}
	c.ended = true
	close(c.messages)
}

// ── inspection ───────────────────────────────────────────────────────────────

// Audio returns a copy of every chunk passed to SendAudio.
func (c *Conn) Audio() []s2s.MediaChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]s2s.MediaChunk, len(c.audio))
	copy(out, c.audio)
	return out
}

// ToolResults returns a copy of every result passed to SendToolResult.
func (c *Conn) ToolResults() []s2s.ToolResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]s2s.ToolResult, len(c.results))
	copy(out, c.results)
	return out
}

// AudioSent delivers each chunk as it is sent.
func (c *Conn) AudioSent() <-chan s2s.MediaChunk { return c.audioCh }

// ToolResultSent delivers each tool result as it is sent.
func (c *Conn) ToolResultSent() <-chan s2s.ToolResult { return c.resultCh }

// CloseCalls returns how many times Close was called.
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Closed reports whether Close was called at least once.
func (c *Conn) Closed() bool { return c.CloseCalls() > 0 }

// ── s2s.Conn ─────────────────────────────────────────────────────────────────

// Messages returns the inbound stream.
func (c *Conn) Messages() <-chan s2s.ServerMessage { return c.messages }

// Err returns the error passed to Fail, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SendAudio records chunk.
func (c *Conn) SendAudio(_ context.Context, chunk s2s.MediaChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCalls > 0 {
		return ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.audio = append(c.audio, chunk)
	select {
	case c.audioCh <- chunk:
	default:
	}
	return nil
}

// SendToolResult records result.
func (c *Conn) SendToolResult(_ context.Context, result s2s.ToolResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCalls > 0 {
		return ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.results = append(c.results, result)
	select {
	case c.resultCh <- result:
	default:
	}
	return nil
}

// Close records the call and ends the inbound stream.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	c.endLocked()
	return nil
}
