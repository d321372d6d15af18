package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// sender is the slice of Transport the correlator needs; tests substitute
// an in-memory implementation.
type sender interface {
	Send(v any) error
}

// request is the engine's JSON-RPC envelope. Handle addresses the remote
// object; -1 targets the global session.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Handle  int    `json:"handle"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// RemoteError is the engine's error envelope, surfaced verbatim.
type RemoteError struct {
	Code      int    `json:"code"`
	Parameter string `json:"parameter"`
	Message   string `json:"message"`
}

type outcome struct {
	result json.RawMessage
	err    error
}

// Correlator matches asynchronous responses to their originating request
// by id. Ids are strictly increasing and never reused within a connection.
type Correlator struct {
	send    sender
	timeout time.Duration

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan outcome
	closed  error // set once, fails all subsequent invokes
}

// NewCorrelator wraps a transport. timeout bounds each individual invoke.
func NewCorrelator(s sender, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Correlator{
		send:    s,
		timeout: timeout,
		pending: make(map[int64]chan outcome),
	}
}

// Invoke sends one request and blocks until the matching response arrives,
// the per-call timeout elapses, or ctx is done. Concurrent invokes are
// independent; responses may resolve in any order.
func (c *Correlator) Invoke(ctx context.Context, method string, params any, handle int) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return nil, c.closed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan outcome, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := request{JSONRPC: "2.0", ID: id, Handle: handle, Method: method, Params: params}
	if err := c.send.Send(req); err != nil {
		c.drop(id)
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-timer.C:
		c.drop(id)
		return nil, errf(KindTimeout, "%s: no response within %s", method, c.timeout)
	case <-ctx.Done():
		c.drop(id)
		return nil, wrapErr(KindConnection, ctx.Err(), "%s: %v", method, ctx.Err())
	}
}

// HandleFrame resolves the pending call matching the frame's id. Frames
// without an id (notifications) and late responses to timed-out calls are
// discarded.
func (c *Correlator) HandleFrame(frame []byte) {
	var resp response
	if err := json.Unmarshal(frame, &resp); err != nil {
		slog.Warn("engine: dropping malformed response", "err", err)
		return
	}
	if resp.ID == nil {
		return // async notification, no subscription model
	}

	c.mu.Lock()
	ch, ok := c.pending[*resp.ID]
	if ok {
		delete(c.pending, *resp.ID)
	}
	c.mu.Unlock()
	if !ok {
		slog.Debug("engine: dropping unmatched response", "id", *resp.ID)
		return
	}

	if resp.Error != nil {
		ch <- outcome{err: &Error{
			Kind: KindRemote,
			Msg:  resp.Error.Message,
			Code: resp.Error.Code,
		}}
		return
	}
	ch <- outcome{result: resp.Result}
}

// FailAll resolves every outstanding call with a connection-closed error
// and rejects all future invokes. Called when the transport goes away.
func (c *Correlator) FailAll(err error) {
	if err == nil {
		err = errf(KindConnection, "connection closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed == nil {
		c.closed = err
	}
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- outcome{err: err}
	}
}

func (c *Correlator) drop(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
