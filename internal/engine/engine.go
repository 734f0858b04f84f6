// Package engine drives multiplexed HTTP transfers for the scheduler.
// Transfers progress on internal goroutines, but every handler callback
// runs inside Advance, so callers observe a single-threaded event loop:
// body callbacks for one transfer arrive in byte order and strictly
// before its completion.
package engine

import (
	"errors"
	"time"
)

// ResponseMeta is what the transport learned about one exchange. It is
// populated before the first body callback (headers precede body) and
// finalized before the completion callback.
type ResponseMeta struct {
	StatusCode         int
	ContentType        string
	ContentDisposition string
	Location           string // target of the last redirect followed, if any
	EffectiveURL       string
	ContentLength      int64
}

// Handler receives transfer events for one request. OnBody returns the
// number of bytes accepted; returning fewer than offered aborts the
// transfer. OnComplete is called exactly once, after the last body
// callback, with a nil error when the transfer finished cleanly.
type Handler interface {
	OnBody(meta *ResponseMeta, chunk []byte) int
	OnComplete(meta *ResponseMeta, err error)
}

// Request is a transfer submission. The handler is exclusively owned by
// the session from Submit until its completion is delivered.
type Request struct {
	ID      string
	URL     string
	Handler Handler
}

// Completion reports one finished transfer back to the caller.
type Completion struct {
	Request Request
	Meta    *ResponseMeta
	Err     error
}

// Session is the narrow surface the scheduler drives.
type Session interface {
	// Submit hands a request to the engine. The handler's callbacks fire
	// during subsequent Advance calls.
	Submit(req Request) error
	// Advance delivers all pending events and returns the number of
	// transfers still in flight. An error is fatal to the session.
	Advance() (int, error)
	// Wait blocks until an event is ready or the timeout elapses.
	Wait(timeout time.Duration)
	// Completions returns and clears transfers finished since the last call.
	Completions() []Completion
	// Close abandons in-flight transfers and releases the session.
	Close()
}

// ErrAborted is the completion error of a transfer cut short because its
// handler accepted fewer bytes than offered.
var ErrAborted = errors.New("transfer aborted by handler")

// ErrSessionClosed is returned when a closed session is used.
var ErrSessionClosed = errors.New("session closed")
