package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rwtk/fetchr/internal/utils"
)

type eventKind int

const (
	evBody eventKind = iota
	evDone
)

type event struct {
	kind  eventKind
	req   Request
	meta  *ResponseMeta
	chunk []byte
	reply chan int // body events: accepted byte count
	err   error    // done events: transport outcome
}

// HTTPSession multiplexes transfers over a shared transport. All exported
// methods must be called from a single goroutine; transfer goroutines only
// touch the event channel.
type HTTPSession struct {
	cfg         utils.HTTPClientConfig
	transport   *http.Transport
	events      chan event
	pending     []event
	inFlight    int
	completions []Completion
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewHTTPSession(cfg utils.HTTPClientConfig) *HTTPSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPSession{
		cfg:       cfg,
		transport: utils.NewTransport(cfg),
		events:    make(chan event, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *HTTPSession) Submit(req Request) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	s.inFlight++
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.transfer(req)
	}()
	return nil
}

func (s *HTTPSession) Advance() (int, error) {
	if s.ctx.Err() != nil {
		return 0, ErrSessionClosed
	}
	for _, ev := range s.pending {
		s.dispatch(ev)
	}
	s.pending = s.pending[:0]
	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
		default:
			return s.inFlight, nil
		}
	}
}

func (s *HTTPSession) Wait(timeout time.Duration) {
	if len(s.pending) > 0 {
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-s.events:
		s.pending = append(s.pending, ev)
	case <-timer.C:
	case <-s.ctx.Done():
	}
}

func (s *HTTPSession) Completions() []Completion {
	done := s.completions
	s.completions = nil
	return done
}

// Close abandons in-flight transfers. Their goroutines unwind on the
// canceled context without delivering further events.
func (s *HTTPSession) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *HTTPSession) dispatch(ev event) {
	switch ev.kind {
	case evBody:
		ev.reply <- ev.req.Handler.OnBody(ev.meta, ev.chunk)
	case evDone:
		ev.req.Handler.OnComplete(ev.meta, ev.err)
		s.inFlight--
		s.completions = append(s.completions, Completion{Request: ev.req, Meta: ev.meta, Err: ev.err})
	}
}

func (s *HTTPSession) transfer(req Request) {
	meta := &ResponseMeta{}
	client := &http.Client{
		Transport: s.transport,
		Timeout:   s.cfg.Timeout,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) >= utils.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", utils.MaxRedirects)
			}
			meta.Location = r.URL.String()
			return nil
		},
	}
	httpReq, err := http.NewRequestWithContext(s.ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		s.finish(req, meta, err)
		return
	}
	s.cfg.ApplyHeaders(httpReq)

	resp, err := client.Do(httpReq)
	if err != nil {
		s.finish(req, meta, err)
		return
	}
	defer resp.Body.Close()
	meta.StatusCode = resp.StatusCode
	meta.ContentType = resp.Header.Get("Content-Type")
	meta.ContentDisposition = resp.Header.Get("Content-Disposition")
	meta.EffectiveURL = resp.Request.URL.String()
	meta.ContentLength = resp.ContentLength

	buffer := make([]byte, utils.DefaultBufferSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			accepted, ok := s.deliverBody(req, meta, buffer[:bytesRead])
			if !ok {
				return // session torn down
			}
			if accepted < bytesRead {
				s.finish(req, meta, ErrAborted)
				return
			}
		}
		if readErr == io.EOF {
			s.finish(req, meta, nil)
			return
		}
		if readErr != nil {
			s.finish(req, meta, readErr)
			return
		}
	}
}

// deliverBody hands a chunk to Advance and blocks until the handler has
// consumed it, which keeps the chunk buffer reusable and the callbacks
// single-threaded.
func (s *HTTPSession) deliverBody(req Request, meta *ResponseMeta, chunk []byte) (int, bool) {
	reply := make(chan int, 1)
	select {
	case s.events <- event{kind: evBody, req: req, meta: meta, chunk: chunk, reply: reply}:
	case <-s.ctx.Done():
		return 0, false
	}
	select {
	case accepted := <-reply:
		return accepted, true
	case <-s.ctx.Done():
		return 0, false
	}
}

func (s *HTTPSession) finish(req Request, meta *ResponseMeta, err error) {
	select {
	case s.events <- event{kind: evDone, req: req, meta: meta, err: err}:
	case <-s.ctx.Done():
	}
}
