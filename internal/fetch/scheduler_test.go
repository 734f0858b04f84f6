package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rwtk/fetchr/internal/engine"
)

// fakeSession is a scripted engine: each Advance completes a fixed number
// of the oldest in-flight transfers with a canned status.
type fakeSession struct {
	inFlight           []engine.Request
	completions        []engine.Completion
	submitted          []string
	maxInFlight        int
	completePerAdvance int
	status             int
	advanceErr         error
}

func newFakeSession() *fakeSession {
	return &fakeSession{completePerAdvance: 1, status: 200}
}

func (f *fakeSession) Submit(req engine.Request) error {
	f.inFlight = append(f.inFlight, req)
	f.submitted = append(f.submitted, req.URL)
	if len(f.inFlight) > f.maxInFlight {
		f.maxInFlight = len(f.inFlight)
	}
	return nil
}

func (f *fakeSession) Advance() (int, error) {
	if f.advanceErr != nil {
		return 0, f.advanceErr
	}
	for i := 0; i < f.completePerAdvance && len(f.inFlight) > 0; i++ {
		req := f.inFlight[0]
		f.inFlight = f.inFlight[1:]
		meta := &engine.ResponseMeta{StatusCode: f.status, EffectiveURL: req.URL}
		req.Handler.OnComplete(meta, nil)
		f.completions = append(f.completions, engine.Completion{Request: req, Meta: meta})
	}
	return len(f.inFlight), nil
}

func (f *fakeSession) Wait(timeout time.Duration) {}

func (f *fakeSession) Completions() []engine.Completion {
	done := f.completions
	f.completions = nil
	return done
}

func (f *fakeSession) Close() {}

func TestSchedulerRespectsParallelismLimit(t *testing.T) {
	session := newFakeSession()
	s := NewScheduler(session, 2, t.TempDir())
	for _, url := range []string{"u1", "u2", "u3", "u4", "u5"} {
		s.Enqueue(url)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if session.maxInFlight > 2 {
		t.Errorf("in-flight count reached %d, limit is 2", session.maxInFlight)
	}
	if len(session.submitted) != 5 {
		t.Errorf("submitted %d requests, want 5", len(session.submitted))
	}
	if s.Pending() != 0 {
		t.Errorf("pending queue not drained: %d left", s.Pending())
	}
}

func TestSchedulerAdmitsLIFO(t *testing.T) {
	session := newFakeSession()
	// complete everything at once so admission order is purely stack order
	session.completePerAdvance = 5
	s := NewScheduler(session, 1, t.TempDir())
	for _, url := range []string{"u1", "u2", "u3"} {
		s.Enqueue(url)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"u3", "u2", "u1"}
	for i, url := range want {
		if session.submitted[i] != url {
			t.Fatalf("submission order = %v, want %v", session.submitted, want)
		}
	}
}

func TestSchedulerTalliesPerRequestFailures(t *testing.T) {
	session := newFakeSession()
	session.status = 404
	s := NewScheduler(session, 2, t.TempDir())
	s.Enqueue("u1")
	s.Enqueue("u2")
	err := s.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "2 download(s) failed") {
		t.Fatalf("Run error = %v, want failure tally", err)
	}
}

func TestSchedulerEngineFailureIsFatal(t *testing.T) {
	session := newFakeSession()
	session.advanceErr = errors.New("poll broke")
	s := NewScheduler(session, 2, t.TempDir())
	s.Enqueue("u1")
	err := s.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "transfer engine failure") {
		t.Fatalf("Run error = %v, want fatal engine error", err)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	session := newFakeSession()
	session.completePerAdvance = 0 // transfers never finish
	s := NewScheduler(session, 1, t.TempDir())
	s.Enqueue("u1")
	s.Enqueue("u2")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if len(session.submitted) != 0 {
		t.Errorf("canceled run admitted %d requests, want 0", len(session.submitted))
	}
}

func TestSchedulerMinimumLimit(t *testing.T) {
	s := NewScheduler(newFakeSession(), 0, "")
	if s.limit != 1 {
		t.Errorf("limit = %d, want clamped to 1", s.limit)
	}
}
