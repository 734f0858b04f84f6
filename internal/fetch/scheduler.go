package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rwtk/fetchr/internal/engine"
	"github.com/rwtk/fetchr/internal/utils"
)

// readinessTimeout bounds the wait for transfer events so that
// cancellation is noticed promptly.
const readinessTimeout = time.Second

// Scheduler owns the pending URL queue and drives the transfer engine
// until the queue is drained and nothing is in flight. URLs are admitted
// last-in first-out, never exceeding the parallelism limit.
type Scheduler struct {
	session   engine.Session
	pending   []string
	limit     int
	outputDir string
	log       zerolog.Logger
}

func NewScheduler(session engine.Session, limit int, outputDir string) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{
		session:   session,
		limit:     limit,
		outputDir: outputDir,
		log:       utils.GetLogger("scheduler"),
	}
}

// Enqueue appends a URL to the pending queue.
func (s *Scheduler) Enqueue(url string) {
	s.pending = append(s.pending, url)
}

// Pending is the number of URLs not yet admitted.
func (s *Scheduler) Pending() int {
	return len(s.pending)
}

// admitNext pops the most recently queued URL and submits it. No-op on an
// empty queue.
func (s *Scheduler) admitNext() error {
	if len(s.pending) == 0 {
		return nil
	}
	url := s.pending[len(s.pending)-1]
	s.pending = s.pending[:len(s.pending)-1]
	req := NewRequest(url, s.outputDir)
	utils.PrintInfo("Requesting " + url)
	s.log.Debug().Str("id", req.ID()).Str("url", url).Msg("Admitting request")
	return s.session.Submit(engine.Request{ID: req.ID(), URL: url, Handler: req})
}

// Run advances transfers until the queue is empty and nothing is in
// flight, or ctx is canceled. An engine failure is fatal; per-request
// failures are tallied and surface as a single error at the end.
// Cancellation is cooperative: admissions stop and in-flight transfers
// are abandoned when the session is torn down by the caller.
func (s *Scheduler) Run(ctx context.Context) error {
	failed := 0
	for {
		if ctx.Err() != nil {
			s.log.Warn().Int("pending", len(s.pending)).Msg("Interrupted, abandoning remaining work")
			return nil
		}
		inFlight, err := s.session.Advance()
		if err != nil {
			return fmt.Errorf("transfer engine failure: %w", err)
		}
		for _, completion := range s.session.Completions() {
			if !succeeded(completion) {
				failed++
			}
			s.log.Debug().Str("id", completion.Request.ID).Str("url", completion.Request.URL).Msg("Request finished")
		}
		for inFlight < s.limit && len(s.pending) > 0 {
			if err := s.admitNext(); err != nil {
				return fmt.Errorf("transfer engine failure: %w", err)
			}
			inFlight++
		}
		if inFlight == 0 {
			break
		}
		s.session.Wait(readinessTimeout)
	}
	if failed > 0 {
		return fmt.Errorf("%d download(s) failed", failed)
	}
	return nil
}

func succeeded(c engine.Completion) bool {
	if c.Err != nil || c.Meta == nil {
		return false
	}
	return c.Meta.StatusCode >= 200 && c.Meta.StatusCode <= 299
}
