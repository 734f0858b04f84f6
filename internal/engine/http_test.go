package engine

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rwtk/fetchr/internal/utils"
)

// recordingHandler captures callbacks for assertions. acceptLimit caps
// the bytes accepted per body callback; -1 accepts everything.
type recordingHandler struct {
	body        []byte
	bodyCalls   int
	completed   bool
	completeErr error
	meta        *ResponseMeta
	acceptLimit int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{acceptLimit: -1}
}

func (h *recordingHandler) OnBody(meta *ResponseMeta, chunk []byte) int {
	if h.completed {
		panic("body callback after completion")
	}
	h.bodyCalls++
	h.meta = meta
	if h.acceptLimit >= 0 && len(chunk) > h.acceptLimit {
		chunk = chunk[:h.acceptLimit]
	}
	h.body = append(h.body, chunk...)
	return len(chunk)
}

func (h *recordingHandler) OnComplete(meta *ResponseMeta, err error) {
	if h.completed {
		panic("duplicate completion")
	}
	h.completed = true
	h.completeErr = err
	h.meta = meta
}

// drive runs the session loop until the expected number of completions
// arrived or the deadline passes.
func drive(t *testing.T, s *HTTPSession, want int) []Completion {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var done []Completion
	for len(done) < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d completions, have %d", want, len(done))
		}
		if _, err := s.Advance(); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		done = append(done, s.Completions()...)
		s.Wait(50 * time.Millisecond)
	}
	return done
}

func TestHTTPSessionDeliversBodyThenCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition", `attachment; filename="a.txt"`)
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer server.Close()

	session := NewHTTPSession(utils.HTTPClientConfig{})
	defer session.Close()
	handler := newRecordingHandler()
	if err := session.Submit(Request{ID: "r1", URL: server.URL + "/file", Handler: handler}); err != nil {
		t.Fatal(err)
	}
	done := drive(t, session, 1)

	if done[0].Err != nil {
		t.Fatalf("completion error: %v", done[0].Err)
	}
	if !handler.completed || handler.completeErr != nil {
		t.Fatalf("handler not completed cleanly: %v", handler.completeErr)
	}
	if len(handler.body) != 1000 {
		t.Errorf("received %d bytes, want 1000", len(handler.body))
	}
	if handler.meta.StatusCode != 200 {
		t.Errorf("status = %d, want 200", handler.meta.StatusCode)
	}
	if handler.meta.ContentDisposition != `attachment; filename="a.txt"` {
		t.Errorf("disposition = %q", handler.meta.ContentDisposition)
	}
	if handler.meta.ContentType != "text/plain" {
		t.Errorf("content type = %q", handler.meta.ContentType)
	}
}

func TestHTTPSessionRecordsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/real/target.bin", http.StatusFound)
	})
	mux.HandleFunc("/real/target.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	session := NewHTTPSession(utils.HTTPClientConfig{})
	defer session.Close()
	handler := newRecordingHandler()
	if err := session.Submit(Request{ID: "r1", URL: server.URL + "/start", Handler: handler}); err != nil {
		t.Fatal(err)
	}
	drive(t, session, 1)

	if handler.meta.Location != server.URL+"/real/target.bin" {
		t.Errorf("Location = %q, want redirect target", handler.meta.Location)
	}
	if handler.meta.EffectiveURL != server.URL+"/real/target.bin" {
		t.Errorf("EffectiveURL = %q, want final URL", handler.meta.EffectiveURL)
	}
}

func TestHTTPSessionShortAcceptAbortsTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("y", 10000)))
	}))
	defer server.Close()

	session := NewHTTPSession(utils.HTTPClientConfig{})
	defer session.Close()
	handler := newRecordingHandler()
	handler.acceptLimit = 0
	if err := session.Submit(Request{ID: "r1", URL: server.URL, Handler: handler}); err != nil {
		t.Fatal(err)
	}
	done := drive(t, session, 1)

	if done[0].Err != ErrAborted {
		t.Errorf("completion error = %v, want ErrAborted", done[0].Err)
	}
	if handler.bodyCalls != 1 {
		t.Errorf("body delivered %d times after abort, want 1", handler.bodyCalls)
	}
}

func TestHTTPSessionConnectionErrorIsPerRequest(t *testing.T) {
	session := NewHTTPSession(utils.HTTPClientConfig{Timeout: 2 * time.Second})
	defer session.Close()
	handler := newRecordingHandler()
	// unroutable port on localhost
	if err := session.Submit(Request{ID: "r1", URL: "http://127.0.0.1:1/nope", Handler: handler}); err != nil {
		t.Fatal(err)
	}
	done := drive(t, session, 1)

	if done[0].Err == nil {
		t.Fatal("expected transport error completion")
	}
	if handler.bodyCalls != 0 {
		t.Errorf("body delivered %d times for failed connection", handler.bodyCalls)
	}
}

func TestHTTPSessionRejectsSubmitAfterClose(t *testing.T) {
	session := NewHTTPSession(utils.HTTPClientConfig{})
	session.Close()
	err := session.Submit(Request{ID: "r1", URL: "http://example.com"})
	if err != ErrSessionClosed {
		t.Errorf("Submit after Close = %v, want ErrSessionClosed", err)
	}
	if _, err := session.Advance(); err != ErrSessionClosed {
		t.Errorf("Advance after Close = %v, want ErrSessionClosed", err)
	}
}
