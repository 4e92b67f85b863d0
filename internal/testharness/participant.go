// Package testharness provides a minimal LRA participant test double, built
// on go-chi/chi/v5, used by end-to-end driver tests. It is never imported by
// the coordinator's own request path.
package testharness

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Outcome controls how the participant double responds to a callback.
type Outcome struct {
	StatusCode int
	Body       string // JSON body, e.g. `{"status":"Completed"}`
}

// Participant is a scriptable HTTP participant: each registered callback
// path can be told what to return next, and calls are counted so tests can
// assert retry behavior.
type Participant struct {
	mu      sync.Mutex
	outcome map[string]Outcome
	calls   map[string]int
	router  chi.Router
}

// New constructs a Participant with default 200 "Completed"/"Compensated"
// outcomes for /complete and /compensate.
func New() *Participant {
	p := &Participant{
		outcome: map[string]Outcome{
			"/complete":   {StatusCode: http.StatusOK, Body: `{"status":"Completed"}`},
			"/compensate": {StatusCode: http.StatusOK, Body: `{"status":"Compensated"}`},
			"/status":     {StatusCode: http.StatusOK, Body: `{"status":"Active"}`},
		},
		calls: map[string]int{},
	}

	r := chi.NewRouter()
	r.Put("/complete", p.serve("/complete"))
	r.Put("/compensate", p.serve("/compensate"))
	r.Get("/status", p.serve("/status"))
	r.Put("/forget", p.serve("/forget"))
	r.Put("/after", p.serve("/after"))
	p.router = r
	return p
}

// SetOutcome scripts the response for a given path (e.g. "/compensate").
func (p *Participant) SetOutcome(path string, o Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcome[path] = o
}

// Calls returns how many times path has been invoked.
func (p *Participant) Calls(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

func (p *Participant) serve(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.calls[path]++
		o, ok := p.outcome[path]
		p.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(o.StatusCode)
		if o.Body != "" {
			_, _ = w.Write([]byte(o.Body))
		} else {
			_ = json.NewEncoder(w).Encode(map[string]string{})
		}
	}
}

// ServeHTTP implements http.Handler, so a test can wrap the double in
// httptest.NewServer directly.
func (p *Participant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}
