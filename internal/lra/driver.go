package lra

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	neturl "net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sagaflow/lra-coordinator/infrastructure/httputil"
	"github.com/sagaflow/lra-coordinator/infrastructure/resilience"
	"github.com/sagaflow/lra-coordinator/internal/lra/store"
)

// outcome classifies a single participant callback attempt, matching the
// three retry-policy categories: a permanent failure stops retrying and
// marks the participant FailedTo*; a retryable failure is retried with
// backoff; a terminal-success response moves the participant to its sticky
// terminal state.
type outcome int

const (
	outcomeRetryable outcome = iota
	outcomePermanent
	outcomeTerminalSuccess
)

// driverPool runs end-phase drives on a bounded worker pool distinct from
// the goroutines serving inbound HTTP requests, so a slow participant never
// blocks new API calls.
type driverPool struct {
	work chan driverJob
	run  func(ctx context.Context, lraID string, cancel bool)
}

type driverJob struct {
	lraID  string
	cancel bool
}

func newDriverPool(size int, run func(ctx context.Context, lraID string, cancel bool)) *driverPool {
	if size <= 0 {
		size = 4
	}
	p := &driverPool{work: make(chan driverJob, 256), run: run}
	for i := 0; i < size; i++ {
		go p.loop()
	}
	return p
}

func (p *driverPool) loop() {
	for job := range p.work {
		p.run(context.Background(), job.lraID, job.cancel)
	}
}

func (p *driverPool) submit(lraID string, cancel bool) {
	p.work <- driverJob{lraID: lraID, cancel: cancel}
}

// circuitBreakers holds one breaker per participant base URL so a single
// unreachable participant host cannot retry-storm the driver; shared across
// all LRAs since the failure domain is the remote host, not the LRA.
type circuitBreakers struct {
	mu sync.Mutex
	m  map[string]*resilience.CircuitBreaker
}

func newCircuitBreakers() *circuitBreakers {
	return &circuitBreakers{m: make(map[string]*resilience.CircuitBreaker)}
}

func (c *circuitBreakers) get(baseURL string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.m[baseURL]
	if !ok {
		cb = resilience.New(resilience.DefaultConfig())
		c.m[baseURL] = cb
	}
	return cb
}

var sharedBreakers = newCircuitBreakers()

// httpClient is overridable in tests.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// runDriver drives every non-terminal participant of lraID through its
// end-phase callback until all participants reach a terminal outcome, or a
// retryable failure remains and the pass gives up (leaving the LRA for
// recovery to retry later).
func (e *Engine) runDriver(ctx context.Context, lraID string, cancel bool) {
	h, err := e.getHandle(lraID)
	if err != nil {
		return
	}

	allTerminal := e.driveOnce(ctx, h, cancel)

	h.mu.Lock()
	if allTerminal {
		if cancel {
			h.data.Status = StatusCancelled
		} else {
			h.data.Status = StatusClosed
		}
		h.driverRunning = false
		_ = e.persistLocked(ctx, h)
		status := h.data.Status
		h.mu.Unlock()
		if e.audit != nil {
			e.audit.EndPhaseFinished(lraID, string(status))
		}
		return
	}

	h.driverRunning = false
	if cancel {
		h.data.Status = StatusFailedToCancel
	} else {
		h.data.Status = StatusFailedToClose
	}
	failed := FailedLRA{
		LRA:      h.data.Clone(),
		FailedAt: time.Now(),
		Reason:   "end phase did not reach a terminal state for every participant",
	}
	h.mu.Unlock()

	if e.audit != nil {
		e.audit.EndPhaseFinished(lraID, string(failed.Status))
	}
	_ = e.moveToFailed(ctx, &failed)
}

// driveOnce calls every non-terminal participant's end-phase callback once
// (with the driver's own retry/backoff budget per call), returning whether
// every participant reached a terminal outcome by the time it returns.
func (e *Engine) driveOnce(ctx context.Context, h *lraHandle, cancel bool) bool {
	h.mu.Lock()
	participants := append([]*Participant(nil), h.data.Participants...)
	lraID := h.data.ID
	h.mu.Unlock()

	allTerminal := true
	for _, p := range participants {
		if p.Status.Terminal() {
			continue
		}
		out := e.driveParticipant(ctx, h, p, cancel)
		if out == outcomeRetryable {
			allTerminal = false
		}
		if e.audit != nil {
			h.mu.Lock()
			status := p.Status
			h.mu.Unlock()
			e.audit.ParticipantOutcome(lraID, p.UID, string(status))
		}
	}
	return allTerminal
}

func (e *Engine) driveParticipant(ctx context.Context, h *lraHandle, p *Participant, cancel bool) outcome {
	url := p.CompensateURL
	if !cancel {
		url = p.CompleteURL
	}
	if url == "" {
		// No callback registered for this phase: treat as immediately
		// satisfied, matching participants that only ever registered a
		// complete (or only a compensate) URL.
		h.mu.Lock()
		if cancel {
			p.Status = ParticipantCompensated
		} else {
			p.Status = ParticipantCompleted
		}
		h.mu.Unlock()
		e.fireAfter(ctx, p)
		return outcomeTerminalSuccess
	}

	breakerKey := url
	if u, err := neturl.Parse(url); err == nil && u.Host != "" {
		breakerKey = u.Scheme + "://" + u.Host
	}
	cb := sharedBreakers.get(breakerKey)
	var lastOutcome outcome
	retryErr := resilience.Retry(ctx, e.cfg.DriverRetry, func() error {
		o, retry := e.invokeParticipant(ctx, cb, url)
		lastOutcome = o
		if retry {
			return errRetry
		}
		return nil
	})

	kind := "complete"
	if cancel {
		kind = "compensate"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch lastOutcome {
	case outcomeTerminalSuccess:
		if cancel {
			p.Status = ParticipantCompensated
		} else {
			p.Status = ParticipantCompleted
		}
		if e.logger != nil {
			e.logger.LogParticipantCallback(ctx, h.data.ID, p.UID, kind, nil)
		}
		go e.fireAfter(context.Background(), p)
		return outcomeTerminalSuccess
	case outcomePermanent:
		if cancel {
			p.Status = ParticipantFailedToCompensate
		} else {
			p.Status = ParticipantFailedToComplete
		}
		if e.logger != nil {
			e.logger.LogParticipantCallback(ctx, h.data.ID, p.UID, kind, retryErr)
		}
		go e.fireAfter(context.Background(), p)
		return outcomePermanent
	default:
		if e.logger != nil {
			e.logger.LogParticipantCallback(ctx, h.data.ID, p.UID, kind, retryErr)
		}
		return outcomeRetryable
	}
}

// fireAfter invokes a participant's optional after-LRA notification once its
// own outcome is terminal. Best effort: the after callback never gates the
// LRA's own terminal status, and its failure is not retried by recovery.
func (e *Engine) fireAfter(ctx context.Context, p *Participant) {
	if p.AfterURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.AfterURL, bytes.NewReader(nil))
	if err != nil {
		return
	}
	if e.cfg.APIVersion != "" {
		req.Header.Set("Narayana-LRA-API-version", e.cfg.APIVersion)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

var errRetry = &retrySentinel{}

type retrySentinel struct{}

func (*retrySentinel) Error() string { return "participant callback retryable" }

// invokeParticipant performs a single HTTP call to a participant's end-phase
// URL and classifies the response per the retry-policy categories:
// 2xx/202 with a terminal status body => terminal success; 4xx other than
// 410 => permanent; 410 (Gone, already forgotten) => terminal success
// (nothing left to compensate/complete); 5xx or a network/timeout error =>
// retryable.
func (e *Engine) invokeParticipant(ctx context.Context, cb *resilience.CircuitBreaker, url string) (out outcome, retry bool) {
	cbErr := cb.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(nil))
		if err != nil {
			out = outcomePermanent
			return nil
		}
		if e.cfg.APIVersion != "" {
			req.Header.Set("Narayana-LRA-API-version", e.cfg.APIVersion)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			out = outcomeRetryable
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusGone:
			out = outcomeTerminalSuccess
		case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusAccepted:
			body, _, _ := httputil.ReadAllWithLimit(resp.Body, 1<<16)
			status := gjson.GetBytes(body, "status").String()
			if status == "" || terminalBody(status) {
				out = outcomeTerminalSuccess
			} else {
				out = outcomeRetryable
			}
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			out = outcomePermanent
		default:
			out = outcomeRetryable
			return errRetry
		}
		return nil
	})

	if cbErr != nil && out == 0 {
		out = outcomeRetryable
	}
	return out, out == outcomeRetryable
}

func terminalBody(status string) bool {
	switch status {
	case string(ParticipantCompleted), string(ParticipantCompensated),
		string(ParticipantFailedToComplete), string(ParticipantFailedToCompensate):
		return true
	default:
		return false
	}
}

// moveToFailed relocates an LRA that could not be fully driven to a
// terminal state into the Failed bucket, for the recovery scanner to keep
// retrying. The persisted body becomes a FailedLRA record rather than a
// plain LRA one, carrying FailedAt/Reason for operator visibility.
func (e *Engine) moveToFailed(ctx context.Context, failed *FailedLRA) error {
	uid := uidOf(failed.ID)
	body, err := json.Marshal(failed)
	if err != nil {
		return err
	}
	if err := e.store.Write(ctx, store.TypeFailed, uid, body); err != nil {
		return err
	}
	return e.store.Remove(ctx, store.TypeActive, uid)
}
