// Package lraclient implements the consumer-side clustered client: a load
// balancer over a fixed set of coordinator base URLs used by participants
// that want startLRA/listLRAs spread across a coordinator cluster, with
// retry-with-failover and per-LRA coordinator affinity for every other
// operation.
package lraclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sagaflow/lra-coordinator/infrastructure/errors"
	"github.com/sagaflow/lra-coordinator/infrastructure/httputil"
	"github.com/sagaflow/lra-coordinator/infrastructure/resilience"
	"github.com/sagaflow/lra-coordinator/internal/lra"
)

// Selector picks the next coordinator base URL to try from a fixed pool.
// Only startLRA and listLRAs are load-balanced (§4.4); every other call
// targets a specific coordinator via an already-minted LRA id.
type Selector interface {
	// Next returns the coordinator base URL to try, or false if the pool is
	// empty.
	Next() (base string, ok bool)
	// Name identifies the strategy for config/logging.
	Name() string
}

// RoundRobin cycles through the pool in order.
type RoundRobin struct {
	bases []string
	next  int
}

// NewRoundRobin constructs a RoundRobin selector over bases.
func NewRoundRobin(bases []string) *RoundRobin { return &RoundRobin{bases: bases} }

func (s *RoundRobin) Next() (string, bool) {
	if len(s.bases) == 0 {
		return "", false
	}
	b := s.bases[s.next%len(s.bases)]
	s.next++
	return b, true
}

func (s *RoundRobin) Name() string { return "round-robin" }

// Sticky always returns the same coordinator once one has succeeded, only
// moving on when told to via Demote.
type Sticky struct {
	bases   []string
	current int
}

// NewSticky constructs a Sticky selector over bases.
func NewSticky(bases []string) *Sticky { return &Sticky{bases: bases} }

func (s *Sticky) Next() (string, bool) {
	if len(s.bases) == 0 {
		return "", false
	}
	return s.bases[s.current%len(s.bases)], true
}

func (s *Sticky) Name() string { return "sticky" }

// Demote advances past the current coordinator to the next one in the pool.
// Client never calls it, so a sticky client keeps retrying its current
// coordinator on error; a caller that calls Demote moves the target
// explicitly, and Reset returns it to index 0.
func (s *Sticky) Demote() {
	if len(s.bases) == 0 {
		return
	}
	s.current = (s.current + 1) % len(s.bases)
}

// Reset returns a Sticky selector to its originally preferred coordinator.
func (s *Sticky) Reset() { s.current = 0 }

// Rejecting never selects a coordinator; Next always returns false. It
// exists so a clustered client configured with an unknown/unsupported
// selection method fails closed instead of silently defaulting to
// round-robin, per §4.4's "invalid load-balancer" testable property.
type Rejecting struct{}

func (Rejecting) Next() (string, bool) { return "", false }
func (Rejecting) Name() string         { return "rejecting" }

// SelectorFor resolves a selection-method config string to a Selector,
// returning Rejecting for anything it does not recognize.
func SelectorFor(method string, bases []string) Selector {
	switch strings.ToLower(method) {
	case "round-robin", "roundrobin", "":
		return NewRoundRobin(bases)
	case "sticky":
		return NewSticky(bases)
	default:
		return Rejecting{}
	}
}

// Client is the clustered client: it load-balances startLRA/listLRAs across
// Selector's pool, and routes every other call straight at the coordinator
// base encoded in the LRA id.
type Client struct {
	selector Selector
	retry    resilience.RetryConfig
	apiVer   string
	http     *http.Client
}

// New constructs a Client.
func New(selector Selector, apiVersion string) *Client {
	return &Client{
		selector: selector,
		retry:    resilience.DefaultRetryConfig(),
		apiVer:   apiVersion,
		http:     &http.Client{},
	}
}

// StartLRA picks a coordinator from the pool (with retry-with-failover
// across the remaining pool members on failure) and starts a new LRA there.
func (c *Client) StartLRA(ctx context.Context, clientID string) (lraID string, err error) {
	base, ok := c.selector.Next()
	if !ok {
		return "", errors.ServiceUnavailable("no coordinator available for load balancing")
	}

	attempt := 0
	err = resilience.Retry(ctx, c.retry, func() error {
		// Every retry asks the selector again: a round-robin pool moves on
		// to its next member, while a sticky one keeps its current target.
		if attempt > 0 {
			if next, ok := c.selector.Next(); ok {
				base = next
			}
		}
		attempt++
		url := fmt.Sprintf("%s/start?ClientID=%s", strings.TrimRight(base, "/"), clientID)
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if reqErr != nil {
			return reqErr
		}
		c.setHeaders(req)

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("coordinator %s: unexpected status %d", base, resp.StatusCode)
		}
		body, _, _ := httputil.ReadAllWithLimit(resp.Body, 4096)
		lraID = strings.TrimSpace(string(body))
		return nil
	})
	if err != nil {
		return "", errors.ServiceUnavailable("failed to start LRA on any coordinator in the pool")
	}
	return lraID, nil
}

// ListLRAs picks a coordinator from the pool and lists its active LRAs.
func (c *Client) ListLRAs(ctx context.Context) ([]lra.LRA, error) {
	base, ok := c.selector.Next()
	if !ok {
		return nil, errors.ServiceUnavailable("no coordinator available for load balancing")
	}

	url := strings.TrimRight(base, "/") + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.ServiceUnavailable("coordinator unreachable")
	}
	defer resp.Body.Close()

	var out []lra.LRA
	if err := decodeJSON(resp.Body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CloseLRA targets the specific coordinator an LRA id was minted on (per-LRA
// affinity), ignoring the load-balancer entirely.
func (c *Client) CloseLRA(ctx context.Context, lraID string) error {
	base, _, err := lra.ParseID(lraID)
	if err != nil {
		return errors.InvalidFormat("lraId", "<coordinator-base>/<uid>")
	}
	url := base + "/" + lraIDTail(lraID) + "/close"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.ServiceUnavailable("coordinator unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("close LRA %s: unexpected status %d", lraID, resp.StatusCode)
	}
	return nil
}

func lraIDTail(lraID string) string {
	_, uid, _ := lra.ParseID(lraID)
	return uid
}

func (c *Client) setHeaders(r *http.Request) {
	if c.apiVer != "" {
		r.Header.Set("Narayana-LRA-API-version", c.apiVer)
	}
}

func decodeJSON(r io.Reader, v interface{}) error {
	body, _, err := httputil.ReadAllWithLimit(r, 1<<20)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
