package lra

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sagaflow/lra-coordinator/infrastructure/errors"
	"github.com/sagaflow/lra-coordinator/infrastructure/logging"
	"github.com/sagaflow/lra-coordinator/infrastructure/resilience"
	"github.com/sagaflow/lra-coordinator/internal/lra/audit"
	"github.com/sagaflow/lra-coordinator/internal/lra/store"
)

// Config holds the tunables the engine, driver, and recovery scanner share.
type Config struct {
	CoordinatorBase string
	APIVersion      string
	DriverRetry     resilience.RetryConfig
	DriverPoolSize  int
	HTTPTimeout     time.Duration
}

// DefaultConfig returns sane defaults for a single-process deployment.
func DefaultConfig(coordinatorBase string) Config {
	return Config{
		CoordinatorBase: coordinatorBase,
		APIVersion:      "1.0",
		DriverRetry:     resilience.DefaultRetryConfig(),
		DriverPoolSize:  8,
		HTTPTimeout:     10 * time.Second,
	}
}

// lraHandle owns one LRA's mutation lock, matching the "serialize mutation
// per-LRA" concurrency model. The lock lives here, never inside the LRA
// value type itself, so LRA values remain freely copyable.
type lraHandle struct {
	mu            sync.Mutex
	driverRunning bool
	data          LRA
}

// Engine is the coordinator's lifecycle engine: the in-memory working set
// of active LRAs plus the store they are durably written through.
type Engine struct {
	cfg    Config
	store  store.Store
	logger *logging.Logger
	audit  *audit.Logger

	mu   sync.RWMutex
	lras map[string]*lraHandle // uid -> handle

	pool *driverPool
}

// NewEngine constructs an Engine. Callers must call LoadFromStore before
// serving traffic so that a restart picks up whatever was persisted.
func NewEngine(cfg Config, st store.Store, logger *logging.Logger, auditLogger *audit.Logger) *Engine {
	e := &Engine{
		cfg:    cfg,
		store:  st,
		logger: logger,
		audit:  auditLogger,
		lras:   make(map[string]*lraHandle),
	}
	e.pool = newDriverPool(cfg.DriverPoolSize, e.runDriver)
	return e
}

// LoadFromStore rehydrates every active LRA from the object store into the
// in-memory working set. Called once at startup before Recovery begins.
func (e *Engine) LoadFromStore(ctx context.Context) error {
	uids, err := e.store.List(ctx, store.TypeActive)
	if err != nil {
		return errors.StoreError("list-active", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, uid := range uids {
		body, err := e.store.Read(ctx, store.TypeActive, uid)
		if err != nil {
			if e.logger != nil {
				e.logger.WithError(err).Warn("skip unreadable active record during load")
			}
			continue
		}
		var l LRA
		if err := json.Unmarshal(body, &l); err != nil {
			if e.logger != nil {
				e.logger.WithError(err).Warn("skip corrupt active record during load")
			}
			continue
		}
		e.lras[uid] = &lraHandle{data: l}
	}
	return nil
}

func (e *Engine) persistLocked(ctx context.Context, h *lraHandle) error {
	snap := h.data.Clone()
	body, err := json.Marshal(snap)
	if err != nil {
		return errors.Internal("marshal LRA record", err)
	}
	if err := e.store.Write(ctx, store.TypeActive, uidOf(snap.ID), body); err != nil {
		return errors.StoreError("write", err)
	}
	return nil
}

func uidOf(lraID string) string {
	_, uid, err := ParseID(lraID)
	if err != nil {
		return lraID
	}
	return uid
}

// StartLRA begins a new LRA, optionally nested under parentID. clientID and
// timeLimit are caller-supplied metadata; a zero/negative timeLimit means no
// deadline (see DESIGN.md's open-question decision).
func (e *Engine) StartLRA(ctx context.Context, clientID string, timeLimit time.Duration, parentID string) (*LRA, error) {
	uid := NewUID()
	l := LRA{
		ID:        BuildID(e.cfg.CoordinatorBase, uid),
		ParentID:  parentID,
		ClientID:  clientID,
		Status:    StatusActive,
		StartTime: time.Now(),
		TimeLimit: timeLimit,
	}

	if parentID != "" {
		parent, err := e.getHandle(parentID)
		if err != nil {
			return nil, err
		}
		parent.mu.Lock()
		if parent.data.Status.Terminal() {
			parent.mu.Unlock()
			return nil, errors.Gone(parentID)
		}
		parent.data.Children = append(parent.data.Children, l.ID)
		parentErr := e.persistLocked(ctx, parent)
		parent.mu.Unlock()
		if parentErr != nil {
			return nil, parentErr
		}
	}

	h := &lraHandle{data: l}
	e.mu.Lock()
	e.lras[uid] = h
	e.mu.Unlock()

	h.mu.Lock()
	persistErr := e.persistLocked(ctx, h)
	h.mu.Unlock()
	if persistErr != nil {
		return nil, persistErr
	}
	if e.audit != nil {
		e.audit.Started(l.ID, parentID, clientID)
	}
	return &l, nil
}

func (e *Engine) getHandle(lraID string) (*lraHandle, error) {
	_, uid, err := ParseID(lraID)
	if err != nil {
		return nil, errors.InvalidFormat("lraId", "<coordinator-base>/<uid>")
	}
	e.mu.RLock()
	h, ok := e.lras[uid]
	e.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("lra", lraID)
	}
	return h, nil
}

// ListLRAs returns every known LRA, sorted by start time, optionally
// restricted to a single lifecycle status. An empty statusFilter returns
// every LRA; an unrecognized one is a caller error.
func (e *Engine) ListLRAs(statusFilter Status) ([]LRA, error) {
	if statusFilter != "" && !ValidStatus(statusFilter) {
		return nil, errors.InvalidInput("Status", "unrecognized LRA status")
	}

	e.mu.RLock()
	handles := make([]*lraHandle, 0, len(e.lras))
	for _, h := range e.lras {
		handles = append(handles, h)
	}
	e.mu.RUnlock()

	out := make([]LRA, 0, len(handles))
	for _, h := range handles {
		h.mu.Lock()
		l := h.data.Clone()
		h.mu.Unlock()
		if statusFilter != "" && l.Status != statusFilter {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// GetStatus returns the current status string for an LRA.
func (e *Engine) GetStatus(lraID string) (Status, error) {
	h, err := e.getHandle(lraID)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data.Status, nil
}

// GetInfo returns a full snapshot of an LRA.
func (e *Engine) GetInfo(lraID string) (LRA, error) {
	h, err := e.getHandle(lraID)
	if err != nil {
		return LRA{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data.Clone(), nil
}

// Renew extends an LRA's deadline by resetting its start time, rejecting
// LRAs that have already reached a terminal state.
func (e *Engine) Renew(ctx context.Context, lraID string, timeLimit time.Duration) error {
	h, err := e.getHandle(lraID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.data.Status.Terminal() {
		return errors.Gone(lraID)
	}
	h.data.StartTime = time.Now()
	h.data.TimeLimit = timeLimit
	return e.persistLocked(ctx, h)
}

// Join registers a participant against an active LRA, returning the
// recovery URI the participant must keep for post-crash recovery.
func (e *Engine) Join(ctx context.Context, lraID, linkHeader, compensateURL, completeURL, statusURL, forgetURL, afterURL string) (string, error) {
	h, err := e.getHandle(lraID)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.data.Status.Terminal() {
		return "", errors.PreconditionFailed("cannot join an LRA that has already reached a terminal state")
	}
	if compensateURL == "" && linkHeader == "" {
		return "", errors.PreconditionFailed("participant must supply a compensate URL or Link header")
	}

	_, lraUID, _ := ParseID(lraID)
	pUID := NewUID()
	recoveryURI := BuildRecoveryURI(e.cfg.CoordinatorBase, lraUID, pUID)

	h.data.Participants = append(h.data.Participants, &Participant{
		UID:           pUID,
		LinkHeader:    linkHeader,
		CompensateURL: compensateURL,
		CompleteURL:   completeURL,
		StatusURL:     statusURL,
		ForgetURL:     forgetURL,
		AfterURL:      afterURL,
		Status:        ParticipantActive,
		RecoveryURI:   recoveryURI,
	})

	if err := e.persistLocked(ctx, h); err != nil {
		return "", err
	}
	return recoveryURI, nil
}

// Leave removes a participant from an LRA before the end phase begins.
func (e *Engine) Leave(ctx context.Context, lraID, participantUID string) error {
	h, err := e.getHandle(lraID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.data.Status.EndPhaseInFlight() || h.data.Status.Terminal() {
		return errors.PreconditionFailed("cannot leave an LRA whose end phase has begun")
	}

	idx := -1
	for i, p := range h.data.Participants {
		if p.UID == participantUID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.NotFound("participant", participantUID)
	}
	h.data.Participants = append(h.data.Participants[:idx], h.data.Participants[idx+1:]...)
	return e.persistLocked(ctx, h)
}

// Close begins the completion end phase, driving every participant's
// complete callback. Close/Cancel begin the same end phase on every child
// LRA before the parent's own drive is queued on the driver pool; the queued
// drives then run concurrently, so a child's participants are not
// guaranteed to be driven before the parent's.
func (e *Engine) Close(ctx context.Context, lraID string) error {
	return e.beginEndPhase(ctx, lraID, false)
}

// Cancel begins the compensation end phase.
func (e *Engine) Cancel(ctx context.Context, lraID string) error {
	return e.beginEndPhase(ctx, lraID, true)
}

func (e *Engine) beginEndPhase(ctx context.Context, lraID string, cancel bool) error {
	h, err := e.getHandle(lraID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.data.Status.Terminal() {
		h.mu.Unlock()
		return errors.Gone(lraID)
	}
	if h.driverRunning {
		h.mu.Unlock()
		return nil // already in flight; at most one active end-phase driver per LRA
	}
	if cancel {
		h.data.Status = StatusCancelling
	} else {
		h.data.Status = StatusClosing
	}
	h.driverRunning = true
	persistErr := e.persistLocked(ctx, h)
	children := append([]string(nil), h.data.Children...)
	h.mu.Unlock()
	if persistErr != nil {
		return persistErr
	}

	if e.audit != nil {
		e.audit.EndPhaseBegan(lraID, cancel)
	}

	for _, child := range children {
		_ = e.beginEndPhase(ctx, child, cancel)
	}

	e.pool.submit(lraID, cancel)
	return nil
}
