package lra

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/sagaflow/lra-coordinator/infrastructure/logging"
	"github.com/sagaflow/lra-coordinator/internal/lra/store"
)

// Recovery periodically re-drives every LRA in the Failed bucket, and any
// LRA in the engine's working set whose end phase began but whose driver is
// not running (e.g. one reloaded by LoadFromStore after the process crashed
// mid-drive), until every participant reaches a terminal outcome or the LRA
// is moved back to Active/Failed by a fresh pass.
//
// Passes never overlap: when a scheduled tick and a manually triggered scan
// (GET /recovery/{lraUID}/{participantUID}) coincide, the later RecoverOnce
// call returns (0, 0) at once while the earlier pass is still running.
type Recovery struct {
	engine *Engine
	cron   *cron.Cron
	logger *logging.Logger

	mu        sync.Mutex
	running   bool
}

// NewRecovery constructs a Recovery scanner. cronExpr follows robfig/cron
// syntax, including the "@every 30s" shorthand the spec's "recovery scan
// interval" config option maps onto most naturally.
func NewRecovery(engine *Engine, cronExpr string, logger *logging.Logger) (*Recovery, error) {
	if cronExpr == "" {
		cronExpr = "@every 30s"
	}
	r := &Recovery{engine: engine, logger: logger}
	c := cron.New()
	if _, err := c.AddFunc(cronExpr, func() {
		r.RecoverOnce(context.Background())
	}); err != nil {
		return nil, err
	}
	r.cron = c
	return r, nil
}

// Start begins the scheduled recovery scan.
func (r *Recovery) Start() { r.cron.Start() }

// Stop halts the scheduler and waits for any in-flight job to finish.
func (r *Recovery) Stop() { <-r.cron.Stop().Done() }

// InRecovery reports whether a scan is currently in progress, for the
// GET /recovery status surface.
func (r *Recovery) InRecovery() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RecoverOnce performs a single recovery pass:
//  1. list every uid in the Failed bucket
//  2. for each, re-run the end-phase driver for whichever phase its status implies
//  3. if the driver now reports every participant terminal, move the record
//     back out of Failed (it has already flipped to Closed/Cancelled)
//  4. leave anything still non-terminal in Failed for the next scan
//  5. begin the end phase again for every Closing/Cancelling LRA in the
//     working set with no driver running; that drive runs on the driver
//     pool and is not counted in the returned totals
func (r *Recovery) RecoverOnce(ctx context.Context) (recovered, stillFailed int) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return 0, 0
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	uids, err := r.engine.store.List(ctx, store.TypeFailed)
	if err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("recovery: list failed bucket")
		}
		return 0, 0
	}

	for _, uid := range uids {
		body, err := r.engine.store.Read(ctx, store.TypeFailed, uid)
		if err != nil {
			continue
		}
		var failed FailedLRA
		if err := json.Unmarshal(body, &failed); err != nil {
			continue
		}
		l := failed.LRA

		cancel := l.Status == StatusFailedToCancel || l.Status == StatusCancelling
		h := &lraHandle{data: l, driverRunning: true}
		r.engine.mu.Lock()
		r.engine.lras[uid] = h
		r.engine.mu.Unlock()

		allTerminal := r.engine.driveOnce(ctx, h, cancel)
		if allTerminal {
			h.mu.Lock()
			if cancel {
				h.data.Status = StatusCancelled
			} else {
				h.data.Status = StatusClosed
			}
			h.driverRunning = false
			snap := h.data.Clone()
			h.mu.Unlock()
			snapBody, _ := json.Marshal(snap)
			// Write the final terminal record into Active (the durable
			// history bucket for every LRA, terminal or not) and drop it
			// out of Failed — it no longer needs further recovery passes.
			if err := r.engine.store.Write(ctx, store.TypeActive, uid, snapBody); err == nil {
				_ = r.engine.store.Remove(ctx, store.TypeFailed, uid)
			}
			recovered++
			if r.engine.audit != nil {
				r.engine.audit.EndPhaseFinished(snap.ID, string(snap.Status))
			}
			continue
		}

		h.mu.Lock()
		h.driverRunning = false
		snap := h.data.Clone()
		h.mu.Unlock()
		refailed := FailedLRA{LRA: snap, FailedAt: failed.FailedAt, Reason: failed.Reason}
		snapBody, _ := json.Marshal(refailed)
		_ = r.engine.store.Write(ctx, store.TypeFailed, uid, snapBody)
		stillFailed++
	}

	r.engine.mu.RLock()
	handles := make([]*lraHandle, 0, len(r.engine.lras))
	for _, h := range r.engine.lras {
		handles = append(handles, h)
	}
	r.engine.mu.RUnlock()
	for _, h := range handles {
		h.mu.Lock()
		id, status, idle := h.data.ID, h.data.Status, !h.driverRunning
		h.mu.Unlock()
		if idle && status.EndPhaseInFlight() {
			_ = r.engine.beginEndPhase(ctx, id, status == StatusCancelling)
		}
	}

	if r.engine.audit != nil {
		r.engine.audit.RecoveryScan(recovered, stillFailed)
	}
	return recovered, stillFailed
}
