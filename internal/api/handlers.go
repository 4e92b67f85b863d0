package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	internalerrors "github.com/sagaflow/lra-coordinator/infrastructure/errors"
	"github.com/sagaflow/lra-coordinator/infrastructure/httputil"
	"github.com/sagaflow/lra-coordinator/infrastructure/logging"
	"github.com/sagaflow/lra-coordinator/internal/lra"
)

type handlers struct {
	engine          *lra.Engine
	recovery        *lra.Recovery
	logger          *logging.Logger
	apiVersion      string
	coordinatorBase string
}

// fullID reconstructs the engine-facing "<coordinator-base>/<uid>" id from
// the uid-only {lraId} path variable mux hands handlers.
func (h *handlers) fullID(uid string) string {
	return lra.BuildID(h.coordinatorBase, uid)
}

func toHandlerErr(err error) error {
	se := internalerrors.GetServiceError(err)
	if se == nil {
		return err
	}
	switch se.HTTPStatus {
	case http.StatusNotFound:
		return &httputil.NotFoundError{Message: se.Message}
	case http.StatusBadRequest:
		return &httputil.ValidationError{Message: se.Message}
	case http.StatusConflict:
		return &httputil.ConflictError{Message: se.Message}
	case http.StatusGone:
		return &httputil.GoneError{Message: se.Message}
	case http.StatusPreconditionFailed:
		return &httputil.PreconditionFailedError{Message: se.Message}
	case http.StatusServiceUnavailable:
		return &httputil.ServiceUnavailableError{Message: se.Message}
	default:
		return err
	}
}

func (h *handlers) listLRAs(w http.ResponseWriter, r *http.Request) {
	statusFilter := lra.Status(r.URL.Query().Get("Status"))
	httputil.HandleNoBody(h.logger, func(ctx context.Context) ([]lra.LRA, error) {
		lras, err := h.engine.ListLRAs(statusFilter)
		return lras, toHandlerErr(err)
	})(w, r)
}

func (h *handlers) startLRA(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("ClientID")
	parentID := r.URL.Query().Get("ParentLRA")
	timeLimitMs := httputil.QueryInt64(r, "TimeLimit", 0)

	l, err := h.engine.StartLRA(r.Context(), clientID, time.Duration(timeLimitMs)*time.Millisecond, parentID)
	if err != nil {
		handlerErr := toHandlerErr(err)
		writeErr(w, r, h.logger, handlerErr)
		return
	}

	w.Header().Set("Location", l.ID)
	httputil.WriteText(w, http.StatusCreated, l.ID)
}

func (h *handlers) getInfo(w http.ResponseWriter, r *http.Request) {
	lraID := h.fullID(mux.Vars(r)["lraId"])
	httputil.HandleNoBody(h.logger, func(ctx context.Context) (lra.LRA, error) {
		info, err := h.engine.GetInfo(lraID)
		return info, toHandlerErr(err)
	})(w, r)
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	lraID := h.fullID(mux.Vars(r)["lraId"])
	httputil.HandleNoBodyText(h.logger, func(ctx context.Context) (string, error) {
		status, err := h.engine.GetStatus(lraID)
		if err != nil {
			return "", toHandlerErr(err)
		}
		return string(status), nil
	})(w, r)
}

func (h *handlers) renew(w http.ResponseWriter, r *http.Request) {
	lraID := h.fullID(mux.Vars(r)["lraId"])
	timeLimitMs := httputil.QueryInt64(r, "TimeLimit", 0)
	if err := h.engine.Renew(r.Context(), lraID, time.Duration(timeLimitMs)*time.Millisecond); err != nil {
		writeErr(w, r, h.logger, toHandlerErr(err))
		return
	}
	httputil.WriteText(w, http.StatusOK, lraID)
}

func (h *handlers) join(w http.ResponseWriter, r *http.Request) {
	lraID := h.fullID(mux.Vars(r)["lraId"])
	q := r.URL.Query()
	recoveryURI, err := h.engine.Join(r.Context(), lraID,
		r.Header.Get("Link"),
		q.Get("compensate"), q.Get("complete"), q.Get("status"), q.Get("forget"), q.Get("after"),
	)
	if err != nil {
		writeErr(w, r, h.logger, toHandlerErr(err))
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	httputil.WriteText(w, http.StatusOK, recoveryURI)
}

func (h *handlers) leave(w http.ResponseWriter, r *http.Request) {
	lraID := h.fullID(mux.Vars(r)["lraId"])
	participantUID := r.URL.Query().Get("participant")
	if err := h.engine.Leave(r.Context(), lraID, participantUID); err != nil {
		writeErr(w, r, h.logger, toHandlerErr(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) close(w http.ResponseWriter, r *http.Request) {
	lraID := h.fullID(mux.Vars(r)["lraId"])
	if err := h.engine.Close(r.Context(), lraID); err != nil {
		writeErr(w, r, h.logger, toHandlerErr(err))
		return
	}
	httputil.WriteText(w, http.StatusOK, lraID)
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	lraID := h.fullID(mux.Vars(r)["lraId"])
	if err := h.engine.Cancel(r.Context(), lraID); err != nil {
		writeErr(w, r, h.logger, toHandlerErr(err))
		return
	}
	httputil.WriteText(w, http.StatusOK, lraID)
}

func (h *handlers) recoveryStatus(w http.ResponseWriter, r *http.Request) {
	httputil.HandleNoBody(h.logger, func(ctx context.Context) (map[string]bool, error) {
		return map[string]bool{"inRecovery": h.recovery.InRecovery()}, nil
	})(w, r)
}

func (h *handlers) recoveryReplay(w http.ResponseWriter, r *http.Request) {
	recovered, stillFailed := h.recovery.RecoverOnce(r.Context())
	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"recovered":   recovered,
		"stillFailed": stillFailed,
	})
}

// writeErr adapts a *httputil typed error (or any other error) through the
// package's standard error-response writer without going through a
// HandleJSON/HandleNoBody wrapper, for handlers that build their response
// body themselves on the success path.
func writeErr(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	httputil.HandleNoBody(logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, err
	})(w, r)
}
