package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"vault-operator/internal/workflow"
	"vault-operator/pkg/types"
)

// workflowTimeout bounds one lock or close invocation, including the wait
// for the contract transaction to mine.
const workflowTimeout = 3 * time.Minute

// LockRunner runs one pool lock attempt.
type LockRunner interface {
	Lock(ctx context.Context, paymentHeader string) (*workflow.LockResult, error)
}

// CloseRunner runs one position close attempt.
type CloseRunner interface {
	Close(ctx context.Context) (*workflow.CloseResult, error)
}

// ActivityReader serves the audit trail and the latest stored decision.
type ActivityReader interface {
	List(ctx context.Context, limit int) ([]types.ActivityRecord, error)
	AIStatus(ctx context.Context) (types.AIDecision, time.Time, error)
}

// PoolReader reads the vault's capital split for the status endpoint.
type PoolReader interface {
	Snapshot(ctx context.Context) (*types.PoolSnapshot, error)
}

// Handlers holds the HTTP handlers for the operator API.
type Handlers struct {
	lock     LockRunner
	closer   CloseRunner
	activity ActivityReader
	pool     PoolReader
	logger   *slog.Logger
}

// NewHandlers wires the API handlers.
func NewHandlers(lock LockRunner, closer CloseRunner, activity ActivityReader, pool PoolReader, logger *slog.Logger) *Handlers {
	return &Handlers{
		lock:     lock,
		closer:   closer,
		activity: activity,
		pool:     pool,
		logger:   logger.With("component", "api"),
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HandleLock triggers one lock attempt. No X-Payment header → 402 with the
// payment requirements; rejected payment → 400; hard failure → 500.
func (h *Handlers) HandleLock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), workflowTimeout)
	defer cancel()

	result, err := h.lock.Lock(ctx, r.Header.Get("X-Payment"))
	if err != nil {
		if types.IsValidation(err) {
			h.logger.Info("lock rejected", "reason", err)
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("lock failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: types.Humanize(err)})
		return
	}

	if result.PaymentRequired {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"paymentRequirements": result.Requirements,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleClose triggers one close attempt.
func (h *Handlers) HandleClose(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), workflowTimeout)
	defer cancel()

	result, err := h.closer.Close(ctx)
	if err != nil {
		h.logger.Error("close failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: types.Humanize(err)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleActivity returns recent activity entries, newest first.
func (h *Handlers) HandleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be 1-500"})
			return
		}
		limit = n
	}

	records, err := h.activity.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("activity query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: types.Humanize(err)})
		return
	}
	if records == nil {
		records = []types.ActivityRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": records})
}

// HandleStatus returns the latest stored decision plus a best-effort pool
// snapshot. A failed snapshot read degrades to a decision-only body.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	decision, updatedAt, err := h.activity.AIStatus(r.Context())
	if err != nil {
		h.logger.Error("status query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: types.Humanize(err)})
		return
	}

	body := map[string]any{"aiStatus": decision}
	if !updatedAt.IsZero() {
		body["updatedAt"] = updatedAt.UTC().Format(time.RFC3339)
	}

	if snap, err := h.pool.Snapshot(r.Context()); err != nil {
		h.logger.Warn("pool snapshot unavailable for status", "error", err)
	} else {
		body["pool"] = map[string]string{
			"totalAvailable":  snap.TotalAvailable.String(),
			"totalInPosition": snap.TotalInPosition.String(),
			"total":           snap.Total().String(),
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
