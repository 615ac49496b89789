package handler

import (
	"net/http"

	"github.com/gigpay/taskpay/internal/service"
	"go.uber.org/zap"
)

// BalanceHandler exposes the worker's balance pair and ledger trail.
type BalanceHandler struct {
	ledgerSvc *service.LedgerService
	store     service.Store
}

// NewBalanceHandler creates a new BalanceHandler instance.
func NewBalanceHandler(ledgerSvc *service.LedgerService, store service.Store) *BalanceHandler {
	return &BalanceHandler{ledgerSvc: ledgerSvc, store: store}
}

// GetBalance handles GET /v1/balance
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	worker, err := h.store.Queries().GetWorker(r.Context(), workerID)
	if err != nil {
		zap.L().Error("get worker balance failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "balance/read-failed", "Failed to read balance")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"worker_id":       worker.ID,
		"available_cents": worker.AvailableCents,
		"frozen_cents":    worker.FrozenCents,
	})
}

// GetRecords handles GET /v1/balance/records
func (h *BalanceHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-page", err.Error())
		return
	}

	records, err := h.ledgerSvc.Records(r.Context(), workerID, limit, offset)
	if err != nil {
		zap.L().Error("list ledger records failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "balance/records-failed", "Failed to list records")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  records,
		"limit":  limit,
		"offset": offset,
		"count":  len(records),
	})
}

// Reconcile handles GET /v1/balance/reconcile
// It replays the ledger and reports any drift against the stored balance.
func (h *BalanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	result, err := h.ledgerSvc.Reconcile(r.Context(), workerID)
	if err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("reconcile failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "balance/reconcile-failed", "Failed to reconcile")
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
