package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gigpay/taskpay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllocationHandler handles HTTP requests for manual collection tasks.
type AllocationHandler struct {
	allocSvc *service.AllocationService
}

// NewAllocationHandler creates a new AllocationHandler instance.
func NewAllocationHandler(allocSvc *service.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocSvc: allocSvc}
}

// List handles GET /v1/allocations
func (h *AllocationHandler) List(w http.ResponseWriter, r *http.Request) {
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

	allocs, err := h.allocSvc.Assigned(r.Context(), workerID, limit, offset)
	if err != nil {
		zap.L().Error("list allocations failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "allocation/list-failed", "Failed to list allocations")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  allocs,
		"limit":  limit,
		"offset": offset,
		"count":  len(allocs),
	})
}

type claimAllocationRequest struct {
	AccountID string `json:"account_id"`
}

// Claim handles POST /v1/allocations/{id}/claim
// Claiming freezes the task amount against the worker's balance.
func (h *AllocationHandler) Claim(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	allocID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-allocation-id", "Invalid allocation ID")
		return
	}

	var req claimAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	accountID, err := uuid.Parse(strings.TrimSpace(req.AccountID))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account_id")
		return
	}

	alloc, err := h.allocSvc.Claim(r.Context(), allocID, workerID, accountID)
	if err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("claim allocation failed", zap.Error(err), zap.String("allocation_id", allocID.String()))
		RespondError(w, r, http.StatusInternalServerError, "allocation/claim-failed", "Failed to claim allocation")
		return
	}
	RespondJSON(w, http.StatusOK, alloc)
}

// UploadProof handles PUT /v1/allocations/{id}/proof
func (h *AllocationHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	allocID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-allocation-id", "Invalid allocation ID")
		return
	}

	var req uploadProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	req.ProofURL = strings.TrimSpace(req.ProofURL)
	if req.ProofURL == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-proof-url", "proof_url is required")
		return
	}

	if err := h.allocSvc.UploadProof(r.Context(), allocID, workerID, req.ProofURL); err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("upload allocation proof failed", zap.Error(err), zap.String("allocation_id", allocID.String()))
		RespondError(w, r, http.StatusInternalServerError, "allocation/proof-failed", "Failed to upload proof")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "proof_uploaded"})
}

// Confirm handles POST /v1/allocations/{id}/confirm
// It settles the task: unfreezes the collateral and credits the commission.
func (h *AllocationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	allocID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-allocation-id", "Invalid allocation ID")
		return
	}

	result, err := h.allocSvc.Confirm(r.Context(), allocID, workerID)
	if err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("confirm allocation failed", zap.Error(err), zap.String("allocation_id", allocID.String()))
		RespondError(w, r, http.StatusInternalServerError, "allocation/confirm-failed", "Failed to confirm allocation")
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
