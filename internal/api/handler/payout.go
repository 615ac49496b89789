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

// PayoutHandler handles HTTP requests for disbursement tasks.
type PayoutHandler struct {
	payoutSvc *service.PayoutService
}

// NewPayoutHandler creates a new PayoutHandler instance.
func NewPayoutHandler(payoutSvc *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc}
}

// ListAvailable handles GET /v1/payout-orders
// It returns claimable orders, oldest first.
func (h *PayoutHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-page", err.Error())
		return
	}

	orders, err := h.payoutSvc.Available(r.Context(), limit, offset)
	if err != nil {
		zap.L().Error("list payout orders failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payout/list-failed", "Failed to list payout orders")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  orders,
		"limit":  limit,
		"offset": offset,
		"count":  len(orders),
	})
}

// ListClaimed handles GET /v1/payout-orders/claimed
func (h *PayoutHandler) ListClaimed(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	orders, err := h.payoutSvc.Claimed(r.Context(), workerID)
	if err != nil {
		zap.L().Error("list claimed payout orders failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payout/list-failed", "Failed to list claimed orders")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": orders, "count": len(orders)})
}

// Claim handles POST /v1/payout-orders/{id}/claim
func (h *PayoutHandler) Claim(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	order, err := h.payoutSvc.Claim(r.Context(), orderID, workerID)
	if err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("claim payout order failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "payout/claim-failed", "Failed to claim order")
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

type uploadProofRequest struct {
	ProofURL string `json:"proof_url"`
}

// UploadProof handles PUT /v1/payout-orders/{id}/proof
func (h *PayoutHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
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

	if err := h.payoutSvc.UploadProof(r.Context(), orderID, workerID, req.ProofURL); err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("upload payout proof failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "payout/proof-failed", "Failed to upload proof")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "proof_uploaded"})
}

// Complete handles POST /v1/payout-orders/{id}/complete
func (h *PayoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	result, err := h.payoutSvc.Complete(r.Context(), orderID, workerID)
	if err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("complete payout order failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "payout/complete-failed", "Failed to complete order")
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
