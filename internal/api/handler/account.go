package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gigpay/taskpay/internal/models"
	"github.com/gigpay/taskpay/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountHandler manages the worker's payment accounts.
type AccountHandler struct {
	repo *repository.Queries
}

// NewAccountHandler creates a new AccountHandler instance.
func NewAccountHandler(repo *repository.Queries) *AccountHandler {
	return &AccountHandler{repo: repo}
}

type createAccountRequest struct {
	Kind         string          `json:"kind"`
	Details      json.RawMessage `json:"details"`
	PayinEnabled bool            `json:"payin_enabled"`
}

// Create handles POST /v1/accounts
// Details are validated against the account kind's schema before storage.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	req.Kind = strings.TrimSpace(req.Kind)
	if req.Kind == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-kind", "kind is required")
		return
	}

	details, err := models.DecodeAccountDetails(req.Kind, req.Details)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-details", err.Error())
		return
	}
	encoded, err := models.EncodeAccountDetails(details)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-details", err.Error())
		return
	}

	account := models.PaymentAccount{
		ID:           uuid.New(),
		WorkerID:     workerID,
		Kind:         req.Kind,
		Details:      encoded,
		IsActive:     true,
		PayinEnabled: req.PayinEnabled,
	}
	if err := h.repo.CreatePaymentAccount(r.Context(), account); err != nil {
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("create payment account failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "account/create-failed", "Failed to create account")
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

// Get handles GET /v1/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return
	}

	account, err := h.repo.GetPaymentAccount(r.Context(), accountID)
	if err != nil || account.WorkerID != workerID {
		RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
		return
	}
	details, err := account.DecodedDetails()
	if err != nil {
		zap.L().Error("decode account details failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/read-failed", "Failed to read account")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"id":            account.ID,
		"kind":          account.Kind,
		"details":       details,
		"is_active":     account.IsActive,
		"payin_enabled": account.PayinEnabled,
		"created_at":    account.CreatedAt,
	})
}
