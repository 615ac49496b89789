package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayinOrderHandler handles HTTP requests for gateway-backed collection
// orders, including the gateway's notify webhook.
type PayinOrderHandler struct {
	orderSvc *service.PayinOrderService
}

// NewPayinOrderHandler creates a new PayinOrderHandler instance.
func NewPayinOrderHandler(orderSvc *service.PayinOrderService) *PayinOrderHandler {
	return &PayinOrderHandler{orderSvc: orderSvc}
}

type createPayinOrderRequest struct {
	AccountIDs  []string `json:"account_ids"`
	AmountCents int64    `json:"amount_cents"`
}

// Create handles POST /v1/payin-orders
func (h *PayinOrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req createPayinOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.AmountCents <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "Amount must be greater than zero")
		return
	}
	if len(req.AccountIDs) == 0 {
		RespondError(w, r, http.StatusBadRequest, "request/missing-account-ids", "At least one account_id is required")
		return
	}
	accountIDs := make([]uuid.UUID, 0, len(req.AccountIDs))
	for _, raw := range req.AccountIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account_ids entry")
			return
		}
		accountIDs = append(accountIDs, id)
	}

	order, err := h.orderSvc.CreateOrder(r.Context(), workerID, accountIDs, domain.Cents(req.AmountCents), clientIP(r))
	if err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("create payin order failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payin/create-failed", "Failed to create order")
		return
	}
	RespondJSON(w, http.StatusCreated, order)
}

// Active handles GET /v1/payin-orders/active
func (h *PayinOrderHandler) Active(w http.ResponseWriter, r *http.Request) {
	workerID, err := requestWorker(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	order, err := h.orderSvc.Active(r.Context(), workerID)
	if err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("get active payin order failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payin/read-failed", "Failed to read active order")
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

// ConfirmReceipt handles POST /v1/payin-orders/{id}/confirm
// The worker attests the payer's money arrived, racing the gateway webhook.
func (h *PayinOrderHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.orderSvc.ConfirmReceipt(r.Context(), orderID, workerID, req.ProofURL)
	if err != nil {
		if respondTaskError(w, r, err) {
			return
		}
		zap.L().Error("confirm payin order failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "payin/confirm-failed", "Failed to confirm order")
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

// Notify handles POST /v1/payin-orders/notify
// It answers the gateway's literal ack protocol: the plain-text body
// "success" stops redelivery, anything else schedules a retry.
func (h *PayinOrderHandler) Notify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeNotifyAck(w, service.NotifyAckFail)
		return
	}

	// The gateway keys on the response body, not the status code, so the
	// ack is always written with 200.
	ack, err := h.orderSvc.HandleNotify(r.Context(), r.Form)
	if err != nil {
		zap.L().Warn("payin notify failed",
			zap.String("order_no", r.Form.Get("mchOrderNo")),
			zap.Error(err),
		)
	}
	writeNotifyAck(w, ack)
}

func writeNotifyAck(w http.ResponseWriter, ack string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ack))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
