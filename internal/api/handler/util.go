package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gigpay/taskpay/internal/api/middleware"
	"github.com/gigpay/taskpay/internal/api/problem"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestWorker(r *http.Request) (uuid.UUID, error) {
	workerID := middleware.WorkerIDFromContext(r.Context())
	if workerID == "" {
		return uuid.Nil, errors.New("missing worker in auth context")
	}
	return uuid.Parse(workerID)
}

func parsePage(r *http.Request) (limit, offset int32, err error) {
	limit, offset = 50, 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, perr := strconv.Atoi(v)
		if perr != nil || parsed <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = int32(parsed)
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, perr := strconv.Atoi(v)
		if perr != nil || parsed < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = int32(parsed)
	}
	return limit, offset, nil
}

// respondTaskError maps the settlement error taxonomy onto HTTP statuses.
// Unmapped errors fall through to the caller, which logs and answers 500.
func respondTaskError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, models.ErrInsufficientBalance):
		RespondError(w, r, http.StatusBadRequest, "balance/insufficient", "available balance is insufficient")
	case errors.Is(err, models.ErrAlreadyHasActiveTask):
		RespondError(w, r, http.StatusConflict, "task/already-active", "worker already has an active task")
	case errors.Is(err, models.ErrNotFoundOrWrongState):
		RespondError(w, r, http.StatusNotFound, "task/not-found", "order not found or not in a claimable state")
	case errors.Is(err, models.ErrExpired):
		RespondError(w, r, http.StatusConflict, "task/expired", "order has expired")
	case errors.Is(err, models.ErrProofMissing):
		RespondError(w, r, http.StatusBadRequest, "task/proof-missing", "proof of payment is required")
	case errors.Is(err, models.ErrFeatureDisabled):
		RespondError(w, r, http.StatusServiceUnavailable, "task/payin-disabled", "payin is currently disabled")
	case errors.Is(err, models.ErrAccountUnusable):
		RespondError(w, r, http.StatusBadRequest, "account/unusable", "payment account is missing, inactive or not payin-enabled")
	case errors.Is(err, models.ErrGatewayUnavailable):
		RespondError(w, r, http.StatusBadGateway, "gateway/unavailable", "payment gateway is unavailable")
	default:
		return false
	}
	return true
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
