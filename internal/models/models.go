package models

import (
	"time"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/google/uuid"
)

// Worker is a gig worker's balance pair. Both components are non-negative at
// every observable point; mutations go through the ledger service only.
type Worker struct {
	ID             uuid.UUID    `json:"id"`
	AvailableCents domain.Cents `json:"available_cents"`
	FrozenCents    domain.Cents `json:"frozen_cents"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// LedgerRecord is one append-only balance mutation. Amount is signed:
// freezes are negative, unfreezes and credits positive, so that the running
// sum of amounts reproduces the available balance exactly.
type LedgerRecord struct {
	ID                int64        `json:"id"`
	WorkerID          uuid.UUID    `json:"worker_id"`
	Kind              string       `json:"kind"`
	AmountCents       domain.Cents `json:"amount_cents"`
	BalanceAfterCents domain.Cents `json:"balance_after_cents"`
	RelatedOrderRef   string       `json:"related_order_ref"`
	Description       string       `json:"description"`
	CreatedAt         time.Time    `json:"created_at"`
}

// PayoutOrder is a disbursement task posted to the shared pool. The worker
// pays out of pocket and is rewarded the commission on completion; claiming
// has no balance effect.
type PayoutOrder struct {
	ID              uuid.UUID    `json:"id"`
	OrderNo         string       `json:"order_no"`
	AmountCents     domain.Cents `json:"amount_cents"`
	CommissionCents domain.Cents `json:"commission_cents"`
	Status          string       `json:"status"`
	ClaimantID      *uuid.UUID   `json:"claimant_id,omitempty"`
	ProofURL        *string      `json:"proof_url,omitempty"`
	ExpiresAt       time.Time    `json:"expires_at"`
	ClaimedAt       *time.Time   `json:"claimed_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// PayinAllocation is a collection task pre-assigned to a specific worker.
// Claiming freezes the task amount against the worker's balance; confirming
// unfreezes it and credits the commission.
type PayinAllocation struct {
	ID                  uuid.UUID    `json:"id"`
	OrderNo             string       `json:"order_no"`
	AmountCents         domain.Cents `json:"amount_cents"`
	CommissionCents     domain.Cents `json:"commission_cents"`
	Status              string       `json:"status"`
	ClaimantID          *uuid.UUID   `json:"claimant_id,omitempty"`
	CollectionAccountID *uuid.UUID   `json:"collection_account_id,omitempty"`
	ProofURL            *string      `json:"proof_url,omitempty"`
	ExpiresAt           time.Time    `json:"expires_at"`
	ClaimedAt           *time.Time   `json:"claimed_at,omitempty"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// PayinOrder is a gateway-backed collection order. Its settlement is driven
// by the gateway's asynchronous notify, with confirm-receipt as a manual
// fallback racing the webhook idempotently.
type PayinOrder struct {
	ID               uuid.UUID    `json:"id"`
	WorkerID         uuid.UUID    `json:"worker_id"`
	AccountID        uuid.UUID    `json:"account_id"`
	OrderNo          string       `json:"order_no"`
	AmountCents      domain.Cents `json:"amount_cents"`
	CommissionCents  domain.Cents `json:"commission_cents"`
	Status           string       `json:"status"`
	WayCode          string       `json:"way_code"`
	Currency         string       `json:"currency"`
	ExternalOrderID  *string      `json:"external_order_id,omitempty"`
	PayData          *string      `json:"pay_data,omitempty"`
	TransferProofURL *string      `json:"transfer_proof_url,omitempty"`
	ExpiresAt        time.Time    `json:"expires_at"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// PaymentAccount is a worker-owned collection destination. Details carries
// the kind-specific payload validated at construction (see AccountDetails).
type PaymentAccount struct {
	ID           uuid.UUID `json:"id"`
	WorkerID     uuid.UUID `json:"worker_id"`
	Kind         string    `json:"kind"`
	Details      []byte    `json:"-"`
	IsActive     bool      `json:"is_active"`
	PayinEnabled bool      `json:"payin_enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReconcileResult compares the stored available balance against a replay of
// all ledger records. Audit only, never used for mutation.
type ReconcileResult struct {
	WorkerID          uuid.UUID    `json:"worker_id"`
	CalculatedBalance domain.Cents `json:"calculated_balance_cents"`
	RecordedBalance   domain.Cents `json:"recorded_balance_cents"`
	Drift             domain.Cents `json:"drift_cents"`
	RecordCount       int          `json:"record_count"`
}

// Consistent reports whether replaying the ledger reproduces the stored
// balance exactly.
func (r ReconcileResult) Consistent() bool {
	return r.Drift == 0
}
