package domain

// Ledger record kinds.
const (
	RecordKindTaskReward = "task_reward"
	RecordKindCommission = "commission"
	RecordKindWithdrawal = "withdrawal"
	RecordKindDeposit    = "deposit"
	RecordKindFreeze     = "freeze"
	RecordKindUnfreeze   = "unfreeze"
)

// Task statuses shared by payout orders and payin allocations.
const (
	TaskStatusPending   = "pending"
	TaskStatusClaimed   = "claimed"
	TaskStatusCompleted = "completed"
	TaskStatusExpired   = "expired"
	TaskStatusCancelled = "cancelled"
)

// Gateway-backed payin order statuses.
const (
	PayinStatusCreated = "created"
	PayinStatusPaying  = "paying"
	PayinStatusSuccess = "success"
	PayinStatusFailed  = "failed"
	PayinStatusClosed  = "closed"
)

// Remote order states reported by the gateway, both in the unified-order
// response and in notify callbacks.
const (
	GatewayStateCreated  = 0
	GatewayStatePaying   = 1
	GatewayStateSuccess  = 2
	GatewayStateFailed   = 3
	GatewayStateRevoked  = 4
	GatewayStateRefunded = 5
	GatewayStateClosed   = 6
)

// Payment account kinds (closed set, see models.AccountDetails).
const (
	AccountKindQRCode        = "qr_code"
	AccountKindBankCard      = "bank_card"
	AccountKindLinkedAccount = "linked_account"
	AccountKindGatewayMethod = "gateway_method"
)

// SettingPayinEnabled is the system-settings key gating the payin flows.
const SettingPayinEnabled = "payin.enabled"

// IsTerminalPayinStatus reports whether a payin order status can no longer
// change. Settlement must never be re-applied past one of these.
func IsTerminalPayinStatus(status string) bool {
	switch status {
	case PayinStatusSuccess, PayinStatusFailed, PayinStatusClosed:
		return true
	}
	return false
}

// IsTerminalTaskStatus reports whether a payout order or payin allocation has
// reached the end of its lifecycle.
func IsTerminalTaskStatus(status string) bool {
	switch status {
	case TaskStatusCompleted, TaskStatusExpired, TaskStatusCancelled:
		return true
	}
	return false
}
