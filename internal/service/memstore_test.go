package service

import (
	"context"
	"sync"
	"time"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memStore is an in-memory Store used by the service tests. Transactions
// snapshot the whole state and restore it when fn fails, which mirrors the
// all-or-nothing behavior the services rely on.
type memStore struct {
	mu       sync.Mutex
	workers  map[uuid.UUID]models.Worker
	ledger   []models.LedgerRecord
	payouts  map[uuid.UUID]models.PayoutOrder
	allocs   map[uuid.UUID]models.PayinAllocation
	orders   map[uuid.UUID]models.PayinOrder
	accounts map[uuid.UUID]models.PaymentAccount
	settings map[string]bool
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		workers:  make(map[uuid.UUID]models.Worker),
		payouts:  make(map[uuid.UUID]models.PayoutOrder),
		allocs:   make(map[uuid.UUID]models.PayinAllocation),
		orders:   make(map[uuid.UUID]models.PayinOrder),
		accounts: make(map[uuid.UUID]models.PaymentAccount),
		settings: map[string]bool{domain.SettingPayinEnabled: true},
	}
}

func (m *memStore) Queries() Queries { return m }

func (m *memStore) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	workers  map[uuid.UUID]models.Worker
	ledger   []models.LedgerRecord
	payouts  map[uuid.UUID]models.PayoutOrder
	allocs   map[uuid.UUID]models.PayinAllocation
	orders   map[uuid.UUID]models.PayinOrder
	nextID   int64
}

func (m *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		workers: make(map[uuid.UUID]models.Worker, len(m.workers)),
		ledger:  append([]models.LedgerRecord(nil), m.ledger...),
		payouts: make(map[uuid.UUID]models.PayoutOrder, len(m.payouts)),
		allocs:  make(map[uuid.UUID]models.PayinAllocation, len(m.allocs)),
		orders:  make(map[uuid.UUID]models.PayinOrder, len(m.orders)),
		nextID:  m.nextID,
	}
	for k, v := range m.workers {
		snap.workers[k] = v
	}
	for k, v := range m.payouts {
		snap.payouts[k] = v
	}
	for k, v := range m.allocs {
		snap.allocs[k] = v
	}
	for k, v := range m.orders {
		snap.orders[k] = v
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.workers = snap.workers
	m.ledger = snap.ledger
	m.payouts = snap.payouts
	m.allocs = snap.allocs
	m.orders = snap.orders
	m.nextID = snap.nextID
}

func (m *memStore) addWorker(balance domain.Cents) uuid.UUID {
	id := uuid.New()
	m.workers[id] = models.Worker{ID: id, AvailableCents: balance}
	if balance > 0 {
		// Opening balance enters through the ledger like any other move, so
		// reconciliation replays cleanly.
		m.nextID++
		m.ledger = append(m.ledger, models.LedgerRecord{
			ID: m.nextID, WorkerID: id, Kind: domain.RecordKindDeposit,
			AmountCents: balance, BalanceAfterCents: balance,
			Description: "opening deposit", CreatedAt: time.Now(),
		})
	}
	return id
}

func (m *memStore) addAccount(workerID uuid.UUID, kind string, details []byte, payinEnabled bool) uuid.UUID {
	id := uuid.New()
	m.accounts[id] = models.PaymentAccount{
		ID: id, WorkerID: workerID, Kind: kind, Details: details,
		IsActive: true, PayinEnabled: payinEnabled,
	}
	return id
}

func (m *memStore) addPayout(amount, commission domain.Cents, expiresAt time.Time) uuid.UUID {
	id := uuid.New()
	m.payouts[id] = models.PayoutOrder{
		ID: id, OrderNo: domain.NewOrderNo("PAYOUT"), AmountCents: amount,
		CommissionCents: commission, Status: domain.TaskStatusPending, ExpiresAt: expiresAt,
	}
	return id
}

func (m *memStore) addAllocation(amount, commission domain.Cents, expiresAt time.Time) uuid.UUID {
	id := uuid.New()
	m.allocs[id] = models.PayinAllocation{
		ID: id, OrderNo: domain.NewOrderNo("ALLOC"), AmountCents: amount,
		CommissionCents: commission, Status: domain.TaskStatusPending, ExpiresAt: expiresAt,
	}
	return id
}

// WorkerQueries

func (m *memStore) GetWorker(ctx context.Context, id uuid.UUID) (models.Worker, error) {
	w, ok := m.workers[id]
	if !ok {
		return models.Worker{}, pgx.ErrNoRows
	}
	return w, nil
}

func (m *memStore) GetWorkerForUpdate(ctx context.Context, id uuid.UUID) (models.Worker, error) {
	return m.GetWorker(ctx, id)
}

func (m *memStore) FreezeWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error) {
	w, ok := m.workers[id]
	if !ok || w.AvailableCents < amount {
		return models.Worker{}, pgx.ErrNoRows
	}
	w.AvailableCents -= amount
	w.FrozenCents += amount
	m.workers[id] = w
	return w, nil
}

func (m *memStore) UnfreezeWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error) {
	w, ok := m.workers[id]
	if !ok || w.FrozenCents < amount {
		return models.Worker{}, pgx.ErrNoRows
	}
	w.FrozenCents -= amount
	w.AvailableCents += amount
	m.workers[id] = w
	return w, nil
}

func (m *memStore) CreditWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error) {
	w, ok := m.workers[id]
	if !ok {
		return models.Worker{}, pgx.ErrNoRows
	}
	w.AvailableCents += amount
	m.workers[id] = w
	return w, nil
}

// LedgerQueries

func (m *memStore) InsertLedgerRecord(ctx context.Context, rec models.LedgerRecord) error {
	m.nextID++
	rec.ID = m.nextID
	rec.CreatedAt = time.Now()
	m.ledger = append(m.ledger, rec)
	return nil
}

func (m *memStore) ListLedgerRecords(ctx context.Context, workerID uuid.UUID, limit, offset int32) ([]models.LedgerRecord, error) {
	var out []models.LedgerRecord
	for i := len(m.ledger) - 1; i >= 0; i-- {
		if m.ledger[i].WorkerID == workerID {
			out = append(out, m.ledger[i])
		}
	}
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SumLedgerAmounts(ctx context.Context, workerID uuid.UUID) (domain.Cents, int, error) {
	var sum domain.Cents
	count := 0
	for _, rec := range m.ledger {
		if rec.WorkerID == workerID {
			sum += rec.AmountCents
			count++
		}
	}
	return sum, count, nil
}

// PayoutQueries

func (m *memStore) GetPayoutOrder(ctx context.Context, id uuid.UUID) (models.PayoutOrder, error) {
	o, ok := m.payouts[id]
	if !ok {
		return models.PayoutOrder{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) GetPayoutOrderForUpdate(ctx context.Context, id uuid.UUID) (models.PayoutOrder, error) {
	return m.GetPayoutOrder(ctx, id)
}

func (m *memStore) HasActivePayoutClaim(ctx context.Context, workerID uuid.UUID) (bool, error) {
	for _, o := range m.payouts {
		if o.Status == domain.TaskStatusClaimed && o.ClaimantID != nil && *o.ClaimantID == workerID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ClaimPayoutOrder(ctx context.Context, orderID, workerID uuid.UUID, now time.Time) (int64, error) {
	o, ok := m.payouts[orderID]
	if !ok || o.Status != domain.TaskStatusPending || !o.ExpiresAt.After(now) {
		return 0, nil
	}
	o.Status = domain.TaskStatusClaimed
	o.ClaimantID = &workerID
	o.ClaimedAt = &now
	m.payouts[orderID] = o
	return 1, nil
}

func (m *memStore) SetPayoutOrderProof(ctx context.Context, orderID, workerID uuid.UUID, proofURL string) (int64, error) {
	o, ok := m.payouts[orderID]
	if !ok || o.Status != domain.TaskStatusClaimed || o.ClaimantID == nil || *o.ClaimantID != workerID {
		return 0, nil
	}
	o.ProofURL = &proofURL
	m.payouts[orderID] = o
	return 1, nil
}

func (m *memStore) CompletePayoutOrder(ctx context.Context, orderID, workerID uuid.UUID, now time.Time) (int64, error) {
	o, ok := m.payouts[orderID]
	if !ok || o.Status != domain.TaskStatusClaimed || o.ClaimantID == nil || *o.ClaimantID != workerID || o.ProofURL == nil {
		return 0, nil
	}
	o.Status = domain.TaskStatusCompleted
	o.CompletedAt = &now
	m.payouts[orderID] = o
	return 1, nil
}

func (m *memStore) MarkPayoutOrderExpired(ctx context.Context, orderID uuid.UUID) (int64, error) {
	o, ok := m.payouts[orderID]
	if !ok || domain.IsTerminalTaskStatus(o.Status) {
		return 0, nil
	}
	o.Status = domain.TaskStatusExpired
	m.payouts[orderID] = o
	return 1, nil
}

func (m *memStore) ListAvailablePayoutOrders(ctx context.Context, now time.Time, limit, offset int32) ([]models.PayoutOrder, error) {
	var out []models.PayoutOrder
	for _, o := range m.payouts {
		if o.Status == domain.TaskStatusPending && o.ExpiresAt.After(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListClaimedPayoutOrders(ctx context.Context, workerID uuid.UUID) ([]models.PayoutOrder, error) {
	var out []models.PayoutOrder
	for _, o := range m.payouts {
		if o.Status == domain.TaskStatusClaimed && o.ClaimantID != nil && *o.ClaimantID == workerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListExpiredPayoutOrders(ctx context.Context, now time.Time, limit int32) ([]models.PayoutOrder, error) {
	var out []models.PayoutOrder
	for _, o := range m.payouts {
		if !domain.IsTerminalTaskStatus(o.Status) && !o.ExpiresAt.After(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

// AllocationQueries

func (m *memStore) GetPayinAllocation(ctx context.Context, id uuid.UUID) (models.PayinAllocation, error) {
	a, ok := m.allocs[id]
	if !ok {
		return models.PayinAllocation{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *memStore) GetPayinAllocationForUpdate(ctx context.Context, id uuid.UUID) (models.PayinAllocation, error) {
	return m.GetPayinAllocation(ctx, id)
}

func (m *memStore) HasActiveAllocationClaim(ctx context.Context, workerID uuid.UUID) (bool, error) {
	for _, a := range m.allocs {
		if a.Status == domain.TaskStatusClaimed && a.ClaimantID != nil && *a.ClaimantID == workerID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ClaimPayinAllocation(ctx context.Context, allocID, workerID, accountID uuid.UUID, now time.Time) (int64, error) {
	a, ok := m.allocs[allocID]
	if !ok || a.Status != domain.TaskStatusPending || !a.ExpiresAt.After(now) {
		return 0, nil
	}
	a.Status = domain.TaskStatusClaimed
	a.ClaimantID = &workerID
	a.CollectionAccountID = &accountID
	a.ClaimedAt = &now
	m.allocs[allocID] = a
	return 1, nil
}

func (m *memStore) SetPayinAllocationProof(ctx context.Context, allocID, workerID uuid.UUID, proofURL string) (int64, error) {
	a, ok := m.allocs[allocID]
	if !ok || a.Status != domain.TaskStatusClaimed || a.ClaimantID == nil || *a.ClaimantID != workerID {
		return 0, nil
	}
	a.ProofURL = &proofURL
	m.allocs[allocID] = a
	return 1, nil
}

func (m *memStore) CompletePayinAllocation(ctx context.Context, allocID, workerID uuid.UUID, now time.Time) (int64, error) {
	a, ok := m.allocs[allocID]
	if !ok || a.Status != domain.TaskStatusClaimed || a.ClaimantID == nil || *a.ClaimantID != workerID || a.ProofURL == nil {
		return 0, nil
	}
	a.Status = domain.TaskStatusCompleted
	a.CompletedAt = &now
	m.allocs[allocID] = a
	return 1, nil
}

func (m *memStore) MarkPayinAllocationExpired(ctx context.Context, allocID uuid.UUID) (int64, error) {
	a, ok := m.allocs[allocID]
	if !ok || domain.IsTerminalTaskStatus(a.Status) {
		return 0, nil
	}
	a.Status = domain.TaskStatusExpired
	m.allocs[allocID] = a
	return 1, nil
}

func (m *memStore) ListAssignedAllocations(ctx context.Context, workerID uuid.UUID, limit, offset int32) ([]models.PayinAllocation, error) {
	var out []models.PayinAllocation
	for _, a := range m.allocs {
		if a.ClaimantID != nil && *a.ClaimantID == workerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListExpiredAllocations(ctx context.Context, now time.Time, limit int32) ([]models.PayinAllocation, error) {
	var out []models.PayinAllocation
	for _, a := range m.allocs {
		if !domain.IsTerminalTaskStatus(a.Status) && !a.ExpiresAt.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// PayinOrderQueries

func (m *memStore) InsertPayinOrder(ctx context.Context, order models.PayinOrder) error {
	m.orders[order.ID] = order
	return nil
}

func (m *memStore) GetPayinOrder(ctx context.Context, id uuid.UUID) (models.PayinOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return models.PayinOrder{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) GetPayinOrderForUpdate(ctx context.Context, id uuid.UUID) (models.PayinOrder, error) {
	return m.GetPayinOrder(ctx, id)
}

func (m *memStore) GetPayinOrderByNoForUpdate(ctx context.Context, orderNo string) (models.PayinOrder, error) {
	for _, o := range m.orders {
		if o.OrderNo == orderNo {
			return o, nil
		}
	}
	return models.PayinOrder{}, pgx.ErrNoRows
}

func (m *memStore) GetActivePayinOrder(ctx context.Context, workerID uuid.UUID) (models.PayinOrder, error) {
	for _, o := range m.orders {
		if o.WorkerID == workerID && !domain.IsTerminalPayinStatus(o.Status) {
			return o, nil
		}
	}
	return models.PayinOrder{}, pgx.ErrNoRows
}

func (m *memStore) SetPayinOrderGatewayResult(ctx context.Context, id uuid.UUID, externalOrderID, payData, status string) (int64, error) {
	o, ok := m.orders[id]
	if !ok || domain.IsTerminalPayinStatus(o.Status) {
		return 0, nil
	}
	o.ExternalOrderID = &externalOrderID
	if payData != "" {
		o.PayData = &payData
	}
	o.Status = status
	m.orders[id] = o
	return 1, nil
}

func (m *memStore) SetPayinOrderStatus(ctx context.Context, id uuid.UUID, status string, proofURL *string) (int64, error) {
	o, ok := m.orders[id]
	if !ok || domain.IsTerminalPayinStatus(o.Status) {
		return 0, nil
	}
	o.Status = status
	if proofURL != nil {
		o.TransferProofURL = proofURL
	}
	m.orders[id] = o
	return 1, nil
}

func (m *memStore) ListExpiredPayinOrders(ctx context.Context, now time.Time, limit int32) ([]models.PayinOrder, error) {
	var out []models.PayinOrder
	for _, o := range m.orders {
		if !domain.IsTerminalPayinStatus(o.Status) && !o.ExpiresAt.After(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

// AccountQueries

func (m *memStore) GetPaymentAccount(ctx context.Context, id uuid.UUID) (models.PaymentAccount, error) {
	a, ok := m.accounts[id]
	if !ok {
		return models.PaymentAccount{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *memStore) GetActivePayinAccounts(ctx context.Context, workerID uuid.UUID, ids []uuid.UUID) ([]models.PaymentAccount, error) {
	var out []models.PaymentAccount
	for _, id := range ids {
		a, ok := m.accounts[id]
		if ok && a.WorkerID == workerID && a.IsActive && a.PayinEnabled {
			out = append(out, a)
		}
	}
	return out, nil
}

// SettingsQueries

func (m *memStore) GetSettingBool(ctx context.Context, key string) (bool, error) {
	return m.settings[key], nil
}
