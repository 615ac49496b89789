package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/gateway"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/gigpay/taskpay/internal/service"
	"github.com/gigpay/taskpay/internal/signature"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var notifyTestConfig = gateway.Config{
	APIURL:     "https://gw.example",
	MchNo:      "M1001",
	AppID:      "app-test",
	PrivateKey: "test-merchant-secret",
}

// notifyStore backs the webhook tests with a single order and worker. Only
// the queries the settle path touches are implemented; anything else panics
// through the embedded nil interface, which is exactly what a test wants.
type notifyStore struct {
	order  models.PayinOrder
	worker models.Worker
}

type notifyQueries struct {
	service.Queries
	s *notifyStore
}

func (s *notifyStore) Queries() service.Queries { return notifyQueries{s: s} }

func (s *notifyStore) RunInTx(ctx context.Context, fn func(q service.Queries) error) error {
	return fn(notifyQueries{s: s})
}

func (q notifyQueries) GetPayinOrderByNoForUpdate(ctx context.Context, orderNo string) (models.PayinOrder, error) {
	return q.s.order, nil
}

func (q notifyQueries) SetPayinOrderStatus(ctx context.Context, id uuid.UUID, status string, proofURL *string) (int64, error) {
	q.s.order.Status = status
	return 1, nil
}

func (q notifyQueries) GetWorkerForUpdate(ctx context.Context, id uuid.UUID) (models.Worker, error) {
	return q.s.worker, nil
}

func (q notifyQueries) UnfreezeWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error) {
	q.s.worker.FrozenCents -= amount
	q.s.worker.AvailableCents += amount
	return q.s.worker, nil
}

func (q notifyQueries) CreditWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error) {
	q.s.worker.AvailableCents += amount
	return q.s.worker, nil
}

func (q notifyQueries) InsertLedgerRecord(ctx context.Context, rec models.LedgerRecord) error {
	return nil
}

func newNotifyFixture() (*PayinOrderHandler, *notifyStore) {
	workerID := uuid.New()
	external := "P9000001"
	store := &notifyStore{
		order: models.PayinOrder{
			ID:              uuid.New(),
			WorkerID:        workerID,
			OrderNo:         "PAYIN1700000000000123456",
			AmountCents:     5000,
			CommissionCents: 250,
			Status:          domain.PayinStatusPaying,
			ExternalOrderID: &external,
			ExpiresAt:       time.Now().Add(time.Hour),
		},
		worker: models.Worker{ID: workerID, AvailableCents: 5000, FrozenCents: 5000},
	}
	svc := service.NewPayinOrderService(store, nil, notifyTestConfig,
		service.FixedRatePricer{Rate: decimal.NewFromFloat(0.05)}, time.Hour)
	return NewPayinOrderHandler(svc), store
}

func postNotify(t *testing.T, h *PayinOrderHandler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/payin-orders/notify",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Notify(rec, req)
	return rec
}

func signedForm(orderNo string, state int, amount int64) url.Values {
	form := url.Values{}
	form.Set("payOrderId", "P9000001")
	form.Set("mchNo", notifyTestConfig.MchNo)
	form.Set("appId", notifyTestConfig.AppID)
	form.Set("mchOrderNo", orderNo)
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("state", strconv.Itoa(state))
	form.Set("sign", signature.Sign(signature.FromValues(form), notifyTestConfig.PrivateKey))
	return form
}

func TestNotifyAcksSuccessOnSettlement(t *testing.T) {
	h, store := newNotifyFixture()

	rec := postNotify(t, h, signedForm(store.order.OrderNo, domain.GatewayStateSuccess, 5000))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())
	assert.Equal(t, domain.PayinStatusSuccess, store.order.Status)
	assert.Equal(t, domain.Cents(10250), store.worker.AvailableCents)
	assert.Equal(t, domain.Cents(0), store.worker.FrozenCents)
}

func TestNotifyAcksFailOnBadSignature(t *testing.T) {
	h, store := newNotifyFixture()

	form := signedForm(store.order.OrderNo, domain.GatewayStateSuccess, 5000)
	form.Set("sign", "0000DEADBEEF0000DEADBEEF0000DEAD")
	rec := postNotify(t, h, form)

	assert.Equal(t, http.StatusOK, rec.Code, "the gateway keys on the body, not the status")
	assert.Equal(t, "fail", rec.Body.String())
	assert.Equal(t, domain.PayinStatusPaying, store.order.Status)
}

func TestNotifyAcksFailOnMissingFields(t *testing.T) {
	h, _ := newNotifyFixture()

	rec := postNotify(t, h, url.Values{"mchOrderNo": {"PAYIN123"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fail", rec.Body.String())
}

func TestNotifyAcksSuccessOnRedelivery(t *testing.T) {
	h, store := newNotifyFixture()
	store.order.Status = domain.PayinStatusSuccess
	store.worker = models.Worker{ID: store.worker.ID, AvailableCents: 10250}

	rec := postNotify(t, h, signedForm(store.order.OrderNo, domain.GatewayStateSuccess, 5000))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())
	assert.Equal(t, domain.Cents(10250), store.worker.AvailableCents, "redelivery must not move money")
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5123"
	assert.Equal(t, "198.51.100.4", clientIP(req))
}

func TestRequireProofOnConfirm(t *testing.T) {
	h, store := newNotifyFixture()

	body := strings.NewReader(`{"proof_url": ""}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/payin-orders/"+store.order.ID.String()+"/confirm", body)
	rec := httptest.NewRecorder()
	h.ConfirmReceipt(rec, req)

	// No authenticated worker on the context.
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
