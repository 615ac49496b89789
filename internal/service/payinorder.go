package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/gateway"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/gigpay/taskpay/internal/observability"
	"github.com/gigpay/taskpay/internal/signature"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Webhook acknowledgement bodies. The gateway retries the notify until it
// reads the literal success body, so these are part of the wire contract.
const (
	NotifyAckSuccess = "success"
	NotifyAckFail    = "fail"
)

// Pricer computes the worker's commission for a collection amount. The
// settlement core treats the rate as an input, not a policy it owns.
type Pricer interface {
	Commission(amount domain.Cents) domain.Cents
}

// FixedRatePricer applies a flat proportional rate.
type FixedRatePricer struct {
	Rate decimal.Decimal
}

func (p FixedRatePricer) Commission(amount domain.Cents) domain.Cents {
	return amount.ApplyRate(p.Rate)
}

// PayinOrderService drives gateway-backed collection orders: the worker's
// balance is frozen as collateral at creation, the upstream gateway produces
// the payment artifact, and settlement arrives through the signed notify
// webhook (or the worker's manual confirm racing it).
type PayinOrderService struct {
	store  Store
	gw     gateway.Gateway
	cfg    gateway.Config
	pricer Pricer
	ttl    time.Duration
}

func NewPayinOrderService(store Store, gw gateway.Gateway, cfg gateway.Config, pricer Pricer, ttl time.Duration) *PayinOrderService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PayinOrderService{store: store, gw: gw, cfg: cfg, pricer: pricer, ttl: ttl}
}

// CreateOrder opens a gateway collection order for the worker. Every listed
// account must be usable; the first gateway-method account among them
// supplies the way code and currency and is bound to the order. The order
// amount is frozen before the upstream call; if the gateway rejects or times
// out, a compensating transaction releases the freeze and fails the order,
// so no balance is left frozen against a dead order.
func (s *PayinOrderService) CreateOrder(ctx context.Context, workerID uuid.UUID, accountIDs []uuid.UUID, amount domain.Cents, clientIP string) (models.PayinOrder, error) {
	if amount <= 0 {
		return models.PayinOrder{}, fmt.Errorf("invalid order amount: %s", amount)
	}
	accountIDs = dedupeIDs(accountIDs)
	if len(accountIDs) == 0 {
		return models.PayinOrder{}, models.ErrAccountUnusable
	}

	var (
		order  models.PayinOrder
		method models.GatewayMethodDetails
	)
	err := s.store.RunInTx(ctx, func(q Queries) error {
		enabled, err := q.GetSettingBool(ctx, domain.SettingPayinEnabled)
		if err != nil {
			return fmt.Errorf("read payin flag: %w", err)
		}
		if !enabled {
			return models.ErrFeatureDisabled
		}

		if _, err := q.GetActivePayinOrder(ctx, workerID); err == nil {
			return models.ErrAlreadyHasActiveTask
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check active order: %w", err)
		}

		accounts, err := q.GetActivePayinAccounts(ctx, workerID, accountIDs)
		if err != nil {
			return fmt.Errorf("load payment accounts: %w", err)
		}
		if len(accounts) != len(accountIDs) {
			return models.ErrAccountUnusable
		}
		gatewayAccount, gm, err := pickGatewayMethod(accounts)
		if err != nil {
			return err
		}
		method = gm

		orderNo := domain.NewOrderNo("PAYIN")
		if _, err := freezeFunds(ctx, q, workerID, amount, orderNo,
			fmt.Sprintf("collateral for gateway collection order %s", orderNo)); err != nil {
			return err
		}

		order = models.PayinOrder{
			ID:              uuid.New(),
			WorkerID:        workerID,
			AccountID:       gatewayAccount.ID,
			OrderNo:         orderNo,
			AmountCents:     amount,
			CommissionCents: s.pricer.Commission(amount),
			Status:          domain.PayinStatusCreated,
			WayCode:         method.WayCode,
			Currency:        method.Currency,
			ExpiresAt:       time.Now().Add(s.ttl),
		}
		if err := q.InsertPayinOrder(ctx, order); err != nil {
			return fmt.Errorf("insert payin order: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.PayinOrder{}, err
	}

	// The upstream call runs outside the transaction so no row locks are
	// held across the network.
	result, gwErr := s.gw.CreateOrder(ctx, gateway.UnifiedOrderRequest{
		OrderNo:  order.OrderNo,
		WayCode:  order.WayCode,
		Amount:   int64(order.AmountCents),
		Currency: order.Currency,
		Subject:  "collection order",
		Body:     order.OrderNo,
		ClientIP: clientIP,
	})
	if gwErr != nil {
		observability.IncrementGatewayCall("error")
		if compErr := s.compensateFailedCreate(ctx, order); compErr != nil {
			zap.L().Error("compensating unfreeze failed",
				zap.String("order_no", order.OrderNo),
				zap.Error(compErr),
			)
			return models.PayinOrder{}, compErr
		}
		return models.PayinOrder{}, gwErr
	}
	observability.IncrementGatewayCall("ok")

	var settledMeanwhile bool
	err = s.store.RunInTx(ctx, func(q Queries) error {
		rows, err := q.SetPayinOrderGatewayResult(ctx, order.ID, result.PayOrderID, result.PayData, domain.PayinStatusPaying)
		if err != nil {
			return fmt.Errorf("store gateway result: %w", err)
		}
		if rows == 0 {
			// The success notify can land between the gateway call and
			// this write. The settled order wins; never drag a terminal
			// order back to paying.
			current, err := q.GetPayinOrder(ctx, order.ID)
			if err != nil {
				return fmt.Errorf("reload payin order: %w", err)
			}
			if !domain.IsTerminalPayinStatus(current.Status) {
				return fmt.Errorf("store gateway result: order %s vanished from live set", order.OrderNo)
			}
			order = current
			settledMeanwhile = true
			return nil
		}
		return nil
	})
	if err != nil {
		return models.PayinOrder{}, err
	}
	if settledMeanwhile {
		zap.L().Info("payin order settled before gateway result stored",
			zap.String("order_no", order.OrderNo),
			zap.String("status", order.Status),
		)
		return order, nil
	}

	order.Status = domain.PayinStatusPaying
	order.ExternalOrderID = &result.PayOrderID
	if result.PayData != "" {
		payData := result.PayData
		order.PayData = &payData
	}
	zap.L().Info("payin order created",
		zap.String("order_no", order.OrderNo),
		zap.String("pay_order_id", result.PayOrderID),
		zap.String("amount", order.AmountCents.String()),
	)
	return order, nil
}

func (s *PayinOrderService) compensateFailedCreate(ctx context.Context, order models.PayinOrder) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		locked, err := q.GetPayinOrderForUpdate(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("load payin order: %w", err)
		}
		if domain.IsTerminalPayinStatus(locked.Status) {
			return nil
		}
		rows, err := q.SetPayinOrderStatus(ctx, order.ID, domain.PayinStatusFailed, nil)
		if err != nil {
			return fmt.Errorf("fail payin order: %w", err)
		}
		if err := requireExactlyOne(rows, "fail payin order"); err != nil {
			return err
		}
		_, err = unfreezeFunds(ctx, q, order.WorkerID, order.AmountCents, order.OrderNo,
			fmt.Sprintf("release collateral, gateway rejected order %s", order.OrderNo))
		return err
	})
}

// HandleNotify processes the gateway's asynchronous payment notification and
// returns the acknowledgement body the HTTP layer must write verbatim. A
// notify for an order already in a terminal state is acknowledged without
// effect, which makes gateway redelivery harmless.
func (s *PayinOrderService) HandleNotify(ctx context.Context, form url.Values) (string, error) {
	orderNo := form.Get("mchOrderNo")
	if orderNo == "" || form.Get("payOrderId") == "" || form.Get("state") == "" {
		observability.IncrementWebhook("malformed")
		return NotifyAckFail, fmt.Errorf("notify missing required fields")
	}
	if form.Get("mchNo") != s.cfg.MchNo || form.Get("appId") != s.cfg.AppID {
		observability.IncrementWebhook("wrong_merchant")
		return NotifyAckFail, fmt.Errorf("notify for unknown merchant")
	}
	if !signature.Verify(signature.FromValues(form), s.cfg.PrivateKey) {
		observability.IncrementWebhook("bad_signature")
		return NotifyAckFail, models.ErrSignatureInvalid
	}
	state, err := strconv.Atoi(form.Get("state"))
	if err != nil {
		observability.IncrementWebhook("malformed")
		return NotifyAckFail, fmt.Errorf("notify state not numeric: %w", err)
	}
	notifiedAmount, err := strconv.ParseInt(form.Get("amount"), 10, 64)
	if err != nil {
		observability.IncrementWebhook("malformed")
		return NotifyAckFail, fmt.Errorf("notify amount not numeric: %w", err)
	}

	err = s.store.RunInTx(ctx, func(q Queries) error {
		order, err := q.GetPayinOrderByNoForUpdate(ctx, orderNo)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFoundOrWrongState
			}
			return fmt.Errorf("load payin order: %w", err)
		}
		if domain.IsTerminalPayinStatus(order.Status) {
			// Redelivery of an already-settled notify is a no-op.
			return nil
		}
		if domain.Cents(notifiedAmount) != order.AmountCents {
			return fmt.Errorf("notify amount %d does not match order %s amount %d",
				notifiedAmount, order.OrderNo, order.AmountCents)
		}

		switch state {
		case domain.GatewayStateSuccess:
			return s.settle(ctx, q, order, nil, form.Get("payOrderId"))
		case domain.GatewayStateFailed, domain.GatewayStateRevoked, domain.GatewayStateRefunded, domain.GatewayStateClosed:
			// Refunded on a live order means the payment will not complete;
			// it releases like the other dead states so the gateway's retry
			// loop terminates.
			return s.release(ctx, q, order, domain.PayinStatusFailed)
		case domain.GatewayStatePaying:
			rows, err := q.SetPayinOrderStatus(ctx, order.ID, domain.PayinStatusPaying, nil)
			if err != nil {
				return fmt.Errorf("mark order paying: %w", err)
			}
			return requireExactlyOne(rows, "mark order paying")
		case domain.GatewayStateCreated:
			return nil
		default:
			return fmt.Errorf("notify with unknown state %d", state)
		}
	})
	if err != nil {
		observability.IncrementWebhook("rejected")
		zap.L().Warn("payin notify rejected",
			zap.String("order_no", orderNo),
			zap.Int("state", state),
			zap.Error(err),
		)
		return NotifyAckFail, err
	}
	observability.IncrementWebhook("accepted")
	return NotifyAckSuccess, nil
}

// ConfirmReceipt settles a pending order on the worker's own attestation,
// with the transfer proof attached. It races the webhook idempotently: if
// the notify settled the order first, confirm is a harmless no-op.
func (s *PayinOrderService) ConfirmReceipt(ctx context.Context, orderID, workerID uuid.UUID, proofURL string) (models.PayinOrder, error) {
	if proofURL == "" {
		return models.PayinOrder{}, models.ErrProofMissing
	}
	var settled models.PayinOrder
	err := s.store.RunInTx(ctx, func(q Queries) error {
		order, err := q.GetPayinOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFoundOrWrongState
			}
			return fmt.Errorf("load payin order: %w", err)
		}
		if order.WorkerID != workerID {
			return models.ErrNotFoundOrWrongState
		}
		if order.Status == domain.PayinStatusSuccess {
			settled = order
			return nil
		}
		if domain.IsTerminalPayinStatus(order.Status) {
			return models.ErrNotFoundOrWrongState
		}
		if !order.ExpiresAt.After(time.Now()) {
			return models.ErrExpired
		}

		if err := s.settle(ctx, q, order, &proofURL, ""); err != nil {
			return err
		}
		settled, err = q.GetPayinOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("reload payin order: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.PayinOrder{}, err
	}
	return settled, nil
}

// settle moves a live order to success: the collateral freeze is released
// and the commission credited with the terminal transition, in the caller's
// transaction.
func (s *PayinOrderService) settle(ctx context.Context, q Queries, order models.PayinOrder, proofURL *string, payOrderID string) error {
	// Backfill the gateway reference while the row is still live; the
	// guarded result write never matches terminal rows.
	if payOrderID != "" && order.ExternalOrderID == nil {
		if _, err := q.SetPayinOrderGatewayResult(ctx, order.ID, payOrderID, "", order.Status); err != nil {
			return fmt.Errorf("store gateway reference: %w", err)
		}
	}
	rows, err := q.SetPayinOrderStatus(ctx, order.ID, domain.PayinStatusSuccess, proofURL)
	if err != nil {
		return fmt.Errorf("mark order success: %w", err)
	}
	if err := requireExactlyOne(rows, "mark order success"); err != nil {
		return err
	}
	if _, err := unfreezeFunds(ctx, q, order.WorkerID, order.AmountCents, order.OrderNo,
		fmt.Sprintf("release collateral for collection order %s", order.OrderNo)); err != nil {
		return err
	}
	if order.CommissionCents > 0 {
		if _, err := creditFunds(ctx, q, order.WorkerID, order.CommissionCents, domain.RecordKindTaskReward,
			order.OrderNo, fmt.Sprintf("collection order commission (order %s)", order.OrderNo)); err != nil {
			return err
		}
	}
	observability.IncrementSettlement("payin_order", "completed")
	zap.L().Info("payin order settled",
		zap.String("order_no", order.OrderNo),
		zap.String("worker_id", order.WorkerID.String()),
		zap.String("commission", order.CommissionCents.String()),
	)
	return nil
}

// release fails a live order and returns its collateral.
func (s *PayinOrderService) release(ctx context.Context, q Queries, order models.PayinOrder, status string) error {
	rows, err := q.SetPayinOrderStatus(ctx, order.ID, status, nil)
	if err != nil {
		return fmt.Errorf("mark order %s: %w", status, err)
	}
	if err := requireExactlyOne(rows, "mark order "+status); err != nil {
		return err
	}
	if _, err := unfreezeFunds(ctx, q, order.WorkerID, order.AmountCents, order.OrderNo,
		fmt.Sprintf("release collateral, order %s %s", order.OrderNo, status)); err != nil {
		return err
	}
	observability.IncrementSettlement("payin_order", status)
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// pickGatewayMethod returns the first gateway-method account with a valid
// payload; the order cannot reach the gateway without one.
func pickGatewayMethod(accounts []models.PaymentAccount) (models.PaymentAccount, models.GatewayMethodDetails, error) {
	for _, account := range accounts {
		if account.Kind != domain.AccountKindGatewayMethod {
			continue
		}
		details, err := account.DecodedDetails()
		if err != nil {
			return models.PaymentAccount{}, models.GatewayMethodDetails{}, fmt.Errorf("decode account details: %w", err)
		}
		gm, ok := details.(*models.GatewayMethodDetails)
		if !ok {
			continue
		}
		return account, *gm, nil
	}
	return models.PaymentAccount{}, models.GatewayMethodDetails{}, models.ErrAccountUnusable
}

// Active returns the worker's live order, if any.
func (s *PayinOrderService) Active(ctx context.Context, workerID uuid.UUID) (models.PayinOrder, error) {
	order, err := s.store.Queries().GetActivePayinOrder(ctx, workerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PayinOrder{}, models.ErrNotFoundOrWrongState
		}
		return models.PayinOrder{}, err
	}
	return order, nil
}
