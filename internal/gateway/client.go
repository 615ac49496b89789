package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gigpay/taskpay/internal/models"
	"github.com/gigpay/taskpay/internal/signature"
)

const (
	apiVersion = "1.0"
	signType   = "MD5"
)

// Config carries the merchant credentials and endpoints for the client.
type Config struct {
	APIURL     string
	MchNo      string
	AppID      string
	PrivateKey string
	NotifyURL  string
	ReturnURL  string
	Timeout    time.Duration
}

// Client is the HTTP implementation of Gateway against the unified-order API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient constructs a gateway client with an explicit request timeout.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type unifiedOrderBody struct {
	MchNo      string `json:"mchNo"`
	AppID      string `json:"appId"`
	MchOrderNo string `json:"mchOrderNo"`
	WayCode    string `json:"wayCode"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	NotifyURL  string `json:"notifyUrl,omitempty"`
	ReturnURL  string `json:"returnUrl,omitempty"`
	ReqTime    int64  `json:"reqTime"`
	Version    string `json:"version"`
	SignType   string `json:"signType"`
	ClientIP   string `json:"clientIp"`
	Sign       string `json:"sign"`
}

type unifiedOrderData struct {
	PayOrderID string `json:"payOrderId"`
	MchOrderNo string `json:"mchOrderNo"`
	OrderState int    `json:"orderState"`
	PayDataTyp string `json:"payDataType"`
	PayData    string `json:"payData"`
	ErrCode    string `json:"errCode"`
	ErrMsg     string `json:"errMsg"`
}

// unifiedOrderResponse is the strict response schema. data must be an
// object; a string-typed data field is a shape mismatch and fails fast
// rather than being coerced.
type unifiedOrderResponse struct {
	Code int               `json:"code"`
	Msg  string            `json:"msg"`
	Sign string            `json:"sign"`
	Data *unifiedOrderData `json:"data"`
}

// CreateOrder signs and posts a unified-order request. Any transport error,
// timeout, non-2xx status or non-zero response code is reported as
// ErrGatewayUnavailable so the caller can compensate.
func (c *Client) CreateOrder(ctx context.Context, req UnifiedOrderRequest) (*UnifiedOrderResult, error) {
	body := unifiedOrderBody{
		MchNo:      c.cfg.MchNo,
		AppID:      c.cfg.AppID,
		MchOrderNo: req.OrderNo,
		WayCode:    req.WayCode,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Subject:    req.Subject,
		Body:       req.Body,
		NotifyURL:  c.cfg.NotifyURL,
		ReturnURL:  c.cfg.ReturnURL,
		ReqTime:    time.Now().UnixMilli(),
		Version:    apiVersion,
		SignType:   signType,
		ClientIP:   req.ClientIP,
	}
	body.Sign = signature.Sign(signParams(body), c.cfg.PrivateKey)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode unified order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build unified order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unified order returned status %d", models.ErrGatewayUnavailable, resp.StatusCode)
	}

	var parsed unifiedOrderResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode unified order response: %v", models.ErrGatewayUnavailable, err)
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("%w: gateway code %d: %s", models.ErrGatewayUnavailable, parsed.Code, parsed.Msg)
	}
	if parsed.Data == nil {
		return nil, fmt.Errorf("%w: unified order response missing data", models.ErrGatewayUnavailable)
	}
	if parsed.Data.PayOrderID == "" {
		return nil, fmt.Errorf("%w: unified order response missing payOrderId", models.ErrGatewayUnavailable)
	}

	return &UnifiedOrderResult{
		PayOrderID: parsed.Data.PayOrderID,
		OrderNo:    parsed.Data.MchOrderNo,
		OrderState: parsed.Data.OrderState,
		PayData:    parsed.Data.PayData,
	}, nil
}

func signParams(b unifiedOrderBody) signature.Params {
	return signature.Params{
		"mchNo":      b.MchNo,
		"appId":      b.AppID,
		"mchOrderNo": b.MchOrderNo,
		"wayCode":    b.WayCode,
		"amount":     strconv.FormatInt(b.Amount, 10),
		"currency":   b.Currency,
		"subject":    b.Subject,
		"body":       b.Body,
		"notifyUrl":  b.NotifyURL,
		"returnUrl":  b.ReturnURL,
		"reqTime":    strconv.FormatInt(b.ReqTime, 10),
		"version":    b.Version,
		"signType":   b.SignType,
		"clientIp":   b.ClientIP,
	}
}
