package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gigpay/taskpay/internal/domain"
)

// AccountDetails is the closed set of payment-account payloads. Each kind
// carries only its own required fields and is validated at construction
// instead of being read opportunistically out of a loose JSON blob.
type AccountDetails interface {
	Kind() string
	Validate() error
}

// QRCodeDetails holds a hosted QR code image plus the display name shown to
// payers.
type QRCodeDetails struct {
	ImageURL    string `json:"image_url"`
	DisplayName string `json:"display_name"`
}

func (QRCodeDetails) Kind() string { return domain.AccountKindQRCode }

func (d QRCodeDetails) Validate() error {
	if strings.TrimSpace(d.ImageURL) == "" {
		return errors.New("qr_code: image_url is required")
	}
	if strings.TrimSpace(d.DisplayName) == "" {
		return errors.New("qr_code: display_name is required")
	}
	return nil
}

// BankCardDetails identifies a card-bound bank account.
type BankCardDetails struct {
	BankName   string `json:"bank_name"`
	CardNumber string `json:"card_number"`
	HolderName string `json:"holder_name"`
}

func (BankCardDetails) Kind() string { return domain.AccountKindBankCard }

func (d BankCardDetails) Validate() error {
	if strings.TrimSpace(d.BankName) == "" {
		return errors.New("bank_card: bank_name is required")
	}
	if strings.TrimSpace(d.CardNumber) == "" {
		return errors.New("bank_card: card_number is required")
	}
	if strings.TrimSpace(d.HolderName) == "" {
		return errors.New("bank_card: holder_name is required")
	}
	return nil
}

// LinkedAccountDetails references an account on a third-party wallet,
// addressed by the wallet's own identifier scheme.
type LinkedAccountDetails struct {
	Provider  string `json:"provider"`
	AccountID string `json:"account_id"`
}

func (LinkedAccountDetails) Kind() string { return domain.AccountKindLinkedAccount }

func (d LinkedAccountDetails) Validate() error {
	if strings.TrimSpace(d.Provider) == "" {
		return errors.New("linked_account: provider is required")
	}
	if strings.TrimSpace(d.AccountID) == "" {
		return errors.New("linked_account: account_id is required")
	}
	return nil
}

// GatewayMethodDetails binds the account to a gateway payment way.
type GatewayMethodDetails struct {
	WayCode  string `json:"way_code"`
	Currency string `json:"currency"`
}

func (GatewayMethodDetails) Kind() string { return domain.AccountKindGatewayMethod }

func (d GatewayMethodDetails) Validate() error {
	if strings.TrimSpace(d.WayCode) == "" {
		return errors.New("gateway_method: way_code is required")
	}
	if strings.TrimSpace(d.Currency) == "" {
		return errors.New("gateway_method: currency is required")
	}
	return nil
}

// EncodeAccountDetails validates a payload and serializes it for storage.
func EncodeAccountDetails(d AccountDetails) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s details: %w", d.Kind(), err)
	}
	return raw, nil
}

// DecodeAccountDetails parses a stored payload for the given kind, failing
// on unknown kinds or payloads missing required fields.
func DecodeAccountDetails(kind string, raw []byte) (AccountDetails, error) {
	var d AccountDetails
	switch kind {
	case domain.AccountKindQRCode:
		d = &QRCodeDetails{}
	case domain.AccountKindBankCard:
		d = &BankCardDetails{}
	case domain.AccountKindLinkedAccount:
		d = &LinkedAccountDetails{}
	case domain.AccountKindGatewayMethod:
		d = &GatewayMethodDetails{}
	default:
		return nil, fmt.Errorf("unknown payment account kind: %s", kind)
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(d); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", kind, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Details returns the decoded, validated payload of the account.
func (a PaymentAccount) DecodedDetails() (AccountDetails, error) {
	return DecodeAccountDetails(a.Kind, a.Details)
}
