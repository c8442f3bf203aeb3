package provider

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Country identifies a market with its own provider endpoints.
type Country string

const (
	CountryIvoryCoast Country = "ivory_coast"
	CountrySenegal    Country = "senegal"
)

// DialCode is the international calling prefix without the plus sign.
func (c Country) DialCode() string {
	switch c {
	case CountryIvoryCoast:
		return "225"
	case CountrySenegal:
		return "221"
	}
	return ""
}

// ISO returns the lower-case two-letter country code.
func (c Country) ISO() string {
	switch c {
	case CountryIvoryCoast:
		return "ci"
	case CountrySenegal:
		return "sn"
	}
	return ""
}

// Code identifies a mobile-money provider.
type Code string

const (
	Orange Code = "orange"
	MTN    Code = "mtn"
	Moov   Code = "moov"
	Wave   Code = "wave"
	Djamo  Code = "djamo"
)

// Operation types that gateways can support
type OperationType string

const (
	OpPayment  OperationType = "payment"
	OpTransfer OperationType = "transfer"
	OpBalance  OperationType = "balance"
	OpVerify   OperationType = "verify"
)

// CanonicalStatus is the provider-agnostic transaction status.
type CanonicalStatus string

const (
	StatusInitiated CanonicalStatus = "initiated"
	StatusPending   CanonicalStatus = "pending"
	StatusCompleted CanonicalStatus = "completed"
	StatusFailed    CanonicalStatus = "failed"
	StatusExpired   CanonicalStatus = "expired"
	StatusUnknown   CanonicalStatus = "unknown"
)

// IsFinal reports whether no further transition is expected.
func (s CanonicalStatus) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// StatusNormalizer maps a raw provider status onto the canonical taxonomy.
// Implementations are total and never fail.
type StatusNormalizer func(raw string) CanonicalStatus

// TableNormalizer builds a case-insensitive StatusNormalizer from a lookup
// table. Unlisted values map to StatusUnknown.
func TableNormalizer(table map[string]CanonicalStatus) StatusNormalizer {
	norm := make(map[string]CanonicalStatus, len(table))
	for k, v := range table {
		norm[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return func(raw string) CanonicalStatus {
		if s, ok := norm[strings.ToUpper(strings.TrimSpace(raw))]; ok {
			return s
		}
		return StatusUnknown
	}
}

const DefaultCurrency = "XOF"

var zeroDecimalCurrencies = map[string]bool{
	"XOF": true, "XAF": true, "GNF": true, "KMF": true, "RWF": true,
	"UGX": true, "JPY": true, "KRW": true, "VND": true, "CLP": true,
	"DJF": true, "BIF": true, "PYG": true, "VUV": true, "XPF": true,
}

// IsZeroDecimal reports whether the currency forbids fractional amounts.
func IsZeroDecimal(currency string) bool {
	return zeroDecimalCurrencies[strings.ToUpper(currency)]
}

// PaymentRequest initiates a collection.
type PaymentRequest struct {
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency,omitempty"`
	Reference      string            `json:"reference"`
	PayerPhone     string            `json:"payer_phone,omitempty"`
	Description    string            `json:"description,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	NotifyURL      string            `json:"notify_url,omitempty"`
	ReturnURL      string            `json:"return_url,omitempty"`
	CancelURL      string            `json:"cancel_url,omitempty"`
	SuccessURL     string            `json:"success_url,omitempty"`
	ErrorURL       string            `json:"error_url,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
}

// CurrencyOrDefault returns the upper-cased currency, XOF when empty.
func (r PaymentRequest) CurrencyOrDefault() string {
	if c := strings.TrimSpace(r.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return DefaultCurrency
}

// TransferRequest is a disbursement to a recipient wallet.
type TransferRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty"`
	Reference      string          `json:"reference"`
	RecipientPhone string          `json:"recipient_phone"`
	Description    string          `json:"description,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type BalanceRequest struct {
	Currency string `json:"currency,omitempty"`
}

// VerifyRequest identifies a transaction. Providers accept different
// identifiers; at least one must be set.
type VerifyRequest struct {
	TransactionID     string          `json:"transaction_id,omitempty"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	Reference         string          `json:"reference,omitempty"`
	Amount            decimal.Decimal `json:"amount,omitempty"`
	Currency          string          `json:"currency,omitempty"` // of Amount; XOF when empty
}

func (r VerifyRequest) CurrencyOrDefault() string {
	return PaymentRequest{Currency: r.Currency}.CurrencyOrDefault()
}

func (r VerifyRequest) Empty() bool {
	return strings.TrimSpace(r.TransactionID) == "" &&
		strings.TrimSpace(r.ProviderReference) == "" &&
		strings.TrimSpace(r.Reference) == ""
}

type PaymentResult struct {
	Status                CanonicalStatus `json:"status"`
	RawStatus             string          `json:"raw_status,omitempty"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	ProviderReference     string          `json:"provider_reference,omitempty"`
	Reference             string          `json:"reference"`
	PaymentURL            string          `json:"payment_url,omitempty"`
	IdempotencyKey        string          `json:"idempotency_key,omitempty"`
	Raw                   map[string]any  `json:"raw,omitempty"`
}

type BalanceResult struct {
	Available decimal.Decimal `json:"available"`
	Currency  string          `json:"currency"`
	Raw       map[string]any  `json:"raw,omitempty"`
}
