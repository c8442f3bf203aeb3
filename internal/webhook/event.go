package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"paygate/internal/provider"
)

// Event types a provider may emit.
const (
	PaymentSuccess  = "payment.success"
	PaymentFailed   = "payment.failed"
	PaymentPending  = "payment.pending"
	PaymentExpired  = "payment.expired"
	TransferSuccess = "transfer.success"
	TransferFailed  = "transfer.failed"
)

var (
	successStatuses = map[string]bool{"success": true, "successful": true, "completed": true, "paid": true, "succeeded": true}
	failedStatuses  = map[string]bool{"failed": true, "rejected": true, "declined": true, "error": true, "cancelled": true}
	pendingStatuses = map[string]bool{"pending": true, "processing": true, "initiated": true}
)

// Event is an authenticated provider notification. The accessors are
// heuristics over heterogeneous payloads.
type Event struct {
	Provider string         `json:"provider"`
	Payload  map[string]any `json:"payload"`
}

func NewEvent(providerName string, payload map[string]any) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Event{Provider: providerName, Payload: payload}
}

// Get returns the raw value stored under key.
func (e *Event) Get(key string) (any, bool) {
	v, ok := e.Payload[key]
	return v, ok && v != nil
}

func (e *Event) str(keys ...string) string {
	for _, k := range keys {
		v, ok := e.Get(k)
		if !ok {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case fmt.Stringer:
			s = t.String()
		case float64, int, int64, bool:
			s = fmt.Sprint(t)
		}
		if s != "" {
			return s
		}
	}
	return ""
}

func (e *Event) Type() string          { return e.str("event", "type") }
func (e *Event) TransactionID() string { return e.str("transaction_id", "reference", "id") }
func (e *Event) Status() string        { return e.str("status") }
func (e *Event) Currency() string      { return e.str("currency") }

// Amount parses the amount field; ok is false when absent or not numeric.
func (e *Event) Amount() (decimal.Decimal, bool) {
	raw := e.str("amount")
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (e *Event) status() string { return strings.ToLower(strings.TrimSpace(e.Status())) }

func (e *Event) IsPaymentSuccess() bool { return successStatuses[e.status()] }
func (e *Event) IsPaymentFailed() bool  { return failedStatuses[e.status()] }
func (e *Event) IsPaymentPending() bool { return pendingStatuses[e.status()] }

// Canonical maps the event onto the canonical taxonomy on a best-effort
// basis, falling back to the event type when the status is unknown.
func (e *Event) Canonical() provider.CanonicalStatus {
	switch {
	case e.IsPaymentSuccess():
		return provider.StatusCompleted
	case e.IsPaymentFailed():
		return provider.StatusFailed
	case e.IsPaymentPending():
		return provider.StatusPending
	case e.status() == "expired":
		return provider.StatusExpired
	}
	switch e.Type() {
	case PaymentSuccess, TransferSuccess:
		return provider.StatusCompleted
	case PaymentFailed, TransferFailed:
		return provider.StatusFailed
	case PaymentPending:
		return provider.StatusPending
	case PaymentExpired:
		return provider.StatusExpired
	}
	return provider.StatusUnknown
}

// ToMap flattens the event for JSON responses.
func (e *Event) ToMap() map[string]any {
	m := map[string]any{
		"provider":         e.Provider,
		"type":             e.Type(),
		"transaction_id":   e.TransactionID(),
		"status":           e.Status(),
		"canonical_status": e.Canonical(),
		"currency":         e.Currency(),
		"payload":          e.Payload,
	}
	if amount, ok := e.Amount(); ok {
		m["amount"] = amount.String()
	}
	return m
}
