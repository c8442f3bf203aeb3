package webhook

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"paygate/internal/provider"
)

func TestEventAccessors(t *testing.T) {
	e := NewEvent("wave", map[string]any{
		"type":      PaymentSuccess,
		"reference": "ord-1",
		"id":        "evt-9",
		"status":    "SUCCESSFUL",
		"amount":    json.Number("2500"),
		"currency":  "XOF",
	})

	if e.Type() != PaymentSuccess {
		t.Fatalf("type = %q", e.Type())
	}
	if e.TransactionID() != "ord-1" {
		t.Fatalf("transaction id should prefer reference over id, got %q", e.TransactionID())
	}
	amount, ok := e.Amount()
	if !ok || !amount.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("amount = %s, %v", amount, ok)
	}
	if !e.IsPaymentSuccess() || e.IsPaymentFailed() || e.IsPaymentPending() {
		t.Fatalf("expected success only")
	}
	if e.Canonical() != provider.StatusCompleted {
		t.Fatalf("canonical = %s", e.Canonical())
	}
	if e.ToMap()["amount"] != "2500" {
		t.Fatalf("ToMap amount = %v", e.ToMap()["amount"])
	}
}

func TestEventVocabularies(t *testing.T) {
	cases := map[string]provider.CanonicalStatus{
		"success":    provider.StatusCompleted,
		"Paid":       provider.StatusCompleted,
		"succeeded":  provider.StatusCompleted,
		"rejected":   provider.StatusFailed,
		"declined":   provider.StatusFailed,
		"cancelled":  provider.StatusFailed,
		"processing": provider.StatusPending,
		"initiated":  provider.StatusPending,
		"expired":    provider.StatusExpired,
		"weird":      provider.StatusUnknown,
	}
	for status, want := range cases {
		if got := NewEvent("x", map[string]any{"status": status}).Canonical(); got != want {
			t.Fatalf("status %q: got %s, want %s", status, got, want)
		}
	}
}

func TestEventFallsBackToType(t *testing.T) {
	e := NewEvent("orange", map[string]any{"event": PaymentExpired})
	if e.Canonical() != provider.StatusExpired {
		t.Fatalf("canonical = %s", e.Canonical())
	}
	if _, ok := e.Amount(); ok {
		t.Fatalf("amount should be absent")
	}
	if _, ok := e.Get("missing"); ok {
		t.Fatalf("missing key reported present")
	}
}
