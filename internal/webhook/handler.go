package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"paygate/internal/provider"
)

// Signature headers checked in order.
var SignatureHeaders = []string{"X-Signature", "X-Webhook-Signature"}

// Handler authenticates inbound notifications for one provider.
type Handler struct {
	Provider         string
	Secret           string
	RequireSignature bool
}

func NewHandler(providerName, secret string, requireSignature bool) *Handler {
	return &Handler{Provider: providerName, Secret: secret, RequireSignature: requireSignature}
}

// Handle verifies signature when one is given (or required) and wraps the
// payload into an Event.
func (h *Handler) Handle(payload map[string]any, signature string) (*Event, error) {
	signature = strings.TrimSpace(signature)
	switch {
	case signature != "":
		if h.Secret == "" {
			return nil, provider.ConfigurationError(h.Provider, "webhook_secret is not configured")
		}
		ok, err := Verify(payload, signature, h.Secret)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Warn().Str("provider", h.Provider).Msg("webhook signature mismatch")
			return nil, provider.SignatureError(h.Provider)
		}
	case h.RequireSignature:
		log.Warn().Str("provider", h.Provider).Msg("webhook without signature rejected")
		return nil, provider.SignatureError(h.Provider)
	}

	evt := NewEvent(h.Provider, payload)
	log.Info().
		Str("provider", h.Provider).
		Str("type", evt.Type()).
		Str("transaction_id", evt.TransactionID()).
		Str("status", evt.Status()).
		Bool("signed", signature != "").
		Msg("webhook accepted")
	return evt, nil
}

// Canonical serializes payload as compact JSON with sorted keys and no HTML
// escaping.
func Canonical(payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("canonicalize webhook payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign returns the lower-case hex HMAC-SHA256 of the canonical payload.
func Sign(payload map[string]any, secret string) (string, error) {
	body, err := Canonical(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify compares signature against the expected one in constant time.
func Verify(payload map[string]any, signature, secret string) (bool, error) {
	expected, err := Sign(payload, secret)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// ParseBody decodes a JSON object body, keeping numbers as json.Number so
// the canonical form matches what the provider signed.
func ParseBody(body []byte) (map[string]any, error) {
	payload := map[string]any{}
	if len(bytes.TrimSpace(body)) == 0 {
		return payload, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, provider.ValidationError("", "webhook body must be a JSON object")
	}
	return payload, nil
}
