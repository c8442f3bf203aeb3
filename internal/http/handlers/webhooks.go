package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paygate/internal/config"
	"paygate/internal/http/respond"
	"paygate/internal/metrics"
	"paygate/internal/provider"
	"paygate/internal/webhook"
)

const maxWebhookBody = 1 << 20

// Webhook authenticates a provider notification for {country}/{provider}
// and answers with the normalized event.
func Webhook(cfg config.Cfg, reg *provider.Registry, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		country, code := chi.URLParam(r, "country"), chi.URLParam(r, "provider")
		if _, ok := reg.Lookup(country, code); !ok {
			m.Webhook(code, "unknown_provider")
			respond.Error(w, r, provider.InvalidProviderError(country, code))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			respond.Error(w, r, provider.ValidationError(code, "unreadable body"))
			return
		}
		payload, err := webhook.ParseBody(body)
		if err != nil {
			m.Webhook(code, "bad_payload")
			respond.Error(w, r, err)
			return
		}

		var signature string
		for _, h := range webhook.SignatureHeaders {
			if signature = r.Header.Get(h); signature != "" {
				break
			}
		}

		gc, _ := cfg.Gateway(country, code)
		evt, err := webhook.NewHandler(code, gc.WebhookSecret, cfg.Webhooks.RequireSignature).Handle(payload, signature)
		if err != nil {
			m.Webhook(code, string(provider.KindOf(err)))
			respond.Error(w, r, err)
			return
		}
		m.Webhook(code, "accepted")
		respond.JSON(w, http.StatusOK, evt.ToMap())
	}
}
