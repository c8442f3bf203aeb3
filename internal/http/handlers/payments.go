package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"paygate/internal/cache"
	middlewarex "paygate/internal/http/middleware"
	"paygate/internal/http/respond"
	"paygate/internal/provider"
)

// OperationTimeout bounds one gateway call including retries.
var OperationTimeout = 90 * time.Second

func target(w http.ResponseWriter, r *http.Request) (middlewarex.Target, bool) {
	t, ok := middlewarex.TargetFrom(r.Context())
	if !ok {
		respond.Error(w, r, provider.ConfigurationError("", "no gateway resolved for request"))
	}
	return t, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respond.Error(w, r, provider.ValidationError("", "invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// CreatePayment starts a collection. An Idempotency-Key header (or body
// field) is claimed in store first: a concurrent duplicate gets 409, a
// completed one gets 409 with the original result.
func CreatePayment(store cache.IdempotencyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := target(w, r)
		if !ok {
			return
		}
		var in provider.PaymentRequest
		if !decode(w, r, &in) {
			return
		}
		if h := strings.TrimSpace(r.Header.Get("Idempotency-Key")); h != "" {
			in.IdempotencyKey = h
		}

		ctx, cancel := context.WithTimeout(r.Context(), OperationTimeout)
		defer cancel()

		var claim string
		if in.IdempotencyKey != "" && store != nil {
			claim = t.Country + ":" + t.Code + ":" + in.IdempotencyKey
			prev, err := store.Begin(ctx, claim)
			switch {
			case errors.Is(err, cache.ErrInProgress):
				respond.JSON(w, http.StatusConflict, map[string]any{
					"error": map[string]string{"kind": "duplicate_request", "message": err.Error()},
				})
				return
			case errors.Is(err, cache.ErrCompleted):
				respond.JSON(w, http.StatusConflict, map[string]any{
					"error":  map[string]string{"kind": "duplicate_request", "message": err.Error()},
					"result": json.RawMessage(prev),
				})
				return
			case err != nil:
				log.Error().Err(err).Str("idempotency_key", in.IdempotencyKey).Msg("idempotency store unavailable")
				respond.Error(w, r, provider.RequestFailure(t.Code, provider.OpPayment, "idempotency store unavailable", err))
				return
			}
		}

		res, err := t.Gateway.Payment(ctx, in)
		if err != nil {
			if claim != "" {
				if rerr := store.Release(context.WithoutCancel(ctx), claim); rerr != nil {
					log.Warn().Err(rerr).Str("idempotency_key", in.IdempotencyKey).Msg("release idempotency claim")
				}
			}
			respond.Error(w, r, err)
			return
		}

		if claim != "" {
			storeCtx := context.WithoutCancel(ctx)
			body, merr := json.Marshal(res)
			if merr != nil {
				// an unreplayable result must not pin the key
				log.Error().Err(merr).Str("idempotency_key", in.IdempotencyKey).Msg("encode idempotent result")
				if rerr := store.Release(storeCtx, claim); rerr != nil {
					log.Warn().Err(rerr).Str("idempotency_key", in.IdempotencyKey).Msg("release idempotency claim")
				}
			} else if cerr := store.Complete(storeCtx, claim, body); cerr != nil {
				log.Warn().Err(cerr).Str("idempotency_key", in.IdempotencyKey).Msg("store idempotent result")
			}
		}
		respond.JSON(w, http.StatusCreated, res)
	}
}

func Verify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := target(w, r)
		if !ok {
			return
		}
		var in provider.VerifyRequest
		if !decode(w, r, &in) {
			return
		}
		if in.Empty() {
			respond.Error(w, r, provider.ValidationError(t.Code, "transaction_id, provider_reference or reference is required"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), OperationTimeout)
		defer cancel()

		res, err := t.Gateway.Verify(ctx, in)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, res)
	}
}

func Transfer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := target(w, r)
		if !ok {
			return
		}
		if !provider.Supports(t.Gateway.SupportedOperations(), provider.OpTransfer) {
			respond.Error(w, r, provider.UnsupportedError(t.Gateway.Name(), provider.OpTransfer))
			return
		}
		var in provider.TransferRequest
		if !decode(w, r, &in) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), OperationTimeout)
		defer cancel()

		res, err := t.Gateway.Transfer(ctx, in)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, res)
	}
}

func Balance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := target(w, r)
		if !ok {
			return
		}
		if !provider.Supports(t.Gateway.SupportedOperations(), provider.OpBalance) {
			respond.Error(w, r, provider.UnsupportedError(t.Gateway.Name(), provider.OpBalance))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), OperationTimeout)
		defer cancel()

		res, err := t.Gateway.Balance(ctx, provider.BalanceRequest{Currency: r.URL.Query().Get("currency")})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, res)
	}
}

// sessionManager is implemented by gateways whose hosted checkout sessions
// can be refunded or expired after creation.
type sessionManager interface {
	Refund(ctx context.Context, sessionID string) error
	Expire(ctx context.Context, sessionID string) error
}

// SessionAction runs action ("refund" or "expire") on the {id} session.
func SessionAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := target(w, r)
		if !ok {
			return
		}
		sm, ok := t.Gateway.(sessionManager)
		if !ok {
			respond.Error(w, r, provider.UnsupportedError(t.Gateway.Name(), provider.OperationType(action)))
			return
		}
		id := chi.URLParam(r, "id")
		ctx, cancel := context.WithTimeout(r.Context(), OperationTimeout)
		defer cancel()

		var err error
		switch action {
		case "refund":
			err = sm.Refund(ctx, id)
		case "expire":
			err = sm.Expire(ctx, id)
		default:
			err = provider.UnsupportedError(t.Gateway.Name(), provider.OperationType(action))
		}
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{"session_id": id, "action": action, "status": "ok"})
	}
}
