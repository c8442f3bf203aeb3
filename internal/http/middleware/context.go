package middlewarex

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paygate/internal/http/respond"
	"paygate/internal/provider"
)

type ctxKey string

const ctxGateway ctxKey = "gateway"

// Target is the gateway a request operates on.
type Target struct {
	Gateway provider.Gateway
	Country string
	Code    string
}

func WithTarget(ctx context.Context, t Target) context.Context {
	return context.WithValue(ctx, ctxGateway, t)
}

func TargetFrom(ctx context.Context) (Target, bool) {
	t, ok := ctx.Value(ctxGateway).(Target)
	return t, ok && t.Gateway != nil
}

// ResolveGateway resolves the {country}/{provider} URL params through reg.
func ResolveGateway(reg *provider.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country, code := chi.URLParam(r, "country"), chi.URLParam(r, "provider")
			gw, err := reg.Resolve(country, code)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTarget(r.Context(), Target{Gateway: gw, Country: country, Code: code})))
		})
	}
}

// ActiveGateway targets the processor's active gateway.
func ActiveGateway(p *provider.Processor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gw, country, code, err := p.Active()
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTarget(r.Context(), Target{Gateway: gw, Country: country, Code: code})))
		})
	}
}
