package base

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"paygate/internal/clock"
	"paygate/internal/provider"
)

// TokenSafetyMargin is subtracted from a token's lifetime so it is refreshed
// before the provider rejects it.
const TokenSafetyMargin = 5 * time.Second

// AccessToken is an immutable bearer credential.
type AccessToken struct {
	Value     string
	Type      string
	IssuedAt  time.Time
	ExpiresIn time.Duration
}

func NewAccessToken(value, tokenType string, expiresInSeconds int64, issuedAt time.Time) AccessToken {
	return AccessToken{
		Value:     value,
		Type:      tokenType,
		IssuedAt:  issuedAt,
		ExpiresIn: time.Duration(expiresInSeconds) * time.Second,
	}
}

func (t AccessToken) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.ExpiresIn)
}

// HasExpired reports now >= issuedAt + expiresIn - TokenSafetyMargin.
func (t AccessToken) HasExpired(now time.Time) bool {
	return !now.Before(t.IssuedAt.Add(t.ExpiresIn - TokenSafetyMargin))
}

// Authorization renders the header value, defaulting the type to Bearer.
func (t AccessToken) Authorization() string {
	typ := t.Type
	if typ == "" || typ == "bearer" {
		typ = "Bearer"
	}
	return typ + " " + t.Value
}

// TokenGenerator performs one credential exchange.
type TokenGenerator interface {
	GenerateToken(ctx context.Context) (AccessToken, error)
}

type TokenGeneratorFunc func(ctx context.Context) (AccessToken, error)

func (f TokenGeneratorFunc) GenerateToken(ctx context.Context) (AccessToken, error) { return f(ctx) }

// TokenSource caches the generator's token until it expires. It never
// retries a failed exchange; that is left to the caller's retry policy.
type TokenSource struct {
	provider string
	gen      TokenGenerator
	clock    clock.Clock

	mu    sync.Mutex
	token *AccessToken
}

func NewTokenSource(providerName string, gen TokenGenerator, c clock.Clock) *TokenSource {
	if c == nil {
		c = clock.System{}
	}
	return &TokenSource{provider: providerName, gen: gen, clock: c}
}

// Token returns the cached token or exchanges credentials for a new one.
func (s *TokenSource) Token(ctx context.Context) (AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && !s.token.HasExpired(s.clock.Now()) {
		return *s.token, nil
	}

	tok, err := s.gen.GenerateToken(ctx)
	if err != nil {
		s.token = nil
		if provider.IsKind(err, provider.KindTokenGeneration) {
			return AccessToken{}, err
		}
		return AccessToken{}, provider.TokenError(s.provider, "failed to obtain access token", err)
	}
	if tok.Value == "" {
		s.token = nil
		return AccessToken{}, provider.TokenError(s.provider, "empty access token in response", nil)
	}

	s.token = &tok
	log.Debug().
		Str("provider", s.provider).
		Time("expires_at", tok.ExpiresAt()).
		Msg("access token refreshed")
	return tok, nil
}

// Invalidate drops the cached token so the next call exchanges again.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}
