package base

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// NewIdempotencyKey returns a random version-4 UUID.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// EnsureIdempotencyKey keeps a caller-supplied key or generates one.
func EnsureIdempotencyKey(key string) string {
	if k := strings.TrimSpace(key); k != "" {
		return k
	}
	return NewIdempotencyKey()
}

// LogOperation writes one structured line per completed gateway operation.
func LogOperation(providerName, operation string, details map[string]interface{}) {
	log.Info().
		Str("provider", providerName).
		Str("operation", operation).
		Fields(details).
		Msg("gateway operation completed")
}
