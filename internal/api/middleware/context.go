package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const keyPrefixKey contextKey = "key_prefix"

// SetKeyPrefix records the authenticated API key prefix, used as the rate limit identity.
func SetKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func GetKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}
