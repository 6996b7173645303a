package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type ctxKey string

const ctxOperator ctxKey = "HOTSPOT_OPERATOR"

// Operator identifies the caller of the ops API.
type Operator struct {
	Name string
}

// OperatorFromContext returns the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(ctxOperator).(Operator)
	return op, ok
}

// ExtractBearerToken reads the bearer token from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}

// ParseTokens parses "name:token" pairs separated by commas. A bare token is named "operator".
func ParseTokens(raw string) map[string]string {
	tokens := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, token, found := strings.Cut(entry, ":")
		if !found {
			name, token = "operator", entry
		}
		if token = strings.TrimSpace(token); token != "" {
			tokens[token] = strings.TrimSpace(name)
		}
	}
	return tokens
}

// RequireToken rejects requests whose bearer token is not one of tokens (token -> operator
// name) and stores the matching Operator on the request context.
func RequireToken(tokens map[string]string) func(http.Handler) http.Handler {
	if len(tokens) == 0 {
		panic("auth.RequireToken: at least one token is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := ExtractBearerToken(r)
			if !found || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ops"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			name, ok := match(tokens, token)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ops", error="invalid_token"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxOperator, Operator{Name: name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func match(tokens map[string]string, candidate string) (string, bool) {
	var (
		name  string
		found bool
	)
	for token, n := range tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1 {
			name, found = n, true
		}
	}
	return name, found
}
