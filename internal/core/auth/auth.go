// Package auth provides HMAC-based API key authentication for the gRPC and
// HTTP surfaces.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HeaderAPIKey carries the API key in gRPC metadata and HTTP headers.
const HeaderAPIKey = "x-api-key"

// lastUsedThrottle bounds last_used_at writes per key.
const lastUsedThrottle = time.Minute

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// principalKey is the context key for the authenticated principal.
const principalKey = contextKey("principal")

// Queries defines the named-query operations authentication needs.
// Implemented by *db.Queries.
type Queries interface {
	Get(ctx context.Context, name string, dest any, args ...any) error
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
	// public methods bypass authentication (full gRPC method names or HTTP paths)
	public map[string]bool
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
// public lists gRPC methods and HTTP paths served without a key.
func NewAuthenticator(secrets map[string][]byte, queries Queries, public ...string) *Authenticator {
	a := &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     time.Now,
		public:  make(map[string]bool, len(public)),
	}
	for _, p := range public {
		a.public[p] = true
	}
	return a
}

// Authenticate validates an API key and returns its principal.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	computedHash := ComputeHMAC(secret, apiKey)

	// key_hash is unique, so at most one row matches
	var result struct {
		APIKeyID   string       `db:"api_key_id"`
		Principal  string       `db:"principal"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}

	err = a.queries.Get(ctx, "get-api-key-by-hash", &result, computedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}

	if result.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	now := a.now().UTC()
	if shouldUpdateLastUsed(result.LastUsedAt, now) {
		_, _ = a.queries.Exec(ctx, "update-last-used", now, result.APIKeyID)
	}

	return result.Principal, nil
}

// shouldUpdateLastUsed throttles last_used_at writes to one per minute.
func shouldUpdateLastUsed(lastUsed sql.NullTime, now time.Time) bool {
	if !lastUsed.Valid {
		return true
	}
	return now.Sub(lastUsed.Time) > lastUsedThrottle
}

// IssuedKey is a freshly created API key. Key is shown once and never stored.
type IssuedKey struct {
	ID        string
	Key       string
	Principal string
}

// IssueKey creates and stores a key for principal under the given secret.
func (a *Authenticator) IssueKey(ctx context.Context, secretID, principal, name string) (*IssuedKey, error) {
	if strings.TrimSpace(principal) == "" {
		return nil, fmt.Errorf("principal is required")
	}
	secret, ok := a.secrets[secretID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, secretID)
	}

	key, err := GenerateAPIKey(secretID)
	if err != nil {
		return nil, err
	}
	id := uuid.Must(uuid.NewV7()).String()

	_, err = a.queries.Exec(ctx, "insert-api-key",
		id, secretID, ComputeHMAC(secret, key), principal, name, a.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to store API key: %w", err)
	}
	return &IssuedKey{ID: id, Key: key, Principal: principal}, nil
}

// RevokeKey marks a key revoked. Revoking twice is not an error.
func (a *Authenticator) RevokeKey(ctx context.Context, apiKeyID string) error {
	if _, err := a.queries.Exec(ctx, "revoke-api-key", a.now().UTC(), apiKeyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	return nil
}

// grpcCode maps authentication failures to status codes.
func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return codes.PermissionDenied
	case errors.Is(err, ErrStore):
		return codes.Unavailable
	default:
		return codes.Unauthenticated
	}
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if a.public[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get(HeaderAPIKey)
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		principal, err := a.Authenticate(ctx, apiKeys[0])
		if err != nil {
			return nil, status.Error(grpcCode(err), err.Error())
		}

		return handler(WithPrincipal(ctx, principal), req)
	}
}

// httpStatus maps authentication failures to HTTP statuses.
func httpStatus(err error) int {
	switch grpcCode(err) {
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// Middleware authenticates HTTP requests by the x-api-key header.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(HeaderAPIKey)
		if apiKey == "" {
			http.Error(w, ErrMissingKey.Error(), http.StatusUnauthorized)
			return
		}

		principal, err := a.Authenticate(r.Context(), apiKey)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// WithPrincipal returns ctx carrying principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext extracts the authenticated principal.
// Returns empty string if not found.
func PrincipalFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey).(string); ok {
		return p
	}
	return ""
}
