package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/policykit/internal/core/db"
)

const healthCheck = "/grpc.health.v1.Health/Check"

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = db.MigrateUp(ctx, conn)
	require.NoError(t, err)
	q, err := db.LoadQueries(conn)
	require.NoError(t, err)

	secrets := map[string][]byte{testSecretID: []byte("test-secret")}
	return NewAuthenticator(secrets, q, healthCheck, "/healthz")
}

func TestAuthenticate_IssueAndRevoke(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)

	issued, err := a.IssueKey(ctx, testSecretID, "ops@example.com", "ci")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)

	principal, err := a.Authenticate(ctx, issued.Key)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", principal)

	require.NoError(t, a.RevokeKey(ctx, issued.ID))
	require.NoError(t, a.RevokeKey(ctx, issued.ID), "second revoke is a no-op")

	_, err = a.Authenticate(ctx, issued.Key)
	assert.ErrorIs(t, err, ErrKeyRevoked)
}

func TestAuthenticate_Rejections(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)

	_, err := a.Authenticate(ctx, "not-a-key")
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)

	other, err := GenerateAPIKey("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	_, err = a.Authenticate(ctx, other)
	assert.ErrorIs(t, err, ErrUnknownKey)

	neverIssued, err := GenerateAPIKey(testSecretID)
	require.NoError(t, err)
	_, err = a.Authenticate(ctx, neverIssued)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestIssueKey_Validation(t *testing.T) {
	a := newTestAuthenticator(t)
	_, err := a.IssueKey(context.Background(), testSecretID, "  ", "")
	assert.Error(t, err)
	_, err = a.IssueKey(context.Background(), "ffffffffffffffffffffffffffffffff", "ops", "")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	q, err := db.LoadQueries(sqlx.NewDb(mockDB, db.DriverSQLite))
	require.NoError(t, err)
	a := NewAuthenticator(map[string][]byte{testSecretID: []byte("s")}, q)

	mock.ExpectQuery("FROM api_keys").WillReturnError(errors.New("connection reset"))

	key, err := GenerateAPIKey(testSecretID)
	require.NoError(t, err)
	_, err = a.Authenticate(context.Background(), key)
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, codes.Unavailable, grpcCode(err))
}

func TestShouldUpdateLastUsed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		lastUsed *time.Time
		want     bool
	}{
		{"never used", nil, true},
		{"just used", ptr(now.Add(-10 * time.Second)), false},
		{"used long ago", ptr(now.Add(-2 * time.Minute)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lu sql.NullTime
			if tt.lastUsed != nil {
				lu.Time, lu.Valid = *tt.lastUsed, true
			}
			assert.Equal(t, tt.want, shouldUpdateLastUsed(lu, now))
		})
	}
}

func TestUnaryInterceptor(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)
	issued, err := a.IssueKey(ctx, testSecretID, "svc", "")
	require.NoError(t, err)

	handler := func(ctx context.Context, req any) (any, error) {
		return PrincipalFromContext(ctx), nil
	}
	intercept := a.UnaryInterceptor()
	call := func(ctx context.Context, method string) (any, error) {
		return intercept(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
	}

	got, err := call(ctx, healthCheck)
	require.NoError(t, err, "health checks bypass auth")
	assert.Equal(t, "", got)

	_, err = call(ctx, "/policykit.v1.PolicyBuilder/BuildPredicate")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	md := metadata.Pairs(HeaderAPIKey, issued.Key)
	got, err = call(metadata.NewIncomingContext(ctx, md), "/policykit.v1.PolicyBuilder/BuildPredicate")
	require.NoError(t, err)
	assert.Equal(t, "svc", got)

	require.NoError(t, a.RevokeKey(ctx, issued.ID))
	_, err = call(metadata.NewIncomingContext(ctx, md), "/policykit.v1.PolicyBuilder/BuildPredicate")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)
	issued, err := a.IssueKey(ctx, testSecretID, "svc", "")
	require.NoError(t, err)

	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(PrincipalFromContext(r.Context())))
	}))

	tests := []struct {
		name     string
		path     string
		key      string
		wantCode int
		wantBody string
	}{
		{"public path", "/healthz", "", http.StatusOK, ""},
		{"missing key", "/api/v1/predicates/build", "", http.StatusUnauthorized, ""},
		{"malformed key", "/api/v1/predicates/build", "garbage", http.StatusUnauthorized, ""},
		{"valid key", "/api/v1/predicates/build", issued.Key, http.StatusOK, "svc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.key != "" {
				req.Header.Set(HeaderAPIKey, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestPrincipalFromContext_Missing(t *testing.T) {
	assert.Equal(t, "", PrincipalFromContext(context.Background()))
	assert.Equal(t, "x", PrincipalFromContext(WithPrincipal(context.Background(), "x")))
}

func ptr[T any](v T) *T { return &v }
