package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/solatis/policykit/internal/core/api"
	"github.com/solatis/policykit/internal/core/config"
)

func startTestGRPC(t *testing.T) (*grpc.ClientConn, string) {
	t.Helper()
	stack := newTestStack(t)
	gs, err := api.NewGRPCService(stack.svc)
	require.NoError(t, err)

	cfg := config.DefaultConfig().Server
	server, err := NewGRPCServer(&cfg, gs, stack.auth, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, server.Shutdown(ctx))
		<-done
	})
	return conn, stack.key
}

func TestNewGRPCServer_NilDeps(t *testing.T) {
	_, err := NewGRPCServer(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestGRPC_HealthIsPublic(t *testing.T) {
	conn, _ := startTestGRPC(t)

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPC_Authenticated(t *testing.T) {
	conn, key := startTestGRPC(t)
	client := api.NewPolicyBuilderClient(conn)

	err := client.Call(context.Background(), api.MethodListPolicies, struct{}{}, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", key)
	var list api.ListResponse
	require.NoError(t, client.Call(ctx, api.MethodListPolicies, struct{}{}, &list))
	assert.Empty(t, list.Policies)

	draft := map[string]any{"name": "", "effect": "allow"}
	err = client.Call(ctx, api.MethodSubmitPolicy, draft, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, api.FieldViolations(err), api.FieldName)
}
