package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"

	"github.com/solatis/policykit/internal/predicate"
	"github.com/solatis/policykit/internal/types"
)

func TestErrorMapping(t *testing.T) {
	verr := &predicate.ValidationError{}
	verr.Add("name", "name is required")

	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
		wantHTTP int
	}{
		{"nil", nil, codes.OK, http.StatusOK},
		{"field errors", verr, codes.InvalidArgument, http.StatusUnprocessableEntity},
		{"backend validation", fmt.Errorf("create: %w", types.ErrValidation), codes.InvalidArgument, http.StatusUnprocessableEntity},
		{"bad id", types.ErrInvalidPolicyID, codes.InvalidArgument, http.StatusUnprocessableEntity},
		{"malformed", fmt.Errorf("%w: eof", ErrMalformedRequest), codes.InvalidArgument, http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: abc", types.ErrPolicyNotFound), codes.NotFound, http.StatusNotFound},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded, http.StatusGatewayTimeout},
		{"backend down", errBackendDown, codes.Unavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.wantCode {
				t.Errorf("Code() = %v, want %v", got, tt.wantCode)
			}
			if got := HTTPStatus(tt.err); got != tt.wantHTTP {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantHTTP)
			}
		})
	}
}

func TestStatus_FieldViolations(t *testing.T) {
	verr := &predicate.ValidationError{}
	verr.Add("role", "invalid number")
	verr.Add("effect", "bad effect")

	got := FieldViolations(Status(verr).Err())
	want := map[string]string{"role": "invalid number", "effect": "bad effect"}
	if len(got) != len(want) {
		t.Fatalf("FieldViolations() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("FieldViolations()[%q] = %q, want %q", k, got[k], v)
		}
	}

	if FieldViolations(Status(errBackendDown).Err()) != nil {
		t.Error("plain errors carry no violations")
	}
}
