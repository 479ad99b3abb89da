package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/policykit/internal/predicate"
	"github.com/solatis/policykit/internal/types"
)

// ErrMalformedRequest indicates a request body that could not be decoded.
var ErrMalformedRequest = errors.New("malformed request")

// Code maps err to a gRPC code. Shared by the gRPC and HTTP transports.
// Validation and malformed input map to INVALID_ARGUMENT / 422 (400 for
// undecodable bodies). Missing policies map to NOT_FOUND / 404.
// Context errors keep their meaning. Everything else is a backend or store
// failure: UNAVAILABLE / 503.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, types.ErrValidation),
		errors.Is(err, types.ErrInvalidPolicyID),
		errors.Is(err, ErrMalformedRequest):
		return codes.InvalidArgument
	case errors.Is(err, types.ErrPolicyNotFound):
		return codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Unavailable
	}
}

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrMalformedRequest) {
		return http.StatusBadRequest
	}
	switch Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusUnprocessableEntity
	case codes.NotFound:
		return http.StatusNotFound
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusServiceUnavailable
	}
}

// Status converts err to a gRPC status. Field errors are attached as
// errdetails.BadRequest violations in field order.
func Status(err error) *status.Status {
	st := status.New(Code(err), err.Error())

	var verr *predicate.ValidationError
	if !errors.As(err, &verr) {
		return st
	}
	br := &errdetails.BadRequest{}
	for _, field := range verr.FieldNames() {
		br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
			Field:       field,
			Description: verr.Fields[field],
		})
	}
	if withDetails, derr := st.WithDetails(br); derr == nil {
		return withDetails
	}
	return st
}

// FieldViolations extracts field errors from a gRPC error, if any.
func FieldViolations(err error) map[string]string {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	var out map[string]string
	for _, d := range st.Details() {
		br, ok := d.(*errdetails.BadRequest)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		for _, v := range br.GetFieldViolations() {
			out[v.GetField()] = v.GetDescription()
		}
	}
	return out
}
