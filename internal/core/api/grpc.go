package api

/*
 * gRPC transport for PolicyService.
 *
 * The service is declared by hand instead of generated: every method takes
 * and returns a google.protobuf.Struct whose fields carry the same JSON the
 * HTTP endpoints use. Struct <-> Go conversion goes through protojson and
 * encoding/json so both transports share one wire shape.
 *
 *   OpenSession    {}                      -> session
 *   BuildPredicate {"form": FormState}     -> {"predicate": Predicate}
 *   ParsePredicate {"predicate": {...}}    -> {"form": FormState}
 *   SubmitPolicy   PolicyDraft             -> {"policy": Policy}
 *   GetPolicy      {"id": "..."}           -> PolicyView
 *   ListPolicies   {}                      -> {"policies": [Policy]}
 */

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/policykit/internal/predicate"
	"github.com/solatis/policykit/internal/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "policykit.v1.PolicyBuilder"

// Method names.
const (
	MethodOpenSession    = "OpenSession"
	MethodBuildPredicate = "BuildPredicate"
	MethodParsePredicate = "ParsePredicate"
	MethodSubmitPolicy   = "SubmitPolicy"
	MethodGetPolicy      = "GetPolicy"
	MethodListPolicies   = "ListPolicies"
)

// FullMethod returns the gRPC path for a method name.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// PolicyBuilderServer is the server API for the PolicyBuilder service.
type PolicyBuilderServer interface {
	OpenSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BuildPredicate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ParsePredicate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitPolicy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPolicy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPolicies(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type methodFunc func(PolicyBuilderServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call methodFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PolicyBuilderServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PolicyBuilderServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the PolicyBuilder service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyBuilderServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodOpenSession, PolicyBuilderServer.OpenSession),
		unaryHandler(MethodBuildPredicate, PolicyBuilderServer.BuildPredicate),
		unaryHandler(MethodParsePredicate, PolicyBuilderServer.ParsePredicate),
		unaryHandler(MethodSubmitPolicy, PolicyBuilderServer.SubmitPolicy),
		unaryHandler(MethodGetPolicy, PolicyBuilderServer.GetPolicy),
		unaryHandler(MethodListPolicies, PolicyBuilderServer.ListPolicies),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "policykit/v1/policy_builder.proto",
}

// RegisterPolicyBuilderServer registers srv on s.
func RegisterPolicyBuilderServer(s grpc.ServiceRegistrar, srv PolicyBuilderServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ToStruct converts any JSON-marshalable value to a Struct. v must encode
// as a JSON object.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to convert response: %w", err)
	}
	return out, nil
}

// FromStruct decodes a Struct into v. A nil Struct leaves v untouched.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	return nil
}

// Request and response envelopes, shared with the HTTP transport.
type (
	BuildRequest struct {
		Form predicate.FormState `json:"form"`
	}
	BuildResponse struct {
		Predicate types.Predicate `json:"predicate"`
	}
	ParseRequest struct {
		Predicate json.RawMessage `json:"predicate"`
	}
	ParseResponse struct {
		Form predicate.FormState `json:"form"`
	}
	SubmitResponse struct {
		Policy *types.Policy `json:"policy"`
	}
	GetRequest struct {
		ID string `json:"id"`
	}
	ListResponse struct {
		Policies []types.Policy `json:"policies"`
	}
)

// GRPCService adapts PolicyService to PolicyBuilderServer.
type GRPCService struct {
	svc *PolicyService
}

// NewGRPCService creates the gRPC adapter.
func NewGRPCService(svc *PolicyService) (*GRPCService, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	return &GRPCService{svc: svc}, nil
}

var _ PolicyBuilderServer = (*GRPCService)(nil)

// respond converts a result or error into the gRPC reply.
func respond(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, Status(err).Err()
	}
	out, err := ToStruct(v)
	if err != nil {
		return nil, Status(err).Err()
	}
	return out, nil
}

func (g *GRPCService) OpenSession(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return respond(g.svc.OpenSession(ctx))
}

func (g *GRPCService) BuildPredicate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := BuildRequest{Form: predicate.NewFormState()}
	if err := FromStruct(in, &req); err != nil {
		return nil, Status(err).Err()
	}
	pred, err := g.svc.BuildPredicate(ctx, req.Form)
	return respond(BuildResponse{Predicate: pred}, err)
}

func (g *GRPCService) ParsePredicate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ParseRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, Status(err).Err()
	}
	form, err := g.svc.ParsePredicate(ctx, req.Predicate)
	return respond(ParseResponse{Form: form}, err)
}

func (g *GRPCService) SubmitPolicy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	draft := PolicyDraft{Form: predicate.NewFormState()}
	if err := FromStruct(in, &draft); err != nil {
		return nil, Status(err).Err()
	}
	p, err := g.svc.SubmitPolicy(ctx, draft)
	return respond(SubmitResponse{Policy: p}, err)
}

func (g *GRPCService) GetPolicy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GetRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, Status(err).Err()
	}
	return respond(g.svc.GetPolicy(ctx, req.ID))
}

func (g *GRPCService) ListPolicies(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	policies, err := g.svc.ListPolicies(ctx)
	return respond(ListResponse{Policies: policies}, err)
}

// PolicyBuilderClient calls a remote PolicyBuilder service.
type PolicyBuilderClient struct {
	cc grpc.ClientConnInterface
}

// NewPolicyBuilderClient creates a client over cc.
func NewPolicyBuilderClient(cc grpc.ClientConnInterface) *PolicyBuilderClient {
	return &PolicyBuilderClient{cc: cc}
}

// Call invokes method with req encoded as a Struct and decodes the reply
// into resp. resp may be nil.
func (c *PolicyBuilderClient) Call(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	in, err := ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return FromStruct(out, resp)
}
