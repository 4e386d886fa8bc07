package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
	"github.com/alfredjeanlab/studiodesk/internal/store"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "studio.v1.QueryService"

const healthMethod = "/" + ServiceName + "/Health"

// QueryServiceServer is the gRPC surface of the studio backend. Requests and
// responses are structpb.Struct documents with the same shapes as the HTTP
// API bodies.
type QueryServiceServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Pluck(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ QueryServiceServer = (*StudioServer)(nil)

// QueryServiceDesc describes QueryServiceServer for grpc.Server.RegisterService.
var QueryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Query", QueryServiceServer.Query),
		unaryMethod("Pluck", QueryServiceServer.Pluck),
		unaryMethod("List", QueryServiceServer.List),
		unaryMethod("Health", QueryServiceServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "studio/v1/query.proto",
}

type structCall func(QueryServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call structCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(QueryServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(QueryServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the QueryService, reflection, and returns the server ready to serve.
func NewGRPCServer(studioServer *StudioServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(studioServer.logger),
			LoggingInterceptor(studioServer.logger),
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&QueryServiceDesc, studioServer)
	reflection.Register(srv)

	return srv
}

// Query executes a query description.
func (s *StudioServer) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var q query.Query
	if err := fromStruct(req, &q); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid query: %v", err)
	}
	page, err := s.runQuery(ctx, q)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(page)
}

// Pluck returns distinct column values.
func (s *StudioServer) Pluck(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in pluckRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid pluck request: %v", err)
	}
	vals, err := s.runPluck(ctx, in.Query, in.Column)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"values": vals})
}

// grpcListRequest carries the caller scope alongside the list parameters.
type grpcListRequest struct {
	Scope model.Scope `json:"scope"`
	ListRequest
}

// List fetches one page of a configured list.
func (s *StudioServer) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in grpcListRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid list request: %v", err)
	}
	resp, err := s.runList(ctx, in.Scope, in.ListRequest)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

// Health returns the service health status.
func (s *StudioServer) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "ok"})
}

// grpcError maps service errors to gRPC status codes.
func grpcError(err error) error {
	var ie inputError
	switch {
	case errors.As(err, &ie):
		return status.Error(codes.InvalidArgument, ie.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errUnknownList):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "marshal response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "unmarshal response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return out, nil
}

// fromStruct decodes a Struct into v through its JSON encoding.
func fromStruct(in *structpb.Struct, v any) error {
	data, err := in.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	return json.Unmarshal(data, v)
}
