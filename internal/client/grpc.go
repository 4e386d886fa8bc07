package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
)

const serviceName = "studio.v1.QueryService"

// GRPCClient implements StudioClient using the gRPC transport. Messages are
// structpb.Struct documents shaped like the HTTP bodies.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

var _ StudioClient = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
// When token is non-empty it is sent as a bearer token on every call.
func NewGRPCClient(addr, token string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Fetch executes q on the server.
func (c *GRPCClient) Fetch(ctx context.Context, q query.Query) (*query.Page, error) {
	var page query.Page
	if err := c.call(ctx, "Query", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Pluck returns the distinct values of column across rows matching q.
func (c *GRPCClient) Pluck(ctx context.Context, q query.Query, column string) ([]string, error) {
	var resp struct {
		Values []string `json:"values"`
	}
	if err := c.call(ctx, "Pluck", map[string]any{"query": q, "column": column}, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// List fetches one page of the named list as seen by scope.
func (c *GRPCClient) List(ctx context.Context, scope model.Scope, req *ListRequest) (*ListResponse, error) {
	in := struct {
		Scope model.Scope `json:"scope"`
		*ListRequest
	}{scope, req}
	var resp ListResponse
	if err := c.call(ctx, "List", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "Health", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// call invokes method with in encoded as a Struct and decodes the reply into out.
func (c *GRPCClient) call(ctx context.Context, method string, in, out any) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp); err != nil {
		return err
	}
	data, err := resp.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal %s response: %w", method, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	s := new(structpb.Struct)
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return s, nil
}
