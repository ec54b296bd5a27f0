package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a velac server.
type Client struct {
	compile *connect.Client[CompileRequest, CompileResponse]
	run     *connect.Client[RunRequest, RunResponse]
	resolve *connect.Client[ResolveRequest, ResolveResponse]
}

// NewClient creates a client for the server at baseURL, for example
// "http://localhost:7420". Extra options such as connect.WithGRPC are
// applied to every procedure.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		compile: connect.NewClient[CompileRequest, CompileResponse](httpClient, baseURL+CompileProcedure, opts...),
		run:     connect.NewClient[RunRequest, RunResponse](httpClient, baseURL+RunProcedure, opts...),
		resolve: connect.NewClient[ResolveRequest, ResolveResponse](httpClient, baseURL+ResolveProcedure, opts...),
	}
}

func (c *Client) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	resp, err := c.compile.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	resp, err := c.run.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	resp, err := c.resolve.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
