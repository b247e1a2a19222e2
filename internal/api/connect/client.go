package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Client calls the player service of a daemon.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	opts       []connect.ClientOption
}

// NewClient creates a client for the daemon at baseURL that authenticates with
// adminToken.
func NewClient(httpClient connect.HTTPClient, baseURL, adminToken string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts: append([]connect.ClientOption{
			connect.WithCodec(jsonCodec{}),
			connect.WithInterceptors(NewAdminAuthInterceptor(adminToken)),
		}, opts...),
	}
}

// Call invokes a unary procedure.
func Call[Req, Res any](ctx context.Context, c *Client, procedure string, req *Req) (*Res, error) {
	client := connect.NewClient[Req, Res](c.httpClient, c.baseURL+procedure, c.opts...)
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Subscribe opens the notification stream of a player.
func (c *Client) Subscribe(ctx context.Context, playerID string) (*connect.ServerStreamForClient[Notification], error) {
	client := connect.NewClient[PlayerRequest, Notification](c.httpClient, c.baseURL+ProcedureSubscribe, c.opts...)
	return client.CallServerStream(ctx, connect.NewRequest(&PlayerRequest{PlayerID: playerID}))
}
