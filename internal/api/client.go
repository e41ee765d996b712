package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a thin NodeSyncServer-shaped gRPC client, dialed against a
// running GRPCServer's address with the same JSON codec the server forces
// on every call. There is no generated stub to dial with (see
// grpc_server.go), so this plays the role protoc-gen-go-grpc's client code
// normally would.
type Client struct {
	conn *grpc.ClientConn
}

// DialClient connects to a GRPCServer at addr.
func DialClient(ctx context.Context, addr string) (*Client, error) {
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("api: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) PutNode(ctx context.Context, req *PutNodeRequest) (*PutNodeResponse, error) {
	out := new(PutNodeResponse)
	if err := c.conn.Invoke(ctx, "/mdcs.NodeSync/PutNode", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetHeads(ctx context.Context, req *GetHeadsRequest) (*GetHeadsResponse, error) {
	out := new(GetHeadsResponse)
	if err := c.conn.Invoke(ctx, "/mdcs.NodeSync/GetHeads", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RequestSync(ctx context.Context, req *RequestSyncRequest) (*RequestSyncResponse, error) {
	out := new(RequestSyncResponse)
	if err := c.conn.Invoke(ctx, "/mdcs.NodeSync/RequestSync", req, out); err != nil {
		return nil, err
	}
	return out, nil
}
