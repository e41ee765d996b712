package api

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/mdcs-io/mdcs/internal/syncengine"
	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// dialGRPC stands a GRPCServer up over an in-memory bufconn listener and
// returns a Client bound to it, cleaned up on test end.
func dialGRPC(t *testing.T, g *GRPCServer) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	go func() {
		_ = g.server.Serve(lis)
	}()
	t.Cleanup(func() { g.server.Stop() })

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
		grpc.WithBlock(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &Client{conn: conn}
}

func TestGRPCPutNodeAdmitsGenesisAndReturnsItsCid(t *testing.T) {
	dag := merkledag.NewMemoryDAGStore(0)
	api := NewServer(dag, nil, nil)
	g := NewGRPCServer(api)
	client := dialGRPC(t, g)

	genesis := merkledag.NewGenesis(crdt.ReplicaID("replica-a"))
	wire := syncengine.WireNode{Author: "replica-a", Height: 0, Kind: 0}

	resp, err := client.PutNode(context.Background(), &PutNodeRequest{Node: wire})
	require.NoError(t, err)
	assert.True(t, resp.Admitted)
	assert.Equal(t, merkledag.ComputeCid(genesis).String(), resp.Cid)
}

func TestGRPCGetHeadsReflectsAnAdmittedGenesis(t *testing.T) {
	dag := merkledag.NewMemoryDAGStore(0)
	genesis := merkledag.NewGenesis(crdt.ReplicaID("replica-a"))
	cid, err := dag.Put(genesis)
	require.NoError(t, err)

	api := NewServer(dag, nil, nil)
	g := NewGRPCServer(api)
	client := dialGRPC(t, g)

	resp, err := client.GetHeads(context.Background(), &GetHeadsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Heads, 1)
	assert.Equal(t, cid.String(), resp.Heads[0])
}
