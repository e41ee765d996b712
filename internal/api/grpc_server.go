package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"

	"github.com/mdcs-io/mdcs/internal/syncengine"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// The teacher's gRPC layer imported a generated "github.com/rechain/rechain/
// api/proto" package that exists nowhere in the source tree — no .proto
// file, no generated pb.go, nothing protoc could ever have produced it
// from. It could not have compiled as shipped. Every one of its roughly
// fifteen handlers was also a hardcoded stub that never touched the
// embedded REST Server despite comments claiming otherwise.
//
// grpc-go does not require protobuf-generated stubs; a service is just a
// grpc.ServiceDesc plus a codec able to (de)serialize whatever the handler
// methods accept. codec.go registers a JSON codec for exactly that reason.
// What follows is the same boilerplate protoc-gen-go-grpc would otherwise
// emit, written by hand against the three operations PUT /nodes, GET
// /heads, and POST /sync actually need, instead of the chain-explorer
// surface the teacher's stub pretended to serve.

type PutNodeRequest struct {
	Node syncengine.WireNode `json:"node"`
}

type PutNodeResponse struct {
	Cid      string `json:"cid"`
	Admitted bool   `json:"admitted"`
}

type GetHeadsRequest struct{}

type GetHeadsResponse struct {
	Heads      []string          `json:"heads"`
	FrontierVV map[string]uint64 `json:"frontier_vv"`
}

type RequestSyncRequest struct {
	Head string `json:"head"`
}

type RequestSyncResponse struct {
	Status string `json:"status"`
}

// NodeSyncServer is the service interface the hand-written descriptor
// below dispatches to.
type NodeSyncServer interface {
	PutNode(context.Context, *PutNodeRequest) (*PutNodeResponse, error)
	GetHeads(context.Context, *GetHeadsRequest) (*GetHeadsResponse, error)
	RequestSync(context.Context, *RequestSyncRequest) (*RequestSyncResponse, error)
}

func _NodeSync_PutNode_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PutNodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeSyncServer).PutNode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/mdcs.NodeSync/PutNode"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeSyncServer).PutNode(ctx, req.(*PutNodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _NodeSync_GetHeads_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetHeadsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeSyncServer).GetHeads(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/mdcs.NodeSync/GetHeads"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeSyncServer).GetHeads(ctx, req.(*GetHeadsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _NodeSync_RequestSync_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RequestSyncRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeSyncServer).RequestSync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/mdcs.NodeSync/RequestSync"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeSyncServer).RequestSync(ctx, req.(*RequestSyncRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// nodeSyncServiceDesc is what protoc-gen-go-grpc would have emitted from a
// mdcs.proto defining this service; written here by hand since that file
// never existed in the teacher repo.
var nodeSyncServiceDesc = grpc.ServiceDesc{
	ServiceName: "mdcs.NodeSync",
	HandlerType: (*NodeSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PutNode", Handler: _NodeSync_PutNode_Handler},
		{MethodName: "GetHeads", Handler: _NodeSync_GetHeads_Handler},
		{MethodName: "RequestSync", Handler: _NodeSync_RequestSync_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mdcs.proto",
}

// GRPCServer is the gRPC mirror of Server: same three operations, same
// underlying dag/engine, a different wire format.
type GRPCServer struct {
	server    *grpc.Server
	api       *Server
	tlsConfig *tls.Config
}

// NewGRPCServer wires a gRPC front end onto an already-constructed REST
// Server, reusing its dag/engine/broadcaster rather than standing up a
// second copy of the node's state.
func NewGRPCServer(api *Server) *GRPCServer {
	g := &GRPCServer{api: api}
	g.server = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	g.server.RegisterService(&nodeSyncServiceDesc, g)
	return g
}

// SetTLSConfig arms the gRPC front end to terminate TLS. Must be called
// before Start.
func (g *GRPCServer) SetTLSConfig(cfg *tls.Config) {
	g.tlsConfig = cfg
}

// Start listens on addr and serves until Stop is called, over TLS if
// SetTLSConfig was called.
func (g *GRPCServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: grpc listen: %w", err)
	}
	if g.tlsConfig != nil {
		lis = tls.NewListener(lis, g.tlsConfig)
		log.Printf("api: gRPC server starting on %s (tls)", addr)
	} else {
		log.Printf("api: gRPC server starting on %s", addr)
	}
	return g.server.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (g *GRPCServer) Stop() {
	g.server.GracefulStop()
}

func (g *GRPCServer) PutNode(ctx context.Context, req *PutNodeRequest) (*PutNodeResponse, error) {
	n, err := req.Node.Node()
	if err != nil {
		return nil, fmt.Errorf("api: grpc PutNode: %w", err)
	}

	cid, err := g.api.dag.Put(n)
	if err != nil {
		return nil, fmt.Errorf("api: grpc PutNode: %w", err)
	}

	if g.api.broadcaster != nil && g.api.dag.Has(cid) {
		if err := g.api.broadcaster.Announce(cid); err != nil {
			log.Printf("api: grpc PutNode: best-effort announce failed: %v", err)
		}
	}

	if g.api.audit != nil {
		g.api.audit.LogSecurityEvent("node_admitted", cid.String())
	}

	return &PutNodeResponse{Cid: cid.String(), Admitted: g.api.dag.Has(cid)}, nil
}

func (g *GRPCServer) GetHeads(ctx context.Context, req *GetHeadsRequest) (*GetHeadsResponse, error) {
	heads := g.api.dag.Heads()
	vv, err := g.api.dag.FrontierVV(heads)
	if err != nil {
		return nil, fmt.Errorf("api: grpc GetHeads: %w", err)
	}

	headStrs := make([]string, len(heads))
	for i, h := range heads {
		headStrs[i] = h.String()
	}

	vvOut := make(map[string]uint64, len(vv))
	for replica, height := range vv {
		vvOut[string(replica)] = height
	}

	return &GetHeadsResponse{Heads: headStrs, FrontierVV: vvOut}, nil
}

func (g *GRPCServer) RequestSync(ctx context.Context, req *RequestSyncRequest) (*RequestSyncResponse, error) {
	head, err := merkledag.ParseCid(req.Head)
	if err != nil {
		return nil, fmt.Errorf("api: grpc RequestSync: bad cid: %w", err)
	}
	if err := g.api.engine.RequestHead(head); err != nil {
		return nil, fmt.Errorf("api: grpc RequestSync: %w", err)
	}
	return &RequestSyncResponse{Status: "requested"}, nil
}
