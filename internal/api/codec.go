package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a grpc encoding.Codec that marshals messages as JSON
// instead of protobuf wire format. The teacher's gRPC layer (internal/api/
// grpc_server.go) depended on a generated "api/proto" package that was
// never actually present anywhere in the source tree, not even as a
// .proto file — it could not have compiled as shipped. Rather than carry
// that dead reference forward or fabricate generated protobuf bindings by
// hand, the service below is defined directly against plain Go structs
// and this codec, which grpc-go explicitly supports registering in place
// of protobuf.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("api: json codec marshal: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("api: json codec unmarshal: %w", err)
	}
	return nil
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
