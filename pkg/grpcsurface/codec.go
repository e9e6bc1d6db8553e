package grpcsurface

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the content-subtype this codec registers under. With no
// protoc-gen-go output available to us (spec §1 puts codegen tooling out of
// core scope), messages travel as JSON rather than binary protobuf; the
// transport, interceptors and status-code plumbing are still genuine
// google.golang.org/grpc.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
