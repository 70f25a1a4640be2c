package timerv1

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// CodecName replaces connect's protobuf JSON codec for this service
const CodecName = "json"

type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, message)
}

// WithJSONCodec registers the plain JSON codec on a handler or client
func WithJSONCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
