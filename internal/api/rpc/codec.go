package rpc

import (
	"google.golang.org/grpc/encoding"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/wire"
)

// CodecName is the content-subtype the service is reachable under.
const CodecName = "json"

// codec encodes messages with the wire JSON configuration
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	return wire.API.Marshal(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	return wire.API.Unmarshal(data, v)
}

func (codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(codec{})
}
