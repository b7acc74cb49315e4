package ledgerv1

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype the service is served under, so requests
// travel as application/grpc+json.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec marshals messages as JSON.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (Codec) Name() string { return CodecName }

// CallOptions makes a client connection use the JSON codec.
func CallOptions() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{}))
}
