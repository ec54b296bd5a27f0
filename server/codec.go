package server

import (
	"github.com/fxamacker/cbor/v2"
)

// codecName is the Connect codec name; the wire content types are
// application/cbor (Connect) and application/grpc+cbor (gRPC).
const codecName = "cbor"

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	cborEnc, cborDec = em, dm
}

// Codec marshals RPC messages as canonical CBOR. Pass it to both the
// handler and client side with connect.WithCodec.
type Codec struct{}

func (Codec) Name() string { return codecName }

func (Codec) Marshal(msg any) ([]byte, error) {
	return cborEnc.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	return cborDec.Unmarshal(data, msg)
}
