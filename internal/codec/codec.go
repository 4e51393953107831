// Package codec defines how frames are turned into bytes on the wire.
//
// Two codecs are provided: JSON over text frames, which is what browser peers
// speak, and CBOR over binary frames for compact native clients.
package codec

import (
	"fmt"
	"io"
)

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec marshals and unmarshals wire frames.
type Codec interface {
	Marshaler
	Unmarshaler

	// Name is the identifier used in configuration and as the websocket subprotocol.
	Name() string

	// Binary reports whether encoded frames must be sent as binary websocket messages.
	Binary() bool
}

const (
	NameJSON = "json"
	NameCBOR = "cbor"
)

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", NameJSON:
		return NewJSON(), nil
	case NameCBOR:
		return NewCBOR(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
