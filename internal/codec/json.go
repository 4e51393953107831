package codec

import (
	"io"

	json "github.com/goccy/go-json"
)

// JSON is the default codec. Frames are sent as websocket text messages.
type JSON struct{}

var _ Codec = JSON{}

func NewJSON() JSON {
	return JSON{}
}

func (JSON) Name() string {
	return NameJSON
}

func (JSON) Binary() bool {
	return false
}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) NewEncoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

func (JSON) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (JSON) NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
