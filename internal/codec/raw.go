package codec

// cborNull is the single-byte CBOR encoding of null.
const cborNull = 0xf6

// RawData holds an encoded value whose decoding is deferred until its type
// is known. The bytes are in the format of the codec that produced them.
type RawData []byte

func (r RawData) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *RawData) UnmarshalJSON(data []byte) error {
	*r = append((*r)[0:0], data...)
	return nil
}

func (r RawData) MarshalCBOR() ([]byte, error) {
	if len(r) == 0 {
		return []byte{cborNull}, nil
	}
	return r, nil
}

func (r *RawData) UnmarshalCBOR(data []byte) error {
	*r = append((*r)[0:0], data...)
	return nil
}

// IsNull reports whether the raw value is absent or an encoded null.
func (r RawData) IsNull() bool {
	if len(r) == 0 {
		return true
	}
	if len(r) == 1 && r[0] == cborNull {
		return true
	}
	return string(r) == "null"
}
