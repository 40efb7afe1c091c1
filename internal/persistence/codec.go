package persistence

import (
	"bytes"
	"encoding/gob"
)

// EncodeValue serializes a value using encoding/gob. The journal stores
// structured run fields (audits, flaky case results) as opaque blobs so the
// schema stays stable while those types evolve.
func EncodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue decodes data produced by EncodeValue into T.
// Empty input yields the zero value.
func DecodeValue[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}
