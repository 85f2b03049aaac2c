// Package xjson is the single JSON import site of the module.
package xjson

import (
	"bytes"
	stdjson "encoding/json"

	gjson "github.com/goccy/go-json"
)

// RawMessage is kept compatible with encoding/json's RawMessage type.
type RawMessage = stdjson.RawMessage

func Marshal(v any) ([]byte, error) {
	return gjson.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return gjson.Unmarshal(data, v)
}

// UnmarshalNumbers decodes data into v keeping numbers as json.Number so
// large integer ids survive without float rounding.
func UnmarshalNumbers(data []byte, v any) error {
	dec := gjson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
