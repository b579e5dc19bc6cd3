package riker

import (
	"io"

	"github.com/skuid/riker/decoding"
)

// Decode decodes a JSON body into destination and records the fields the body
// contained in the destination's metadata.Metadata. Pass the result to
// Session.AttachDecoded to save only those fields.
func Decode(body io.Reader, destination interface{}) error {
	return decoding.GetDecoder(nil).NewDecoder(body).Decode(destination)
}

// Unmarshal is Decode for a byte slice
func Unmarshal(data []byte, destination interface{}) error {
	return decoding.GetDecoder(nil).Unmarshal(data, destination)
}
