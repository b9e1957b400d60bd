package inspect

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("inspect: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Summary to canonical CBOR bytes.
func Marshal(s *Summary) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Summary from CBOR bytes.
func Unmarshal(data []byte) (*Summary, error) {
	var s Summary
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("inspect: unmarshal summary: %w", err)
	}
	return &s, nil
}
