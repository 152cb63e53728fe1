package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/roach88/optisess/internal/snapshot"
)

// JSON is the RFC 8785 canonical JSON codec: keys in UTF-16 order, no
// insignificant whitespace, ES6 number form. Equal snapshots encode to
// equal bytes.
//
// Canonical JSON numbers are IEEE doubles, so an Int outside ±(2^53-1)
// cannot be encoded, and a Float with an integral value (Float(2)) is
// written as 2 and reads back as Int(2).
type JSON struct{}

// maxSafeInt is the largest integer every JSON reader holds exactly.
const maxSafeInt = 1<<53 - 1

// Name implements Codec.
func (JSON) Name() string { return "json" }

// Encode marshals s. A nil snapshot encodes as {}.
func (JSON) Encode(s snapshot.Map) ([]byte, error) {
	if s == nil {
		s = snapshot.Map{}
	}
	if err := checkNumbers(s); err != nil {
		return nil, fmt.Errorf("encode json snapshot: %w", err)
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode json snapshot: %w", err)
	}
	data, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("encode json snapshot: canonicalize: %w", err)
	}
	return data, nil
}

// checkNumbers rejects integers that canonical JSON would round.
func checkNumbers(v snapshot.Value) error {
	switch val := v.(type) {
	case snapshot.Int:
		if val > maxSafeInt || val < -maxSafeInt {
			return fmt.Errorf("integer %d out of JSON range", int64(val))
		}
	case snapshot.List:
		for i, elem := range val {
			if err := checkNumbers(elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
	case snapshot.Map:
		for k, elem := range val {
			if err := checkNumbers(elem); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
	}
	return nil
}

// Decode parses a JSON object. Integer literals become snapshot.Int.
func (JSON) Decode(data []byte) (snapshot.Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return snapshot.Map{}, nil
	}
	var m snapshot.Map
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decode json snapshot: %w", err)
	}
	return m, nil
}

// Fingerprint returns the sha256 hex digest of the canonical encoding of
// s. It identifies snapshot contents in logs without printing them.
func Fingerprint(s snapshot.Map) (string, error) {
	data, err := JSON{}.Encode(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
