package codec

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/optisess/internal/snapshot"
)

// YAML is the yaml.v3 codec.
type YAML struct{}

// Name implements Codec.
func (YAML) Name() string { return "yaml" }

// Encode marshals s as a YAML mapping. yaml.v3 sorts map keys.
func (YAML) Encode(s snapshot.Map) ([]byte, error) {
	if s == nil {
		s = snapshot.Map{}
	}
	data, err := yaml.Marshal(snapshot.ToAny(s))
	if err != nil {
		return nil, fmt.Errorf("encode yaml snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a YAML mapping.
func (YAML) Decode(data []byte) (snapshot.Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return snapshot.Map{}, nil
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml snapshot: %w", err)
	}
	m, err := snapshot.FromAnyMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decode yaml snapshot: %w", err)
	}
	return m, nil
}
