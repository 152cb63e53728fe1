// Package codec converts session snapshots to and from the bytes a record
// store keeps.
//
// Codecs are opaque to the session controller. Two are provided:
//
//   - JSON: RFC 8785 canonical form (github.com/gowebpki/jcs), so equal
//     snapshots always encode to equal bytes
//   - YAML: gopkg.in/yaml.v3, for stores that humans read
//
// Both are lossy for Float values with an integral value, which read back
// as Int. The session controller compares working copies in their stored
// form for that reason.
//
// Decoding empty input yields the empty snapshot: a record that was never
// written reads as {}.
package codec

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/optisess/internal/snapshot"
)

// Codec encodes and decodes snapshots.
type Codec interface {
	// Name identifies the codec in configuration.
	Name() string
	Encode(s snapshot.Map) ([]byte, error)
	Decode(data []byte) (snapshot.Map, error)
}

var registry = map[string]Codec{
	"json": JSON{},
	"yaml": YAML{},
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	c, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q: must be one of %v", name, Names())
	}
	return c, nil
}

// ForPath picks a codec from a file extension. Unknown extensions use JSON.
func ForPath(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML{}
	default:
		return JSON{}
	}
}

// Names lists registered codec names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
