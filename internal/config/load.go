package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	return schema, nil
})

// Load reads a configuration file. The format follows the extension:
// .cue for CUE, .json for JSON, anything else is YAML. Fields the file
// leaves out keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes data as if it had been read from path.
func Parse(path string, data []byte) (*Config, error) {
	doc, err := toJSON(path, data)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(doc); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// toJSON converts the document to JSON so one schema covers all formats.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		v := cuecontext.New().CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("compile cue config: %w", err)
		}
		doc, err := v.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("export cue config: %w", err)
		}
		return doc, nil
	case ".json":
		return data, nil
	default:
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		doc, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("convert yaml config: %w", err)
		}
		return doc, nil
	}
}

func validateSchema(doc []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(doc)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
