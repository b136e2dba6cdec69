package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally decodes a keystep/v0 program. JSON documents
// are accepted too since they are valid YAML.
// Returns a structural error if the document contains unknown fields.
func LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open program: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a keystep/v0 program from a reader.
func Load(r io.Reader) (*Program, error) {
	var p Program
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // strict: reject unknown fields
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("structural decode: empty document")
		}
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &p, nil
}

// Parse decodes a program held in memory.
func Parse(data []byte) (*Program, error) {
	return Load(bytes.NewReader(data))
}
