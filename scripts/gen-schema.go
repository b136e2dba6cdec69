//go:build ignore

// Writes the JSON Schemas for editors: go run scripts/gen-schema.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

func main() {
	outputs := []struct {
		path string
		gen  func() ([]byte, error)
	}{
		{"schemas/program-v0.json", schema.GenerateProgramJSONSchema},
		{"schemas/shortcut-v0.json", schema.GenerateShortcutJSONSchema},
	}
	for _, o := range outputs {
		data, err := o.gen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error generating %s: %v\n", o.path, err)
			os.Exit(1)
		}
		if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(o.path, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote", o.path)
	}
}
