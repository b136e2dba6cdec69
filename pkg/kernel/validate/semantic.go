package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

const programResource = "program-v0.json"

var printer = message.NewPrinter(language.English)

var (
	compileOnce sync.Once
	compiled    *sjsonschema.Schema
	compileErr  error
)

// programSchema compiles the generated program schema once per process.
func programSchema() (*sjsonschema.Schema, error) {
	compileOnce.Do(func() {
		schemaJSON, err := schema.GenerateProgramJSONSchema()
		if err != nil {
			compileErr = fmt.Errorf("generate schema: %w", err)
			return
		}
		schemaDoc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(programResource, schemaDoc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(programResource)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// validateSemanticDocument checks the document as written, so a missing or
// foreign field is reported even when the struct decode would hide it.
func validateSemanticDocument(data []byte) []*ValidationError {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "decode document: %v", err)}
	}
	// Round-trip through JSON to get the value shapes the validator expects.
	js, err := json.Marshal(raw)
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "document is not JSON-compatible: %v", err)}
	}
	return validateSemanticJSON(js)
}

// validateSemanticProgram checks a program built in Go.
func validateSemanticProgram(p *schema.Program) []*ValidationError {
	js, err := json.Marshal(p)
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "marshal for schema validation: %v", err)}
	}
	return validateSemanticJSON(js)
}

func validateSemanticJSON(js []byte) []*ValidationError {
	sch, err := programSchema()
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "%v", err)}
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(js))
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "unmarshal document: %v", err)}
	}
	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return []*ValidationError{errorf(PhaseSemantic, "", "%s", err)}
	}
	var errs []*ValidationError
	seen := map[string]bool{}
	for _, cause := range flattenValidationErrors(ve) {
		e := errorf(PhaseSemantic, instancePath(cause.InstanceLocation), "%s", cause.ErrorKind.LocalizedString(printer))
		key := e.Path + "\x00" + e.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		errs = append(errs, e)
	}
	return errs
}

// flattenValidationErrors recursively collects all leaf validation errors.
// A failed Action oneOf descends only into the arm whose action tag matched,
// so a bad step reports its own missing or foreign fields instead of sixteen
// tag mismatches.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	if _, ok := ve.ErrorKind.(*kind.OneOf); ok {
		var tagged []*sjsonschema.ValidationError
		for _, arm := range ve.Causes {
			if !mismatchesTag(arm) {
				tagged = append(tagged, arm)
			}
		}
		if len(tagged) != 1 {
			return []*sjsonschema.ValidationError{{
				InstanceLocation: ve.InstanceLocation,
				ErrorKind:        &unknownShape{},
			}}
		}
		return flattenValidationErrors(tagged[0])
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// mismatchesTag reports whether the arm failed on its action const.
func mismatchesTag(ve *sjsonschema.ValidationError) bool {
	if _, ok := ve.ErrorKind.(*kind.Const); ok {
		loc := ve.InstanceLocation
		if len(loc) > 0 && loc[len(loc)-1] == "action" {
			return true
		}
	}
	for _, c := range ve.Causes {
		if mismatchesTag(c) {
			return true
		}
	}
	return false
}

type unknownShape struct{}

func (*unknownShape) KeywordPath() []string { return []string{"oneOf"} }

func (*unknownShape) LocalizedString(*message.Printer) string {
	return "action must be one of: " + strings.Join(kindNames(), ", ")
}

func kindNames() []string {
	names := make([]string, len(schema.ActionKinds))
	for i, k := range schema.ActionKinds {
		names[i] = string(k)
	}
	return names
}

// instancePath renders ["steps","2","step"] as steps[2].step.
func instancePath(loc []string) string {
	var b strings.Builder
	for i, seg := range loc {
		if isIndex(seg) {
			fmt.Fprintf(&b, "[%s]", seg)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, c := range seg {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
