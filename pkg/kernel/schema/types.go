// Package schema defines the keystep/v0 program, action and shortcut types.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// API version constant for keystep/v0 programs.
const APIVersionProgram = "keystep/v0"

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Program is the top-level keystep/v0 document: an ordered list of steps, each
// carrying exactly one action. Step indices are 0-based and contiguous.
type Program struct {
	APIVersion  string   `yaml:"apiVersion" json:"apiVersion"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Action `yaml:"steps" json:"steps" jsonschema:"minItems=1"`
}

// Len returns the number of steps.
func (p *Program) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// Step returns the action at index i.
func (p *Program) Step(i int) (Action, bool) {
	if p == nil || i < 0 || i >= len(p.Steps) {
		return Action{}, false
	}
	return p.Steps[i], true
}

// Uses reports whether any step carries the given action kind.
func (p *Program) Uses(kind ActionKind) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Steps {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Action
// ---------------------------------------------------------------------------

// ActionKind enumerates the sixteen action kinds.
type ActionKind string

const (
	ActionDebug             ActionKind = "debug"
	ActionSetVariable       ActionKind = "set_variable"
	ActionIncrementVariable ActionKind = "increment_variable"
	ActionDeleteVariable    ActionKind = "delete_variable"
	ActionSleep             ActionKind = "sleep"
	ActionEndProgram        ActionKind = "end_program"
	ActionGoToStep          ActionKind = "go_to_step"
	ActionGoToStepRelative  ActionKind = "go_to_step_relative"
	ActionIfElse            ActionKind = "if_else"
	ActionIfElseRelative    ActionKind = "if_else_relative"
	ActionSpawn             ActionKind = "spawn"
	ActionPrintConsole      ActionKind = "print_console"
	ActionShowDialog        ActionKind = "show_dialog"
	ActionReadClipboard     ActionKind = "read_clipboard"
	ActionWriteClipboard    ActionKind = "write_clipboard"
	ActionAskChatGPT        ActionKind = "ask_chatgpt"
)

// ActionKinds lists every kind in declaration order.
var ActionKinds = []ActionKind{
	ActionDebug,
	ActionSetVariable,
	ActionIncrementVariable,
	ActionDeleteVariable,
	ActionSleep,
	ActionEndProgram,
	ActionGoToStep,
	ActionGoToStepRelative,
	ActionIfElse,
	ActionIfElseRelative,
	ActionSpawn,
	ActionPrintConsole,
	ActionShowDialog,
	ActionReadClipboard,
	ActionWriteClipboard,
	ActionAskChatGPT,
}

// Field names as they appear on the wire.
const (
	FieldName       = "name"
	FieldValue      = "value"
	FieldAmount     = "amount"
	FieldDurationMS = "duration_ms"
	FieldStep       = "step"
	FieldOperation  = "operation"
	FieldA          = "a"
	FieldB          = "b"
	FieldStepTrue   = "step_true"
	FieldStepFalse  = "step_false"
	FieldCommand    = "command"
	FieldArgs       = "args"
	FieldContent    = "content"
	FieldTitle      = "title"
	FieldBody       = "body"
	FieldPrePrompt  = "pre_prompt"
	FieldPrompt     = "prompt"
)

var comparisonFields = []string{FieldOperation, FieldA, FieldB, FieldStepTrue, FieldStepFalse}

// kindFields is the fixed per-kind field set, in wire order.
var kindFields = map[ActionKind][]string{
	ActionDebug:             nil,
	ActionSetVariable:       {FieldName, FieldValue},
	ActionIncrementVariable: {FieldName, FieldAmount},
	ActionDeleteVariable:    {FieldName},
	ActionSleep:             {FieldDurationMS},
	ActionEndProgram:        nil,
	ActionGoToStep:          {FieldStep},
	ActionGoToStepRelative:  {FieldStep},
	ActionIfElse:            comparisonFields,
	ActionIfElseRelative:    comparisonFields,
	ActionSpawn:             {FieldCommand, FieldArgs},
	ActionPrintConsole:      {FieldContent},
	ActionShowDialog:        {FieldTitle, FieldBody},
	ActionReadClipboard:     nil,
	ActionWriteClipboard:    {FieldContent},
	ActionAskChatGPT:        {FieldPrePrompt, FieldPrompt},
}

// Valid reports whether k is one of the sixteen kinds.
func (k ActionKind) Valid() bool {
	_, ok := kindFields[k]
	return ok
}

// Fields returns the wire field names carried by kind k (excluding "action").
func (k ActionKind) Fields() []string {
	return kindFields[k]
}

// Action is the universal action structure. Fields are populated based on Kind;
// all scalar fields are text and are parsed only when the step executes.
type Action struct {
	Kind ActionKind `yaml:"action" json:"action"`

	// set_variable, increment_variable, delete_variable
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Value  string `yaml:"value,omitempty" json:"value,omitempty"`
	Amount string `yaml:"amount,omitempty" json:"amount,omitempty"`

	// sleep
	DurationMS string `yaml:"duration_ms,omitempty" json:"duration_ms,omitempty"`

	// go_to_step, go_to_step_relative
	Step string `yaml:"step,omitempty" json:"step,omitempty"`

	// if_else, if_else_relative
	Operation string `yaml:"operation,omitempty" json:"operation,omitempty"`
	A         string `yaml:"a,omitempty" json:"a,omitempty"`
	B         string `yaml:"b,omitempty" json:"b,omitempty"`
	StepTrue  string `yaml:"step_true,omitempty" json:"step_true,omitempty"`
	StepFalse string `yaml:"step_false,omitempty" json:"step_false,omitempty"`

	// spawn
	Command string   `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`

	// print_console, write_clipboard
	Content string `yaml:"content,omitempty" json:"content,omitempty"`

	// show_dialog
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	Body  string `yaml:"body,omitempty" json:"body,omitempty"`

	// ask_chatgpt
	PrePrompt string `yaml:"pre_prompt,omitempty" json:"pre_prompt,omitempty"`
	Prompt    string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
}

// Field returns the text value of a scalar wire field.
func (a *Action) Field(name string) string {
	switch name {
	case FieldName:
		return a.Name
	case FieldValue:
		return a.Value
	case FieldAmount:
		return a.Amount
	case FieldDurationMS:
		return a.DurationMS
	case FieldStep:
		return a.Step
	case FieldOperation:
		return a.Operation
	case FieldA:
		return a.A
	case FieldB:
		return a.B
	case FieldStepTrue:
		return a.StepTrue
	case FieldStepFalse:
		return a.StepFalse
	case FieldCommand:
		return a.Command
	case FieldContent:
		return a.Content
	case FieldTitle:
		return a.Title
	case FieldBody:
		return a.Body
	case FieldPrePrompt:
		return a.PrePrompt
	case FieldPrompt:
		return a.Prompt
	case FieldArgs:
		return strings.Join(a.Args, " ")
	}
	return ""
}

// ExtraFields returns the populated fields that do not belong to a's kind.
func (a *Action) ExtraFields() []string {
	allowed := make(map[string]bool)
	for _, f := range a.Kind.Fields() {
		allowed[f] = true
	}
	var extra []string
	for _, f := range allFields {
		if allowed[f] {
			continue
		}
		if f == FieldArgs {
			if len(a.Args) > 0 {
				extra = append(extra, f)
			}
			continue
		}
		if a.Field(f) != "" {
			extra = append(extra, f)
		}
	}
	return extra
}

var allFields = []string{
	FieldName, FieldValue, FieldAmount, FieldDurationMS, FieldStep,
	FieldOperation, FieldA, FieldB, FieldStepTrue, FieldStepFalse,
	FieldCommand, FieldArgs, FieldContent, FieldTitle, FieldBody,
	FieldPrePrompt, FieldPrompt,
}

// String renders a compact one-line description, e.g. set_variable(name="x", value="1").
func (a Action) String() string {
	fields := a.Kind.Fields()
	if len(fields) == 0 {
		return string(a.Kind)
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == FieldArgs {
			parts = append(parts, fmt.Sprintf("%s=%q", f, a.Args))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", f, a.Field(f)))
	}
	return fmt.Sprintf("%s(%s)", a.Kind, strings.Join(parts, ", "))
}

// MarshalJSON emits exactly the kind's field set, empty values included, so the
// output always matches the per-kind wire shape.
func (a Action) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteString(`{"action":`)
	kind, err := json.Marshal(string(a.Kind))
	if err != nil {
		return nil, err
	}
	b.Write(kind)
	for _, f := range a.Kind.Fields() {
		var v any = a.Field(f)
		if f == FieldArgs {
			args := a.Args
			if args == nil {
				args = []string{}
			}
			v = args
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, `,%q:`, f)
		b.Write(enc)
	}
	b.WriteString("}")
	return []byte(b.String()), nil
}

// MarshalYAML mirrors MarshalJSON, keeping wire field order.
func (a Action) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	node.Content = append(node.Content, yamlStr("action"), yamlStr(string(a.Kind)))
	for _, f := range a.Kind.Fields() {
		node.Content = append(node.Content, yamlStr(f))
		if f == FieldArgs {
			seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for _, arg := range a.Args {
				seq.Content = append(seq.Content, yamlStr(arg))
			}
			node.Content = append(node.Content, seq)
			continue
		}
		node.Content = append(node.Content, yamlStr(a.Field(f)))
	}
	return node, nil
}

func yamlStr(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	return n
}
