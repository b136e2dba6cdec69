// Package vars implements the per-run variable store. Every value is text;
// numeric interpretation happens only where an action needs it.
package vars

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Input is the reserved variable that pipes a value between actions:
// read_clipboard and ask_chatgpt write it, templates read it as {{input}}.
const Input = "input"

var (
	// ErrParse reports text that could not be parsed as the expected number.
	ErrParse = errors.New("parse error")
	// ErrUndefinedVariable reports a variable that had to exist but did not.
	ErrUndefinedVariable = errors.New("undefined variable")
)

// Store maps case-sensitive variable names to text values. A Store belongs to
// one run and is not safe for concurrent use.
type Store struct {
	values map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// FromMap creates a store seeded with a copy of m.
func FromMap(m map[string]string) *Store {
	s := New()
	for k, v := range m {
		s.values[k] = v
	}
	return s
}

// Get returns the value of name and whether it exists.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Set assigns value to name.
func (s *Store) Set(name, value string) {
	s.values[name] = value
}

// Delete removes name. Deleting an absent name is a no-op.
func (s *Store) Delete(name string) {
	delete(s.values, name)
}

// Increment adds amount to the numeric value of name and stores the result.
// The variable must exist.
func (s *Store) Increment(name, amount string) (string, error) {
	cur, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUndefinedVariable, name)
	}
	base, err := ParseNumber(cur)
	if err != nil {
		return "", fmt.Errorf("variable %q: %w", name, err)
	}
	delta, err := ParseNumber(amount)
	if err != nil {
		return "", fmt.Errorf("amount: %w", err)
	}
	sum := base + delta
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		return "", fmt.Errorf("%w: %s + %s is out of range", ErrParse, cur, amount)
	}
	next := FormatNumber(sum)
	s.values[name] = next
	return next, nil
}

// Len returns the number of variables.
func (s *Store) Len() int {
	return len(s.values)
}

// Names returns the variable names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// ParseNumber parses text as a float64. Surrounding spaces and a leading '+'
// are accepted; NaN and infinities are not.
func ParseNumber(text string) (float64, error) {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "+")
	if t == "" {
		return 0, fmt.Errorf("%w: %q is not a number", ErrParse, text)
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrParse, text)
	}
	return f, nil
}

// FormatNumber renders f in its shortest decimal form: 5, 1.5, -0.25.
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseIndex parses text as a signed integer (step index or offset).
func ParseIndex(text string) (int, error) {
	t := strings.TrimSpace(text)
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrParse, text)
	}
	return n, nil
}
