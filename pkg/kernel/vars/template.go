package vars

import (
	"regexp"
	"strings"
)

// tagRe matches a {{name}} reference; inner whitespace is allowed.
var tagRe = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// HasTemplate reports whether text contains a {{name}} reference.
func HasTemplate(text string) bool {
	return strings.Contains(text, "{{") && tagRe.MatchString(text)
}

// Render replaces every {{name}} in text with the value of that variable.
// References to absent variables are left verbatim.
// Example: Render("Loop iteration {{i}}") with i=3 → "Loop iteration 3"
func (s *Store) Render(text string) string {
	if !strings.Contains(text, "{{") {
		return text // fast path for literals
	}
	return tagRe.ReplaceAllStringFunc(text, func(tag string) string {
		name := tagRe.FindStringSubmatch(tag)[1]
		if v, ok := s.values[name]; ok {
			return v
		}
		return tag
	})
}

// RenderAll renders each element of list.
func (s *Store) RenderAll(list []string) []string {
	if list == nil {
		return nil
	}
	out := make([]string, len(list))
	for i, item := range list {
		out[i] = s.Render(item)
	}
	return out
}

// References returns the variable names referenced by text, in order of appearance.
func References(text string) []string {
	var names []string
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		names = append(names, m[1])
	}
	return names
}

// Operand resolves a comparison operand. Templates are rendered; otherwise an
// operand that names an existing variable yields its value; anything else is
// a literal.
func (s *Store) Operand(operand string) string {
	if HasTemplate(operand) {
		return s.Render(operand)
	}
	if v, ok := s.values[operand]; ok {
		return v
	}
	return operand
}
