// Package eval implements the comparator used by if_else and
// if_else_relative: a named binary operation over two text operands.
package eval

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/keystep/pkg/kernel/vars"
)

// ErrParse is shared with the variable store so errors.Is works across packages.
var ErrParse = vars.ErrParse

// ErrUnknownOperation reports an operation name outside the closed list.
var ErrUnknownOperation = fmt.Errorf("%w: unknown operation", ErrParse)

// OpExpr evaluates operand a as an expr-lang boolean expression.
const OpExpr = "expr"

type comparison func(a, b string) (bool, error)

var operations = map[string]comparison{
	"equal":     textEqual,
	"eq":        textEqual,
	"==":        textEqual,
	"not_equal": negate(textEqual),
	"ne":        negate(textEqual),
	"!=":        negate(textEqual),

	"less_than":        ordered(func(x, y float64) bool { return x < y }),
	"lt":               ordered(func(x, y float64) bool { return x < y }),
	"<":                ordered(func(x, y float64) bool { return x < y }),
	"less_or_equal":    ordered(func(x, y float64) bool { return x <= y }),
	"le":               ordered(func(x, y float64) bool { return x <= y }),
	"<=":               ordered(func(x, y float64) bool { return x <= y }),
	"greater_than":     ordered(func(x, y float64) bool { return x > y }),
	"gt":               ordered(func(x, y float64) bool { return x > y }),
	">":                ordered(func(x, y float64) bool { return x > y }),
	"greater_or_equal": ordered(func(x, y float64) bool { return x >= y }),
	"ge":               ordered(func(x, y float64) bool { return x >= y }),
	">=":               ordered(func(x, y float64) bool { return x >= y }),

	"string_equals":       textEqual,
	"str_equals":          textEqual,
	"string_not_equals":   negate(textEqual),
	"string_contains":     text(strings.Contains),
	"string_not_contains": negate(text(strings.Contains)),
	"string_starts_with":  text(strings.HasPrefix),
	"string_ends_with":    text(strings.HasSuffix),
	"string_is_empty":     func(a, _ string) (bool, error) { return a == "", nil },
	"string_is_not_empty": func(a, _ string) (bool, error) { return a != "", nil },
}

// Evaluate applies op to already-resolved operands. The expr operation needs
// the variable store and is only available through EvaluateWith.
func Evaluate(op, a, b string) (bool, error) {
	return EvaluateWith(op, a, b, nil)
}

// EvaluateWith is Evaluate with the variable store exposed to the expr
// operation. Other operations ignore store.
func EvaluateWith(op, a, b string, store *vars.Store) (bool, error) {
	if op == OpExpr {
		return evalExpr(a, store)
	}
	fn, ok := operations[op]
	if !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownOperation, op)
	}
	return fn(a, b)
}

// Known reports whether op is a recognised operation name.
func Known(op string) bool {
	if op == OpExpr {
		return true
	}
	_, ok := operations[op]
	return ok
}

// Operations lists every accepted operation name, sorted.
func Operations() []string {
	names := make([]string, 0, len(operations)+1)
	for k := range operations {
		names = append(names, k)
	}
	names = append(names, OpExpr)
	sort.Strings(names)
	return names
}

func textEqual(a, b string) (bool, error) { return a == b, nil }

func text(fn func(s, sub string) bool) comparison {
	return func(a, b string) (bool, error) { return fn(a, b), nil }
}

func negate(fn comparison) comparison {
	return func(a, b string) (bool, error) {
		ok, err := fn(a, b)
		return !ok, err
	}
}

func ordered(cmp func(x, y float64) bool) comparison {
	return func(a, b string) (bool, error) {
		x, err := vars.ParseNumber(a)
		if err != nil {
			return false, fmt.Errorf("operand a: %w", err)
		}
		y, err := vars.ParseNumber(b)
		if err != nil {
			return false, fmt.Errorf("operand b: %w", err)
		}
		return cmp(x, y), nil
	}
}

// evalExpr runs code against the store snapshot. Values are strings; the
// float() and int() builtins convert them.
// Example: evalExpr(`float(count) >= 3 && mode == "fast"`, store)
func evalExpr(code string, store *vars.Store) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, fmt.Errorf("%w: empty expression", ErrParse)
	}
	env := map[string]any{}
	if store != nil {
		for k, v := range store.Snapshot() {
			env[k] = v
		}
	}
	program, err := expr.Compile(code, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("%w: compile expression %q: %v", ErrParse, code, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("%w: eval expression %q: %v", ErrParse, code, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression %q did not return bool (got %T)", ErrParse, code, output)
	}
	return result, nil
}

// IsUnknownOperation reports whether err came from an unrecognised operation.
func IsUnknownOperation(err error) bool {
	return errors.Is(err, ErrUnknownOperation)
}
