package workflow

import (
	"fmt"
	"strings"
)

// Op is an atomic condition expression's comparison operation. Total over
// any context value: IS_NULL/IS_NOT_NULL tolerate any type, numeric
// comparators coerce INT<->FLOAT, CONTAINS applies to string-in-string and
// element-in-array, IN/NOT_IN expect Value to be an array.
type Op string

const (
	OpEquals      Op = "EQUALS"
	OpNotEquals   Op = "NOT_EQUALS"
	OpGreaterThan Op = "GREATER_THAN"
	OpLessThan    Op = "LESS_THAN"
	OpContains    Op = "CONTAINS"
	OpStartsWith  Op = "STARTS_WITH"
	OpIn          Op = "IN"
	OpNotIn       Op = "NOT_IN"
	OpIsNull      Op = "IS_NULL"
	OpIsNotNull   Op = "IS_NOT_NULL"
	OpIsTrue      Op = "IS_TRUE"
	OpIsFalse     Op = "IS_FALSE"
)

// Expression reads context.Get(Port) and applies Operation against Value.
type Expression struct {
	Port      string `json:"port"      yaml:"port"`
	Operation Op     `json:"operation" yaml:"operation"`
	Value     any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Combinator is the logical operator joining a Condition's expressions.
type Combinator string

const (
	CombinatorAnd Combinator = "AND"
	CombinatorOr  Combinator = "OR"
)

// Condition is a boolean combination of Expressions evaluated left to
// right with short-circuiting.
type Condition struct {
	Combinator  Combinator   `json:"combinator"  yaml:"combinator"`
	Expressions []Expression `json:"expressions" yaml:"expressions"`
}

// Evaluate reports the condition's outcome given a function that reads a
// dotted path out of the current ExecutionContext.
func (c *Condition) Evaluate(get func(path string) any) bool {
	if c == nil || len(c.Expressions) == 0 {
		return true
	}
	switch c.Combinator {
	case CombinatorOr:
		for _, expr := range c.Expressions {
			if evaluateExpression(expr, get(expr.Port)) {
				return true
			}
		}
		return false
	default: // AND, including an unset combinator
		for _, expr := range c.Expressions {
			if !evaluateExpression(expr, get(expr.Port)) {
				return false
			}
		}
		return true
	}
}

func evaluateExpression(expr Expression, v any) bool {
	switch expr.Operation {
	case OpIsNull:
		return v == nil
	case OpIsNotNull:
		return v != nil
	case OpIsTrue:
		b, ok := v.(bool)
		return ok && b
	case OpIsFalse:
		b, ok := v.(bool)
		return ok && !b
	case OpEquals:
		return valuesEqual(v, expr.Value)
	case OpNotEquals:
		return !valuesEqual(v, expr.Value)
	case OpGreaterThan:
		a, b, ok := asFloats(v, expr.Value)
		return ok && a > b
	case OpLessThan:
		a, b, ok := asFloats(v, expr.Value)
		return ok && a < b
	case OpContains:
		return containsValue(v, expr.Value)
	case OpStartsWith:
		s, ok1 := v.(string)
		prefix, ok2 := expr.Value.(string)
		return ok1 && ok2 && strings.HasPrefix(s, prefix)
	case OpIn:
		return containsValue(expr.Value, v)
	case OpNotIn:
		return !containsValue(expr.Value, v)
	default:
		return false
	}
}

func valuesEqual(a, b any) bool {
	if af, bf, ok := asFloats(a, b); ok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && a != nil && b != nil
}

func asFloats(a, b any) (float64, float64, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return af, bf, aok && bok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func containsValue(container, needle any) bool {
	switch c := container.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(c, s)
	case []any:
		for _, item := range c {
			if valuesEqual(item, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
