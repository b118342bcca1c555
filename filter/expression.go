package filter

import (
	"fmt"
	"math"
	"strings"
)

// ExprOp represents an expression operator.
type ExprOp int

const (
	OpAnd ExprOp = iota
	OpOr
	OpNot
	OpEq
	OpNotEq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
	OpNotIn
	OpIsNull
	OpNotNull
	OpStartsWith
)

// String returns the operator as Parse accepts it.
func (op ExprOp) String() string {
	switch op {
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpNot:
		return "!"
	case OpEq:
		return "=="
	case OpNotEq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpIsNull:
		return "IS NULL"
	case OpNotNull:
		return "IS NOT NULL"
	case OpStartsWith:
		return "STARTS WITH"
	default:
		return "UNKNOWN"
	}
}

// Expression is a row selection predicate over named columns. Numeric
// values compare as float64; string values compare against the column's
// text with trailing blanks removed.
type Expression struct {
	Op       ExprOp
	Column   string
	Value    any
	Values   []any
	Children []*Expression
}

// String returns a string representation of the expression.
func (e *Expression) String() string {
	if e == nil {
		return "nil"
	}

	switch e.Op {
	case OpAnd, OpOr:
		if len(e.Children) == 0 {
			return ""
		}
		parts := make([]string, len(e.Children))
		for i, c := range e.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " "+e.Op.String()+" ") + ")"
	case OpNot:
		if len(e.Children) > 0 {
			return "!" + e.Children[0].String()
		}
		return "!nil"
	case OpIn, OpNotIn:
		return fmt.Sprintf("%s %s %v", e.Column, e.Op, e.Values)
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("%s %s", e.Column, e.Op)
	case OpStartsWith:
		return fmt.Sprintf("%s %s %q", e.Column, e.Op, e.Value)
	default:
		if s, ok := e.Value.(string); ok {
			return fmt.Sprintf("%s %s %q", e.Column, e.Op, s)
		}
		return fmt.Sprintf("%s %s %v", e.Column, e.Op, e.Value)
	}
}

// Columns returns the distinct column names referenced, in first-use order.
func (e *Expression) Columns() []string {
	var out []string
	seen := make(map[string]bool)
	e.walk(func(n *Expression) {
		if n.Column != "" && !seen[n.Column] {
			seen[n.Column] = true
			out = append(out, n.Column)
		}
	})
	return out
}

// textColumns returns the columns that must be read as text: those compared
// against a string or tested with StartsWith.
func (e *Expression) textColumns() map[string]bool {
	out := make(map[string]bool)
	e.walk(func(n *Expression) {
		if n.Column == "" {
			return
		}
		if n.Op == OpStartsWith {
			out[n.Column] = true
			return
		}
		if _, ok := n.Value.(string); ok {
			out[n.Column] = true
		}
		for _, v := range n.Values {
			if _, ok := v.(string); ok {
				out[n.Column] = true
			}
		}
	})
	return out
}

func (e *Expression) walk(fn func(*Expression)) {
	if e == nil {
		return
	}
	fn(e)
	for _, c := range e.Children {
		c.walk(fn)
	}
}

// rowValues holds the column data of one Calculate window.
type rowValues struct {
	nums  map[string][]float64
	texts map[string][]string
}

// eval reports whether row i of the window satisfies e.
func (e *Expression) eval(v *rowValues, i int) bool {
	switch e.Op {
	case OpAnd:
		for _, c := range e.Children {
			if !c.eval(v, i) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range e.Children {
			if c.eval(v, i) {
				return true
			}
		}
		return false
	case OpNot:
		return len(e.Children) > 0 && !e.Children[0].eval(v, i)
	}

	if texts, ok := v.texts[e.Column]; ok {
		return e.evalText(strings.TrimRight(texts[i], " \x00"))
	}
	return e.evalNumber(v.nums[e.Column][i])
}

func (e *Expression) evalNumber(x float64) bool {
	switch e.Op {
	case OpIsNull:
		return math.IsNaN(x)
	case OpNotNull:
		return !math.IsNaN(x)
	case OpIn, OpNotIn:
		found := false
		for _, val := range e.Values {
			if f, ok := toFloat(val); ok && f == x {
				found = true
				break
			}
		}
		return found == (e.Op == OpIn)
	}

	y, ok := toFloat(e.Value)
	if !ok {
		return false
	}
	switch e.Op {
	case OpEq:
		return x == y
	case OpNotEq:
		return x != y
	case OpLt:
		return x < y
	case OpLte:
		return x <= y
	case OpGt:
		return x > y
	case OpGte:
		return x >= y
	default:
		return false
	}
}

func (e *Expression) evalText(s string) bool {
	switch e.Op {
	case OpIsNull:
		return s == ""
	case OpNotNull:
		return s != ""
	case OpIn, OpNotIn:
		found := false
		for _, val := range e.Values {
			if fmt.Sprint(val) == s {
				found = true
				break
			}
		}
		return found == (e.Op == OpIn)
	}

	y := fmt.Sprint(e.Value)
	switch e.Op {
	case OpEq:
		return s == y
	case OpNotEq:
		return s != y
	case OpLt:
		return s < y
	case OpLte:
		return s <= y
	case OpGt:
		return s > y
	case OpGte:
		return s >= y
	case OpStartsWith:
		return strings.HasPrefix(s, y)
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// ExprBuilder helps build filter expressions.
type ExprBuilder struct {
	column string
}

// Col creates a new expression builder for the given column.
func Col(name string) *ExprBuilder {
	return &ExprBuilder{column: name}
}

func (b *ExprBuilder) cmp(op ExprOp, value any) *Expression {
	return &Expression{Op: op, Column: b.column, Value: value}
}

// Eq creates an equality expression.
func (b *ExprBuilder) Eq(value any) *Expression { return b.cmp(OpEq, value) }

// NotEq creates a not-equal expression.
func (b *ExprBuilder) NotEq(value any) *Expression { return b.cmp(OpNotEq, value) }

// Lt creates a less-than expression.
func (b *ExprBuilder) Lt(value any) *Expression { return b.cmp(OpLt, value) }

// Lte creates a less-than-or-equal expression.
func (b *ExprBuilder) Lte(value any) *Expression { return b.cmp(OpLte, value) }

// Gt creates a greater-than expression.
func (b *ExprBuilder) Gt(value any) *Expression { return b.cmp(OpGt, value) }

// Gte creates a greater-than-or-equal expression.
func (b *ExprBuilder) Gte(value any) *Expression { return b.cmp(OpGte, value) }

// StartsWith matches text cells with the given prefix.
func (b *ExprBuilder) StartsWith(prefix string) *Expression { return b.cmp(OpStartsWith, prefix) }

// In creates an IN expression.
func (b *ExprBuilder) In(values ...any) *Expression {
	return &Expression{Op: OpIn, Column: b.column, Values: values}
}

// NotIn creates a NOT IN expression.
func (b *ExprBuilder) NotIn(values ...any) *Expression {
	return &Expression{Op: OpNotIn, Column: b.column, Values: values}
}

// IsNull matches NaN numbers and blank text.
func (b *ExprBuilder) IsNull() *Expression {
	return &Expression{Op: OpIsNull, Column: b.column}
}

// IsNotNull is the negation of IsNull.
func (b *ExprBuilder) IsNotNull() *Expression {
	return &Expression{Op: OpNotNull, Column: b.column}
}

// And combines expressions with AND.
func And(exprs ...*Expression) *Expression {
	return &Expression{Op: OpAnd, Children: exprs}
}

// Or combines expressions with OR.
func Or(exprs ...*Expression) *Expression {
	return &Expression{Op: OpOr, Children: exprs}
}

// Not negates an expression.
func Not(expr *Expression) *Expression {
	return &Expression{Op: OpNot, Children: []*Expression{expr}}
}

// Between selects rows with lower <= column <= upper.
func Between(column string, lower, upper any) *Expression {
	return And(Col(column).Gte(lower), Col(column).Lte(upper))
}

// Eq is shorthand for Col(column).Eq(value).
func Eq(column string, value any) *Expression { return Col(column).Eq(value) }

func NotEq(column string, value any) *Expression { return Col(column).NotEq(value) }

func Lt(column string, value any) *Expression { return Col(column).Lt(value) }

func Lte(column string, value any) *Expression { return Col(column).Lte(value) }

func Gt(column string, value any) *Expression { return Col(column).Gt(value) }

func Gte(column string, value any) *Expression { return Col(column).Gte(value) }

func In(column string, values ...any) *Expression { return Col(column).In(values...) }

func NotIn(column string, values ...any) *Expression { return Col(column).NotIn(values...) }

func IsNull(column string) *Expression { return Col(column).IsNull() }

func IsNotNull(column string) *Expression { return Col(column).IsNotNull() }
