// Package formula parses user-written arithmetic formulas such as
// "[col one] + 2 * [col two]" into expression trees. Column references may
// be bracket-escaped to allow names containing spaces or symbols; bare
// identifiers are column references too.
package formula

import (
	"fmt"
	"strconv"
)

// Node is one node of a parsed formula tree.
type Node interface {
	fmt.Stringer
	isNode()
}

// Binary is a binary operator node. Op is the operator as written ("+",
// "-", "*", "/", or an operator the backend may not support).
type Binary struct {
	Op    string
	Left  Node
	Right Node
}

func (n *Binary) String() string {
	return fmt.Sprintf("%s %s %s", n.Left, n.Op, n.Right)
}

// Unary is a unary sign node.
type Unary struct {
	Op   string
	Expr Node
}

func (n *Unary) String() string {
	return n.Op + n.Expr.String()
}

// Column is a reference to a column of the current row.
type Column struct {
	Name string
}

func (n *Column) String() string {
	if isBareIdentifier(n.Name) {
		return n.Name
	}
	return "[" + n.Name + "]"
}

// Number is a numeric constant, holding an int64 or a float64.
type Number struct {
	Value any
}

func (n *Number) String() string {
	switch v := n.Value.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Paren is an explicit parenthesis node, kept so grouping survives a
// render round-trip.
type Paren struct {
	Expr Node
}

func (n *Paren) String() string {
	return "(" + n.Expr.String() + ")"
}

func (*Binary) isNode() {}
func (*Unary) isNode()  {}
func (*Column) isNode() {}
func (*Number) isNode() {}
func (*Paren) isNode()  {}

func isBareIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
