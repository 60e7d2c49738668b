package formula

import (
	"fmt"
	goast "go/ast"
	goparser "go/parser"
	gotoken "go/token"
	"strconv"
	"strings"
)

// placeholderFmt is the synthetic identifier substituted for a bracketed
// column name before parsing. The shape cannot collide with a legal bare
// identifier a user would write.
const placeholderFmt = "__dpipe_col_%d__"

// Parse turns a formula string into an expression tree.
//
// Bracket-delimited substrings are first replaced by synthetic placeholder
// identifiers recorded in a substitution table, the substituted text is
// parsed with standard operator precedence, and placeholder identifiers are
// mapped back to column-reference nodes carrying the original name.
//
// Operators outside "+ - * /" and unary sign are kept in the tree as
// written; rejecting them is the backend's call, at translation time.
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, NewSyntaxError(input, "empty formula")
	}

	substituted, table, err := substituteColumns(input)
	if err != nil {
		return nil, err
	}

	expr, err := goparser.ParseExpr(substituted)
	if err != nil {
		return nil, NewSyntaxError(input, err.Error())
	}

	return fromGoAST(expr, input, table)
}

// substituteColumns replaces each "[column name]" occurrence with a
// placeholder identifier and returns the substitution table.
func substituteColumns(input string) (string, map[string]string, error) {
	var out strings.Builder
	table := map[string]string{}

	for i := 0; i < len(input); {
		c := input[i]
		switch c {
		case '[':
			end := strings.IndexByte(input[i+1:], ']')
			if end < 0 {
				return "", nil, NewSyntaxError(input, "unclosed column bracket")
			}
			name := input[i+1 : i+1+end]
			if name == "" {
				return "", nil, NewSyntaxError(input, "empty column reference")
			}
			placeholder := fmt.Sprintf(placeholderFmt, len(table))
			table[placeholder] = name
			out.WriteString(placeholder)
			i += end + 2
		case ']':
			return "", nil, NewSyntaxError(input, "unmatched closing bracket")
		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String(), table, nil
}

func fromGoAST(expr goast.Expr, input string, table map[string]string) (Node, error) {
	switch e := expr.(type) {
	case *goast.BasicLit:
		switch e.Kind {
		case gotoken.INT:
			v, err := strconv.ParseInt(e.Value, 0, 64)
			if err != nil {
				return nil, NewSyntaxError(input, fmt.Sprintf("invalid integer %q", e.Value))
			}
			return &Number{Value: v}, nil
		case gotoken.FLOAT:
			v, err := strconv.ParseFloat(e.Value, 64)
			if err != nil {
				return nil, NewSyntaxError(input, fmt.Sprintf("invalid number %q", e.Value))
			}
			return &Number{Value: v}, nil
		default:
			return nil, NewSyntaxError(input, fmt.Sprintf("unexpected literal %s", e.Value))
		}

	case *goast.Ident:
		// placeholders map back to the original bracketed name, any
		// other identifier is a bare column reference
		if name, ok := table[e.Name]; ok {
			return &Column{Name: name}, nil
		}
		return &Column{Name: e.Name}, nil

	case *goast.BinaryExpr:
		left, err := fromGoAST(e.X, input, table)
		if err != nil {
			return nil, err
		}
		right, err := fromGoAST(e.Y, input, table)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: e.Op.String(), Left: left, Right: right}, nil

	case *goast.UnaryExpr:
		arg, err := fromGoAST(e.X, input, table)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: e.Op.String(), Expr: arg}, nil

	case *goast.ParenExpr:
		inner, err := fromGoAST(e.X, input, table)
		if err != nil {
			return nil, err
		}
		return &Paren{Expr: inner}, nil

	default:
		return nil, NewSyntaxError(input, fmt.Sprintf("unexpected expression of type %T", expr))
	}
}
