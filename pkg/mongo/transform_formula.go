package mongo

import (
	"strings"

	"github.com/dpipe/dpipe/pkg/formula"
	"github.com/dpipe/dpipe/pkg/steps"
)

// arithmeticOps maps formula operators to aggregation operators. Anything
// outside this table has no algebra equivalent.
var arithmeticOps = map[string]string{
	"+": "$add",
	"-": "$subtract",
	"*": "$multiply",
	"/": "$divide",
}

// formulaToExpr lowers a parsed formula tree to an aggregation expression.
func formulaToExpr(node formula.Node) (any, error) {
	switch n := node.(type) {
	case *formula.Number:
		return n.Value, nil

	case *formula.Column:
		return Ref(n.Name), nil

	case *formula.Paren:
		return formulaToExpr(n.Expr)

	case *formula.Unary:
		arg, err := formulaToExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "+":
			return arg, nil
		case "-":
			return M{"$subtract": []any{0, arg}}, nil
		default:
			return nil, NewUnsupportedOperatorError(n.Op)
		}

	case *formula.Binary:
		op, ok := arithmeticOps[n.Op]
		if !ok {
			return nil, NewUnsupportedOperatorError(n.Op)
		}
		left, err := formulaToExpr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := formulaToExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return M{op: []any{left, right}}, nil

	default:
		return nil, NewUnsupportedOperatorError(node.String())
	}
}

func transformFormula(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.FormulaStep)

	tree, err := formula.Parse(step.Formula)
	if err != nil {
		return nil, err
	}

	expr, err := formulaToExpr(tree)
	if err != nil {
		return nil, err
	}

	return []Stage{addFields(M{step.NewColumn: expr})}, nil
}

// branchToExpr lowers a then/else branch, which holds either a quoted
// string literal, a formula string, or a plain literal value.
func branchToExpr(branch any) (any, error) {
	text, ok := branch.(string)
	if !ok {
		return branch, nil
	}

	// double quotes force a string literal, anything else is a formula
	if strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) && len(text) >= 2 {
		return M{"$literal": text[1 : len(text)-1]}, nil
	}

	tree, err := formula.Parse(text)
	if err != nil {
		return nil, err
	}
	return formulaToExpr(tree)
}

func ifThenElseToExpr(step *steps.IfThenElseStep) (any, error) {
	cond, err := conditionToExpr(step.If)
	if err != nil {
		return nil, err
	}

	then, err := branchToExpr(step.Then)
	if err != nil {
		return nil, err
	}

	var otherwise any
	if nested, ok := step.Else.(*steps.IfThenElseStep); ok {
		otherwise, err = ifThenElseToExpr(nested)
	} else {
		otherwise, err = branchToExpr(step.Else)
	}
	if err != nil {
		return nil, err
	}

	return M{"$cond": M{"if": cond, "then": then, "else": otherwise}}, nil
}

func transformIfThenElse(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.IfThenElseStep)

	expr, err := ifThenElseToExpr(step)
	if err != nil {
		return nil, err
	}

	return []Stage{addFields(M{step.NewColumn: expr})}, nil
}
