package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

// conditionToMatch lowers a filter condition tree to a $match document.
// Equality uses the short {column: value} form so that hand-written
// equality matches and generated ones coincide.
func conditionToMatch(c steps.Condition) (M, error) {
	switch {
	case len(c.And) > 0:
		parts := make([]any, 0, len(c.And))
		for _, sub := range c.And {
			doc, err := conditionToMatch(sub)
			if err != nil {
				return nil, err
			}
			parts = append(parts, doc)
		}
		return M{"$and": parts}, nil

	case len(c.Or) > 0:
		parts := make([]any, 0, len(c.Or))
		for _, sub := range c.Or {
			doc, err := conditionToMatch(sub)
			if err != nil {
				return nil, err
			}
			parts = append(parts, doc)
		}
		return M{"$or": parts}, nil
	}

	switch c.Operator {
	case steps.OpEq:
		return M{c.Column: c.Value}, nil
	case steps.OpNe:
		return M{c.Column: M{"$ne": c.Value}}, nil
	case steps.OpLt:
		return M{c.Column: M{"$lt": c.Value}}, nil
	case steps.OpLe:
		return M{c.Column: M{"$lte": c.Value}}, nil
	case steps.OpGt:
		return M{c.Column: M{"$gt": c.Value}}, nil
	case steps.OpGe:
		return M{c.Column: M{"$gte": c.Value}}, nil
	case steps.OpIn:
		return M{c.Column: M{"$in": c.Value}}, nil
	case steps.OpNin:
		return M{c.Column: M{"$nin": c.Value}}, nil
	case steps.OpMatches:
		return M{c.Column: M{"$regex": c.Value}}, nil
	case steps.OpNotMatches:
		return M{c.Column: M{"$not": M{"$regex": c.Value}}}, nil
	case steps.OpIsNull:
		return M{c.Column: M{"$eq": nil}}, nil
	case steps.OpNotNull:
		return M{c.Column: M{"$ne": nil}}, nil
	default:
		return nil, NewUnsupportedOperatorError(c.Operator)
	}
}

// conditionToExpr lowers a condition tree to an aggregation expression, for
// contexts where a boolean expression is needed instead of a $match
// document (e.g. the $cond of an ifthenelse).
func conditionToExpr(c steps.Condition) (any, error) {
	switch {
	case len(c.And) > 0:
		parts := make([]any, 0, len(c.And))
		for _, sub := range c.And {
			e, err := conditionToExpr(sub)
			if err != nil {
				return nil, err
			}
			parts = append(parts, e)
		}
		return M{"$and": parts}, nil

	case len(c.Or) > 0:
		parts := make([]any, 0, len(c.Or))
		for _, sub := range c.Or {
			e, err := conditionToExpr(sub)
			if err != nil {
				return nil, err
			}
			parts = append(parts, e)
		}
		return M{"$or": parts}, nil
	}

	ref := Ref(c.Column)

	switch c.Operator {
	case steps.OpEq:
		return M{"$eq": []any{ref, c.Value}}, nil
	case steps.OpNe:
		return M{"$ne": []any{ref, c.Value}}, nil
	case steps.OpLt:
		return M{"$lt": []any{ref, c.Value}}, nil
	case steps.OpLe:
		return M{"$lte": []any{ref, c.Value}}, nil
	case steps.OpGt:
		return M{"$gt": []any{ref, c.Value}}, nil
	case steps.OpGe:
		return M{"$gte": []any{ref, c.Value}}, nil
	case steps.OpIn:
		return M{"$in": []any{ref, c.Value}}, nil
	case steps.OpNin:
		return M{"$not": M{"$in": []any{ref, c.Value}}}, nil
	case steps.OpMatches:
		return M{"$regexMatch": M{"input": ref, "regex": c.Value}}, nil
	case steps.OpNotMatches:
		return M{"$not": M{"$regexMatch": M{"input": ref, "regex": c.Value}}}, nil
	case steps.OpIsNull:
		return M{"$eq": []any{ref, nil}}, nil
	case steps.OpNotNull:
		return M{"$ne": []any{ref, nil}}, nil
	default:
		return nil, NewUnsupportedOperatorError(c.Operator)
	}
}
