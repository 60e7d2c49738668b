package steps

import (
	"encoding/json"
	"errors"
)

// Condition is a filter condition tree. A node is either a simple
// (column, operator, value) condition or an and/or combinator over child
// conditions; exactly one of the forms is set. Leaves are always simple
// conditions, combinators nest arbitrarily.
type Condition struct {
	Column   string
	Operator string
	Value    any

	And []Condition
	Or  []Condition
}

// Comparison operators of simple conditions.
const (
	OpEq         = "eq"
	OpNe         = "ne"
	OpLt         = "lt"
	OpLe         = "le"
	OpGt         = "gt"
	OpGe         = "ge"
	OpIn         = "in"
	OpNin        = "nin"
	OpMatches    = "matches"
	OpNotMatches = "notmatches"
	OpIsNull     = "isnull"
	OpNotNull    = "notnull"
)

// IsSimple reports whether the node is a leaf condition.
func (c Condition) IsSimple() bool { return len(c.And) == 0 && len(c.Or) == 0 }

type simpleCondition struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type andCondition struct {
	And []Condition `json:"and"`
}

type orCondition struct {
	Or []Condition `json:"or"`
}

func (c *Condition) UnmarshalJSON(b []byte) error {
	// try to unmarshal as an and-combinator
	av := andCondition{}
	if err := json.Unmarshal(b, &av); err == nil && len(av.And) > 0 {
		*c = Condition{And: av.And}
		return nil
	}

	// try to unmarshal as an or-combinator
	ov := orCondition{}
	if err := json.Unmarshal(b, &ov); err == nil && len(ov.Or) > 0 {
		*c = Condition{Or: ov.Or}
		return nil
	}

	// fall back to a simple condition
	sv := simpleCondition{}
	if err := json.Unmarshal(b, &sv); err == nil && sv.Column != "" && sv.Operator != "" {
		*c = Condition{Column: sv.Column, Operator: sv.Operator, Value: sv.Value}
		return nil
	}

	return NewUnmarshalError("condition", string(b))
}

func (c Condition) MarshalJSON() ([]byte, error) {
	switch {
	case len(c.And) > 0:
		return json.Marshal(andCondition{And: c.And})
	case len(c.Or) > 0:
		return json.Marshal(orCondition{Or: c.Or})
	case c.Column != "" && c.Operator != "":
		return json.Marshal(simpleCondition{Column: c.Column, Operator: c.Operator, Value: c.Value})
	default:
		return nil, errors.New("cannot marshal empty condition")
	}
}

func (c Condition) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(b)
}
