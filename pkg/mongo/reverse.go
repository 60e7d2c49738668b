package mongo

import (
	"sort"
	"strings"

	"github.com/dpipe/dpipe/pkg/steps"
	"github.com/dpipe/dpipe/pkg/util"
)

// ReverseTranslate reconstructs a best-effort step list from a stage list,
// for bootstrapping a pipeline out of a hand-written query. It is
// intentionally partial: leading domain matches, flat equality filters and
// simple select/delete/rename projections map back to their steps, and
// every other stage degrades to one opaque custom step wrapping the stage
// verbatim.
func ReverseTranslate(stages []Stage) steps.Pipeline {
	pipeline := steps.Pipeline{}

	for i, stage := range stages {
		op, doc, ok := stageOperator(stage)
		if ok {
			switch op {
			case "$match":
				if out, ok := reverseMatch(doc, i == 0); ok {
					pipeline = append(pipeline, out...)
					continue
				}

			case "$project":
				if out, ok := reverseProject(doc); ok {
					pipeline = append(pipeline, out...)
					continue
				}

			case "$addFields":
				if out, ok := reverseRename(doc); ok {
					pipeline = append(pipeline, out...)
					continue
				}
			}
		}

		pipeline = append(pipeline, wrapCustom(stage))
	}

	return pipeline
}

// reverseMatch maps a flat equality match back to steps: the domain key of
// a leading stage becomes the domain step, every other key one filter
// step, sorted by column name for determinism.
func reverseMatch(doc M, leading bool) ([]steps.Step, bool) {
	columns := make([]string, 0, len(doc))
	for column, value := range doc {
		if !isScalar(value) {
			return nil, false
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	out := []steps.Step{}
	for _, column := range columns {
		if leading && column == "domain" {
			domain, ok := doc[column].(string)
			if !ok {
				return nil, false
			}
			// the domain step always leads
			out = append([]steps.Step{&steps.DomainStep{Domain: domain}}, out...)
			continue
		}
		out = append(out, &steps.FilterStep{Condition: steps.Condition{
			Column:   column,
			Operator: steps.OpEq,
			Value:    doc[column],
		}})
	}

	return out, true
}

// reverseProject maps a projection back to a step: a pure field-keeping
// projection becomes a select, a pure field-dropping one a delete, a
// single aliasing assignment a rename. The bare internal-identifier strip
// appended by the forward translation maps to nothing.
func reverseProject(doc M) ([]steps.Step, bool) {
	if len(doc) == 1 {
		if v, ok := doc["_id"]; ok && isExclusionValue(v) {
			return nil, true
		}
	}

	if out, ok := reverseRename(doc); ok {
		return out, true
	}

	keep := []string{}
	drop := []string{}
	for column, value := range doc {
		if column == "_id" {
			continue
		}
		if isExclusionValue(value) {
			drop = append(drop, column)
		} else if isInclusionValue(value) {
			keep = append(keep, column)
		} else {
			return nil, false
		}
	}

	switch {
	case len(keep) > 0 && len(drop) == 0:
		sort.Strings(keep)
		return []steps.Step{&steps.SelectStep{Columns: keep}}, true
	case len(drop) > 0 && len(keep) == 0:
		sort.Strings(drop)
		return []steps.Step{&steps.DeleteStep{Columns: drop}}, true
	default:
		return nil, false
	}
}

// reverseRename maps a single-field aliasing assignment {new: "$old"} back
// to a rename step.
func reverseRename(doc M) ([]steps.Step, bool) {
	if len(doc) != 1 {
		return nil, false
	}
	for to, value := range doc {
		from, ok := refTarget(value)
		if !ok {
			return nil, false
		}
		return []steps.Step{&steps.RenameStep{ToRename: [][2]string{{from, to}}}}, true
	}
	return nil, false
}

func wrapCustom(stage Stage) steps.Step {
	return &steps.CustomStep{Query: util.Stringify(stage)}
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, int, int64, float64:
		return true
	default:
		return false
	}
}

func isInclusionValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t == 1
	case int64:
		return t == 1
	case float64:
		return t == 1
	default:
		return false
	}
}

// refTarget extracts the column a reference value points at, accepting
// both tagged references and raw "$"-prefixed strings.
func refTarget(v any) (string, bool) {
	switch t := v.(type) {
	case FieldRef:
		return string(t), true
	case string:
		if strings.HasPrefix(t, "$") && !strings.HasPrefix(t, "$$") {
			return t[1:], true
		}
	}
	return "", false
}
