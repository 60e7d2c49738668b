package mongo

import (
	"strings"

	"dario.cat/mergo"
)

// Simplify merges adjacent compatible stages without changing program
// semantics. Only filter-like ($match) and projection-like ($project,
// $addFields) neighbors of the same operator are candidates; any doubt
// blocks the merge. Simplification is pure, total and idempotent: the
// input stages are never mutated and an unmergeable list comes back as is.
func Simplify(stages []Stage) []Stage {
	out := make([]Stage, 0, len(stages))
	for _, stage := range stages {
		if len(out) > 0 {
			if merged, ok := tryMerge(out[len(out)-1], stage); ok {
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, stage)
	}
	return out
}

// stageOperator splits a stage into its single operator key and document
// configuration. Stages whose configuration is not a document (e.g.
// $limit) report false.
func stageOperator(stage Stage) (string, M, bool) {
	if len(stage) != 1 {
		return "", nil, false
	}
	for op, config := range stage {
		doc, ok := config.(M)
		return op, doc, ok
	}
	return "", nil, false
}

// tryMerge combines two adjacent stages when provably safe. This is the
// one place where two stage values are ever combined; the result is a
// fresh document.
func tryMerge(prev, next Stage) (Stage, bool) {
	prevOp, prevDoc, ok := stageOperator(prev)
	if !ok {
		return nil, false
	}
	nextOp, nextDoc, ok := stageOperator(next)
	if !ok || prevOp != nextOp {
		return nil, false
	}

	switch prevOp {
	case "$match":
		// conjunction by key union; an overlapping key would be
		// silently overwritten
		if keysOverlap(prevDoc, nextDoc) {
			return nil, false
		}

	case "$addFields":
		// a key collision would hide the earlier computation, and a
		// value referencing a field the earlier stage introduces
		// would change evaluation order
		if keysOverlap(prevDoc, nextDoc) || referencesAnyKey(nextDoc, prevDoc) {
			return nil, false
		}

	case "$project":
		if keysOverlap(prevDoc, nextDoc) || referencesAnyKey(nextDoc, prevDoc) {
			return nil, false
		}
		// inclusion and exclusion cannot coexist in one projection
		prevIncl, prevExcl := classifyProjection(prevDoc)
		nextIncl, nextExcl := classifyProjection(nextDoc)
		if (prevIncl && nextExcl) || (prevExcl && nextIncl) {
			return nil, false
		}

	default:
		return nil, false
	}

	merged := M{}
	for k, v := range prevDoc {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, nextDoc); err != nil {
		return nil, false
	}

	return Stage{prevOp: merged}, true
}

func keysOverlap(a, b M) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// classifyProjection reports whether a projection document carries
// field-inclusion and/or field-exclusion semantics. The _id key is exempt:
// the algebra allows suppressing it in either mode.
func classifyProjection(doc M) (inclusion, exclusion bool) {
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		if isExclusionValue(v) {
			exclusion = true
		} else {
			inclusion = true
		}
	}
	return inclusion, exclusion
}

func isExclusionValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return !t
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	default:
		return false
	}
}

// referencesAnyKey walks a stage document structurally looking for field
// references rooted at one of the other document's keys. Tagged FieldRef
// values and raw "$"-prefixed strings both count; "$$"-variables do not.
func referencesAnyKey(doc M, other M) bool {
	for _, v := range doc {
		if referencesValue(v, other) {
			return true
		}
	}
	return false
}

func referencesValue(v any, other M) bool {
	switch t := v.(type) {
	case FieldRef:
		_, ok := other[t.Root()]
		return ok

	case string:
		if !strings.HasPrefix(t, "$") || strings.HasPrefix(t, "$$") {
			return false
		}
		root, _, _ := strings.Cut(t[1:], ".")
		_, ok := other[root]
		return ok

	case M:
		return referencesAnyKey(t, other)

	case []any:
		for _, item := range t {
			if referencesValue(item, other) {
				return true
			}
		}
		return false

	default:
		return false
	}
}
