package mongo

import (
	"fmt"

	"github.com/dpipe/dpipe/pkg/steps"
)

// transformRollup aggregates at every level of the hierarchy, one facet
// sub-pipeline per level, and stacks the per-level outputs in hierarchy
// order. Each row is labelled with its level and the label of its
// immediate parent.
func transformRollup(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.RollupStep)
	if len(step.Hierarchy) == 0 {
		return nil, NewInvalidStepError("rollup", "empty hierarchy")
	}

	labelCol := step.LabelCol
	if labelCol == "" {
		labelCol = "label"
	}
	levelCol := step.LevelCol
	if levelCol == "" {
		levelCol = "level"
	}
	parentCol := step.ParentLabelCol
	if parentCol == "" {
		parentCol = "parent"
	}

	facets := M{}
	unionParts := []any{}
	for i := range step.Hierarchy {
		sub, err := rollupLevel(step, i, labelCol, levelCol, parentCol)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%s%d", tmpLevel, i)
		facets[key] = sub
		unionParts = append(unionParts, Ref(key))
	}

	return []Stage{
		facet(facets),
		project(M{tmpUnion: M{"$concatArrays": unionParts}}),
		unwind(tmpUnion),
		replaceRoot(Ref(tmpUnion)),
	}, nil
}

// rollupLevel groups by the hierarchy columns down to the given level plus
// the extra groupby columns, computes the aggregations and labels the
// result rows.
func rollupLevel(step *steps.RollupStep, level int, labelCol, levelCol, parentCol string) ([]any, error) {
	groupColumns := append([]string{}, step.Hierarchy[:level+1]...)
	groupColumns = append(groupColumns, step.GroupBy...)

	accumulators := M{}
	destinations := []string{}
	for _, agg := range step.Aggregations {
		for _, target := range agg.Targets() {
			src, dst := target[0], target[1]
			acc, err := aggregationAccumulator(agg.AggFunction, src)
			if err != nil {
				return nil, err
			}
			accumulators[dst] = acc
			destinations = append(destinations, dst)
		}
	}

	current := step.Hierarchy[level]

	fields := M{
		labelCol: Ref("_id." + current),
		levelCol: M{"$literal": current},
	}
	if level > 0 {
		fields[parentCol] = Ref("_id." + step.Hierarchy[level-1])
	}
	for _, c := range groupColumns {
		fields[c] = Ref("_id." + c)
	}
	for _, dst := range destinations {
		fields[dst] = 1
	}

	return []any{
		group(groupID(groupColumns), accumulators),
		project(fields),
	}, nil
}
