package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

// Output columns of the waterfall decomposition.
const (
	waterfallLabelColumn = "LABEL_waterfall"
	waterfallGroupColumn = "GROUP_waterfall"
	waterfallTypeColumn  = "TYPE_waterfall"
)

// transformWaterfall decomposes the change of the value column between two
// milestones into per-label (and optionally per-parent) contributions. The
// parallel sub-pipelines run in a single fan-out/fan-in facet; their
// outputs are concatenated, tagged by row type, and re-sorted by a fixed
// milestone ordering followed by the user's sort.
func transformWaterfall(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.WaterfallStep)

	facets := M{
		internalPrefix + "Children":   waterfallDeltas(step, step.LabelsColumn, "child", step.ParentsColumn != ""),
		internalPrefix + "Milestones": waterfallMilestones(step),
	}
	unionParts := []any{Ref(internalPrefix + "Children")}
	if step.ParentsColumn != "" {
		facets[internalPrefix+"Parents"] = waterfallDeltas(step, step.ParentsColumn, "parent", false)
		unionParts = append(unionParts, Ref(internalPrefix+"Parents"))
	}
	unionParts = append(unionParts, Ref(internalPrefix+"Milestones"))

	sortField := waterfallLabelColumn
	if step.SortBy == "value" {
		sortField = step.ValueColumn
	}

	return []Stage{
		facet(facets),
		project(M{tmpUnion: M{"$concatArrays": unionParts}}),
		unwind(tmpUnion),
		replaceRoot(Ref(tmpUnion)),
		sortStage(
			SortKey{Key: tmpOrder, Dir: 1},
			SortKey{Key: sortField, Dir: sortDirection(step.Order)},
		),
		project(M{tmpOrder: 0}),
	}, nil
}

// waterfallMilestones computes the start and end totals bracketing the
// decomposition. The start milestone sorts before, the end milestone after
// every delta row.
func waterfallMilestones(step *steps.WaterfallStep) []any {
	id := M{tmpValue: Ref(step.MilestonesColumn)}
	for _, c := range step.GroupBy {
		id[c] = Ref(c)
	}

	fields := M{
		waterfallLabelColumn: M{"$toString": Ref("_id." + tmpValue)},
		waterfallTypeColumn:  M{"$literal": "milestone"},
		step.ValueColumn:     1,
		tmpOrder: M{"$cond": []any{
			M{"$eq": []any{Ref("_id." + tmpValue), step.Start}},
			-1,
			1,
		}},
	}
	for _, c := range step.GroupBy {
		fields[c] = Ref("_id." + c)
	}

	return []any{
		match(M{step.MilestonesColumn: M{"$in": []any{step.Start, step.End}}}),
		group(id, M{step.ValueColumn: M{"$sum": Ref(step.ValueColumn)}}),
		project(fields),
	}
}

// waterfallDeltas computes the per-label value change between the two
// milestones: group by label and milestone, then fold the two milestone
// totals into a signed sum (end positive, start negative).
func waterfallDeltas(step *steps.WaterfallStep, labelColumn, rowType string, withParent bool) []any {
	firstID := M{
		tmpValue: Ref(labelColumn),
		tmpPivot: Ref(step.MilestonesColumn),
	}
	if withParent {
		firstID[tmpObj] = Ref(step.ParentsColumn)
	}
	for _, c := range step.GroupBy {
		firstID[c] = Ref(c)
	}

	secondID := M{tmpValue: Ref("_id." + tmpValue)}
	if withParent {
		secondID[tmpObj] = Ref("_id." + tmpObj)
	}
	for _, c := range step.GroupBy {
		secondID[c] = Ref("_id." + c)
	}

	signed := M{"$cond": []any{
		M{"$eq": []any{Ref("_id." + tmpPivot), step.End}},
		Ref(tmpValue + "Sum"),
		M{"$multiply": []any{-1, Ref(tmpValue + "Sum")}},
	}}

	fields := M{
		waterfallLabelColumn: M{"$toString": Ref("_id." + tmpValue)},
		waterfallTypeColumn:  M{"$literal": rowType},
		step.ValueColumn:     Ref(tmpDelta),
		tmpOrder:             M{"$literal": 0},
	}
	if withParent {
		fields[waterfallGroupColumn] = M{"$toString": Ref("_id." + tmpObj)}
	}
	for _, c := range step.GroupBy {
		fields[c] = Ref("_id." + c)
	}

	return []any{
		match(M{step.MilestonesColumn: M{"$in": []any{step.Start, step.End}}}),
		group(firstID, M{tmpValue + "Sum": M{"$sum": Ref(step.ValueColumn)}}),
		group(secondID, M{tmpDelta: M{"$sum": signed}}),
		project(fields),
	}
}
