package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

// transformRank sorts by the ranking column, gathers each rank scope into
// an array and folds it with a running accumulator tracking the assembled
// rows, the row counter and the previous value/rank pair.
//
// Standard ranking advances the row counter unconditionally and reuses the
// previous rank on ties, so ties consume rank numbers. Dense ranking only
// advances the rank when the value changes, so no rank is ever skipped.
func transformRank(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.RankStep)

	current := "$$this." + step.ValueCol
	valueChanged := M{"$ne": []any{current, "$$value.prevValue"}}

	var rank M
	switch step.Method {
	case "dense":
		rank = M{"$cond": []any{
			valueChanged,
			M{"$add": []any{M{"$ifNull": []any{"$$value.prevRank", 0}}, 1}},
			"$$value.prevRank",
		}}
	case "", "standard":
		rank = M{"$cond": []any{
			valueChanged,
			M{"$add": []any{"$$value.order", 1}},
			"$$value.prevRank",
		}}
	default:
		return nil, NewInvalidStepError("rank", "unknown ranking method "+step.Method)
	}

	dst := step.DestinationColumn()

	fold := M{"$reduce": M{
		"input": Ref(tmpDocs),
		"initialValue": M{
			"rows":      []any{},
			"order":     0,
			"prevValue": nil,
			"prevRank":  nil,
		},
		"in": M{"$let": M{
			"vars": M{"rank": rank},
			"in": M{
				"rows": M{"$concatArrays": []any{
					"$$value.rows",
					[]any{mergeObjects("$$this", M{dst: "$$rank"})},
				}},
				"order":     M{"$add": []any{"$$value.order", 1}},
				"prevValue": current,
				"prevRank":  "$$rank",
			},
		}},
	}}

	return []Stage{
		sortStage(SortKey{Key: step.ValueCol, Dir: sortDirection(step.Order)}),
		group(groupID(step.GroupBy), M{tmpDocs: M{"$push": "$$ROOT"}}),
		project(M{tmpRanked: fold}),
		unwind(tmpRanked + ".rows"),
		replaceRoot(Ref(tmpRanked + ".rows")),
	}, nil
}
