package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

// transformCumSum sorts by the reference column, pushes the group's values
// and rows into parallel arrays, unwinds the rows with their index and sums
// the value-array prefix up to that index: the running total over the
// sorted, grouped rows.
func transformCumSum(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.CumSumStep)

	runningTotal := M{"$sum": M{"$slice": []any{
		Ref(tmpValues),
		0,
		M{"$add": []any{Ref(tmpIndex), 1}},
	}}}

	return []Stage{
		sortStage(SortKey{Key: step.ReferenceColumn, Dir: 1}),
		group(groupID(step.GroupBy), M{
			tmpValues: M{"$push": Ref(step.ValueColumn)},
			tmpDocs:   M{"$push": "$$ROOT"},
		}),
		unwindIndexed(tmpDocs, tmpIndex),
		replaceRoot(mergeObjects(Ref(tmpDocs), M{step.DestinationColumn(): runningTotal})),
	}, nil
}
