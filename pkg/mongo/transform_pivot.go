package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

// transformPivot spreads the pivot column's values into columns: first
// re-aggregate by index plus pivot column, then regroup by index alone
// collecting (pivot value, aggregate) pairs, zip the pair set into a single
// document and re-merge the index columns into the new root.
func transformPivot(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.PivotStep)

	acc, err := aggregationAccumulator(step.AggFunction, step.ValueColumn)
	if err != nil {
		return nil, err
	}

	firstID := M{tmpPivot: Ref(step.ColumnToPivot)}
	for _, c := range step.Index {
		firstID[c] = Ref(c)
	}

	secondID := M{}
	for _, c := range step.Index {
		secondID[c] = Ref("_id." + c)
	}
	var regroupID any = secondID
	if len(step.Index) == 0 {
		regroupID = nil
	}

	return []Stage{
		group(firstID, M{tmpValue: acc}),
		group(regroupID, M{
			tmpPairs: M{"$addToSet": M{"k": Ref("_id." + tmpPivot), "v": Ref(tmpValue)}},
		}),
		project(M{
			tmpObj:   M{"$arrayToObject": Ref(tmpPairs)},
			tmpIndex: Ref("_id"),
		}),
		replaceRoot(mergeObjects(Ref(tmpIndex), Ref(tmpObj))),
	}, nil
}

// transformUnpivot melts the unpivot columns into (column name, value)
// pairs: one literal pair document per column, unwound into rows and merged
// over the kept columns.
func transformUnpivot(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.UnpivotStep)

	pairs := []any{}
	for _, c := range step.Unpivot {
		pairs = append(pairs, M{
			step.UnpivotColumnName: c,
			step.ValueColumnName:   Ref(c),
		})
	}

	fields := M{tmpPairs: pairs}
	for _, c := range step.Keep {
		fields[c] = 1
	}

	stages := []Stage{
		project(fields),
		unwind(tmpPairs),
		replaceRoot(mergeObjects("$$ROOT", Ref(tmpPairs))),
		project(M{tmpPairs: 0}),
	}

	if step.Dropna {
		stages = append(stages, match(M{step.ValueColumnName: M{"$ne": nil}}))
	}

	return stages, nil
}
