package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

// aggregationAccumulator builds the accumulator document of one aggregation
// clause. The algebra has no native count accumulator: counting is summing
// the literal 1.
func aggregationAccumulator(function, column string) (M, error) {
	switch function {
	case "count":
		return M{"$sum": 1}, nil
	case "sum", "avg", "min", "max", "first", "last":
		return M{"$" + function: Ref(column)}, nil
	default:
		return nil, NewUnsupportedOperatorError(function)
	}
}

// transformAggregate groups by the on columns and computes the requested
// aggregates. When the original granularity is kept, every source row is
// pushed through the grouping and re-merged with its group's results
// instead of collapsing the groups.
func transformAggregate(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.AggregateStep)

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

	if step.KeepOriginalGranularity {
		accumulators[tmpDocs] = M{"$push": "$$ROOT"}
		return []Stage{
			group(groupID(step.On), accumulators),
			unwind(tmpDocs),
			replaceRoot(mergeObjects(Ref(tmpDocs), "$$ROOT")),
			project(M{tmpDocs: 0, "_id": 0}),
		}, nil
	}

	flatten := M{}
	for _, c := range step.On {
		flatten[c] = Ref("_id." + c)
	}
	for _, dst := range destinations {
		flatten[dst] = 1
	}

	return []Stage{
		group(groupID(step.On), accumulators),
		project(flatten),
	}, nil
}

// transformArgExtreme keeps the rows holding the group-wise extreme
// (minimum or maximum) of a column.
func transformArgExtreme(step string, column string, groups []string, op string) ([]Stage, error) {
	if column == "" {
		return nil, NewInvalidStepError(step, "missing column")
	}

	return []Stage{
		group(groupID(groups), M{
			tmpDocs:    M{"$push": "$$ROOT"},
			tmpExtreme: M{op: Ref(column)},
		}),
		unwind(tmpDocs),
		match(M{"$expr": M{"$eq": []any{Ref(tmpDocs + "." + column), Ref(tmpExtreme)}}}),
		replaceRoot(Ref(tmpDocs)),
	}, nil
}

func transformArgmax(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.ArgmaxStep)
	return transformArgExtreme("argmax", step.Column, step.Groups, "$max")
}

func transformArgmin(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.ArgminStep)
	return transformArgExtreme("argmin", step.Column, step.Groups, "$min")
}

// transformPercentage computes each row's share of its group's total.
// A zero total yields null rather than a division error.
func transformPercentage(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.PercentageStep)

	share := M{"$cond": []any{
		M{"$eq": []any{Ref(tmpTotal), 0}},
		nil,
		M{"$divide": []any{Ref(tmpDocs + "." + step.Column), Ref(tmpTotal)}},
	}}

	return []Stage{
		group(groupID(step.Group), M{
			tmpDocs:  M{"$push": "$$ROOT"},
			tmpTotal: M{"$sum": Ref(step.Column)},
		}),
		unwind(tmpDocs),
		replaceRoot(mergeObjects(Ref(tmpDocs), M{step.DestinationColumn(): share})),
	}, nil
}
