package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

// statisticsQuantile builds the linear-interpolation expression reading the
// nth of the order-quantiles off the sorted value array: the two values
// bracketing the fractional index are averaged.
func statisticsQuantile(nth, order int) M {
	index := M{"$divide": []any{
		M{"$multiply": []any{M{"$subtract": []any{Ref(tmpCount), 1}}, nth}},
		order,
	}}
	return M{"$avg": []any{
		M{"$arrayElemAt": []any{Ref(tmpValues), M{"$floor": index}}},
		M{"$arrayElemAt": []any{Ref(tmpValues), M{"$ceil": index}}},
	}}
}

// transformStatistics computes descriptive statistics and quantiles of a
// column in one grouping pass. Rows are pre-sorted when quantiles are
// requested so the pushed value array comes out ordered; variance is the
// mean of squares minus the squared mean.
func transformStatistics(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.StatisticsStep)
	if step.Column == "" {
		return nil, NewInvalidStepError("statistics", "missing column")
	}
	if len(step.Statistics) == 0 && len(step.Quantiles) == 0 {
		return nil, NewInvalidStepError("statistics", "nothing to compute")
	}

	variance := M{"$subtract": []any{
		Ref(tmpSquares),
		M{"$pow": []any{Ref(tmpAvg), 2}},
	}}

	fields := M{}
	for _, c := range step.GroupBy {
		fields[c] = Ref("_id." + c)
	}
	for _, stat := range step.Statistics {
		switch stat {
		case "count":
			fields[stat] = Ref(tmpCount)
		case "average":
			fields[stat] = Ref(tmpAvg)
		case "min":
			fields[stat] = Ref(tmpMin)
		case "max":
			fields[stat] = Ref(tmpMax)
		case "variance":
			fields[stat] = variance
		case "standard deviation":
			fields[stat] = M{"$pow": []any{variance, 0.5}}
		default:
			return nil, NewUnsupportedOperatorError(stat)
		}
	}
	for _, q := range step.Quantiles {
		if q.Order < 1 || q.Nth < 0 || q.Nth > q.Order {
			return nil, NewInvalidStepError("statistics", "quantile out of range")
		}
		fields[q.DestinationColumn()] = statisticsQuantile(q.Nth, q.Order)
	}

	out := []Stage{}
	if len(step.Quantiles) > 0 {
		out = append(out, sortStage(SortKey{Key: step.Column, Dir: 1}))
	}
	out = append(out,
		group(groupID(step.GroupBy), M{
			tmpValues:  M{"$push": Ref(step.Column)},
			tmpCount:   M{"$sum": 1},
			tmpAvg:     M{"$avg": Ref(step.Column)},
			tmpMin:     M{"$min": Ref(step.Column)},
			tmpMax:     M{"$max": Ref(step.Column)},
			tmpSquares: M{"$avg": M{"$pow": []any{Ref(step.Column), 2}}},
		}),
		project(fields),
	)

	return out, nil
}
