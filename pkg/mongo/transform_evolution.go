package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

const millisPerDay = 1000 * 60 * 60 * 24

// evolutionAmbiguous is the data-level sentinel emitted when the self-join
// finds more than one previous-period row. It flows through the output
// pipeline as a value: the algebra cannot branch on host exceptions.
const evolutionAmbiguous = "Error: More than one previous date found for the specified index columns"

// previousPeriodDate builds the expression computing the comparison date of
// a row: same day one year or one month earlier, or a fixed offset for
// weekly and daily evolutions.
func previousPeriodDate(step *steps.EvolutionStep) (M, error) {
	date := Ref(step.DateCol)

	switch step.EvolutionType {
	case "vsLastYear":
		return M{"$dateFromParts": M{
			"year":  M{"$subtract": []any{M{"$year": date}, 1}},
			"month": M{"$month": date},
			"day":   M{"$dayOfMonth": date},
		}}, nil
	case "vsLastMonth":
		return M{"$dateFromParts": M{
			"year":  M{"$year": date},
			"month": M{"$subtract": []any{M{"$month": date}, 1}},
			"day":   M{"$dayOfMonth": date},
		}}, nil
	case "vsLastWeek":
		return M{"$subtract": []any{date, 7 * millisPerDay}}, nil
	case "vsLastDay":
		return M{"$subtract": []any{date, millisPerDay}}, nil
	default:
		return nil, NewInvalidStepError("evolution", "unknown evolution type "+step.EvolutionType)
	}
}

// transformEvolution compares each row's value with the row one period
// earlier. The full row set is self-joined onto every row through a facet,
// the attached set is filtered down to the computed previous date (and the
// index columns), and an ambiguous match yields the error sentinel instead
// of a value.
func transformEvolution(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.EvolutionStep)

	prevDate, err := previousPeriodDate(step)
	if err != nil {
		return nil, err
	}

	matchPrev := []any{M{"$eq": []any{"$$item." + step.DateCol, Ref(tmpPrevDt)}}}
	for _, c := range step.IndexColumns {
		matchPrev = append(matchPrev, M{"$eq": []any{"$$item." + c, Ref(c)}})
	}

	prevValue := M{"$arrayElemAt": []any{Ref(tmpPrev + "." + step.ValueCol), 0}}

	var evolution any
	switch step.EvolutionFormat {
	case "", "abs":
		evolution = M{"$subtract": []any{Ref(step.ValueCol), prevValue}}
	case "pct":
		evolution = M{"$cond": []any{
			M{"$in": []any{prevValue, []any{nil, 0}}},
			nil,
			M{"$divide": []any{
				M{"$subtract": []any{Ref(step.ValueCol), prevValue}},
				prevValue,
			}},
		}}
	default:
		return nil, NewInvalidStepError("evolution", "unknown evolution format "+step.EvolutionFormat)
	}

	guarded := M{"$cond": []any{
		M{"$gt": []any{M{"$size": Ref(tmpPrev)}, 1}},
		evolutionAmbiguous,
		evolution,
	}}

	return []Stage{
		addFields(M{tmpPrevDt: prevDate}),
		facet(M{
			tmpDocs:   []any{match(M{})},
			tmpCopies: []any{group(nil, M{tmpAll: M{"$push": "$$ROOT"}})},
		}),
		unwind(tmpDocs),
		replaceRoot(mergeObjects(
			Ref(tmpDocs),
			M{"$arrayElemAt": []any{Ref(tmpCopies), 0}},
		)),
		addFields(M{tmpPrev: M{"$filter": M{
			"input": Ref(tmpAll),
			"as":    "item",
			"cond":  M{"$and": matchPrev},
		}}}),
		addFields(M{step.DestinationColumn(): guarded}),
		project(M{tmpAll: 0, tmpPrev: 0, tmpPrevDt: 0}),
	}, nil
}
