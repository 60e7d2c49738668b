package mongo

import (
	"fmt"

	"github.com/dpipe/dpipe/pkg/steps"
)

// transformerTable returns the full step-name → transformer dispatch table.
// Backends start from a copy of it and remove what they cannot express.
func transformerTable() map[string]transformFunc {
	return map[string]transformFunc{
		"domain":       transformDomain,
		"filter":       transformFilter,
		"select":       transformSelect,
		"delete":       transformDelete,
		"rename":       transformRename,
		"sort":         transformSort,
		"top":          transformTop,
		"aggregate":    transformAggregate,
		"argmax":       transformArgmax,
		"argmin":       transformArgmin,
		"concatenate":  transformConcatenate,
		"convert":      transformConvert,
		"cumsum":       transformCumSum,
		"custom":       transformCustom,
		"dateextract":  transformDateExtract,
		"duplicate":    transformDuplicate,
		"duration":     transformDuration,
		"evolution":    transformEvolution,
		"fillna":       transformFillna,
		"formula":      transformFormula,
		"fromdate":     transformFromDate,
		"ifthenelse":   transformIfThenElse,
		"join":         transformJoin,
		"append":       transformAppend,
		"lowercase":    transformLowercase,
		"uppercase":    transformUppercase,
		"percentage":   transformPercentage,
		"pivot":        transformPivot,
		"unpivot":      transformUnpivot,
		"rank":         transformRank,
		"replace":      transformReplace,
		"rollup":       transformRollup,
		"split":        transformSplit,
		"statistics":   transformStatistics,
		"substring":    transformSubstring,
		"text":         transformText,
		"todate":       transformToDate,
		"uniquegroups": transformUniqueGroups,
		"waterfall":    transformWaterfall,
	}
}

func transformDomain(tr *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.DomainStep)
	return []Stage{match(M{"domain": tr.resolve(step.Domain)})}, nil
}

func transformFilter(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.FilterStep)
	doc, err := conditionToMatch(step.Condition)
	if err != nil {
		return nil, err
	}
	return []Stage{match(doc)}, nil
}

func transformSelect(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.SelectStep)
	fields := M{}
	for _, c := range step.Columns {
		fields[c] = 1
	}
	return []Stage{project(fields)}, nil
}

func transformDelete(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.DeleteStep)
	fields := M{}
	for _, c := range step.Columns {
		fields[c] = 0
	}
	return []Stage{project(fields)}, nil
}

// transformRename aliases each new name to its old column, then drops the
// old columns. Two stages on purpose: an alias value referencing a field of
// the same projection would be ambiguous in the target algebra.
func transformRename(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.RenameStep)
	pairs := step.Pairs()
	if len(pairs) == 0 {
		return nil, NewInvalidStepError("rename", "nothing to rename")
	}

	aliases := M{}
	drops := M{}
	for _, pair := range pairs {
		from, to := pair[0], pair[1]
		aliases[to] = Ref(from)
		drops[from] = 0
	}

	return []Stage{addFields(aliases), project(drops)}, nil
}

func transformSort(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.SortStep)
	keys := make([]SortKey, 0, len(step.Columns))
	for _, c := range step.Columns {
		keys = append(keys, SortKey{Key: c.Column, Dir: sortDirection(c.Order)})
	}
	return []Stage{sortStage(keys...)}, nil
}

// transformTop keeps the first Limit rows by rank. Grouped ranking pushes
// each group into an array, slices its head and unwinds it back.
func transformTop(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.TopStep)
	sorter := sortStage(SortKey{Key: step.RankOn, Dir: sortDirection(step.Sort)})

	if len(step.Groups) == 0 {
		return []Stage{sorter, limit(step.Limit)}, nil
	}

	return []Stage{
		sorter,
		group(groupID(step.Groups), M{tmpDocs: M{"$push": "$$ROOT"}}),
		project(M{tmpTop: M{"$slice": []any{Ref(tmpDocs), step.Limit}}}),
		unwind(tmpTop),
		replaceRoot(Ref(tmpTop)),
	}, nil
}

func transformText(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.TextStep)
	return []Stage{addFields(M{step.NewColumn: M{"$literal": step.Text}})}, nil
}

func transformDuplicate(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.DuplicateStep)
	return []Stage{addFields(M{step.NewColumnName: Ref(step.Column)})}, nil
}

func transformFillna(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.FillnaStep)
	return []Stage{addFields(M{
		step.Column: M{"$ifNull": []any{Ref(step.Column), step.Value}},
	})}, nil
}

func transformLowercase(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.LowercaseStep)
	return []Stage{addFields(M{step.Column: M{"$toLower": Ref(step.Column)}})}, nil
}

func transformUppercase(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.UppercaseStep)
	return []Stage{addFields(M{step.Column: M{"$toUpper": Ref(step.Column)}})}, nil
}

func transformConcatenate(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.ConcatenateStep)
	if len(step.Columns) == 0 {
		return nil, NewInvalidStepError("concatenate", "no columns to concatenate")
	}

	parts := []any{}
	for i, c := range step.Columns {
		if i > 0 {
			parts = append(parts, step.Separator)
		}
		parts = append(parts, Ref(c))
	}

	return []Stage{addFields(M{step.NewColumnName: M{"$concat": parts}})}, nil
}

func transformSplit(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.SplitStep)
	fields := M{}
	for i := 1; i <= step.NumberColsToKeep; i++ {
		fields[fmt.Sprintf("%s_%d", step.Column, i)] = M{
			"$arrayElemAt": []any{
				M{"$split": []any{Ref(step.Column), step.Delimiter}},
				i - 1,
			},
		}
	}
	return []Stage{addFields(fields)}, nil
}

// transformSubstring emits a $substrCP over 1-indexed inclusive bounds;
// negative indices count from the end of the string.
func transformSubstring(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.SubstringStep)

	var start any
	if step.StartIndex >= 0 {
		start = step.StartIndex - 1
	} else {
		start = M{"$add": []any{M{"$strLenCP": Ref(step.Column)}, step.StartIndex}}
	}

	var end any
	if step.EndIndex >= 0 {
		end = step.EndIndex - 1
	} else {
		end = M{"$add": []any{M{"$strLenCP": Ref(step.Column)}, step.EndIndex}}
	}

	length := M{"$add": []any{M{"$subtract": []any{end, start}}, 1}}

	return []Stage{addFields(M{
		step.DestinationColumn(): M{"$substrCP": []any{Ref(step.Column), start, length}},
	})}, nil
}

func transformReplace(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.ReplaceStep)

	branches := []any{}
	for _, pair := range step.ToReplace {
		branches = append(branches, M{
			"case": M{"$eq": []any{Ref(step.SearchColumn), pair[0]}},
			"then": pair[1],
		})
	}

	return []Stage{addFields(M{
		step.SearchColumn: M{"$switch": M{
			"branches": branches,
			"default":  Ref(step.SearchColumn),
		}},
	})}, nil
}

func transformUniqueGroups(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.UniqueGroupsStep)

	flatten := M{}
	for _, c := range step.On {
		flatten[c] = Ref("_id." + c)
	}

	return []Stage{
		group(groupID(step.On), nil),
		project(flatten),
	}, nil
}
