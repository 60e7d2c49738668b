package mongo

import (
	"fmt"

	"github.com/dpipe/dpipe/pkg/steps"
	"github.com/dpipe/dpipe/pkg/util"
)

// subPipelineDomain returns the domain the sub-pipeline reads from. Join
// and append sub-pipelines must start with a domain step so the lookup has
// a source collection to point at.
func subPipelineDomain(pipeline steps.Pipeline) (string, error) {
	if len(pipeline) == 0 {
		return "", fmt.Errorf("empty sub-pipeline")
	}
	domain, ok := pipeline[0].(*steps.DomainStep)
	if !ok {
		return "", fmt.Errorf("sub-pipeline must start with a domain step")
	}
	return domain.Domain, nil
}

// transformJoin translates the right-hand pipeline recursively and splices
// a lookup around it: the join keys become lookup variables, an equality
// match closes the lookup pipeline, and the join type picks the
// post-lookup unwind/filter combination.
func transformJoin(tr *Translator, depth int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.JoinStep)
	if len(step.On) == 0 {
		return nil, NewInvalidStepError("join", "missing join columns")
	}

	rightDomain, err := subPipelineDomain(step.RightPipeline)
	if err != nil {
		return nil, NewInvalidStepError("join", err.Error())
	}

	right, err := tr.translate(step.RightPipeline, depth+1)
	if err != nil {
		return nil, err
	}

	vars := M{}
	conds := []any{}
	for i, pair := range step.On {
		left, rightCol := pair[0], pair[1]
		name := fmt.Sprintf("dpipe_left_%d", i)
		vars[name] = Ref(left)
		conds = append(conds, M{"$eq": []any{Ref(rightCol), "$$" + name}})
	}

	lookupPipeline := util.Map(func(st Stage) any { return st }, right)
	lookupPipeline = append(lookupPipeline, match(M{"$expr": M{"$and": conds}}))

	lookup := Stage{"$lookup": M{
		"from":     tr.resolve(rightDomain),
		"let":      vars,
		"pipeline": lookupPipeline,
		"as":       tmpJoin,
	}}

	switch step.Type {
	case "inner":
		return []Stage{
			lookup,
			unwind(tmpJoin),
			replaceRoot(mergeObjects("$$ROOT", Ref(tmpJoin))),
			project(M{tmpJoin: 0}),
		}, nil

	case "", "left":
		return []Stage{
			lookup,
			Stage{"$unwind": M{"path": "$" + tmpJoin, "preserveNullAndEmptyArrays": true}},
			replaceRoot(mergeObjects("$$ROOT", M{"$ifNull": []any{Ref(tmpJoin), M{}}})),
			project(M{tmpJoin: 0}),
		}, nil

	case "left outer anti":
		return []Stage{
			lookup,
			match(M{tmpJoin: M{"$eq": []any{}}}),
			project(M{tmpJoin: 0}),
		}, nil

	default:
		return nil, NewInvalidStepError("join", "unknown join type "+step.Type)
	}
}

// transformAppend gathers the whole row set into one document, looks up
// every source pipeline recursively and concatenates all of them back into
// a single unwound stream.
func transformAppend(tr *Translator, depth int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.AppendStep)
	if len(step.Pipelines) == 0 {
		return nil, NewInvalidStepError("append", "no pipelines to append")
	}

	stages := []Stage{
		group(nil, M{tmpUnion: M{"$push": "$$ROOT"}}),
	}

	unionParts := []any{Ref(tmpUnion)}
	for i, sub := range step.Pipelines {
		domain, err := subPipelineDomain(sub)
		if err != nil {
			return nil, NewInvalidStepError("append", err.Error())
		}

		translated, err := tr.translate(sub, depth+1)
		if err != nil {
			return nil, err
		}

		pipeline := util.Map(func(st Stage) any { return st }, translated)

		as := fmt.Sprintf("%sAppend%d", internalPrefix, i)
		stages = append(stages, Stage{"$lookup": M{
			"from":     tr.resolve(domain),
			"pipeline": pipeline,
			"as":       as,
		}})
		unionParts = append(unionParts, Ref(as))
	}

	stages = append(stages,
		project(M{tmpUnion: M{"$concatArrays": unionParts}}),
		unwind(tmpUnion),
		replaceRoot(Ref(tmpUnion)),
	)

	return stages, nil
}
