// Package mongo lowers pipelines to MongoDB aggregation stage lists. Each
// step kind has one pure transformer producing one or more stage documents;
// the translator dispatches over a pipeline, appends a final projection
// stripping internal identifiers and simplifies the result.
package mongo

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// M is an unordered aggregation document.
type M = map[string]any

// Stage is one unit of the aggregation algebra: a document with a single
// top-level key naming the stage operator. Stages are produced fresh per
// translation call; only the simplifier ever combines two of them.
type Stage = M

// FieldRef is a tagged reference to the value of a column in the current
// row. It serializes to the "$column" convention of the target algebra;
// keeping it as a distinct type lets the simplifier find references
// structurally instead of matching strings.
type FieldRef string

// Ref references a column, or a dotted path into one.
func Ref(column string) FieldRef { return FieldRef(column) }

func (r FieldRef) MarshalJSON() ([]byte, error) {
	return json.Marshal("$" + string(r))
}

// SortKey is one column/direction pair of a $sort configuration, with Dir
// following the 1/-1 convention.
type SortKey struct {
	Key string
	Dir int
}

// SortSpec is the ordered key list of a $sort stage. Key priority is
// significant in the target algebra, so the configuration cannot live in a
// plain document: map serialization would reorder the keys alphabetically
// and change which key sorts first.
type SortSpec []SortKey

func (s SortSpec) MarshalJSON() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(k.Dir))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Root returns the top-level column the reference points at.
func (r FieldRef) Root() string {
	for i := 0; i < len(r); i++ {
		if r[i] == '.' {
			return string(r[:i])
		}
	}
	return string(r)
}

// Temporary fields spliced into documents by multi-stage lowerings. All of
// them share the internal prefix and are dropped before a stage list leaves
// the translator.
const (
	internalPrefix = "_dpipe"

	tmpDocs    = internalPrefix + "Docs"
	tmpValues  = internalPrefix + "Values"
	tmpIndex   = internalPrefix + "Index"
	tmpTotal   = internalPrefix + "Total"
	tmpExtreme = internalPrefix + "Extreme"
	tmpTop     = internalPrefix + "Top"
	tmpRanked  = internalPrefix + "Ranked"
	tmpPivot   = internalPrefix + "Pivot"
	tmpPairs   = internalPrefix + "Pairs"
	tmpValue   = internalPrefix + "Value"
	tmpObj     = internalPrefix + "Obj"
	tmpAll     = internalPrefix + "All"
	tmpCopies  = internalPrefix + "Copies"
	tmpPrev    = internalPrefix + "Prev"
	tmpPrevDt  = internalPrefix + "PrevDate"
	tmpJoin    = internalPrefix + "Join"
	tmpUnion   = internalPrefix + "Union"
	tmpOrder   = internalPrefix + "Order"
	tmpDelta   = internalPrefix + "Delta"
	tmpLevel   = internalPrefix + "Level"
	tmpCount   = internalPrefix + "Count"
	tmpAvg     = internalPrefix + "Avg"
	tmpMin     = internalPrefix + "Min"
	tmpMax     = internalPrefix + "Max"
	tmpSquares = internalPrefix + "Squares"
)

func match(cond M) Stage       { return Stage{"$match": cond} }
func project(fields M) Stage   { return Stage{"$project": fields} }
func addFields(fields M) Stage { return Stage{"$addFields": fields} }
func limit(n int) Stage        { return Stage{"$limit": n} }
func facet(branches M) Stage   { return Stage{"$facet": branches} }

func sortStage(keys ...SortKey) Stage {
	return Stage{"$sort": SortSpec(keys)}
}

func group(id any, accumulators M) Stage {
	doc := M{"_id": id}
	for k, v := range accumulators {
		doc[k] = v
	}
	return Stage{"$group": doc}
}

func unwind(field string) Stage {
	return Stage{"$unwind": "$" + field}
}

func unwindIndexed(field, indexField string) Stage {
	return Stage{"$unwind": M{"path": "$" + field, "includeArrayIndex": indexField}}
}

func replaceRoot(newRoot any) Stage {
	return Stage{"$replaceRoot": M{"newRoot": newRoot}}
}

func mergeObjects(parts ...any) M {
	return M{"$mergeObjects": parts}
}

// groupID builds the compound _id document of a grouping stage, or nil when
// grouping everything together.
func groupID(columns []string) any {
	if len(columns) == 0 {
		return nil
	}
	id := M{}
	for _, c := range columns {
		id[c] = Ref(c)
	}
	return id
}

// sortDirection maps "asc"/"desc" to the 1/-1 convention.
func sortDirection(order string) int {
	if order == "desc" {
		return -1
	}
	return 1
}

// finalProjection strips the engine's internal identifier from the output.
func finalProjection() Stage {
	return project(M{"_id": 0})
}
