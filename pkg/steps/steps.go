// Package steps defines the pipeline vocabulary: the closed set of
// transformation steps a pipeline is made of, plus the filter condition
// trees some of them embed. Steps are pure data; translation backends give
// them meaning.
package steps

import "fmt"

// Step is one declarative transformation unit of a pipeline. The set of
// implementations is closed: every step kind lives in this package and is
// dispatched on by name.
type Step interface {
	// Name returns the step kind discriminator ("domain", "filter", ...).
	Name() string

	isStep()
}

// Pipeline is an ordered list of steps describing a data transformation
// program. A well-formed pipeline starts with a domain step naming the
// source collection.
type Pipeline []Step

// DomainStep selects the logical source collection the pipeline reads from.
type DomainStep struct {
	Domain string `json:"domain"`
}

func (*DomainStep) Name() string { return "domain" }

// FilterStep keeps only the rows matching a condition tree.
type FilterStep struct {
	Condition Condition `json:"condition"`
}

func (*FilterStep) Name() string { return "filter" }

// SelectStep keeps only the listed columns.
type SelectStep struct {
	Columns []string `json:"columns"`
}

func (*SelectStep) Name() string { return "select" }

// DeleteStep drops the listed columns.
type DeleteStep struct {
	Columns []string `json:"columns"`
}

func (*DeleteStep) Name() string { return "delete" }

// RenameStep renames one or more columns. The batch form (ToRename) is
// canonical; the singular OldName/NewName pair is the legacy shape and is
// still accepted on input.
type RenameStep struct {
	ToRename [][2]string `json:"toRename,omitempty"`
	OldName  string      `json:"oldname,omitempty"`
	NewName  string      `json:"newname,omitempty"`
}

func (*RenameStep) Name() string { return "rename" }

// Pairs returns the old/new name pairs to rename, normalizing the legacy
// singular form.
func (s *RenameStep) Pairs() [][2]string {
	if len(s.ToRename) > 0 {
		return s.ToRename
	}
	if s.OldName != "" || s.NewName != "" {
		return [][2]string{{s.OldName, s.NewName}}
	}
	return nil
}

// SortColumn is one column/direction pair of a sort step. Order is "asc" or
// "desc".
type SortColumn struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

// SortStep sorts rows by an ordered list of column/direction pairs.
type SortStep struct {
	Columns []SortColumn `json:"columns"`
}

func (*SortStep) Name() string { return "sort" }

// TopStep keeps the first Limit rows ranked by RankOn, optionally per group.
type TopStep struct {
	RankOn string   `json:"rankOn"`
	Sort   string   `json:"sort"` // "asc" or "desc"
	Limit  int      `json:"limit"`
	Groups []string `json:"groups,omitempty"`
}

func (*TopStep) Name() string { return "top" }

// Aggregation is one aggregation clause of an aggregate or rollup step. The
// plural Columns/NewColumns form is canonical, the singular form is legacy.
type Aggregation struct {
	NewColumns  []string `json:"newcolumns,omitempty"`
	AggFunction string   `json:"aggfunction"`
	Columns     []string `json:"columns,omitempty"`

	NewColumn string `json:"newcolumn,omitempty"`
	Column    string `json:"column,omitempty"`
}

// Targets returns the (source column, destination column) pairs of the
// clause, normalizing the legacy singular form. A missing destination
// defaults to the source column name.
func (a Aggregation) Targets() [][2]string {
	cols := a.Columns
	dsts := a.NewColumns
	if len(cols) == 0 && a.Column != "" {
		cols = []string{a.Column}
	}
	if len(dsts) == 0 && a.NewColumn != "" {
		dsts = []string{a.NewColumn}
	}

	pairs := make([][2]string, 0, len(cols))
	for i, c := range cols {
		dst := c
		if i < len(dsts) {
			dst = dsts[i]
		}
		pairs = append(pairs, [2]string{c, dst})
	}

	// count aggregations have no source column
	if len(cols) == 0 && len(dsts) > 0 {
		for _, d := range dsts {
			pairs = append(pairs, [2]string{"", d})
		}
	}

	return pairs
}

// AggregateStep groups rows by the On columns and computes aggregated
// values. With KeepOriginalGranularity the aggregates are attached to every
// original row instead of collapsing the groups.
type AggregateStep struct {
	On                      []string      `json:"on"`
	Aggregations            []Aggregation `json:"aggregations"`
	KeepOriginalGranularity bool          `json:"keepOriginalGranularity,omitempty"`
}

func (*AggregateStep) Name() string { return "aggregate" }

// ArgmaxStep keeps the rows holding the maximum of a column, per group.
type ArgmaxStep struct {
	Column string   `json:"column"`
	Groups []string `json:"groups,omitempty"`
}

func (*ArgmaxStep) Name() string { return "argmax" }

// ArgminStep keeps the rows holding the minimum of a column, per group.
type ArgminStep struct {
	Column string   `json:"column"`
	Groups []string `json:"groups,omitempty"`
}

func (*ArgminStep) Name() string { return "argmin" }

// ConcatenateStep joins the string values of several columns with a
// separator into a new column.
type ConcatenateStep struct {
	Columns       []string `json:"columns"`
	Separator     string   `json:"separator"`
	NewColumnName string   `json:"newColumnName"`
}

func (*ConcatenateStep) Name() string { return "concatenate" }

// ConvertStep casts columns to a data type, one of "boolean", "date",
// "float", "integer" or "text".
type ConvertStep struct {
	Columns  []string `json:"columns"`
	DataType string   `json:"dataType"`
}

func (*ConvertStep) Name() string { return "convert" }

// CumSumStep computes the running total of ValueColumn in the order given
// by ReferenceColumn, optionally per group.
type CumSumStep struct {
	ValueColumn     string   `json:"valueColumn"`
	ReferenceColumn string   `json:"referenceColumn"`
	GroupBy         []string `json:"groupby,omitempty"`
	NewColumn       string   `json:"newColumn,omitempty"`
}

func (*CumSumStep) Name() string { return "cumsum" }

// DestinationColumn returns the column the running total is written to.
func (s *CumSumStep) DestinationColumn() string {
	if s.NewColumn != "" {
		return s.NewColumn
	}
	return s.ValueColumn + "_CUMSUM"
}

// CustomStep is the low-level escape hatch: its payload is a JSON-encoded,
// backend-specific query fragment spliced into the output verbatim. The
// payload must be valid JSON but is never interpreted.
type CustomStep struct {
	Query string `json:"query"`
}

func (*CustomStep) Name() string { return "custom" }

// DateExtractStep extracts a date part ("year", "month", "day", "hour",
// "minutes", "seconds", "milliseconds", "dayOfYear", "dayOfWeek", "week")
// from a date column into a new column.
type DateExtractStep struct {
	Operation     string `json:"operation"`
	Column        string `json:"column"`
	NewColumnName string `json:"newColumnName,omitempty"`
}

func (*DateExtractStep) Name() string { return "dateextract" }

// DestinationColumn returns the column the extracted part is written to.
func (s *DateExtractStep) DestinationColumn() string {
	if s.NewColumnName != "" {
		return s.NewColumnName
	}
	return s.Column + "_" + s.Operation
}

// DuplicateStep copies a column under a new name.
type DuplicateStep struct {
	Column        string `json:"column"`
	NewColumnName string `json:"newColumnName"`
}

func (*DuplicateStep) Name() string { return "duplicate" }

// DurationStep computes the elapsed time between two date columns,
// expressed in DurationIn units ("seconds", "minutes", "hours" or "days").
type DurationStep struct {
	NewColumnName   string `json:"newColumnName"`
	StartDateColumn string `json:"startDateColumn"`
	EndDateColumn   string `json:"endDateColumn"`
	DurationIn      string `json:"durationIn"`
}

func (*DurationStep) Name() string { return "duration" }

// EvolutionStep computes the evolution of ValueCol between each row and the
// row one period earlier (EvolutionType is "vsLastYear", "vsLastMonth",
// "vsLastWeek" or "vsLastDay"), as an absolute difference or a percentage.
// IndexColumns disambiguate rows sharing the same date.
type EvolutionStep struct {
	DateCol         string   `json:"dateCol"`
	ValueCol        string   `json:"valueCol"`
	EvolutionType   string   `json:"evolutionType"`
	EvolutionFormat string   `json:"evolutionFormat,omitempty"` // "abs" (default) or "pct"
	IndexColumns    []string `json:"indexColumns,omitempty"`
	NewColumn       string   `json:"newColumn,omitempty"`
}

func (*EvolutionStep) Name() string { return "evolution" }

// DestinationColumn returns the column the evolution is written to.
func (s *EvolutionStep) DestinationColumn() string {
	if s.NewColumn != "" {
		return s.NewColumn
	}
	format := s.EvolutionFormat
	if format == "" {
		format = "abs"
	}
	return s.ValueCol + "_EVOL_" + format
}

// FillnaStep replaces null values of a column with a constant.
type FillnaStep struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

func (*FillnaStep) Name() string { return "fillna" }

// FormulaStep computes a new column from an arithmetic formula over other
// columns, e.g. "[col one] + 2 * [col two]".
type FormulaStep struct {
	Formula   string `json:"formula"`
	NewColumn string `json:"newColumn"`
}

func (*FormulaStep) Name() string { return "formula" }

// FromDateStep formats a date column into a string column.
type FromDateStep struct {
	Column string `json:"column"`
	Format string `json:"format"`
}

func (*FromDateStep) Name() string { return "fromdate" }

// IfThenElseStep writes Then or Else into a new column depending on a
// condition. Then and Else hold either a literal value or a formula string;
// Else may also hold a nested *IfThenElseStep for else-if chains.
type IfThenElseStep struct {
	NewColumn string    `json:"newColumn"`
	If        Condition `json:"if"`
	Then      any       `json:"then"`
	Else      any       `json:"else"`
}

func (*IfThenElseStep) Name() string { return "ifthenelse" }

// JoinStep joins the current row set with the output of another pipeline.
// Type is "inner", "left" or "left outer anti"; On lists the (left column,
// right column) equality pairs.
type JoinStep struct {
	RightPipeline Pipeline    `json:"rightPipeline"`
	Type          string      `json:"type"`
	On            [][2]string `json:"on"`
}

func (*JoinStep) Name() string { return "join" }

// AppendStep concatenates the outputs of other pipelines under the current
// row set.
type AppendStep struct {
	Pipelines []Pipeline `json:"pipelines"`
}

func (*AppendStep) Name() string { return "append" }

// LowercaseStep converts a text column to lower case in place.
type LowercaseStep struct {
	Column string `json:"column"`
}

func (*LowercaseStep) Name() string { return "lowercase" }

// UppercaseStep converts a text column to upper case in place.
type UppercaseStep struct {
	Column string `json:"column"`
}

func (*UppercaseStep) Name() string { return "uppercase" }

// PercentageStep computes each row's share of the group total of a column.
type PercentageStep struct {
	Column        string   `json:"column"`
	Group         []string `json:"group,omitempty"`
	NewColumnName string   `json:"newColumnName,omitempty"`
}

func (*PercentageStep) Name() string { return "percentage" }

// DestinationColumn returns the column the percentage is written to.
func (s *PercentageStep) DestinationColumn() string {
	if s.NewColumnName != "" {
		return s.NewColumnName
	}
	return s.Column + "_PCT"
}

// PivotStep spreads the values of ColumnToPivot into one column per value,
// filled with the aggregated ValueColumn.
type PivotStep struct {
	Index         []string `json:"index"`
	ColumnToPivot string   `json:"columnToPivot"`
	ValueColumn   string   `json:"valueColumn"`
	AggFunction   string   `json:"aggFunction"`
}

func (*PivotStep) Name() string { return "pivot" }

// UnpivotStep melts the Unpivot columns into (column name, value) row
// pairs, keeping the Keep columns.
type UnpivotStep struct {
	Keep              []string `json:"keep"`
	Unpivot           []string `json:"unpivot"`
	UnpivotColumnName string   `json:"unpivotColumnName"`
	ValueColumnName   string   `json:"valueColumnName"`
	Dropna            bool     `json:"dropna,omitempty"`
}

func (*UnpivotStep) Name() string { return "unpivot" }

// RankStep assigns a rank to each row by ValueCol. Method selects the tie
// policy: "standard" keeps the row counter running through ties, "dense"
// never skips a rank.
type RankStep struct {
	ValueCol      string   `json:"valueCol"`
	Order         string   `json:"order"`  // "asc" or "desc"
	Method        string   `json:"method"` // "standard" or "dense"
	GroupBy       []string `json:"groupby,omitempty"`
	NewRankColumn string   `json:"newRankColumn,omitempty"`
}

func (*RankStep) Name() string { return "rank" }

// DestinationColumn returns the column the rank is written to.
func (s *RankStep) DestinationColumn() string {
	if s.NewRankColumn != "" {
		return s.NewRankColumn
	}
	return s.ValueCol + "_RANK"
}

// ReplaceStep substitutes values in a column, each ToReplace entry being an
// (old value, new value) pair.
type ReplaceStep struct {
	SearchColumn string   `json:"searchColumn"`
	ToReplace    [][2]any `json:"toReplace"`
}

func (*ReplaceStep) Name() string { return "replace" }

// RollupStep aggregates at every level of a column hierarchy (given from
// the top level down) and stacks the per-level results, labelling each row
// with its level and its parent label.
type RollupStep struct {
	Hierarchy      []string      `json:"hierarchy"`
	Aggregations   []Aggregation `json:"aggregations"`
	GroupBy        []string      `json:"groupby,omitempty"`
	LabelCol       string        `json:"labelCol,omitempty"`
	ParentLabelCol string        `json:"parentLabelCol,omitempty"`
	LevelCol       string        `json:"levelCol,omitempty"`
}

func (*RollupStep) Name() string { return "rollup" }

// SplitStep splits a text column on a delimiter into numbered columns.
type SplitStep struct {
	Column           string `json:"column"`
	Delimiter        string `json:"delimiter"`
	NumberColsToKeep int    `json:"numberColsToKeep"`
}

func (*SplitStep) Name() string { return "split" }

// Quantile is one quantile request of a statistics step: the Nth of the
// Order-quantiles of the column, e.g. Nth 1 of Order 2 is the median.
type Quantile struct {
	Label string `json:"label,omitempty"`
	Nth   int    `json:"nth"`
	Order int    `json:"order"`
}

// DestinationColumn returns the column the quantile is written to.
func (q Quantile) DestinationColumn() string {
	if q.Label != "" {
		return q.Label
	}
	return fmt.Sprintf("%d-th %d-quantile", q.Nth, q.Order)
}

// StatisticsStep computes descriptive statistics ("count", "average",
// "min", "max", "variance", "standard deviation") and quantiles of a
// column, per group.
type StatisticsStep struct {
	Column     string     `json:"column"`
	GroupBy    []string   `json:"groupbyColumns,omitempty"`
	Statistics []string   `json:"statistics,omitempty"`
	Quantiles  []Quantile `json:"quantiles,omitempty"`
}

func (*StatisticsStep) Name() string { return "statistics" }

// SubstringStep extracts a 1-indexed, inclusive [StartIndex, EndIndex]
// substring of a column. Negative indices count from the end of the string.
type SubstringStep struct {
	Column        string `json:"column"`
	StartIndex    int    `json:"startIndex"`
	EndIndex      int    `json:"endIndex"`
	NewColumnName string `json:"newColumnName,omitempty"`
}

func (*SubstringStep) Name() string { return "substring" }

// DestinationColumn returns the column the substring is written to.
func (s *SubstringStep) DestinationColumn() string {
	if s.NewColumnName != "" {
		return s.NewColumnName
	}
	return s.Column + "_SUBSTR"
}

// TextStep writes a constant value into a new column on every row.
type TextStep struct {
	Text      any    `json:"text"`
	NewColumn string `json:"newColumn"`
}

func (*TextStep) Name() string { return "text" }

// ToDateStep parses a string column into a date column, optionally with an
// explicit format.
type ToDateStep struct {
	Column string `json:"column"`
	Format string `json:"format,omitempty"`
}

func (*ToDateStep) Name() string { return "todate" }

// UniqueGroupsStep keeps one row per distinct combination of the On
// columns.
type UniqueGroupsStep struct {
	On []string `json:"on"`
}

func (*UniqueGroupsStep) Name() string { return "uniquegroups" }

// WaterfallStep decomposes the change of ValueColumn between the Start and
// End milestones of MilestonesColumn into per-label (and optionally
// per-parent) contributions, bracketed by the two milestone totals.
type WaterfallStep struct {
	ValueColumn      string   `json:"valueColumn"`
	MilestonesColumn string   `json:"milestonesColumn"`
	Start            any      `json:"start"`
	End              any      `json:"end"`
	LabelsColumn     string   `json:"labelsColumn"`
	ParentsColumn    string   `json:"parentsColumn,omitempty"`
	GroupBy          []string `json:"groupby,omitempty"`
	SortBy           string   `json:"sortBy,omitempty"` // "label" or "value"
	Order            string   `json:"order,omitempty"`  // "asc" or "desc"
}

func (*WaterfallStep) Name() string { return "waterfall" }

func (*DomainStep) isStep()       {}
func (*FilterStep) isStep()       {}
func (*SelectStep) isStep()       {}
func (*DeleteStep) isStep()       {}
func (*RenameStep) isStep()       {}
func (*SortStep) isStep()         {}
func (*TopStep) isStep()          {}
func (*AggregateStep) isStep()    {}
func (*ArgmaxStep) isStep()       {}
func (*ArgminStep) isStep()       {}
func (*ConcatenateStep) isStep()  {}
func (*ConvertStep) isStep()      {}
func (*CumSumStep) isStep()       {}
func (*CustomStep) isStep()       {}
func (*DateExtractStep) isStep()  {}
func (*DuplicateStep) isStep()    {}
func (*DurationStep) isStep()     {}
func (*EvolutionStep) isStep()    {}
func (*FillnaStep) isStep()       {}
func (*FormulaStep) isStep()      {}
func (*FromDateStep) isStep()     {}
func (*IfThenElseStep) isStep()   {}
func (*JoinStep) isStep()         {}
func (*AppendStep) isStep()       {}
func (*LowercaseStep) isStep()    {}
func (*UppercaseStep) isStep()    {}
func (*PercentageStep) isStep()   {}
func (*PivotStep) isStep()        {}
func (*UnpivotStep) isStep()      {}
func (*RankStep) isStep()         {}
func (*ReplaceStep) isStep()      {}
func (*RollupStep) isStep()       {}
func (*SplitStep) isStep()        {}
func (*StatisticsStep) isStep()   {}
func (*SubstringStep) isStep()    {}
func (*TextStep) isStep()         {}
func (*ToDateStep) isStep()       {}
func (*UniqueGroupsStep) isStep() {}
func (*WaterfallStep) isStep()    {}
