package mongo

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dpipe/dpipe/pkg/steps"
)

// lower translates a single-step pipeline, final projection and
// simplification included.
func lower(step steps.Step) ([]Stage, error) {
	return NewTranslator(WithLogger(logger)).Translate(steps.Pipeline{step})
}

var _ = Describe("Lowering filter steps", func() {
	It("uses the short form for equality", func() {
		stages, err := lower(&steps.FilterStep{Condition: steps.Condition{
			Column: "Region", Operator: steps.OpEq, Value: "Europe",
		}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$match": M{"Region": "Europe"}}))
	})

	It("lowers comparison and membership operators", func() {
		for operator, expected := range map[string]M{
			steps.OpNe:  {"Value": M{"$ne": 10}},
			steps.OpLt:  {"Value": M{"$lt": 10}},
			steps.OpLe:  {"Value": M{"$lte": 10}},
			steps.OpGt:  {"Value": M{"$gt": 10}},
			steps.OpGe:  {"Value": M{"$gte": 10}},
			steps.OpIn:  {"Value": M{"$in": 10}},
			steps.OpNin: {"Value": M{"$nin": 10}},
		} {
			stages, err := lower(&steps.FilterStep{Condition: steps.Condition{
				Column: "Value", Operator: operator, Value: 10,
			}})
			Expect(err).NotTo(HaveOccurred())
			Expect(stages[0]).To(Equal(Stage{"$match": expected}), "operator %s", operator)
		}
	})

	It("lowers null checks and regex matches", func() {
		stages, err := lower(&steps.FilterStep{Condition: steps.Condition{
			Column: "Region", Operator: steps.OpIsNull,
		}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$match": M{"Region": M{"$eq": nil}}}))

		stages, err = lower(&steps.FilterStep{Condition: steps.Condition{
			Column: "Region", Operator: steps.OpNotMatches, Value: "^Eu",
		}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$match": M{"Region": M{"$not": M{"$regex": "^Eu"}}}}))
	})

	It("lowers combinator trees", func() {
		stages, err := lower(&steps.FilterStep{Condition: steps.Condition{
			And: []steps.Condition{
				{Column: "Value", Operator: steps.OpGt, Value: 10},
				{Or: []steps.Condition{
					{Column: "Region", Operator: steps.OpEq, Value: "Europe"},
					{Column: "Region", Operator: steps.OpEq, Value: "Asia"},
				}},
			},
		}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$match": M{"$and": []any{
			M{"Value": M{"$gt": 10}},
			M{"$or": []any{
				M{"Region": "Europe"},
				M{"Region": "Asia"},
			}},
		}}}))
	})
})

var _ = Describe("Lowering row-shaping steps", func() {
	It("lowers sort", func() {
		stages, err := lower(&steps.SortStep{Columns: []steps.SortColumn{
			{Column: "Region", Order: "asc"},
			{Column: "Value", Order: "desc"},
		}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$sort": SortSpec{
			{Key: "Region", Dir: 1},
			{Key: "Value", Dir: -1},
		}}))
	})

	It("keeps sort key priority on the wire", func() {
		stages, err := lower(&steps.SortStep{Columns: []steps.SortColumn{
			{Column: "b_minor", Order: "asc"},
			{Column: "a_major", Order: "desc"},
		}})
		Expect(err).NotTo(HaveOccurred())

		b, err := json.Marshal(stages[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal(`{"$sort":{"b_minor":1,"a_major":-1}}`))
	})

	It("lowers an ungrouped top to sort plus limit", func() {
		stages, err := lower(&steps.TopStep{RankOn: "Value", Sort: "desc", Limit: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(Equal([]Stage{
			{"$sort": SortSpec{{Key: "Value", Dir: -1}}},
			{"$limit": 3},
			{"$project": M{"_id": 0}},
		}))
	})

	It("lowers a grouped top through an array slice", func() {
		stages, err := lower(&steps.TopStep{
			RankOn: "Value", Sort: "asc", Limit: 2, Groups: []string{"Region"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(6))
		Expect(stages[1]).To(Equal(Stage{"$group": M{
			"_id":   M{"Region": Ref("Region")},
			tmpDocs: M{"$push": "$$ROOT"},
		}}))
		Expect(stages[2]).To(Equal(Stage{"$project": M{
			tmpTop: M{"$slice": []any{Ref(tmpDocs), 2}},
		}}))
		Expect(stages[3]).To(Equal(Stage{"$unwind": "$" + tmpTop}))
	})

	It("lowers uniquegroups to a self-flattening group", func() {
		stages, err := lower(&steps.UniqueGroupsStep{On: []string{"Region"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(Equal([]Stage{
			{"$group": M{"_id": M{"Region": Ref("Region")}}},
			{"$project": M{"Region": Ref("_id.Region"), "_id": 0}},
		}))
	})
})

var _ = Describe("Lowering column steps", func() {
	It("lowers text to a literal assignment", func() {
		stages, err := lower(&steps.TextStep{Text: "fixed", NewColumn: "Origin"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{"Origin": M{"$literal": "fixed"}}}))
	})

	It("lowers duplicate, fillna and case folding", func() {
		stages, err := lower(&steps.DuplicateStep{Column: "Value", NewColumnName: "Copy"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{"Copy": Ref("Value")}}))

		stages, err = lower(&steps.FillnaStep{Column: "Value", Value: 0})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"Value": M{"$ifNull": []any{Ref("Value"), 0}},
		}}))

		stages, err = lower(&steps.UppercaseStep{Column: "Region"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{"Region": M{"$toUpper": Ref("Region")}}}))
	})

	It("lowers concatenate with interleaved separators", func() {
		stages, err := lower(&steps.ConcatenateStep{
			Columns: []string{"First", "Last"}, Separator: " ", NewColumnName: "Full",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"Full": M{"$concat": []any{Ref("First"), " ", Ref("Last")}},
		}}))
	})

	It("lowers split into numbered columns", func() {
		stages, err := lower(&steps.SplitStep{
			Column: "Name", Delimiter: "-", NumberColsToKeep: 2,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"Name_1": M{"$arrayElemAt": []any{M{"$split": []any{Ref("Name"), "-"}}, 0}},
			"Name_2": M{"$arrayElemAt": []any{M{"$split": []any{Ref("Name"), "-"}}, 1}},
		}}))
	})

	It("lowers substring with positive bounds", func() {
		stages, err := lower(&steps.SubstringStep{Column: "Name", StartIndex: 1, EndIndex: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"Name_SUBSTR": M{"$substrCP": []any{
				Ref("Name"),
				0,
				M{"$add": []any{M{"$subtract": []any{2, 0}}, 1}},
			}},
		}}))
	})

	It("counts negative substring bounds from the end", func() {
		stages, err := lower(&steps.SubstringStep{Column: "Name", StartIndex: -3, EndIndex: -1})
		Expect(err).NotTo(HaveOccurred())

		fields := stages[0]["$addFields"].(M)
		expr := fields["Name_SUBSTR"].(M)["$substrCP"].([]any)
		Expect(expr[1]).To(Equal(M{"$add": []any{M{"$strLenCP": Ref("Name")}, -3}}))
	})

	It("lowers replace to a switch", func() {
		stages, err := lower(&steps.ReplaceStep{
			SearchColumn: "Region",
			ToReplace:    [][2]any{{"EU", "Europe"}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"Region": M{"$switch": M{
				"branches": []any{M{
					"case": M{"$eq": []any{Ref("Region"), "EU"}},
					"then": "Europe",
				}},
				"default": Ref("Region"),
			}},
		}}))
	})
})

var _ = Describe("Lowering date steps", func() {
	It("lowers convert through the cast operators", func() {
		stages, err := lower(&steps.ConvertStep{Columns: []string{"Value"}, DataType: "integer"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{"Value": M{"$toInt": Ref("Value")}}}))

		_, err = lower(&steps.ConvertStep{Columns: []string{"Value"}, DataType: "decimal"})
		Expect(err).To(HaveOccurred())
	})

	It("lowers todate with and without a format", func() {
		stages, err := lower(&steps.ToDateStep{Column: "Date"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{"Date": M{"$toDate": Ref("Date")}}}))

		stages, err = lower(&steps.ToDateStep{Column: "Date", Format: "%Y-%m-%d"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"Date": M{"$dateFromString": M{"dateString": Ref("Date"), "format": "%Y-%m-%d"}},
		}}))
	})

	It("lowers dateextract with a derived destination column", func() {
		stages, err := lower(&steps.DateExtractStep{Operation: "year", Column: "Date"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{"Date_year": M{"$year": Ref("Date")}}}))
	})

	It("lowers duration to a scaled date difference", func() {
		stages, err := lower(&steps.DurationStep{
			NewColumnName:   "Days",
			StartDateColumn: "From",
			EndDateColumn:   "To",
			DurationIn:      "days",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"Days": M{"$divide": []any{
				M{"$subtract": []any{Ref("To"), Ref("From")}},
				1000 * 60 * 60 * 24,
			}},
		}}))
	})
})

var _ = Describe("Lowering aggregation steps", func() {
	It("lowers aggregate to a group and a flattening projection", func() {
		stages, err := lower(&steps.AggregateStep{
			On: []string{"Region"},
			Aggregations: []steps.Aggregation{
				{NewColumns: []string{"Total"}, AggFunction: "sum", Columns: []string{"Value"}},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(Equal([]Stage{
			{"$group": M{
				"_id":   M{"Region": Ref("Region")},
				"Total": M{"$sum": Ref("Value")},
			}},
			{"$project": M{"Region": Ref("_id.Region"), "Total": 1, "_id": 0}},
		}))
	})

	It("counts by summing the literal one", func() {
		stages, err := lower(&steps.AggregateStep{
			On: []string{"Region"},
			Aggregations: []steps.Aggregation{
				{NewColumns: []string{"Cnt"}, AggFunction: "count"},
			},
		})
		Expect(err).NotTo(HaveOccurred())

		groupDoc := stages[0]["$group"].(M)
		Expect(groupDoc["Cnt"]).To(Equal(M{"$sum": 1}))
	})

	It("keeps the original granularity when asked to", func() {
		stages, err := lower(&steps.AggregateStep{
			On: []string{"Region"},
			Aggregations: []steps.Aggregation{
				{NewColumns: []string{"Total"}, AggFunction: "sum", Columns: []string{"Value"}},
			},
			KeepOriginalGranularity: true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(5))
		Expect(stages[1]).To(Equal(Stage{"$unwind": "$" + tmpDocs}))
		Expect(stages[2]).To(Equal(Stage{"$replaceRoot": M{
			"newRoot": M{"$mergeObjects": []any{Ref(tmpDocs), "$$ROOT"}},
		}}))
	})

	It("rejects an unknown aggregation function", func() {
		_, err := lower(&steps.AggregateStep{
			On: []string{"Region"},
			Aggregations: []steps.Aggregation{
				{NewColumns: []string{"X"}, AggFunction: "median", Columns: []string{"Value"}},
			},
		})
		Expect(err).To(HaveOccurred())
	})

	It("lowers argmax to a group-wise extreme filter", func() {
		stages, err := lower(&steps.ArgmaxStep{Column: "Value", Groups: []string{"Region"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(Equal([]Stage{
			{"$group": M{
				"_id":      M{"Region": Ref("Region")},
				tmpDocs:    M{"$push": "$$ROOT"},
				tmpExtreme: M{"$max": Ref("Value")},
			}},
			{"$unwind": "$" + tmpDocs},
			{"$match": M{"$expr": M{"$eq": []any{Ref(tmpDocs + ".Value"), Ref(tmpExtreme)}}}},
			{"$replaceRoot": M{"newRoot": Ref(tmpDocs)}},
			{"$project": M{"_id": 0}},
		}))
	})

	It("lowers argmin with the minimum accumulator", func() {
		stages, err := lower(&steps.ArgminStep{Column: "Value"})
		Expect(err).NotTo(HaveOccurred())

		groupDoc := stages[0]["$group"].(M)
		Expect(groupDoc["_id"]).To(BeNil())
		Expect(groupDoc[tmpExtreme]).To(Equal(M{"$min": Ref("Value")}))
	})

	It("guards percentage against a zero total", func() {
		stages, err := lower(&steps.PercentageStep{Column: "Value", Group: []string{"Region"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(4))

		newRoot := stages[2]["$replaceRoot"].(M)["newRoot"].(M)
		parts := newRoot["$mergeObjects"].([]any)
		share := parts[1].(M)["Value_PCT"].(M)["$cond"].([]any)
		Expect(share[0]).To(Equal(M{"$eq": []any{Ref(tmpTotal), 0}}))
		Expect(share[1]).To(BeNil())
	})
})

var _ = Describe("Lowering statistics steps", func() {
	It("computes descriptive statistics in one grouping pass", func() {
		stages, err := lower(&steps.StatisticsStep{
			Column:     "Value",
			GroupBy:    []string{"Region"},
			Statistics: []string{"count", "average", "variance"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(2))

		Expect(stages[0]).To(Equal(Stage{"$group": M{
			"_id":      M{"Region": Ref("Region")},
			tmpValues:  M{"$push": Ref("Value")},
			tmpCount:   M{"$sum": 1},
			tmpAvg:     M{"$avg": Ref("Value")},
			tmpMin:     M{"$min": Ref("Value")},
			tmpMax:     M{"$max": Ref("Value")},
			tmpSquares: M{"$avg": M{"$pow": []any{Ref("Value"), 2}}},
		}}))

		variance := M{"$subtract": []any{
			Ref(tmpSquares),
			M{"$pow": []any{Ref(tmpAvg), 2}},
		}}
		Expect(stages[1]).To(Equal(Stage{"$project": M{
			"Region":   Ref("_id.Region"),
			"count":    Ref(tmpCount),
			"average":  Ref(tmpAvg),
			"variance": variance,
			"_id":      0,
		}}))
	})

	It("interpolates quantiles over the sorted values", func() {
		stages, err := lower(&steps.StatisticsStep{
			Column:    "Value",
			Quantiles: []steps.Quantile{{Label: "median", Nth: 1, Order: 2}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(3))
		Expect(stages[0]).To(Equal(Stage{"$sort": SortSpec{{Key: "Value", Dir: 1}}}))

		index := M{"$divide": []any{
			M{"$multiply": []any{M{"$subtract": []any{Ref(tmpCount), 1}}, 1}},
			2,
		}}
		fields := stages[2]["$project"].(M)
		Expect(fields["median"]).To(Equal(M{"$avg": []any{
			M{"$arrayElemAt": []any{Ref(tmpValues), M{"$floor": index}}},
			M{"$arrayElemAt": []any{Ref(tmpValues), M{"$ceil": index}}},
		}}))
	})

	It("labels unnamed quantiles by rank", func() {
		stages, err := lower(&steps.StatisticsStep{
			Column:    "Value",
			Quantiles: []steps.Quantile{{Nth: 1, Order: 4}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[2]["$project"].(M)).To(HaveKey("1-th 4-quantile"))
	})

	It("rejects an unknown statistic", func() {
		_, err := lower(&steps.StatisticsStep{Column: "Value", Statistics: []string{"mode"}})
		Expect(err).To(HaveOccurred())
	})

	It("rejects an out-of-range quantile", func() {
		_, err := lower(&steps.StatisticsStep{
			Column:    "Value",
			Quantiles: []steps.Quantile{{Nth: 3, Order: 2}},
		})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Lowering formula steps", func() {
	It("lowers arithmetic with precedence", func() {
		stages, err := lower(&steps.FormulaStep{Formula: "[a] + 2 * [b]", NewColumn: "res"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"res": M{"$add": []any{
				Ref("a"),
				M{"$multiply": []any{int64(2), Ref("b")}},
			}},
		}}))
	})

	It("lowers a unary minus to a zero subtraction", func() {
		stages, err := lower(&steps.FormulaStep{Formula: "-[a]", NewColumn: "neg"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"neg": M{"$subtract": []any{0, Ref("a")}},
		}}))
	})

	It("lowers ifthenelse with literal and formula branches", func() {
		stages, err := lower(&steps.IfThenElseStep{
			NewColumn: "Class",
			If:        steps.Condition{Column: "Value", Operator: steps.OpGt, Value: 10},
			Then:      `"high"`,
			Else:      "[Value] / 2",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			"Class": M{"$cond": M{
				"if":   M{"$gt": []any{Ref("Value"), 10}},
				"then": M{"$literal": "high"},
				"else": M{"$divide": []any{Ref("Value"), int64(2)}},
			}},
		}}))
	})

	It("lowers else-if chains to nested conditionals", func() {
		stages, err := lower(&steps.IfThenElseStep{
			NewColumn: "Class",
			If:        steps.Condition{Column: "Value", Operator: steps.OpGt, Value: 100},
			Then:      `"high"`,
			Else: &steps.IfThenElseStep{
				If:   steps.Condition{Column: "Value", Operator: steps.OpGt, Value: 10},
				Then: `"medium"`,
				Else: `"low"`,
			},
		})
		Expect(err).NotTo(HaveOccurred())

		cond := stages[0]["$addFields"].(M)["Class"].(M)["$cond"].(M)
		nested := cond["else"].(M)["$cond"].(M)
		Expect(nested["then"]).To(Equal(M{"$literal": "medium"}))
		Expect(nested["else"]).To(Equal(M{"$literal": "low"}))
	})
})

var _ = Describe("Lowering window steps", func() {
	It("lowers cumsum to a prefix sum over the sorted group", func() {
		stages, err := lower(&steps.CumSumStep{
			ValueColumn:     "Value",
			ReferenceColumn: "Date",
			GroupBy:         []string{"Region"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(Equal([]Stage{
			{"$sort": SortSpec{{Key: "Date", Dir: 1}}},
			{"$group": M{
				"_id":     M{"Region": Ref("Region")},
				tmpValues: M{"$push": Ref("Value")},
				tmpDocs:   M{"$push": "$$ROOT"},
			}},
			{"$unwind": M{"path": "$" + tmpDocs, "includeArrayIndex": tmpIndex}},
			{"$replaceRoot": M{"newRoot": M{"$mergeObjects": []any{
				Ref(tmpDocs),
				M{"Value_CUMSUM": M{"$sum": M{"$slice": []any{
					Ref(tmpValues),
					0,
					M{"$add": []any{Ref(tmpIndex), 1}},
				}}}},
			}}}},
			{"$project": M{"_id": 0}},
		}))
	})

	It("lowers standard rank with a tie-aware row counter", func() {
		stages, err := lower(&steps.RankStep{ValueCol: "Value", Order: "asc", Method: "standard"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(6))
		Expect(stages[0]).To(Equal(Stage{"$sort": SortSpec{{Key: "Value", Dir: 1}}}))
		Expect(stages[4]).To(Equal(Stage{"$replaceRoot": M{"newRoot": Ref(tmpRanked + ".rows")}}))

		fold := stages[2]["$project"].(M)[tmpRanked].(M)["$reduce"].(M)
		rank := fold["in"].(M)["$let"].(M)["vars"].(M)["rank"].(M)["$cond"].([]any)
		Expect(rank[1]).To(Equal(M{"$add": []any{"$$value.order", 1}}))
		Expect(rank[2]).To(Equal("$$value.prevRank"))
	})

	It("lowers dense rank without skipping rank numbers", func() {
		stages, err := lower(&steps.RankStep{ValueCol: "Value", Order: "desc", Method: "dense"})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$sort": SortSpec{{Key: "Value", Dir: -1}}}))

		fold := stages[2]["$project"].(M)[tmpRanked].(M)["$reduce"].(M)
		rank := fold["in"].(M)["$let"].(M)["vars"].(M)["rank"].(M)["$cond"].([]any)
		Expect(rank[1]).To(Equal(M{"$add": []any{M{"$ifNull": []any{"$$value.prevRank", 0}}, 1}}))
	})

	It("rejects an unknown rank method", func() {
		_, err := lower(&steps.RankStep{ValueCol: "Value", Method: "ordinal"})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Lowering reshaping steps", func() {
	It("lowers pivot to a double group and an object zip", func() {
		stages, err := lower(&steps.PivotStep{
			Index:         []string{"Region"},
			ColumnToPivot: "Year",
			ValueColumn:   "Value",
			AggFunction:   "sum",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(Equal([]Stage{
			{"$group": M{
				"_id":    M{"Region": Ref("Region"), tmpPivot: Ref("Year")},
				tmpValue: M{"$sum": Ref("Value")},
			}},
			{"$group": M{
				"_id":    M{"Region": Ref("_id.Region")},
				tmpPairs: M{"$addToSet": M{"k": Ref("_id." + tmpPivot), "v": Ref(tmpValue)}},
			}},
			{"$project": M{
				tmpObj:   M{"$arrayToObject": Ref(tmpPairs)},
				tmpIndex: Ref("_id"),
			}},
			{"$replaceRoot": M{"newRoot": M{"$mergeObjects": []any{Ref(tmpIndex), Ref(tmpObj)}}}},
			{"$project": M{"_id": 0}},
		}))
	})

	It("lowers unpivot to literal pair rows", func() {
		stages, err := lower(&steps.UnpivotStep{
			Keep:              []string{"Region"},
			Unpivot:           []string{"y2023", "y2024"},
			UnpivotColumnName: "Year",
			ValueColumnName:   "Value",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(Equal([]Stage{
			{"$project": M{
				"Region": 1,
				tmpPairs: []any{
					M{"Year": "y2023", "Value": Ref("y2023")},
					M{"Year": "y2024", "Value": Ref("y2024")},
				},
			}},
			{"$unwind": "$" + tmpPairs},
			{"$replaceRoot": M{"newRoot": M{"$mergeObjects": []any{"$$ROOT", Ref(tmpPairs)}}}},
			{"$project": M{tmpPairs: 0, "_id": 0}},
		}))
	})

	It("drops null values when unpivot asks for it", func() {
		stages, err := lower(&steps.UnpivotStep{
			Keep:              []string{"Region"},
			Unpivot:           []string{"y2023"},
			UnpivotColumnName: "Year",
			ValueColumnName:   "Value",
			Dropna:            true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(6))
		Expect(stages[4]).To(Equal(Stage{"$match": M{"Value": M{"$ne": nil}}}))
	})

	It("lowers rollup to one facet branch per hierarchy level", func() {
		stages, err := lower(&steps.RollupStep{
			Hierarchy: []string{"Continent", "Country"},
			Aggregations: []steps.Aggregation{
				{NewColumns: []string{"Total"}, AggFunction: "sum", Columns: []string{"Value"}},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(5))

		facets := stages[0]["$facet"].(M)
		Expect(facets).To(HaveKey(tmpLevel + "0"))
		Expect(facets).To(HaveKey(tmpLevel + "1"))

		levelOne := facets[tmpLevel+"1"].([]any)
		fields := levelOne[1].(Stage)["$project"].(M)
		Expect(fields["label"]).To(Equal(Ref("_id.Country")))
		Expect(fields["level"]).To(Equal(M{"$literal": "Country"}))
		Expect(fields["parent"]).To(Equal(Ref("_id.Continent")))
	})
})

var _ = Describe("Lowering evolution steps", func() {
	It("compares each row against the previous period", func() {
		stages, err := lower(&steps.EvolutionStep{
			DateCol:       "Date",
			ValueCol:      "Value",
			EvolutionType: "vsLastYear",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(7))

		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			tmpPrevDt: M{"$dateFromParts": M{
				"year":  M{"$subtract": []any{M{"$year": Ref("Date")}, 1}},
				"month": M{"$month": Ref("Date")},
				"day":   M{"$dayOfMonth": Ref("Date")},
			}},
		}}))

		guarded := stages[5]["$addFields"].(M)["Value_EVOL_abs"].(M)["$cond"].([]any)
		Expect(guarded[1]).To(Equal(evolutionAmbiguous))
	})

	It("offsets weekly evolutions by a fixed duration", func() {
		stages, err := lower(&steps.EvolutionStep{
			DateCol:       "Date",
			ValueCol:      "Value",
			EvolutionType: "vsLastWeek",
			NewColumn:     "Evol",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$addFields": M{
			tmpPrevDt: M{"$subtract": []any{Ref("Date"), 7 * millisPerDay}},
		}}))
	})

	It("rejects an unknown evolution type", func() {
		_, err := lower(&steps.EvolutionStep{
			DateCol: "Date", ValueCol: "Value", EvolutionType: "vsLastCentury",
		})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Lowering waterfall steps", func() {
	It("brackets the deltas with the milestone totals", func() {
		stages, err := lower(&steps.WaterfallStep{
			ValueColumn:      "Value",
			MilestonesColumn: "Year",
			Start:            2023,
			End:              2024,
			LabelsColumn:     "Product",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(6))

		facets := stages[0]["$facet"].(M)
		Expect(facets).To(HaveKey(internalPrefix + "Children"))
		Expect(facets).To(HaveKey(internalPrefix + "Milestones"))
		Expect(facets).NotTo(HaveKey(internalPrefix + "Parents"))

		Expect(stages[4]).To(Equal(Stage{"$sort": SortSpec{
			{Key: tmpOrder, Dir: 1},
			{Key: waterfallLabelColumn, Dir: 1},
		}}))
	})

	It("adds a parent fan-out when a parents column is set", func() {
		stages, err := lower(&steps.WaterfallStep{
			ValueColumn:      "Value",
			MilestonesColumn: "Year",
			Start:            2023,
			End:              2024,
			LabelsColumn:     "Product",
			ParentsColumn:    "Family",
			SortBy:           "value",
			Order:            "desc",
		})
		Expect(err).NotTo(HaveOccurred())

		facets := stages[0]["$facet"].(M)
		Expect(facets).To(HaveKey(internalPrefix + "Parents"))
		Expect(stages[4]).To(Equal(Stage{"$sort": SortSpec{
			{Key: tmpOrder, Dir: 1},
			{Key: "Value", Dir: -1},
		}}))
	})

	It("sorts the milestone bracket before the user's sort key", func() {
		stages, err := lower(&steps.WaterfallStep{
			ValueColumn:      "Value",
			MilestonesColumn: "Year",
			Start:            2023,
			End:              2024,
			LabelsColumn:     "Product",
			SortBy:           "value",
			Order:            "desc",
		})
		Expect(err).NotTo(HaveOccurred())

		b, err := json.Marshal(stages[4])
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal(`{"$sort":{"_dpipeOrder":1,"Value":-1}}`))
	})
})

var _ = Describe("Lowering combination steps", func() {
	It("lowers an inner join to a correlated lookup", func() {
		stages, err := lower(&steps.JoinStep{
			Type: "inner",
			On:   [][2]string{{"id", "user_id"}},
			RightPipeline: steps.Pipeline{
				&steps.DomainStep{Domain: "users"},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(4))

		lookup := stages[0]["$lookup"].(M)
		Expect(lookup["from"]).To(Equal("users"))
		Expect(lookup["let"]).To(Equal(M{"dpipe_left_0": Ref("id")}))

		pipeline := lookup["pipeline"].([]any)
		Expect(pipeline[0]).To(Equal(Stage{"$match": M{"domain": "users"}}))
		Expect(pipeline[len(pipeline)-1]).To(Equal(Stage{"$match": M{"$expr": M{"$and": []any{
			M{"$eq": []any{Ref("user_id"), "$$dpipe_left_0"}},
		}}}}))

		Expect(stages[1]).To(Equal(Stage{"$unwind": "$" + tmpJoin}))
	})

	It("preserves unmatched rows on a left join", func() {
		stages, err := lower(&steps.JoinStep{
			Type: "left",
			On:   [][2]string{{"id", "id"}},
			RightPipeline: steps.Pipeline{
				&steps.DomainStep{Domain: "users"},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[1]).To(Equal(Stage{"$unwind": M{
			"path":                       "$" + tmpJoin,
			"preserveNullAndEmptyArrays": true,
		}}))
	})

	It("keeps only unmatched rows on an anti join", func() {
		stages, err := lower(&steps.JoinStep{
			Type: "left outer anti",
			On:   [][2]string{{"id", "id"}},
			RightPipeline: steps.Pipeline{
				&steps.DomainStep{Domain: "users"},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[1]).To(Equal(Stage{"$match": M{tmpJoin: M{"$eq": []any{}}}}))
	})

	It("rejects a join sub-pipeline without a domain", func() {
		_, err := lower(&steps.JoinStep{
			Type:          "inner",
			On:            [][2]string{{"id", "id"}},
			RightPipeline: steps.Pipeline{&steps.SelectStep{Columns: []string{"id"}}},
		})
		Expect(err).To(HaveOccurred())
	})

	It("lowers append to a union of lookups", func() {
		stages, err := lower(&steps.AppendStep{Pipelines: []steps.Pipeline{
			{&steps.DomainStep{Domain: "extra"}},
		}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages).To(HaveLen(6))
		Expect(stages[0]).To(Equal(Stage{"$group": M{
			"_id":    nil,
			tmpUnion: M{"$push": "$$ROOT"},
		}}))

		lookup := stages[1]["$lookup"].(M)
		Expect(lookup["from"]).To(Equal("extra"))
		Expect(lookup["as"]).To(Equal(internalPrefix + "Append0"))

		Expect(stages[2]).To(Equal(Stage{"$project": M{
			tmpUnion: M{"$concatArrays": []any{Ref(tmpUnion), Ref(internalPrefix + "Append0")}},
		}}))
	})
})

var _ = Describe("Lowering custom steps", func() {
	It("splices a single stage document verbatim", func() {
		stages, err := lower(&steps.CustomStep{Query: `{"$sample": {"size": 10}}`})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$sample": map[string]any{"size": int64(10)}}))
	})

	It("splices a stage list verbatim", func() {
		stages, err := lower(&steps.CustomStep{
			Query: `[{"$skip": 5}, {"$limit": 10}]`,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stages[0]).To(Equal(Stage{"$skip": int64(5)}))
		Expect(stages[1]).To(Equal(Stage{"$limit": int64(10)}))
	})

	It("rejects a scalar payload", func() {
		_, err := lower(&steps.CustomStep{Query: `42`})
		Expect(err).To(HaveOccurred())
	})
})
