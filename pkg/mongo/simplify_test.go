package mongo

import (
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Simplifying stage lists", func() {
	It("merges adjacent matches on disjoint keys", func() {
		simplified := Simplify([]Stage{
			{"$match": M{"Region": "Europe"}},
			{"$match": M{"Year": 2024}},
		})
		Expect(simplified).To(Equal([]Stage{
			{"$match": M{"Region": "Europe", "Year": 2024}},
		}))
	})

	It("keeps matches on overlapping keys apart", func() {
		stages := []Stage{
			{"$match": M{"Region": "Europe"}},
			{"$match": M{"Region": "Asia"}},
		}
		Expect(Simplify(stages)).To(Equal(stages))
	})

	It("merges a chain left to right", func() {
		simplified := Simplify([]Stage{
			{"$match": M{"a": 1}},
			{"$match": M{"b": 2}},
			{"$match": M{"c": 3}},
		})
		Expect(simplified).To(Equal([]Stage{
			{"$match": M{"a": 1, "b": 2, "c": 3}},
		}))
	})

	It("never merges across different operators", func() {
		stages := []Stage{
			{"$match": M{"a": 1}},
			{"$sort": M{"a": 1}},
			{"$match": M{"b": 2}},
		}
		Expect(Simplify(stages)).To(Equal(stages))
	})

	It("merges disjoint field additions", func() {
		simplified := Simplify([]Stage{
			{"$addFields": M{"x": Ref("a")}},
			{"$addFields": M{"y": Ref("b")}},
		})
		Expect(simplified).To(Equal([]Stage{
			{"$addFields": M{"x": Ref("a"), "y": Ref("b")}},
		}))
	})

	It("keeps a field addition reading an earlier addition apart", func() {
		stages := []Stage{
			{"$addFields": M{"x": Ref("a")}},
			{"$addFields": M{"y": Ref("x")}},
		}
		Expect(Simplify(stages)).To(Equal(stages))
	})

	It("finds blocking references in raw reference strings", func() {
		stages := []Stage{
			{"$addFields": M{"x": Ref("a")}},
			{"$addFields": M{"y": M{"$add": []any{"$x.sub", 1}}}},
		}
		Expect(Simplify(stages)).To(Equal(stages))
	})

	It("ignores variable references when looking for field reads", func() {
		simplified := Simplify([]Stage{
			{"$addFields": M{"x": Ref("a")}},
			{"$addFields": M{"y": "$$ROOT"}},
		})
		Expect(simplified).To(HaveLen(1))
	})

	It("never mixes inclusion and exclusion projections", func() {
		stages := []Stage{
			{"$project": M{"a": 1}},
			{"$project": M{"b": 0}},
		}
		Expect(Simplify(stages)).To(Equal(stages))
	})

	It("exempts the identifier key from projection classification", func() {
		simplified := Simplify([]Stage{
			{"$project": M{"a": 1, "b": 1}},
			{"$project": M{"_id": 0}},
		})
		Expect(simplified).To(Equal([]Stage{
			{"$project": M{"a": 1, "b": 1, "_id": 0}},
		}))
	})

	It("leaves non-document stages alone", func() {
		stages := []Stage{
			{"$limit": 10},
			{"$limit": 5},
		}
		Expect(Simplify(stages)).To(Equal(stages))
	})

	It("does not mutate its input", func() {
		stages := []Stage{
			{"$match": M{"a": 1}},
			{"$match": M{"b": 2}},
		}
		snapshot := []Stage{
			{"$match": M{"a": 1}},
			{"$match": M{"b": 2}},
		}

		Simplify(stages)
		Expect(cmp.Diff(snapshot, stages)).To(BeEmpty())
	})

	It("is idempotent", func() {
		stages := []Stage{
			{"$match": M{"a": 1}},
			{"$match": M{"b": 2}},
			{"$project": M{"a": 1}},
			{"$project": M{"c": 1}},
		}

		once := Simplify(stages)
		twice := Simplify(once)
		Expect(cmp.Diff(once, twice)).To(BeEmpty())
	})
})
