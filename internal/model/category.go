package model

import "fmt"

// Category identifiers for omission counters and daily statistics.
// The set is closed: 21 boolean/enum categories plus the 28 sum buckets
// "00".."27", 49 in total.
const (
	CategoryBig          = "big"
	CategorySmall        = "small"
	CategoryOdd          = "odd"
	CategoryEven         = "even"
	CategoryExtremeBig   = "extreme_big"
	CategoryExtremeSmall = "extreme_small"
	CategoryBigOdd       = CombinationBigOdd
	CategorySmallOdd     = CombinationSmallOdd
	CategoryBigEven      = CombinationBigEven
	CategorySmallEven    = CombinationSmallEven
	CategoryTriple       = "triple"
	CategoryPair         = "pair"
	CategoryStraight     = "straight"
	CategoryMisc         = "misc"
	CategorySmallEdge    = "small_edge"
	CategoryMiddle       = "middle"
	CategoryBigEdge      = "big_edge"
	CategoryEdge         = "edge"
	CategoryDragon       = "dragon"
	CategoryTiger        = "tiger"
	CategoryTie          = "tie"
)

// booleanCategories lists the non-sum categories in a stable order.
var booleanCategories = []string{
	CategoryBig, CategorySmall,
	CategoryOdd, CategoryEven,
	CategoryExtremeBig, CategoryExtremeSmall,
	CategoryBigOdd, CategorySmallOdd, CategoryBigEven, CategorySmallEven,
	CategoryTriple, CategoryPair, CategoryStraight, CategoryMisc,
	CategorySmallEdge, CategoryMiddle, CategoryBigEdge, CategoryEdge,
	CategoryDragon, CategoryTiger, CategoryTie,
}

// SumBucket returns the sum-bucket category for a sum value ("00".."27").
func SumBucket(sum int) string {
	return fmt.Sprintf("%02d", sum)
}

// AllCategories returns the full closed category set in a stable order:
// the 21 boolean/enum categories followed by the 28 sum buckets.
func AllCategories() []string {
	all := make([]string, 0, len(booleanCategories)+MaxSum+1)
	all = append(all, booleanCategories...)

	for s := 0; s <= MaxSum; s++ {
		all = append(all, SumBucket(s))
	}

	return all
}

// HeldCategories returns the set of categories that hold for an enriched
// draw. Unconditional dimensions (magnitude, parity, combination, form,
// range, dragon/tiger/tie, sum bucket) contribute exactly one member
// each; conditional flags (extremes, edge) contribute only when true.
func HeldCategories(d *Draw) map[string]bool {
	held := make(map[string]bool, 8)

	pick := func(cat string, ok bool) {
		if ok {
			held[cat] = true
		}
	}

	pick(CategoryBig, d.IsBig)
	pick(CategorySmall, d.IsSmall)
	pick(CategoryOdd, d.IsOdd)
	pick(CategoryEven, d.IsEven)
	pick(CategoryExtremeBig, d.IsExtremeBig)
	pick(CategoryExtremeSmall, d.IsExtremeSmall)
	pick(d.Combination, d.Combination != "")
	pick(CategoryTriple, d.IsTriple)
	pick(CategoryPair, d.IsPair)
	pick(CategoryStraight, d.IsStraight)
	pick(CategoryMisc, d.IsMisc)
	pick(CategorySmallEdge, d.IsSmallEdge)
	pick(CategoryMiddle, d.IsMiddle)
	pick(CategoryBigEdge, d.IsBigEdge)
	pick(CategoryEdge, d.IsEdge)
	pick(CategoryDragon, d.IsDragon)
	pick(CategoryTiger, d.IsTiger)
	pick(CategoryTie, d.IsTie)

	held[SumBucket(d.Sum)] = true

	return held
}
