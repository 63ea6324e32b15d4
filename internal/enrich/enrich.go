// Package enrich derives the fixed battery of classification fields from
// a draw's numbers and sum. Enrichment runs exactly once per draw,
// strictly before the database write; every downstream consumer reads
// the persisted fields back instead of recomputing them.
package enrich

import (
	"fmt"
	"time"

	"github.com/04By0302/jnd-vps/internal/model"
)

// Classification thresholds on the 0–27 sum range.
const (
	bigThreshold        = 14 // sum >= 14 is big
	extremeBigThreshold = 22 // sum >= 22 is extreme big
	extremeSmallCeiling = 5  // sum <= 5 is extreme small
	smallEdgeCeiling    = 9  // 0–9 is the small edge band
	middleCeiling       = 17 // 10–17 is the middle band
)

// Draw computes the 19 derived fields for a validated raw draw.
// The returned record satisfies the mutual-exclusion invariants: exactly
// one of big/small, odd/even, one form, one range band and one of
// dragon/tiger/tie hold for every input.
func Draw(raw model.RawDraw, openTime time.Time) (*model.Draw, error) {
	a, b, c, err := model.SplitNums(raw.OpenNums)
	if err != nil {
		return nil, fmt.Errorf("enrich: %w", err)
	}

	sum := raw.Sum

	d := &model.Draw{
		Issue:    raw.Issue,
		OpenTime: openTime,
		OpenNums: raw.OpenNums,
		Sum:      sum,
		Source:   raw.Source,

		IsBig:          sum >= bigThreshold,
		IsSmall:        sum < bigThreshold,
		IsOdd:          sum%2 == 1,
		IsEven:         sum%2 == 0,
		IsExtremeBig:   sum >= extremeBigThreshold,
		IsExtremeSmall: sum <= extremeSmallCeiling,

		IsSmallEdge: sum <= smallEdgeCeiling,
		IsMiddle:    sum > smallEdgeCeiling && sum <= middleCeiling,
		IsBigEdge:   sum > middleCeiling,

		IsDragon: a > c,
		IsTiger:  a < c,
		IsTie:    a == c,
	}

	d.IsEdge = d.IsSmallEdge || d.IsBigEdge
	d.Combination = combination(d.IsBig, d.IsOdd)
	d.IsTriple, d.IsPair, d.IsStraight, d.IsMisc = form(a, b, c)

	return d, nil
}

// combination returns the magnitude×parity label.
func combination(big, odd bool) string {
	switch {
	case big && odd:
		return model.CombinationBigOdd
	case big:
		return model.CombinationBigEven
	case odd:
		return model.CombinationSmallOdd
	default:
		return model.CombinationSmallEven
	}
}

// form classifies the digit triple into exactly one of the four form
// categories. Triple wins over everything; pair wins over straight;
// straight means three consecutive digits in some order.
func form(a, b, c int) (triple, pair, straight, misc bool) {
	switch {
	case a == b && b == c:
		return true, false, false, false
	case a == b || b == c || a == c:
		return false, true, false, false
	case isStraight(a, b, c):
		return false, false, true, false
	default:
		return false, false, false, true
	}
}

// isStraight reports whether the three distinct digits are consecutive
// in some order.
func isStraight(a, b, c int) bool {
	lo, mid, hi := sort3(a, b, c)

	return mid == lo+1 && hi == mid+1
}

func sort3(a, b, c int) (lo, mid, hi int) {
	lo, mid, hi = a, b, c

	if lo > mid {
		lo, mid = mid, lo
	}

	if mid > hi {
		mid, hi = hi, mid
	}

	if lo > mid {
		lo, mid = mid, lo
	}

	return lo, mid, hi
}
