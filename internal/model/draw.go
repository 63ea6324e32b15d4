// Package model defines the persistent data model for the draw pipeline:
// draws, predictions, omission counters and daily statistics.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IssueLength is the required number of ASCII digits in an issue identifier.
const IssueLength = 7

// MaxSum is the largest possible digit sum of a three-digit draw.
const MaxSum = 27

// Combination labels: the cross-product of magnitude and parity.
const (
	CombinationBigOdd    = "big-odd"
	CombinationSmallOdd  = "small-odd"
	CombinationBigEven   = "big-even"
	CombinationSmallEven = "small-even"
)

// RawDraw is a draw as emitted by a source poller, before validation
// and enrichment.
type RawDraw struct {
	Issue    string
	OpenTime string
	OpenNums string
	Sum      int
	Source   string
}

// Draw is the authoritative, enriched draw record.
// The derived fields are computed exactly once by the enricher and then
// persisted; readers never recompute them.
type Draw struct {
	Issue    string
	OpenTime time.Time
	OpenNums string
	Sum      int
	Source   string

	IsBig          bool
	IsSmall        bool
	IsOdd          bool
	IsEven         bool
	IsExtremeBig   bool
	IsExtremeSmall bool
	Combination    string
	IsTriple       bool
	IsPair         bool
	IsStraight     bool
	IsMisc         bool
	IsSmallEdge    bool
	IsMiddle       bool
	IsBigEdge      bool
	IsEdge         bool
	IsDragon       bool
	IsTiger        bool
	IsTie          bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Digits splits OpenNums ("a+b+c") into its three digits.
func (d *Draw) Digits() (a, b, c int, err error) {
	return SplitNums(d.OpenNums)
}

// SplitNums splits a canonical "a+b+c" number string into its digits.
func SplitNums(nums string) (a, b, c int, err error) {
	parts := strings.Split(nums, "+")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("numbers %q: want three digits joined by '+'", nums)
	}

	digits := make([]int, 3)

	for i, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 0 || n > 9 {
			return 0, 0, 0, fmt.Errorf("numbers %q: component %q is not a digit", nums, p)
		}

		digits[i] = n
	}

	return digits[0], digits[1], digits[2], nil
}

// IssueInt parses an issue identifier as an integer for ordering checks.
func IssueInt(issue string) (int64, error) {
	n, err := strconv.ParseInt(issue, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("issue %q is not numeric: %w", issue, err)
	}

	return n, nil
}

// NextIssue returns the issue identifier that follows the given one,
// preserving the 7-digit zero-padded form.
func NextIssue(issue string) (string, error) {
	n, err := IssueInt(issue)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", len(issue), n+1), nil
}
