// Package ingest implements the commit path from raw polled draws to
// committed records: validation, the dedup funnel walk, the retrying
// writer and the post-commit event fan-out.
package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/04By0302/jnd-vps/internal/model"
)

// Validation errors. All of them mean the raw draw is discarded.
var (
	ErrBadIssue    = errors.New("issue must be exactly 7 ascii digits")
	ErrBadNums     = errors.New("numbers must be three digits joined by '+'")
	ErrBadOpenTime = errors.New("unparsable open time")
	ErrSumMismatch = errors.New("sum does not match the digits")
)

var (
	issuePattern = regexp.MustCompile(`^\d{7}$`)
	numsPattern  = regexp.MustCompile(`^\d\+\d\+\d$`)
)

// Open time layouts accepted from sources. The short form carries no
// year and is resolved against the current year.
const (
	openTimeLayout      = "2006-01-02 15:04:05"
	openTimeShortLayout = "01-02 15:04:05"
)

// sourceZone is the wall-clock zone source timestamps are expressed in.
var sourceZone = time.FixedZone("UTC+8", 8*3600)

// Validate checks a raw draw against the admission rules and resolves
// its open time. The returned instant carries the source zone.
func Validate(raw model.RawDraw, now time.Time) (time.Time, error) {
	if !issuePattern.MatchString(raw.Issue) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadIssue, raw.Issue)
	}

	if !numsPattern.MatchString(raw.OpenNums) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadNums, raw.OpenNums)
	}

	a, b, c, err := model.SplitNums(raw.OpenNums)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadNums, raw.OpenNums)
	}

	if raw.Sum != a+b+c {
		return time.Time{}, fmt.Errorf("%w: %q claims %d", ErrSumMismatch, raw.OpenNums, raw.Sum)
	}

	openTime, err := parseOpenTime(raw.OpenTime, now)
	if err != nil {
		return time.Time{}, err
	}

	return openTime, nil
}

func parseOpenTime(value string, now time.Time) (time.Time, error) {
	if t, err := time.ParseInLocation(openTimeLayout, value, sourceZone); err == nil {
		return t, nil
	}

	t, err := time.ParseInLocation(openTimeShortLayout, value, sourceZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadOpenTime, value)
	}

	return t.AddDate(now.In(sourceZone).Year(), 0, 0), nil
}
