package poller

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/04By0302/jnd-vps/internal/model"
)

// kenoRecord is the first element of the keno reduction feed.
type kenoRecord struct {
	DrawNbr  json.Number `json:"drawNbr"`
	DrawDate string      `json:"drawDate"`
	DrawTime string      `json:"drawTime"`
	DrawNbrs []int       `json:"drawNbrs"`
}

// Keno reduction index groups (0-based positions in the 20-number draw).
var (
	kenoIdxA = []int{1, 4, 7, 10, 13, 16}
	kenoIdxB = []int{2, 5, 8, 11, 14, 17}
	kenoIdxC = []int{3, 6, 9, 12, 15, 18}
)

// kenoDrawSize is the expected number of integers in drawNbrs.
const kenoDrawSize = 20

// Keno date/time layouts ("Mon D, YYYY" and "HH:MM:SS AM/PM").
const (
	kenoDateLayout = "Jan 2, 2006"
	kenoTimeLayout = "3:04:05 PM"
)

// sourceZone is the wall-clock zone of the draw feed (+08:00).
var sourceZone = time.FixedZone("UTC+8", 8*60*60)

// SourceZone returns the fixed wall-clock zone of the feeds.
func SourceZone() *time.Location { return sourceZone }

// ParseKeno parses the keno reduction feed: a JSON array whose first
// element carries a 20-number draw. The three digits are the mod-10 sums
// of the fixed index groups; the date/time is rendered as a +08:00 wall
// clock string.
func ParseKeno(body []byte) (*model.RawDraw, error) {
	var records []kenoRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode keno feed: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	rec := records[0]
	if len(rec.DrawNbrs) != kenoDrawSize {
		return nil, fmt.Errorf("keno draw has %d numbers, want %d", len(rec.DrawNbrs), kenoDrawSize)
	}

	a := kenoDigit(rec.DrawNbrs, kenoIdxA)
	b := kenoDigit(rec.DrawNbrs, kenoIdxB)
	c := kenoDigit(rec.DrawNbrs, kenoIdxC)

	openTime, err := parseKenoTimestamp(rec.DrawDate, rec.DrawTime)
	if err != nil {
		return nil, err
	}

	issue := rec.DrawNbr.String()
	if _, err := strconv.ParseInt(issue, 10, 64); err != nil {
		return nil, fmt.Errorf("keno draw number %q: %w", issue, err)
	}

	return &model.RawDraw{
		Issue:    issue,
		OpenTime: openTime.Format("2006-01-02 15:04:05"),
		OpenNums: fmt.Sprintf("%d+%d+%d", a, b, c),
		Sum:      a + b + c,
	}, nil
}

// kenoDigit reduces one index group to a digit: sum of the selected
// numbers mod 10.
func kenoDigit(nums []int, idx []int) int {
	total := 0

	for _, i := range idx {
		total += nums[i]
	}

	return total % 10
}

func parseKenoTimestamp(date, clock string) (time.Time, error) {
	d, err := time.ParseInLocation(kenoDateLayout, date, sourceZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("keno date %q: %w", date, err)
	}

	c, err := time.ParseInLocation(kenoTimeLayout, clock, sourceZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("keno time %q: %w", clock, err)
	}

	return time.Date(d.Year(), d.Month(), d.Day(),
		c.Hour(), c.Minute(), c.Second(), 0, sourceZone), nil
}
