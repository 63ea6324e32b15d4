package poller

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/04By0302/jnd-vps/internal/model"
)

// ParseFunc turns a response body into a raw draw. A nil draw with nil
// error means "no record this cycle". Parsers must be pure.
type ParseFunc func(body []byte) (*model.RawDraw, error)

// Parser identifiers recognized in source configuration.
const (
	ParserUniversal = "universal"
	ParserKeno      = "keno"
)

// ErrUnknownParser is returned for an unrecognized parser_id.
var ErrUnknownParser = errors.New("unknown parser id")

// ParserByID dispatches a parser_id to its implementation.
func ParserByID(id string) (ParseFunc, error) {
	switch id {
	case ParserUniversal, "":
		return ParseUniversal, nil
	case ParserKeno:
		return ParseKeno, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownParser, id)
	}
}

// Field name tables for the universal parser. Upstream feeds disagree on
// names; the table fixes the accepted set.
var (
	containerKeys = []string{"data", "result", "list", "items"}
	issueKeys     = []string{"qihao", "issue", "expect", "issue_no", "issueNo", "period"}
	timeKeys      = []string{"opentime", "open_time", "time", "opendate", "open_date"}
	numsKeys      = []string{"opennum", "open_nums", "opencode", "open_code", "nums", "number"}
	sumKeys       = []string{"sum", "total", "he"}
)

// ParseUniversal parses the tabular sum feed. It tolerates a top-level
// object, a container array under data/result/list/items, or a bare
// array, using the first element; field names come from the fixed name
// table; number strings are normalized to canonical "a+b+c"; a missing
// sum is computed from the digits.
func ParseUniversal(body []byte) (*model.RawDraw, error) {
	record, err := firstRecord(body)
	if err != nil || record == nil {
		return nil, err
	}

	issue := stringField(record, issueKeys)
	openTime := stringField(record, timeKeys)
	nums := stringField(record, numsKeys)

	if issue == "" || nums == "" {
		return nil, nil
	}

	canonical, ok := NormalizeNums(nums)
	if !ok {
		return nil, fmt.Errorf("unrecognized number form %q", nums)
	}

	a, b, c, err := model.SplitNums(canonical)
	if err != nil {
		return nil, err
	}

	sum, ok := intField(record, sumKeys)
	if !ok {
		sum = a + b + c
	}

	return &model.RawDraw{
		Issue:    issue,
		OpenTime: openTime,
		OpenNums: canonical,
		Sum:      sum,
	}, nil
}

// firstRecord extracts the first record object from the varied container
// shapes the feeds use.
func firstRecord(body []byte) (map[string]any, error) {
	var top any
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	switch v := top.(type) {
	case []any:
		return firstObject(v), nil
	case map[string]any:
		for _, key := range containerKeys {
			inner, ok := v[key]
			if !ok {
				continue
			}

			if arr, isArr := inner.([]any); isArr {
				return firstObject(arr), nil
			}

			if obj, isObj := inner.(map[string]any); isObj {
				return obj, nil
			}
		}

		return v, nil
	default:
		return nil, nil
	}
}

func firstObject(arr []any) map[string]any {
	if len(arr) == 0 {
		return nil
	}

	obj, _ := arr[0].(map[string]any)

	return obj
}

// stringField returns the first present field from the name table,
// rendered as a string. Numeric JSON values are accepted.
func stringField(record map[string]any, names []string) string {
	for _, name := range names {
		val, ok := record[name]
		if !ok {
			continue
		}

		switch v := val.(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}

	return ""
}

// intField returns the first present numeric field from the name table.
func intField(record map[string]any, names []string) (int, bool) {
	for _, name := range names {
		val, ok := record[name]
		if !ok {
			continue
		}

		switch v := val.(type) {
		case float64:
			return int(v), true
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err == nil {
				return n, true
			}
		}
	}

	return 0, false
}

// NormalizeNums converts the accepted number string forms ("a+b+c",
// "a,b,c", "a b c", "abc") to canonical "a+b+c". Each component must be
// a single digit; anything else is rejected.
func NormalizeNums(nums string) (string, bool) {
	nums = strings.TrimSpace(nums)

	var parts []string

	switch {
	case strings.Contains(nums, "+"):
		parts = strings.Split(nums, "+")
	case strings.Contains(nums, ","):
		parts = strings.Split(nums, ",")
	case strings.ContainsAny(nums, " \t"):
		parts = strings.Fields(nums)
	case len(nums) == 3:
		parts = []string{nums[0:1], nums[1:2], nums[2:3]}
	default:
		return "", false
	}

	if len(parts) != 3 {
		return "", false
	}

	for i, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) != 1 || p[0] < '0' || p[0] > '9' {
			return "", false
		}

		parts[i] = p
	}

	return strings.Join(parts, "+"), true
}
