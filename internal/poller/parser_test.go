package poller_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04By0302/jnd-vps/internal/poller"
)

func TestNormalizeNumsAcceptedForms(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"3+5+8", "3+5+8"},
		{"3,5,8", "3+5+8"},
		{"3 5 8", "3+5+8"},
		{"358", "3+5+8"},
		{" 3 , 5 , 8 ", "3+5+8"},
	}

	for _, tt := range tests {
		got, ok := poller.NormalizeNums(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeNumsRejected(t *testing.T) {
	for _, in := range []string{"10+5+8", "3-5-8", "3+5", "3+5+8+9", "ab c", "35", "3..5"} {
		_, ok := poller.NormalizeNums(in)
		assert.False(t, ok, in)
	}
}

func TestParseUniversalContainerShapes(t *testing.T) {
	bodies := []string{
		`{"code":0,"data":[{"qihao":"2025001","opentime":"2025-12-10 15:30:00","opennum":"3+5+8","sum":16}]}`,
		`{"result":[{"issue":"2025001","time":"2025-12-10 15:30:00","opencode":"3,5,8","sum":16}]}`,
		`[{"expect":"2025001","opentime":"2025-12-10 15:30:00","nums":"358","sum":16}]`,
		`{"qihao":"2025001","opentime":"2025-12-10 15:30:00","opennum":"3 5 8","sum":16}`,
	}

	for _, body := range bodies {
		raw, err := poller.ParseUniversal([]byte(body))
		require.NoError(t, err, body)
		require.NotNil(t, raw, body)

		assert.Equal(t, "2025001", raw.Issue, body)
		assert.Equal(t, "3+5+8", raw.OpenNums, body)
		assert.Equal(t, 16, raw.Sum, body)
	}
}

func TestParseUniversalComputesMissingSum(t *testing.T) {
	raw, err := poller.ParseUniversal([]byte(`{"data":[{"qihao":"2025001","opentime":"x","opennum":"3+5+8"}]}`))
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, 16, raw.Sum)
}

func TestParseUniversalNumericIssue(t *testing.T) {
	raw, err := poller.ParseUniversal([]byte(`{"data":[{"qihao":2025001,"opentime":"x","opennum":"3+5+8","sum":"16"}]}`))
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, "2025001", raw.Issue)
	assert.Equal(t, 16, raw.Sum)
}

func TestParseUniversalNoRecord(t *testing.T) {
	for _, body := range []string{`{"data":[]}`, `[]`, `{"code":1}`} {
		raw, err := poller.ParseUniversal([]byte(body))
		require.NoError(t, err, body)
		assert.Nil(t, raw, body)
	}
}

func TestParseUniversalRejectsBadNumberForm(t *testing.T) {
	_, err := poller.ParseUniversal([]byte(`{"data":[{"qihao":"2025001","opennum":"3-5-8"}]}`))
	require.Error(t, err)
}

func TestParseKenoReduction(t *testing.T) {
	// drawNbrs indices:      0   1   2   3   4   5   6   7   8   9  10  11  12  13  14  15  16  17  18  19
	body := `[{"drawNbr":2025001,"drawDate":"Dec 10, 2025","drawTime":"3:30:00 PM",
		"drawNbrs":[5, 1, 2, 3, 11, 12, 13, 21, 22, 23, 31, 32, 33, 41, 42, 43, 51, 52, 53, 60]}]`

	raw, err := poller.ParseKeno([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, raw)

	// a = (1+11+21+31+41+51) mod 10 = 156 mod 10 = 6
	// b = (2+12+22+32+42+52) mod 10 = 162 mod 10 = 2
	// c = (3+13+23+33+43+53) mod 10 = 168 mod 10 = 8
	assert.Equal(t, "6+2+8", raw.OpenNums)
	assert.Equal(t, 16, raw.Sum)
	assert.Equal(t, "2025001", raw.Issue)
	assert.Equal(t, "2025-12-10 15:30:00", raw.OpenTime)
}

func TestParseKenoEmptyFeed(t *testing.T) {
	raw, err := poller.ParseKeno([]byte(`[]`))
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestParseKenoWrongSize(t *testing.T) {
	_, err := poller.ParseKeno([]byte(`[{"drawNbr":1,"drawDate":"Dec 10, 2025","drawTime":"3:30:00 PM","drawNbrs":[1,2,3]}]`))
	require.Error(t, err)
}

func TestParserByID(t *testing.T) {
	_, err := poller.ParserByID("universal")
	require.NoError(t, err)

	_, err = poller.ParserByID("keno")
	require.NoError(t, err)

	_, err = poller.ParserByID("nope")
	assert.ErrorIs(t, err, poller.ErrUnknownParser)
}
