package cache

import "fmt"

// Keys builds the namespaced cache key grammar. Every key carries the
// common project prefix so pattern invalidation never touches foreign
// keyspaces.
type Keys struct {
	prefix string
}

// NewKeys creates a key builder with the given namespace prefix.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = "project:"
	}

	return Keys{prefix: prefix}
}

// Prefix returns the common namespace prefix.
func (k Keys) Prefix() string { return k.prefix }

// LockIssue is the per-issue write lock key (short TTL).
func (k Keys) LockIssue(issue string) string {
	return k.prefix + "lock:issue:" + issue
}

// SeenIssue is the seen-set membership key (1 hour TTL).
func (k Keys) SeenIssue(issue string) string {
	return k.prefix + "seen:issue:" + issue
}

// LastIssue is the last-committed-issue pointer (no TTL).
func (k Keys) LastIssue() string {
	return k.prefix + "last:issue"
}

// LatestDraws is the latest-draws payload key for a limit variant.
func (k Keys) LatestDraws(limit int) string {
	return fmt.Sprintf("%skj:limit:%d", k.prefix, limit)
}

// LatestDrawsPattern matches every latest-draws limit variant.
func (k Keys) LatestDrawsPattern() string {
	return k.prefix + "kj:limit:*"
}

// Omission is the omission snapshot payload key.
func (k Keys) Omission() string {
	return k.prefix + "yl"
}

// DailyStats is the daily-stats snapshot payload key.
func (k Keys) DailyStats() string {
	return k.prefix + "yk"
}

// Prediction is the prediction payload key for a type and limit variant.
func (k Keys) Prediction(predictType string, limit int) string {
	return fmt.Sprintf("%spredict:%s:limit:%d", k.prefix, predictType, limit)
}

// PredictionPattern matches every payload variant of one prediction type.
func (k Keys) PredictionPattern(predictType string) string {
	return k.prefix + "predict:" + predictType + ":limit:*"
}

// PredictLock is the per-issue prediction lock key (300 s TTL).
func (k Keys) PredictLock(issue string) string {
	return k.prefix + "predict:lock:" + issue
}

// WinRate is the per-type hit-rate snapshot key (5 min TTL).
func (k Keys) WinRate(predictType string) string {
	return k.prefix + "winrate:" + predictType
}

// ExcelLottery is the draws export artifact key (3 min TTL).
func (k Keys) ExcelLottery(limit int) string {
	return fmt.Sprintf("%sexcel:lottery:%d", k.prefix, limit)
}

// ExcelLotteryPattern matches every draws export artifact.
func (k Keys) ExcelLotteryPattern() string {
	return k.prefix + "excel:lottery:*"
}

// ExcelStats is the stats export artifact key (3 min TTL).
func (k Keys) ExcelStats(days int) string {
	return fmt.Sprintf("%sexcel:stats:%d", k.prefix, days)
}

// ExcelStatsPattern matches every stats export artifact.
func (k Keys) ExcelStatsPattern() string {
	return k.prefix + "excel:stats:*"
}

// TodayProcessed is the per-day-per-issue idempotency marker for the
// daily stats engine (TTL until midnight).
func (k Keys) TodayProcessed(date, issue string) string {
	return k.prefix + "today_stats:processed:" + date + ":" + issue
}

// TodayProcessedPattern matches every idempotency marker of one date.
func (k Keys) TodayProcessedPattern(date string) string {
	return k.prefix + "today_stats:processed:" + date + ":*"
}
