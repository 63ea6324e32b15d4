package storage

import (
	"context"
	"fmt"
	"strings"
)

// DailyStore persists the per-date category tallies.
type DailyStore struct {
	pools *Pools
}

// NewDailyStore creates a daily-stats store over the pools.
func NewDailyStore(pools *Pools) *DailyStore {
	return &DailyStore{pools: pools}
}

// IncrementHeld bumps the tally of every held category for one date in
// a single upsert. Rows are created on first sight of a category.
func (s *DailyStore) IncrementHeld(ctx context.Context, date string, held []string) error {
	if len(held) == 0 {
		return nil
	}

	var sb strings.Builder

	sb.WriteString(`INSERT INTO daily_stats (stat_date, category, count) VALUES `)

	args := make([]any, 0, 2*len(held))

	for i, cat := range held {
		if i > 0 {
			sb.WriteString(", ")
		}

		sb.WriteString("(?, ?, 1)")
		args = append(args, date, cat)
	}

	sb.WriteString(` ON DUPLICATE KEY UPDATE count = count + 1`)

	if _, err := s.pools.Write.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("increment daily stats %s: %w", date, err)
	}

	return nil
}

// ReplaceCounts writes absolute tallies for one date, overwriting any
// existing rows. Used by the rebuild path after a truncate.
func (s *DailyStore) ReplaceCounts(ctx context.Context, date string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	var sb strings.Builder

	sb.WriteString(`INSERT INTO daily_stats (stat_date, category, count) VALUES `)

	args := make([]any, 0, 3*len(counts))
	first := true

	for category, count := range counts {
		if !first {
			sb.WriteString(", ")
		}

		first = false

		sb.WriteString("(?, ?, ?)")
		args = append(args, date, category, count)
	}

	sb.WriteString(` ON DUPLICATE KEY UPDATE count = VALUES(count)`)

	if _, err := s.pools.Write.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("replace daily stats %s: %w", date, err)
	}

	return nil
}

// CountsByDate returns the tallies of one date keyed by category.
func (s *DailyStore) CountsByDate(ctx context.Context, date string) (map[string]int, error) {
	rows, err := s.pools.Read.QueryContext(ctx,
		`SELECT category, count FROM daily_stats WHERE stat_date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("daily stats %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			category string
			count    int
		)

		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}

		counts[category] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily stats: %w", err)
	}

	return counts, nil
}

// TruncateDate deletes all tallies of one date before a rebuild.
func (s *DailyStore) TruncateDate(ctx context.Context, date string) error {
	if _, err := s.pools.Write.ExecContext(ctx,
		`DELETE FROM daily_stats WHERE stat_date = ?`, date); err != nil {
		return fmt.Errorf("truncate daily stats %s: %w", date, err)
	}

	return nil
}
