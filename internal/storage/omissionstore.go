package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/04By0302/jnd-vps/internal/model"
)

// OmissionStore persists the per-category omission counters.
type OmissionStore struct {
	pools *Pools
}

// NewOmissionStore creates an omission store over the pools.
func NewOmissionStore(pools *Pools) *OmissionStore {
	return &OmissionStore{pools: pools}
}

// InitCounters inserts a zero row for every category that does not have
// one yet. Existing counters are left untouched.
func (s *OmissionStore) InitCounters(ctx context.Context) error {
	categories := model.AllCategories()

	var sb strings.Builder

	sb.WriteString(`INSERT IGNORE INTO omission_counters (category, count) VALUES `)

	args := make([]any, 0, len(categories))

	for i, cat := range categories {
		if i > 0 {
			sb.WriteString(", ")
		}

		sb.WriteString("(?, 0)")
		args = append(args, cat)
	}

	if _, err := s.pools.Write.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("init omission counters: %w", err)
	}

	return nil
}

// All returns the current counter for every category.
func (s *OmissionStore) All(ctx context.Context) (map[string]int, error) {
	rows, err := s.pools.Read.QueryContext(ctx, `SELECT category, count FROM omission_counters`)
	if err != nil {
		return nil, fmt.Errorf("load omission counters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counters := make(map[string]int)

	for rows.Next() {
		var (
			category string
			count    int
		)

		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan omission counter: %w", err)
		}

		counters[category] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate omission counters: %w", err)
	}

	return counters, nil
}

// ApplyBatch writes a full counter snapshot in one statement, using a
// CASE expression so the 49 categories cost a single round trip.
func (s *OmissionStore) ApplyBatch(ctx context.Context, counters map[string]int) error {
	if len(counters) == 0 {
		return nil
	}

	var sb strings.Builder

	sb.WriteString(`UPDATE omission_counters SET count = CASE category `)

	args := make([]any, 0, 3*len(counters))
	categories := make([]any, 0, len(counters))

	for category, count := range counters {
		sb.WriteString("WHEN ? THEN ? ")
		args = append(args, category, count)
		categories = append(categories, category)
	}

	sb.WriteString("ELSE count END WHERE category IN (")
	sb.WriteString(placeholders(len(categories)))
	sb.WriteString(")")

	args = append(args, categories...)

	if _, err := s.pools.Write.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("apply omission batch: %w", err)
	}

	return nil
}

// ResetAll zeroes every counter, for a full bootstrap rebuild.
func (s *OmissionStore) ResetAll(ctx context.Context) error {
	if _, err := s.pools.Write.ExecContext(ctx, `UPDATE omission_counters SET count = 0`); err != nil {
		return fmt.Errorf("reset omission counters: %w", err)
	}

	return nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}

	return strings.Repeat("?, ", n-1) + "?"
}
