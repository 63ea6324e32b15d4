package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/04By0302/jnd-vps/internal/model"
)

// dateZone is the wall-clock zone date keys are computed in. ByDate must
// slice the table in the same zone the daily engine keys its dates in,
// independent of the connection's session zone.
var dateZone = time.FixedZone("UTC+8", 8*3600)

// drawColumns is the full projection of the draws table, in insert order.
const drawColumns = `issue, open_time, open_nums, sum, source,
	is_big, is_small, is_odd, is_even, is_extreme_big, is_extreme_small,
	combination, is_triple, is_pair, is_straight, is_misc,
	is_small_edge, is_middle, is_big_edge, is_edge,
	is_dragon, is_tiger, is_tie`

// DrawStore persists authoritative draw records.
type DrawStore struct {
	pools *Pools
}

// NewDrawStore creates a draw store over the pools.
func NewDrawStore(pools *Pools) *DrawStore {
	return &DrawStore{pools: pools}
}

// Insert writes one enriched draw. A duplicate issue surfaces as the
// driver's duplicate-key error; the writer converts it to a no-op.
func (s *DrawStore) Insert(ctx context.Context, d *model.Draw) error {
	const query = `INSERT INTO draws (` + drawColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.pools.Write.ExecContext(ctx, query,
		d.Issue, d.OpenTime, d.OpenNums, d.Sum, d.Source,
		d.IsBig, d.IsSmall, d.IsOdd, d.IsEven, d.IsExtremeBig, d.IsExtremeSmall,
		d.Combination, d.IsTriple, d.IsPair, d.IsStraight, d.IsMisc,
		d.IsSmallEdge, d.IsMiddle, d.IsBigEdge, d.IsEdge,
		d.IsDragon, d.IsTiger, d.IsTie,
	)
	if err != nil {
		return fmt.Errorf("insert draw %s: %w", d.Issue, err)
	}

	return nil
}

// MaxIssue returns the highest committed issue, or "" on an empty table.
func (s *DrawStore) MaxIssue(ctx context.Context) (string, error) {
	var issue sql.NullString

	err := s.pools.Read.QueryRowContext(ctx, `SELECT MAX(issue) FROM draws`).Scan(&issue)
	if err != nil {
		return "", fmt.Errorf("max issue: %w", err)
	}

	if !issue.Valid {
		return "", nil
	}

	return issue.String, nil
}

// Latest returns the most recent draws, newest first.
func (s *DrawStore) Latest(ctx context.Context, limit int) ([]model.Draw, error) {
	query := `SELECT ` + drawColumns + `, created_at, updated_at
		FROM draws ORDER BY issue DESC LIMIT ?`

	rows, err := s.pools.Read.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("latest draws: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanDraws(rows)
}

// Page returns one page of draws newest-first, for the omission
// bootstrap scan.
func (s *DrawStore) Page(ctx context.Context, offset, limit int) ([]model.Draw, error) {
	query := `SELECT ` + drawColumns + `, created_at, updated_at
		FROM draws ORDER BY issue DESC LIMIT ? OFFSET ?`

	rows, err := s.pools.Read.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("draw page at %d: %w", offset, err)
	}
	defer func() { _ = rows.Close() }()

	return scanDraws(rows)
}

// ByDate returns all draws of one wall-clock date oldest-first, for the
// daily-stats rebuild. The date is resolved to a half-open instant range
// in dateZone so the slice matches the daily engine's date keys.
func (s *DrawStore) ByDate(ctx context.Context, date string) ([]model.Draw, error) {
	start, err := time.ParseInLocation("2006-01-02", date, dateZone)
	if err != nil {
		return nil, fmt.Errorf("draws by date %s: %w", date, err)
	}

	end := start.AddDate(0, 0, 1)

	query := `SELECT ` + drawColumns + `, created_at, updated_at
		FROM draws WHERE open_time >= ? AND open_time < ? ORDER BY issue ASC`

	rows, err := s.pools.Read.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("draws by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	return scanDraws(rows)
}

// Get returns one draw by issue.
func (s *DrawStore) Get(ctx context.Context, issue string) (*model.Draw, error) {
	query := `SELECT ` + drawColumns + `, created_at, updated_at
		FROM draws WHERE issue = ?`

	rows, err := s.pools.Read.QueryContext(ctx, query, issue)
	if err != nil {
		return nil, fmt.Errorf("get draw %s: %w", issue, err)
	}
	defer func() { _ = rows.Close() }()

	draws, err := scanDraws(rows)
	if err != nil {
		return nil, err
	}

	if len(draws) == 0 {
		return nil, sql.ErrNoRows
	}

	return &draws[0], nil
}

// IsNotFound reports whether the error means "no such row".
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func scanDraws(rows *sql.Rows) ([]model.Draw, error) {
	var draws []model.Draw

	for rows.Next() {
		var d model.Draw

		err := rows.Scan(
			&d.Issue, &d.OpenTime, &d.OpenNums, &d.Sum, &d.Source,
			&d.IsBig, &d.IsSmall, &d.IsOdd, &d.IsEven, &d.IsExtremeBig, &d.IsExtremeSmall,
			&d.Combination, &d.IsTriple, &d.IsPair, &d.IsStraight, &d.IsMisc,
			&d.IsSmallEdge, &d.IsMiddle, &d.IsBigEdge, &d.IsEdge,
			&d.IsDragon, &d.IsTiger, &d.IsTie,
			&d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan draw: %w", err)
		}

		draws = append(draws, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draws: %w", err)
	}

	return draws, nil
}
