package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/04By0302/jnd-vps/internal/model"
)

// PredictionStore persists predictions and their verified outcomes.
type PredictionStore struct {
	pools *Pools
}

// NewPredictionStore creates a prediction store over the pools.
func NewPredictionStore(pools *Pools) *PredictionStore {
	return &PredictionStore{pools: pools}
}

// Upsert writes a prediction for (issue, type). Re-running the same
// prediction task overwrites the predicted value and leaves any
// resolved outcome alone.
func (s *PredictionStore) Upsert(ctx context.Context, p *model.Prediction) error {
	const query = `INSERT INTO predictions (issue, type, predicted_value)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE predicted_value = VALUES(predicted_value)`

	_, err := s.pools.Write.ExecContext(ctx, query, p.Issue, p.Type, p.PredictedValue)
	if err != nil {
		return fmt.Errorf("upsert prediction %s/%s: %w", p.Issue, p.Type, err)
	}

	return nil
}

// Get returns one prediction by (issue, type).
func (s *PredictionStore) Get(ctx context.Context, issue string, typ model.PredictionType) (*model.Prediction, error) {
	const query = `SELECT issue, type, predicted_value, actual_numbers, actual_sum, actual_value, hit,
		created_at, updated_at
		FROM predictions WHERE issue = ? AND type = ?`

	var p model.Prediction

	err := s.pools.Read.QueryRowContext(ctx, query, issue, typ).Scan(
		&p.Issue, &p.Type, &p.PredictedValue,
		&p.ActualNumbers, &p.ActualSum, &p.ActualValue, &p.Hit,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("get prediction %s/%s: %w", issue, typ, err)
	}

	return &p, nil
}

// RecentValues returns the predicted values of the most recent
// predictions of one type, newest first. The bias check feeds on this.
func (s *PredictionStore) RecentValues(ctx context.Context, typ model.PredictionType, limit int) ([]string, error) {
	const query = `SELECT predicted_value FROM predictions
		WHERE type = ? ORDER BY issue DESC LIMIT ?`

	rows, err := s.pools.Read.QueryContext(ctx, query, typ, limit)
	if err != nil {
		return nil, fmt.Errorf("recent predictions %s: %w", typ, err)
	}
	defer func() { _ = rows.Close() }()

	var values []string

	for rows.Next() {
		var v string

		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan prediction value: %w", err)
		}

		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prediction values: %w", err)
	}

	return values, nil
}

// Recent returns the most recent predictions of one type, newest
// first, resolved or not.
func (s *PredictionStore) Recent(ctx context.Context, typ model.PredictionType, limit int) ([]model.Prediction, error) {
	const query = `SELECT issue, type, predicted_value, actual_numbers, actual_sum, actual_value, hit,
		created_at, updated_at
		FROM predictions WHERE type = ? ORDER BY issue DESC LIMIT ?`

	rows, err := s.pools.Read.QueryContext(ctx, query, typ, limit)
	if err != nil {
		return nil, fmt.Errorf("recent prediction rows %s: %w", typ, err)
	}
	defer func() { _ = rows.Close() }()

	var preds []model.Prediction

	for rows.Next() {
		var p model.Prediction

		err := rows.Scan(
			&p.Issue, &p.Type, &p.PredictedValue,
			&p.ActualNumbers, &p.ActualSum, &p.ActualValue, &p.Hit,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan prediction row: %w", err)
		}

		preds = append(preds, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prediction rows: %w", err)
	}

	return preds, nil
}

// UpdateOutcome records the verified outcome of one prediction. The
// returned bool reports whether a row was actually updated.
func (s *PredictionStore) UpdateOutcome(ctx context.Context, p *model.Prediction) (bool, error) {
	const query = `UPDATE predictions
		SET actual_numbers = ?, actual_sum = ?, actual_value = ?, hit = ?
		WHERE issue = ? AND type = ?`

	res, err := s.pools.Write.ExecContext(ctx, query,
		p.ActualNumbers, p.ActualSum, p.ActualValue, p.Hit, p.Issue, p.Type)
	if err != nil {
		return false, fmt.Errorf("update outcome %s/%s: %w", p.Issue, p.Type, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update outcome %s/%s: %w", p.Issue, p.Type, err)
	}

	return affected > 0, nil
}

// HitRate computes the hit rate of one type over its most recent
// resolved predictions.
func (s *PredictionStore) HitRate(ctx context.Context, typ model.PredictionType, window int) (*model.HitRate, error) {
	const query = `SELECT hit FROM predictions
		WHERE type = ? AND hit <> 0 ORDER BY issue DESC LIMIT ?`

	rows, err := s.pools.Read.QueryContext(ctx, query, typ, window)
	if err != nil {
		return nil, fmt.Errorf("hit rate %s: %w", typ, err)
	}
	defer func() { _ = rows.Close() }()

	hr := &model.HitRate{Type: typ}

	for rows.Next() {
		var hit model.Hit

		if err := rows.Scan(&hit); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}

		hr.Total++

		if hit == model.HitTrue {
			hr.Hits++
		} else {
			hr.Misses++
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}

	if hr.Total > 0 {
		hr.Rate = float64(hr.Hits) / float64(hr.Total)
	}

	return hr, nil
}
