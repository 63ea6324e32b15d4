// Package retrypolicy implements the shared error taxonomy and the
// jittered exponential backoff used by the write path and the LLM
// client.
package retrypolicy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Class buckets an error for retry decisions.
type Class int

// Error classes. DuplicateOK marks idempotent-duplicate conditions that
// callers convert to silent success.
const (
	ClassTerminal Class = iota
	ClassRetriable
	ClassDuplicateOK
)

// MySQL server error numbers relevant to the write path.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrFKConstraint    = 1452
	mysqlErrCheckConstraint = 3819
	mysqlErrServerGone      = 2006
	mysqlErrLostConnection  = 2013
)

// ErrRetriesExhausted wraps the final error after all attempts failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Classify buckets an error per the pipeline taxonomy: connection-level
// failures, deadlocks and lost connections are retriable; duplicate-key
// errors are idempotent duplicates; constraint violations and everything
// else are terminal.
func Classify(err error) Class {
	if err == nil {
		return ClassTerminal
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDuplicateEntry:
			return ClassDuplicateOK
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock, mysqlErrServerGone, mysqlErrLostConnection:
			return ClassRetriable
		case mysqlErrFKConstraint, mysqlErrCheckConstraint:
			return ClassTerminal
		}
	}

	if errors.Is(err, mysql.ErrInvalidConn) {
		return ClassRetriable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetriable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetriable
	}

	return ClassTerminal
}

// Policy is a jittered exponential backoff schedule.
type Policy struct {
	Base     time.Duration
	Ceiling  time.Duration
	Attempts int
}

// Default backoff parameters shared by all call sites.
const (
	DefaultBase     = 2 * time.Second
	DefaultCeiling  = 10 * time.Second
	DefaultAttempts = 3
)

// DefaultPolicy returns the standard 3-attempt policy (base 2s, cap 10s).
func DefaultPolicy() Policy {
	return Policy{Base: DefaultBase, Ceiling: DefaultCeiling, Attempts: DefaultAttempts}
}

// Delay returns the jittered backoff delay for a zero-based attempt
// index: base*2^attempt capped at the ceiling, with ±25% jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Base << attempt
	if d > p.Ceiling || d <= 0 {
		d = p.Ceiling
	}

	// Jitter in [0.75, 1.25) of the nominal delay.
	jitter := 0.75 + rand.Float64()/2 //nolint:gosec // Not security sensitive.

	return time.Duration(float64(d) * jitter)
}

// Do runs fn under the policy. Retriable errors are retried with
// backoff; DuplicateOK errors return nil immediately; terminal errors
// return at once. The final retriable failure is wrapped in
// ErrRetriesExhausted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		switch Classify(err) {
		case ClassDuplicateOK:
			return nil
		case ClassTerminal:
			return err
		case ClassRetriable:
			lastErr = err
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}

	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// IsDuplicate reports whether the error is an idempotent duplicate.
func IsDuplicate(err error) bool {
	return Classify(err) == ClassDuplicateOK
}
