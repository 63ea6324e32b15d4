package ingest

import (
	"context"
	"log/slog"

	"github.com/04By0302/jnd-vps/internal/model"
	"github.com/04By0302/jnd-vps/internal/retrypolicy"
)

// DrawInserter is the slice of the draw store the writer needs.
type DrawInserter interface {
	Insert(ctx context.Context, d *model.Draw) error
}

// Writer commits enriched draws with the shared retry policy. A
// duplicate-key insert is a silent success: it means another process
// won the race and the draw is durable either way.
type Writer struct {
	store  DrawInserter
	policy retrypolicy.Policy
	log    *slog.Logger
}

// NewWriter creates a writer with the default retry policy.
func NewWriter(store DrawInserter, log *slog.Logger) *Writer {
	return &Writer{store: store, policy: retrypolicy.DefaultPolicy(), log: log}
}

// Write persists the draw. Retriable failures back off and retry;
// terminal failures and exhausted retries surface to the caller.
func (w *Writer) Write(ctx context.Context, d *model.Draw) error {
	return w.policy.Do(ctx, func(ctx context.Context) error {
		err := w.store.Insert(ctx, d)
		if err != nil && retrypolicy.Classify(err) == retrypolicy.ClassRetriable {
			w.log.Warn("draw insert will retry", "issue", d.Issue, "error", err)
		}

		return err
	})
}
