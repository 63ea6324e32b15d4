package ingest

import (
	"log/slog"
	"sync"

	"github.com/04By0302/jnd-vps/internal/model"
)

// DefaultSubscriberBuffer is the channel depth handed to subscribers.
const DefaultSubscriberBuffer = 64

// DrawCommitted announces a durably committed draw.
type DrawCommitted struct {
	Draw *model.Draw
}

// PredictionCommitted announces one persisted prediction with the value
// and how long the stream took.
type PredictionCommitted struct {
	Issue      string
	Type       model.PredictionType
	Value      string
	DurationMS int64
}

// PredictionsDone announces that an issue's prediction round finished.
// Individual streams may have failed; per-stream outcomes travel on
// PredictionCommitted.
type PredictionsDone struct {
	Issue string
}

// Bus is the post-commit fan-out: bounded channels, non-blocking
// publish. A subscriber that falls behind loses events with a warning;
// every consumer can rebuild its state from the stores.
type Bus struct {
	log *slog.Logger

	mu       sync.Mutex
	closed   bool
	drawSubs []chan DrawCommitted
	predSubs []chan PredictionCommitted
	doneSubs []chan PredictionsDone
}

// NewBus creates an event bus.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{log: log}
}

// SubscribeDraws registers a draw-committed subscriber.
func (b *Bus) SubscribeDraws() <-chan DrawCommitted {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan DrawCommitted, DefaultSubscriberBuffer)
	b.drawSubs = append(b.drawSubs, ch)

	return ch
}

// SubscribePredictions registers a prediction-committed subscriber.
func (b *Bus) SubscribePredictions() <-chan PredictionCommitted {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan PredictionCommitted, DefaultSubscriberBuffer)
	b.predSubs = append(b.predSubs, ch)

	return ch
}

// SubscribePredictionsDone registers an all-predictions-committed
// subscriber.
func (b *Bus) SubscribePredictionsDone() <-chan PredictionsDone {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan PredictionsDone, DefaultSubscriberBuffer)
	b.doneSubs = append(b.doneSubs, ch)

	return ch
}

// PublishDraw fans a committed draw out to all subscribers without
// blocking the commit path.
func (b *Bus) PublishDraw(ev DrawCommitted) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, ch := range b.drawSubs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("draw event dropped, subscriber behind", "issue", ev.Draw.Issue)
		}
	}
}

// PublishPrediction fans out one persisted prediction.
func (b *Bus) PublishPrediction(ev PredictionCommitted) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, ch := range b.predSubs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("prediction event dropped, subscriber behind",
				"issue", ev.Issue, "type", ev.Type)
		}
	}
}

// PublishPredictionsDone fans out issue-level prediction completion.
func (b *Bus) PublishPredictionsDone(ev PredictionsDone) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, ch := range b.doneSubs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("predictions-done event dropped, subscriber behind", "issue", ev.Issue)
		}
	}
}

// Close closes all subscriber channels. Publishing after Close is a
// no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for _, ch := range b.drawSubs {
		close(ch)
	}

	for _, ch := range b.predSubs {
		close(ch)
	}

	for _, ch := range b.doneSubs {
		close(ch)
	}
}
