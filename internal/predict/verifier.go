package predict

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/04By0302/jnd-vps/internal/ingest"
	"github.com/04By0302/jnd-vps/internal/model"
	"github.com/04By0302/jnd-vps/internal/storage"
)

// OutcomeRepo is the slice of the prediction store the verifier needs.
type OutcomeRepo interface {
	Get(ctx context.Context, issue string, typ model.PredictionType) (*model.Prediction, error)
	UpdateOutcome(ctx context.Context, p *model.Prediction) (bool, error)
}

// Verifier resolves pending predictions once their target draw commits.
type Verifier struct {
	repo OutcomeRepo
	log  *slog.Logger
}

// NewVerifier creates a verifier over the prediction store.
func NewVerifier(repo OutcomeRepo, log *slog.Logger) *Verifier {
	return &Verifier{repo: repo, log: log}
}

// Run consumes committed draws until the channel closes or ctx is
// cancelled.
func (v *Verifier) Run(ctx context.Context, draws <-chan ingest.DrawCommitted) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-draws:
			if !ok {
				return
			}

			v.VerifyDraw(ctx, ev.Draw)
		}
	}
}

// VerifyDraw resolves every pending prediction targeting the committed
// draw's issue and writes one audit line with the hit ratio and every
// resolved outcome.
func (v *Verifier) VerifyDraw(ctx context.Context, d *model.Draw) {
	var (
		resolved, hits int
		outcomes       []string
	)

	for _, typ := range model.PredictionTypes {
		p, err := v.repo.Get(ctx, d.Issue, typ)
		if err != nil {
			if !storage.IsNotFound(err) {
				v.log.Warn("prediction lookup failed", "issue", d.Issue, "type", typ, "error", err)
			}

			continue
		}

		if p.Hit.Resolved() {
			continue
		}

		p.ActualNumbers = d.OpenNums
		p.ActualSum = d.Sum
		p.ActualValue = actualValue(typ, d)
		p.Hit = Judge(typ, p.PredictedValue, p.ActualValue)

		if _, err := v.repo.UpdateOutcome(ctx, p); err != nil {
			v.log.Warn("prediction outcome write failed", "issue", d.Issue, "type", typ, "error", err)

			continue
		}

		resolved++

		if p.Hit == model.HitTrue {
			hits++
		}

		outcomes = append(outcomes, fmt.Sprintf("%s %s->%s hit=%d",
			typ, p.PredictedValue, p.ActualValue, p.Hit))
	}

	if resolved > 0 {
		v.log.Info("predictions verified",
			"issue", d.Issue, "hits", hits, "resolved", resolved,
			"outcomes", strings.Join(outcomes, ", "))
	}
}

// ParityLabel returns the parity ground truth for a sum.
func ParityLabel(sum int) string {
	if sum%2 == 1 {
		return model.LabelOdd
	}

	return model.LabelEven
}

// MagnitudeLabel returns the magnitude ground truth for a sum.
func MagnitudeLabel(d *model.Draw) string {
	if d.IsBig {
		return model.LabelBig
	}

	return model.LabelSmall
}

// ComboLabel returns the magnitude×parity ground truth label.
func ComboLabel(d *model.Draw) string {
	return MagnitudeLabel(d) + ParityLabel(d.Sum)
}

// actualValue returns the stream's ground-truth value for a draw. The
// kill stream is judged against the combo label.
func actualValue(typ model.PredictionType, d *model.Draw) string {
	switch typ {
	case model.PredictParity:
		return ParityLabel(d.Sum)
	case model.PredictMagnitude:
		return MagnitudeLabel(d)
	default:
		return ComboLabel(d)
	}
}

// Judge resolves one prediction against its ground truth. The combo
// stream hits when the actual label is one of its two picks; the kill
// stream is inverted and hits when the actual label differs from the
// killed one.
func Judge(typ model.PredictionType, predicted, actual string) model.Hit {
	var hit bool

	switch typ {
	case model.PredictCombo:
		for _, label := range SplitCombo(predicted) {
			if label == actual {
				hit = true

				break
			}
		}
	case model.PredictKill:
		hit = predicted != actual
	default:
		hit = predicted == actual
	}

	if hit {
		return model.HitTrue
	}

	return model.HitFalse
}
