package model

import "time"

// PredictionType identifies one of the four independent prediction streams.
type PredictionType string

// The four prediction streams.
const (
	PredictParity    PredictionType = "parity"
	PredictMagnitude PredictionType = "magnitude"
	PredictCombo     PredictionType = "combo"
	PredictKill      PredictionType = "kill"
)

// PredictionTypes lists all prediction streams in a stable order.
var PredictionTypes = []PredictionType{PredictParity, PredictMagnitude, PredictCombo, PredictKill}

// Prediction value labels. Parity and magnitude use single-character
// labels; combo and kill use the four magnitude×parity labels.
const (
	LabelOdd   = "单"
	LabelEven  = "双"
	LabelBig   = "大"
	LabelSmall = "小"

	LabelBigOdd    = "大单"
	LabelSmallOdd  = "小单"
	LabelBigEven   = "大双"
	LabelSmallEven = "小双"
)

// ComboLabels lists the four magnitude×parity labels used by the combo
// and kill streams.
var ComboLabels = []string{LabelBigOdd, LabelSmallOdd, LabelBigEven, LabelSmallEven}

// Hit is the ternary outcome of a prediction.
type Hit int8

// Hit states. A prediction stays HitUnknown until the draw of its target
// issue is committed and the verifier resolves it.
const (
	HitUnknown Hit = 0
	HitTrue    Hit = 1
	HitFalse   Hit = 2
)

// Resolved reports whether the outcome is known.
func (h Hit) Resolved() bool { return h != HitUnknown }

// Prediction is one row of the prediction store, identified by
// (issue, type).
//
// For the kill stream the hit convention is inverted on purpose: the
// prediction names the label to avoid, so hit means the outcome differed
// from the predicted label. The stored value is user-facing, not a
// prediction-accuracy flag.
type Prediction struct {
	Issue          string
	Type           PredictionType
	PredictedValue string

	ActualNumbers string
	ActualSum     int
	ActualValue   string
	Hit           Hit

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HitRate is the per-type snapshot over the most recent resolved
// predictions.
type HitRate struct {
	Type   PredictionType
	Total  int
	Hits   int
	Misses int
	Rate   float64
}
