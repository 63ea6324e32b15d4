package predict

import (
	"errors"
	"fmt"
	"strings"

	"github.com/04By0302/jnd-vps/internal/model"
)

// ErrBadReply means the completion did not follow the answer contract.
// The task that received it fails; the other streams are unaffected.
var ErrBadReply = errors.New("unparsable llm reply")

// comboSeparators are the separators tolerated between the two combo
// labels.
var comboSeparators = []string{",", "，", "、", "/", " "}

// ParseReply canonicalizes a completion into the stored predicted value
// for one stream. Surrounding whitespace and punctuation noise are
// tolerated; anything beyond that is a parse failure.
func ParseReply(typ model.PredictionType, reply string) (string, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.Trim(cleaned, "。.!！\"'「」“”")
	cleaned = strings.TrimSpace(cleaned)

	switch typ {
	case model.PredictParity:
		return matchLabel(cleaned, model.LabelOdd, model.LabelEven)
	case model.PredictMagnitude:
		return matchLabel(cleaned, model.LabelBig, model.LabelSmall)
	case model.PredictKill:
		return matchLabel(cleaned, model.ComboLabels...)
	case model.PredictCombo:
		return parseCombo(cleaned)
	default:
		return "", fmt.Errorf("%w: unknown stream %q", ErrBadReply, typ)
	}
}

// matchLabel accepts an exact label, or a reply that contains exactly
// one of the allowed labels.
func matchLabel(reply string, allowed ...string) (string, error) {
	for _, label := range allowed {
		if reply == label {
			return label, nil
		}
	}

	var found string

	for _, label := range allowed {
		if strings.Contains(reply, label) {
			if found != "" && found != label {
				return "", fmt.Errorf("%w: %q names several labels", ErrBadReply, reply)
			}

			found = label
		}
	}

	if found == "" {
		return "", fmt.Errorf("%w: %q", ErrBadReply, reply)
	}

	return found, nil
}

// parseCombo extracts exactly two distinct combo labels and joins them
// in canonical form.
func parseCombo(reply string) (string, error) {
	for _, sep := range comboSeparators {
		reply = strings.ReplaceAll(reply, sep, " ")
	}

	var labels []string

	for _, token := range strings.Fields(reply) {
		matched := false

		for _, label := range model.ComboLabels {
			if token == label {
				matched = true

				if !contains(labels, label) {
					labels = append(labels, label)
				}

				break
			}
		}

		if !matched {
			return "", fmt.Errorf("%w: %q is not a combo label", ErrBadReply, token)
		}
	}

	if len(labels) != 2 {
		return "", fmt.Errorf("%w: want two distinct combo labels, got %d", ErrBadReply, len(labels))
	}

	return labels[0] + "," + labels[1], nil
}

// SplitCombo splits a stored combo value back into its two labels.
func SplitCombo(value string) []string {
	return strings.Split(value, ",")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}

	return false
}
