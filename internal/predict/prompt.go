// Package predict implements the LLM prediction workflow: prompt
// assembly over recent history, the chat client, strict reply parsing,
// the per-issue orchestrator, outcome verification and the hit-rate
// snapshot.
package predict

import (
	"fmt"
	"strings"

	"github.com/04By0302/jnd-vps/internal/model"
)

// trendWindow is the number of most recent draws summarized separately
// from the full history block.
const trendWindow = 3

// SystemPrompt sets the assistant's role; the client sends it as the
// system message of every completion.
const SystemPrompt = "你是一个三位数和值走势分析助手。开奖号码为三个0-9的数字，和值范围0-27。"

// PromptData is everything a per-type prompt is assembled from.
type PromptData struct {
	// Target is the issue being predicted.
	Target string
	// History holds recent draws, newest first.
	History []model.Draw
	// TodayCounts holds the current date's category tallies.
	TodayCounts map[string]int
	// RecentValues holds the stream's recent predicted values, newest
	// first, feeding the bias check.
	RecentValues []string

	BiasThreshold float64
	BiasWindow    int
}

// taskSpec carries the per-type instruction and answer contract.
var taskSpec = map[model.PredictionType]struct {
	question string
	answer   string
}{
	model.PredictParity: {
		question: "预测下一期和值的单双。",
		answer:   "只回答一个字：单 或 双。",
	},
	model.PredictMagnitude: {
		question: "预测下一期和值的大小（和值大于等于14为大，否则为小）。",
		answer:   "只回答一个字：大 或 小。",
	},
	model.PredictCombo: {
		question: "从 大单、小单、大双、小双 中选出下一期最可能的两个组合。",
		answer:   "只回答两个组合，用逗号分隔，例如：大单,小双。",
	},
	model.PredictKill: {
		question: "从 大单、小单、大双、小双 中选出下一期最不可能出现的一个组合（杀组合）。",
		answer:   "只回答一个组合，例如：小双。",
	},
}

// BuildPrompt assembles the chat prompt for one prediction stream.
func BuildPrompt(typ model.PredictionType, data PromptData) string {
	spec := taskSpec[typ]

	var sb strings.Builder

	fmt.Fprintf(&sb, "目标期号：%s\n\n", data.Target)

	if len(data.History) > 0 {
		sb.WriteString("近期开奖（由新到旧）：\n")

		for i := range data.History {
			d := &data.History[i]
			fmt.Fprintf(&sb, "%s: %s 和值%d %s\n", d.Issue, d.OpenNums, d.Sum, d.Combination)
		}

		sb.WriteString("\n")
	}

	if n := min(trendWindow, len(data.History)); n > 0 {
		sb.WriteString("最近走势：")

		for i := 0; i < n; i++ {
			if i > 0 {
				sb.WriteString(" → ")
			}

			fmt.Fprintf(&sb, "和值%d", data.History[n-1-i].Sum)
		}

		sb.WriteString("\n\n")
	}

	if len(data.TodayCounts) > 0 {
		fmt.Fprintf(&sb, "今日统计：大%d次 小%d次 单%d次 双%d次\n\n",
			data.TodayCounts[model.CategoryBig], data.TodayCounts[model.CategorySmall],
			data.TodayCounts[model.CategoryOdd], data.TodayCounts[model.CategoryEven])
	}

	if hint := biasHint(data.RecentValues, data.BiasThreshold, data.BiasWindow); hint != "" {
		sb.WriteString(hint)
		sb.WriteString("\n\n")
	}

	sb.WriteString(spec.question)
	sb.WriteString("\n")
	sb.WriteString(spec.answer)

	return sb.String()
}

// biasHint warns the model when one value dominates its recent
// predictions, to break self-reinforcing streaks.
func biasHint(recent []string, threshold float64, window int) string {
	if window <= 0 || len(recent) < window {
		return ""
	}

	counts := make(map[string]int, 4)
	for _, v := range recent[:window] {
		counts[v]++
	}

	for value, n := range counts {
		share := float64(n) / float64(window)
		if share >= threshold {
			return fmt.Sprintf("注意：你最近%d次预测中有%d次给出了「%s」，请独立分析本期走势，避免惯性重复。",
				window, n, value)
		}
	}

	return ""
}
