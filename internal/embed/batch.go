package embed

import "unicode/utf8"

// DefaultBatchTokens is the estimated token budget for one embedding call.
const DefaultBatchTokens = 10000

// BatchTexts groups texts into provider calls whose estimated token totals
// stay within maxTokens, preserving order. A single text over the budget
// gets its own batch; the chunker keeps individual chunks far below this.
func BatchTexts(texts []string, maxTokens int) [][]string {
	if maxTokens <= 0 {
		maxTokens = DefaultBatchTokens
	}

	var batches [][]string
	var cur []string
	total := 0
	for _, t := range texts {
		tt := estimateTokens(t)
		if len(cur) > 0 && total+tt > maxTokens {
			batches = append(batches, cur)
			cur = nil
			total = 0
		}
		cur = append(cur, t)
		total += tt
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// estimateTokens approximates token count as half the rune count, minimum
// one for non-empty text.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 2
	if n == 0 && text != "" {
		return 1
	}
	return n
}
