package agent

import (
	"regexp"
	"strings"
	"unicode"
)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// SplitBubbles turns the final assistant text into chat bubbles. Two or more
// paragraphs become one bubble each; a single paragraph is split into
// sentence pairs, except that short texts (two sentences or fewer) stay
// whole. Empty input yields no bubbles.
func SplitBubbles(text string) []string {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, "\r", ""))
	if normalized == "" {
		return nil
	}

	var paragraphs []string
	for _, p := range paragraphBreak.Split(normalized, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) >= 2 {
		return paragraphs
	}

	sentences := splitSentences(normalized)
	if len(sentences) <= 2 {
		return []string{normalized}
	}

	bubbles := make([]string, 0, (len(sentences)+1)/2)
	for i := 0; i < len(sentences); i += 2 {
		if i+1 < len(sentences) {
			bubbles = append(bubbles, sentences[i]+" "+sentences[i+1])
		} else {
			bubbles = append(bubbles, sentences[i])
		}
	}
	return bubbles
}

// splitSentences breaks text after runs of terminal punctuation followed by
// whitespace.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && isTerminal(runes[j]) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		if s := strings.TrimSpace(string(runes[start:j])); s != "" {
			out = append(out, s)
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// collapseWhitespace folds all whitespace runs into single spaces and trims.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// compactPreview collapses whitespace and truncates to max runes.
func compactPreview(s string, max int) string {
	collapsed := collapseWhitespace(s)
	runes := []rune(collapsed)
	if len(runes) <= max {
		return collapsed
	}
	return string(runes[:max])
}
