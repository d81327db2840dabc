package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitBubblesParagraphs(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph.\n\n\nThird one."
	assert.Equal(t, []string{
		"First paragraph here.",
		"Second paragraph.",
		"Third one.",
	}, SplitBubbles(text))
}

func TestSplitBubblesShortTextStaysWhole(t *testing.T) {
	text := "One sentence. And another!"
	assert.Equal(t, []string{text}, SplitBubbles(text))
}

func TestSplitBubblesSentencePairs(t *testing.T) {
	text := "One. Two! Three? Four. Five."
	assert.Equal(t, []string{
		"One. Two!",
		"Three? Four.",
		"Five.",
	}, SplitBubbles(text))
}

func TestSplitBubblesEmpty(t *testing.T) {
	assert.Nil(t, SplitBubbles(""))
	assert.Nil(t, SplitBubbles("   \n\n  "))
}

func TestSplitBubblesStripsCarriageReturns(t *testing.T) {
	text := "Alpha.\r\n\r\nBeta."
	assert.Equal(t, []string{"Alpha.", "Beta."}, SplitBubbles(text))
}

func TestSplitBubblesKeepsDecimalsTogether(t *testing.T) {
	// A period not followed by whitespace does not end a sentence.
	text := "Version 1.2 shipped today. Nothing broke. Everyone celebrated. It was quiet."
	bubbles := SplitBubbles(text)
	assert.Equal(t, []string{
		"Version 1.2 shipped today. Nothing broke.",
		"Everyone celebrated. It was quiet.",
	}, bubbles)
}

func TestExtractFinalResult(t *testing.T) {
	assert.Equal(t, "/tmp/x.txt",
		ExtractFinalResult("Done.\n\n<final_result>/tmp/x.txt</final_result>"))
	assert.Equal(t, "/tmp/x.txt",
		ExtractFinalResult("<FINAL_RESULT>\n  /tmp/x.txt\n</FINAL_RESULT>"))
	assert.Equal(t, "a b c",
		ExtractFinalResult("<final_result>  a\n b\tc </final_result>"))
	assert.Equal(t, "", ExtractFinalResult("no tags here"))
}

func TestCompactPreview(t *testing.T) {
	assert.Equal(t, "a b c", compactPreview("  a\n\nb\tc  ", 100))
	long := strings.Repeat("word ", 50)
	assert.Len(t, compactPreview(long, 60), 60)
}
