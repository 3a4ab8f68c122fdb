// Package transcript cleans recognizer output before it reaches the user.
package transcript

import (
	"strings"
)

// DefaultRepetitionThreshold is the dominant-word ratio at or above which output is treated as noise.
const DefaultRepetitionThreshold = 0.8

// User-facing results for outcomes that carry no transcription.
const (
	NoSpeech           = "No speech detected"
	FilteredNoise      = "No clear speech detected (filtered noise)"
	FilteredRepetitive = "No clear speech detected (filtered repetitive output)"
	RecordingTooShort  = "Recording too short - need at least 2 seconds"
)

// Filter reasons, used as metric labels
const (
	ReasonEmpty       = "empty"
	ReasonSingleToken = "single_token"
	ReasonRepetitive  = "repetitive"
)

// Result is the outcome of filtering one transcription
type Result struct {
	Text     string // upper-cased trimmed text; empty when filtered
	Filtered bool
	Reason   string // set when Filtered
}

// Filter rejects degenerate recognizer output: blank text, a single word repeated,
// or text whose most frequent word makes up at least threshold of all words.
// Accepted text is trimmed and upper-cased.
func Filter(text string, threshold float64) Result {
	words := strings.Fields(text)
	if len(words) == 0 {
		return Result{Filtered: true, Reason: ReasonEmpty}
	}

	counts := make(map[string]int, len(words))
	top := 0
	for _, w := range words {
		counts[w]++
		if counts[w] > top {
			top = counts[w]
		}
	}

	if len(words) > 1 && len(counts) == 1 {
		return Result{Filtered: true, Reason: ReasonSingleToken}
	}

	// A lone word has ratio 1.0 and is dropped here
	if float64(top)/float64(len(words)) >= threshold {
		return Result{Filtered: true, Reason: ReasonRepetitive}
	}

	return Result{Text: strings.ToUpper(strings.TrimSpace(text))}
}
