// Package quality scores an extracted text layer so reports can flag text
// hashes that carry little signal (scanned pages, broken font encodings).
package quality

import (
	"math"
	"strings"
	"unicode"
)

type Decision struct {
	Score     float64
	Empty     bool
	Degraded  bool
	Reasons   []string
	WordCount int
}

func CountWords(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}

// Score rates text in [0,1]. minWords is the word count below which a text
// layer is treated as suspiciously thin.
func Score(text string, minWords int) Decision {
	clean := normalize(text)
	wc := CountWords(clean)

	total := float64(len([]rune(clean)))
	if total == 0 {
		return Decision{Empty: true, Degraded: true, Reasons: []string{"empty_text"}}
	}

	alphaRatio := safeDiv(float64(countIf(clean, unicode.IsLetter)), total)
	digitRatio := safeDiv(float64(countIf(clean, unicode.IsDigit)), total)
	garbageRatio := safeDiv(float64(countGarbage(clean)), total)
	scrambled := scrambledRatio(clean)

	score := 1.0
	reasons := []string{}

	if wc < minWords {
		penalty := 0.45
		if wc < minWords/2 {
			penalty = 0.60
		}
		score -= penalty
		reasons = append(reasons, "low_word_count")
	}

	if alphaRatio < 0.25 {
		penalty := 0.35
		if alphaRatio < 0.15 {
			penalty = 0.50
		}
		// forms and tables are digit heavy
		if digitRatio > 0.20 {
			penalty *= 0.6
		}
		score -= penalty
		reasons = append(reasons, "low_alpha_ratio")
	}

	// replacement characters mean the font had no usable ToUnicode map
	if garbageRatio > 0.01 {
		score -= math.Min(0.50, garbageRatio*50)
		reasons = append(reasons, "garbage_chars")
	}

	if scrambled > 0.30 {
		score -= 0.25
		reasons = append(reasons, "scrambled_text")
	}

	score = clamp(score, 0, 1)
	return Decision{
		Score:     score,
		Degraded:  score < 0.50,
		Reasons:   reasons,
		WordCount: wc,
	}
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// scrambledRatio is the share of single-rune words, typical of text laid
// out glyph by glyph.
func scrambledRatio(s string) float64 {
	words := strings.Fields(s)
	if len(words) == 0 {
		return 0
	}
	single := 0
	for _, w := range words {
		if len([]rune(w)) == 1 {
			single++
		}
	}
	return float64(single) / float64(len(words))
}

func countIf(s string, pred func(rune) bool) int {
	n := 0
	for _, r := range s {
		if pred(r) {
			n++
		}
	}
	return n
}

func countGarbage(s string) int {
	n := 0
	for _, r := range s {
		if r == '�' || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			n++
		}
	}
	return n
}

func safeDiv(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
