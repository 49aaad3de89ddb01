// Package textprep prepares raw inquiry text for the two extraction
// strategies. One cleaned base yields two parallel variants: an
// NER-oriented one that preserves case and punctuation, and a
// rules-oriented one with normalized currency symbols and date
// separators so the regex table matches more reliably.
package textprep

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/tripdesk/tripdesk/internal/config"
	"github.com/tripdesk/tripdesk/internal/model"
)

// Bundle is the immutable output of normalizing one inquiry.
type Bundle struct {
	CleanedText string
	NERText     string
	RulesText   string
	Languages   model.Languages
	Stats       model.TextStats
	Truncated   bool
	Status      model.Status
	StatusError string
}

var (
	devanagariRE    = regexp.MustCompile(`[\x{0900}-\x{097F}]`)
	asciiWordRE     = regexp.MustCompile(`\b[a-zA-Z]+\b`)
	whitespaceRE    = regexp.MustCompile(`\s+`)
	rupeeSymbolRE   = regexp.MustCompile(`(?:₹|\b[Rr][Ss]\.?)\s*(\d)`)
	dateSlashRE     = regexp.MustCompile(`(\d)\s*/\s*(\d)`)
	phoneSepRE      = regexp.MustCompile(`(\+91)[-.\s]+(\d)`)
	sentenceSplitRE = regexp.MustCompile(`[.!?।]+`)
)

// Normalizer cleans and analyzes inquiry text. It holds only read-only
// configuration and is safe for concurrent use.
type Normalizer struct {
	minLen int
	maxLen int
	log    *zap.Logger
}

// NewNormalizer builds a normalizer from the configured text limits.
func NewNormalizer(cfg config.Limits, log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{minLen: cfg.MinTextLength, maxLen: cfg.MaxTextLength, log: log}
}

// Normalize produces the text bundle for one inquiry. Inputs shorter
// than the minimum yield a TEXT_TOO_SHORT bundle; any internal panic
// degrades to an ERROR bundle echoing the input. Normalize never
// panics out.
func (n *Normalizer) Normalize(raw string) (bundle Bundle) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("normalizer panic", zap.Any("panic", r))
			bundle = Bundle{
				CleanedText: raw,
				NERText:     raw,
				RulesText:   raw,
				Stats:       model.TextStats{Chars: len(raw)},
				Status:      model.StatusError,
				StatusError: "normalizer panic",
			}
		}
	}()

	// Length limits count runes, not bytes, like the truncation below.
	if len([]rune(strings.TrimSpace(raw))) < n.minLen {
		return Bundle{Status: model.StatusTextTooShort}
	}

	truncated := false
	if cut := truncateRunes(raw, n.maxLen); cut != raw {
		raw = cut
		truncated = true
		n.log.Warn("text truncated", zap.Int("max_chars", n.maxLen))
	}

	cleaned := cleanText(raw)

	return Bundle{
		CleanedText: cleaned,
		NERText:     forNER(cleaned),
		RulesText:   forRules(cleaned),
		Languages:   DetectLanguages(raw),
		Stats:       textStats(cleaned, raw),
		Truncated:   truncated,
		Status:      model.StatusSuccess,
	}
}

// DetectLanguages flags the scripts present in text. Hindi means any
// Devanagari codepoint, English means any ASCII alphabetic token, and
// Hinglish means both. The flags are independent, not a classification.
func DetectLanguages(text string) model.Languages {
	langs := model.Languages{
		Hindi:   devanagariRE.MatchString(text),
		English: asciiWordRE.MatchString(text),
	}
	langs.Hinglish = langs.Hindi && langs.English
	return langs
}

// cleanText applies Unicode NFKC normalization and collapses whitespace.
func cleanText(text string) string {
	text = norm.NFKC.String(text)
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// forNER keeps case and punctuation and guarantees terminal
// punctuation, which improves the model's sentence-boundary behavior.
func forNER(cleaned string) string {
	if cleaned == "" {
		return cleaned
	}
	if !strings.HasSuffix(cleaned, ".") && !strings.HasSuffix(cleaned, "!") && !strings.HasSuffix(cleaned, "?") {
		return cleaned + "."
	}
	return cleaned
}

// forRules normalizes currency symbols, date separators, and country
// code spacing so the pattern table sees a predictable shape.
func forRules(cleaned string) string {
	text := rupeeSymbolRE.ReplaceAllString(cleaned, "Rs $1")
	text = dateSlashRE.ReplaceAllString(text, "$1/$2")
	text = phoneSepRE.ReplaceAllString(text, "$1 $2")
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// textStats measures the cleaned text, except line count which only
// makes sense on the raw input since cleaning collapses newlines.
func textStats(text, raw string) model.TextStats {
	stats := model.TextStats{
		Chars: len([]rune(text)),
		Lines: strings.Count(strings.TrimRight(raw, "\n"), "\n") + 1,
	}
	if fields := strings.Fields(text); len(fields) > 0 {
		stats.Words = len(fields)
	}
	for _, s := range sentenceSplitRE.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			stats.Sentences++
		}
	}
	return stats
}

// truncateRunes cuts text to at most max runes without splitting one.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
