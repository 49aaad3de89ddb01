package textprep

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/config"
	"github.com/tripdesk/tripdesk/internal/model"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(config.Default().Limits, zap.NewNop())
}

func TestNormalizeShortText(t *testing.T) {
	n := newTestNormalizer()
	b := n.Normalize("too short")
	if b.Status != model.StatusTextTooShort {
		t.Fatalf("status = %v, want TEXT_TOO_SHORT", b.Status)
	}
	if b.CleanedText != "" {
		t.Errorf("cleaned text should be empty for short input, got %q", b.CleanedText)
	}
}

func TestNormalizeShortTextCountsRunes(t *testing.T) {
	n := newTestNormalizer()
	// 7 runes but 19 bytes; the minimum counts runes like truncation does.
	b := n.Normalize("गोवा घर")
	if b.Status != model.StatusTextTooShort {
		t.Fatalf("status = %v, want TEXT_TOO_SHORT for 7-rune input", b.Status)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	n := newTestNormalizer()
	b := n.Normalize("Trip  to   Goa\n\nfor   two people")
	if b.Status != model.StatusSuccess {
		t.Fatalf("status = %v, want SUCCESS", b.Status)
	}
	if b.CleanedText != "Trip to Goa for two people" {
		t.Errorf("cleaned = %q", b.CleanedText)
	}
}

func TestNormalizeTruncates(t *testing.T) {
	n := newTestNormalizer()
	long := strings.Repeat("a", 12000)
	b := n.Normalize(long)
	if !b.Truncated {
		t.Fatal("expected truncation flag")
	}
	if got := len([]rune(b.CleanedText)); got > 10000 {
		t.Errorf("cleaned length = %d, want <= 10000", got)
	}
}

func TestNERVariantAppendsTerminalPunctuation(t *testing.T) {
	n := newTestNormalizer()
	b := n.Normalize("Planning a honeymoon trip to Manali")
	if !strings.HasSuffix(b.NERText, ".") {
		t.Errorf("ner text = %q, want trailing period", b.NERText)
	}
	b = n.Normalize("Can you plan a trip to Kerala?")
	if strings.HasSuffix(b.NERText, "?.") {
		t.Errorf("ner text = %q, should not double punctuation", b.NERText)
	}
}

func TestRulesVariantNormalizesCurrency(t *testing.T) {
	n := newTestNormalizer()
	for _, in := range []string{
		"budget is ₹50,000 for the trip",
		"budget is Rs. 50,000 for the trip",
		"budget is rs 50,000 for the trip",
	} {
		b := n.Normalize(in)
		if !strings.Contains(b.RulesText, "Rs 50,000") {
			t.Errorf("rules text for %q = %q, want Rs 50,000", in, b.RulesText)
		}
	}
}

func TestRulesVariantTightensDateSlashes(t *testing.T) {
	n := newTestNormalizer()
	b := n.Normalize("travel on 25 / 12 / 2025 with family")
	if !strings.Contains(b.RulesText, "25/12/2025") {
		t.Errorf("rules text = %q, want 25/12/2025", b.RulesText)
	}
}

func TestRulesVariantNormalizesPhoneSeparators(t *testing.T) {
	n := newTestNormalizer()
	b := n.Normalize("call me at +91 - 9876543210 anytime")
	if !strings.Contains(b.RulesText, "+91 9876543210") {
		t.Errorf("rules text = %q, want single space after country code", b.RulesText)
	}
}

func TestDetectLanguages(t *testing.T) {
	cases := []struct {
		text string
		want model.Languages
	}{
		{"Planning a trip to Goa", model.Languages{English: true}},
		{"मुझे गोवा जाना है", model.Languages{Hindi: true}},
		{"Trip plan karna hai गोवा ke liye", model.Languages{English: true, Hindi: true, Hinglish: true}},
	}
	for _, tc := range cases {
		if got := DetectLanguages(tc.text); got != tc.want {
			t.Errorf("DetectLanguages(%q) = %+v, want %+v", tc.text, got, tc.want)
		}
	}
}

func TestTextStats(t *testing.T) {
	n := newTestNormalizer()
	b := n.Normalize("First sentence here. Second one! And a third?")
	if b.Stats.Sentences != 3 {
		t.Errorf("sentences = %d, want 3", b.Stats.Sentences)
	}
	if b.Stats.Words != 8 {
		t.Errorf("words = %d, want 8", b.Stats.Words)
	}
}
