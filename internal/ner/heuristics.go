package ner

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tripdesk/tripdesk/internal/model"
)

// Heuristic patterns for the degraded path: honorific-prefixed names,
// adjacent capitalized word pairs, date-looking spans, money-looking
// spans, and standalone small integers.
var (
	honorificRE = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Shri|Smt)\.?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	titlePairRE = regexp.MustCompile(`\b([A-Z][a-z]+\s+[A-Z][a-z]+)\b`)
	dateLikeRE  = regexp.MustCompile(`(?i)\b(?:\d{1,2}(?:st|nd|rd|th)?\s+)?(?:january|february|march|april|may|june|july|august|september|october|november|december)\b(?:\s+\d{4})?`)
	moneyLikeRE = regexp.MustCompile(`(?i)(?:rs\.?|inr|₹|\$|usd)\s*[\d,]+(?:\.\d+)?`)
	integerRE   = regexp.MustCompile(`\b\d{1,3}\b`)
)

// pairStoplist drops capitalized pairs that are sentence starts or
// common phrases rather than person names.
var pairStoplist = map[string]struct{}{
	"new delhi": {}, "sri lanka": {}, "best regards": {}, "thank you": {},
	"new year": {}, "next month": {}, "trip advisor": {},
}

// heuristics approximates the model output with regexes. It runs only
// when the model path is unavailable, keeping the statistical channel
// populated enough for fusion fallbacks to work.
func (e *Extractor) heuristics(text string) model.EntitySet {
	var set model.EntitySet

	for _, m := range honorificRE.FindAllStringSubmatch(text, -1) {
		set.Persons = appendUnique(set.Persons, titleCase(m[1]))
	}
	for _, m := range titlePairRE.FindAllString(text, -1) {
		lower := strings.ToLower(m)
		if _, stop := pairStoplist[lower]; stop {
			continue
		}
		if _, place := e.gazetteer[lower]; place {
			continue
		}
		set.Persons = appendUnique(set.Persons, titleCase(m))
	}
	for _, m := range dateLikeRE.FindAllString(text, -1) {
		set.Dates = appendUnique(set.Dates, strings.TrimSpace(m))
	}
	for _, m := range moneyLikeRE.FindAllString(text, -1) {
		set.Money = appendUnique(set.Money, strings.TrimSpace(m))
	}
	for _, m := range integerRE.FindAllString(text, -1) {
		set.Numbers = appendUnique(set.Numbers, m)
	}
	return set
}

// sortedGazetteer returns the gazetteer entries in stable order so
// extraction output is deterministic run to run.
func sortedGazetteer(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// gazMatcher pairs a gazetteer term with its word-boundary matcher.
// Matching rune-wise through the regexp keeps the returned occurrence
// aligned with the original text; byte indexes computed on a
// case-folded copy do not survive folds that change rune width.
type gazMatcher struct {
	term string
	re   *regexp.Regexp
}

// compileGazetteer builds case-insensitive word-boundary matchers for
// every gazetteer entry, in sorted term order.
func compileGazetteer(set map[string]struct{}) []gazMatcher {
	out := make([]gazMatcher, 0, len(set))
	for _, term := range sortedGazetteer(set) {
		out = append(out, gazMatcher{
			term: term,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
		})
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
