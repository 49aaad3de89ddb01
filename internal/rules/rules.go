// Package rules implements the deterministic pattern extractor. It
// runs a compiled regex table over the rules-oriented text variant and
// returns categorized matches: names, destinations, dates, currency
// amounts, traveler counts, durations, and contact identifiers.
//
// Each category extracts in isolation. A panic inside one category is
// contained there; the other categories still run and the result is
// flagged degraded instead of failing the inquiry.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/config"
	"github.com/tripdesk/tripdesk/internal/model"
)

// Traveler counts outside this range are treated as non-matches, not
// errors. Group bookings above it go through a human anyway.
const (
	minTravelers = 1
	maxTravelers = 50
)

// Extractor holds the compiled pattern table. It is immutable after
// construction and safe for concurrent use.
type Extractor struct {
	email         *regexp.Regexp
	phone         *regexp.Regexp
	currencyINR   *regexp.Regexp
	currencyUSD   *regexp.Regexp
	travelerCount *regexp.Regexp
	duration      *regexp.Regexp
	dateShapes    []*regexp.Regexp
	destinations  []*regexp.Regexp
	names         []*regexp.Regexp
	gazetteer     []gazEntry
	log           *zap.Logger
}

// gazEntry pairs a canonical destination name with its word-boundary
// matcher so multi-word entries like "sri lanka" match whole phrases.
type gazEntry struct {
	name string
	re   *regexp.Regexp
}

// destinationStoplist drops syntax-pattern captures that are
// capitalized but clearly not places.
var destinationStoplist = map[string]struct{}{
	"india": {}, "me": {}, "us": {}, "we": {}, "the": {}, "my": {},
}

// New compiles the pattern table from configuration. A pattern that
// fails to compile is a configuration error, not a runtime condition.
func New(cfg config.Config, log *zap.Logger) (*Extractor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Extractor{log: log}

	var err error
	if e.email, err = compile("email", cfg.Patterns.Email); err != nil {
		return nil, err
	}
	if e.phone, err = compile("phone", cfg.Patterns.Phone); err != nil {
		return nil, err
	}
	if e.currencyINR, err = compile("currency_inr", cfg.Patterns.CurrencyINR); err != nil {
		return nil, err
	}
	if e.currencyUSD, err = compile("currency_usd", cfg.Patterns.CurrencyUSD); err != nil {
		return nil, err
	}
	if e.travelerCount, err = compile("traveler_count", cfg.Patterns.TravelerCount); err != nil {
		return nil, err
	}
	if e.duration, err = compile("duration", cfg.Patterns.Duration); err != nil {
		return nil, err
	}
	if e.dateShapes, err = compileAll("date_shapes", cfg.Patterns.DateShapes); err != nil {
		return nil, err
	}
	if e.destinations, err = compileAll("destination_syntax", cfg.Patterns.DestinationSyntax); err != nil {
		return nil, err
	}
	if e.names, err = compileAll("name_syntax", cfg.Patterns.NameSyntax); err != nil {
		return nil, err
	}

	for _, d := range cfg.Gazetteer {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(d) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compiling gazetteer entry %q: %w", d, err)
		}
		e.gazetteer = append(e.gazetteer, gazEntry{name: d, re: re})
	}

	return e, nil
}

func compile(name, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling %s pattern: %w", name, err)
	}
	return re, nil
}

func compileAll(name string, patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling %s[%d]: %w", name, i, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// Extract runs every category over text. It never panics; a category
// that does is logged, left empty, and flags the result degraded.
func (e *Extractor) Extract(text string) model.PatternResult {
	var res model.PatternResult

	categories := []struct {
		name string
		run  func()
	}{
		{"names", func() { res.Names = e.extractNames(text) }},
		{"destinations", func() { res.Destinations = e.extractDestinations(text) }},
		{"dates", func() { res.Dates = e.extractDates(text) }},
		{"amounts", func() { res.Amounts = e.extractAmounts(text) }},
		{"traveler_counts", func() { res.TravelerCounts = e.extractTravelerCounts(text) }},
		{"durations", func() { res.Durations = e.extractDurations(text) }},
		{"contact", func() { res.Contact = e.extractContact(text) }},
	}
	for _, c := range categories {
		if !e.safely(c.name, c.run) {
			res.Degraded = true
		}
	}

	return res
}

// safely runs one category extractor and reports whether it completed.
func (e *Extractor) safely(category string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("pattern category panic",
				zap.String("category", category),
				zap.Any("panic", r))
			ok = false
		}
	}()
	fn()
	return true
}

func (e *Extractor) extractNames(text string) []string {
	var out []string
	for _, re := range e.names {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) > 1 && m[1] != "" {
				out = append(out, titleCase(m[1]))
			}
		}
	}
	return dedup(out)
}

func (e *Extractor) extractDestinations(text string) []string {
	var out []string
	for _, g := range e.gazetteer {
		if g.re.MatchString(text) {
			out = append(out, titleCase(g.name))
		}
	}
	for _, re := range e.destinations {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 || m[1] == "" {
				continue
			}
			if _, stop := destinationStoplist[strings.ToLower(m[1])]; stop {
				continue
			}
			out = append(out, titleCase(m[1]))
		}
	}
	return dedup(out)
}

func (e *Extractor) extractDates(text string) []string {
	var out []string
	for _, re := range e.dateShapes {
		out = append(out, re.FindAllString(text, -1)...)
	}
	return dedup(out)
}

func (e *Extractor) extractAmounts(text string) []model.CurrencyAmount {
	var out []model.CurrencyAmount
	seen := make(map[string]struct{})
	add := func(raw, currency string) {
		raw = strings.TrimSpace(raw)
		if _, dup := seen[raw]; dup {
			return
		}
		seen[raw] = struct{}{}
		out = append(out, model.CurrencyAmount{
			Raw:        raw,
			Currency:   currency,
			Normalized: normalizeAmount(raw),
		})
	}
	for _, m := range e.currencyINR.FindAllString(text, -1) {
		add(m, "INR")
	}
	for _, m := range e.currencyUSD.FindAllString(text, -1) {
		add(m, "USD")
	}
	return out
}

func (e *Extractor) extractTravelerCounts(text string) []string {
	var out []string
	for _, m := range e.travelerCount.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < minTravelers || n > maxTravelers {
			continue
		}
		out = append(out, m[1])
	}
	return dedup(out)
}

func (e *Extractor) extractDurations(text string) []string {
	var out []string
	for _, m := range e.duration.FindAllString(text, -1) {
		out = append(out, strings.ToLower(strings.TrimSpace(m)))
	}
	return dedup(out)
}

func (e *Extractor) extractContact(text string) model.ContactInfo {
	var phones []string
	for _, m := range e.phone.FindAllString(text, -1) {
		phones = append(phones, cleanPhone(m))
	}
	return model.ContactInfo{
		Emails: dedup(e.email.FindAllString(text, -1)),
		Phones: dedup(phones),
	}
}

// cleanPhone strips separators from a phone match, keeping only
// digits and '+'.
func cleanPhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeAmount parses the digits out of a raw currency match.
// Unparseable digits fall back to 0 rather than dropping the match;
// the raw string still carries the information downstream.
func normalizeAmount(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// titleCase uppercases the first letter of each word, leaving the
// rest lowercase. Good enough for names and place names.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// dedup removes exact duplicates preserving first-occurrence order.
func dedup(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
