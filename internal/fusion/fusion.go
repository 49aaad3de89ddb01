// Package fusion reconciles the statistical and pattern extractors'
// outputs into one fused record per inquiry. Each of the six target
// fields has its own resolution rule and carries a method tag naming
// which extractor(s) produced it; the record's confidence score is the
// unweighted mean of the per-field method scores.
package fusion

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/config"
	"github.com/tripdesk/tripdesk/internal/model"
)

// nearDuplicateThreshold is the similarity ratio above which two
// values from different extractors are considered the same entity and
// merged, keeping the first occurrence's casing.
const nearDuplicateThreshold = 0.8

// Engine fuses extractor outputs. It is immutable after construction
// and safe for concurrent use.
type Engine struct {
	calendar  map[string]config.DateRange
	gazetteer map[string]struct{}
	schema    *tripSchema
	activity  []string
	hotel     []string
	meal      []string
	travelMin int
	travelMax int
	log       *zap.Logger
}

// New builds the fusion engine, compiling the strict output schema.
func New(cfg config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	schema, err := compileTripSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling trip schema: %w", err)
	}
	return &Engine{
		calendar:  cfg.CalendarPhrases,
		gazetteer: cfg.GazetteerSet(),
		schema:    schema,
		activity:  cfg.ActivityLexicon,
		hotel:     cfg.HotelKeywords,
		meal:      cfg.MealKeywords,
		travelMin: 1,
		travelMax: 50,
		log:       log,
	}, nil
}

// Fuse reconciles one inquiry's extractor outputs. cleanedText is the
// normalized text; it drives calendar-phrase detection. A panic
// anywhere inside resolution degrades to an all-NONE record with
// confidence zero instead of failing the inquiry.
func (e *Engine) Fuse(cleanedText string, stat model.EntitySet, pat model.PatternResult) (rec model.FusedRecord) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("fusion panic", zap.Any("panic", r))
			rec = model.FusedRecord{Methods: model.NoneMethods()}
		}
	}()

	names := resolveMerge(stat.Persons, pat.Names)
	dests := e.resolveDestinations(stat.Locations, pat.Destinations)
	dates := e.resolveDates(cleanedText, stat.Dates, pat.Dates)
	budget := resolveBudget(stat.Money, pat.Amounts)
	travelers := e.resolveTravelerCount(stat.Numbers, pat.TravelerCounts)
	contact := resolveContact(pat.Contact)

	rec = model.FusedRecord{
		CustomerName:        strings.Join(names.Values, ", "),
		Destination:         strings.Join(dests.Values, ", "),
		TravelDates:         strings.Join(dates.Values, "; "),
		Budget:              strings.Join(budget.Values, ", "),
		TravelersCount:      strings.Join(travelers.Values, ", "),
		ContactInfo:         strings.Join(contact.Values, ", "),
		SpecialRequirements: strings.Join(pat.Durations, ", "),
		Methods: model.MethodSet{
			Names:         names.Method,
			Destinations:  dests.Method,
			Dates:         dates.Method,
			Budget:        budget.Method,
			TravelerCount: travelers.Method,
			Contact:       contact.Method,
		},
	}
	rec.Confidence = confidence(rec.Methods)
	return rec
}

// confidence is the arithmetic mean of the six method scores.
func confidence(m model.MethodSet) float64 {
	var sum float64
	all := m.All()
	for _, method := range all {
		sum += method.Score()
	}
	return sum / float64(len(all))
}

// resolveMerge is the shared rule for names and destinations: union of
// both extractors with near-duplicate suppression. The method is
// COMBINED when both sides contributed, otherwise the single source.
func resolveMerge(statistical, pattern []string) model.FieldResolution {
	merged := mergeNearDuplicates(append(append([]string{}, statistical...), pattern...))
	switch {
	case len(merged) == 0:
		return model.FieldResolution{Method: model.MethodNone}
	case len(statistical) > 0 && len(pattern) > 0:
		return model.FieldResolution{Values: merged, Method: model.MethodCombined}
	case len(pattern) > 0:
		return model.FieldResolution{Values: merged, Method: model.MethodPattern}
	default:
		return model.FieldResolution{Values: merged, Method: model.MethodStatistical}
	}
}

// resolveDestinations filters statistical locations against the
// gazetteer before merging with pattern destinations. NER location
// spans outside the gazetteer are generic place noise and never reach
// the fused record; pattern destinations pass through unfiltered.
func (e *Engine) resolveDestinations(statistical, pattern []string) model.FieldResolution {
	known := make([]string, 0, len(statistical))
	for _, loc := range statistical {
		if _, ok := e.gazetteer[strings.ToLower(strings.TrimSpace(loc))]; ok {
			known = append(known, loc)
		}
	}
	return resolveMerge(known, pattern)
}

// resolveDates prefers validated pattern dates; statistical dates are
// the independently validated fallback. COMBINED happens only when
// pattern dates exist but all fail validation and statistical dates
// are also present: the two raw pools are concatenated and validated
// together. Calendar phrases in the text contribute their literal
// date ranges on the pattern side.
func (e *Engine) resolveDates(cleanedText string, statistical, pattern []string) model.FieldResolution {
	rawPat := append([]string{}, pattern...)
	if rng, ok := e.calendarRange(cleanedText); ok {
		rawPat = append(rawPat, rng)
	}

	if valid := validDates(rawPat); len(valid) > 0 {
		return model.FieldResolution{Values: valid, Method: model.MethodPattern}
	}
	if len(rawPat) > 0 && len(statistical) > 0 {
		joint := validDates(append(append([]string{}, rawPat...), statistical...))
		if len(joint) > 0 {
			return model.FieldResolution{
				Values: mergeNearDuplicates(joint),
				Method: model.MethodCombined,
			}
		}
	}
	if valid := validDates(statistical); len(valid) > 0 {
		return model.FieldResolution{Values: valid, Method: model.MethodStatistical}
	}
	return model.FieldResolution{Method: model.MethodNone}
}

func validDates(candidates []string) []string {
	var out []string
	for _, d := range candidates {
		if validDateShape(d) {
			out = append(out, d)
		}
	}
	return out
}

// calendarRange scans the text for a known calendar phrase and
// renders its literal range. The phrase table is closed; phrases are
// checked in sorted order so output never depends on map iteration.
func (e *Engine) calendarRange(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range sortedKeys(e.calendar) {
		if strings.Contains(lower, phrase) {
			rng := e.calendar[phrase]
			return rng.Start + " to " + rng.End, true
		}
	}
	return "", false
}

func sortedKeys(m map[string]config.DateRange) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolveBudget gives the pattern extractor unconditional precedence:
// its currency matches carry structure the statistical spans lack.
func resolveBudget(statistical []string, pattern []model.CurrencyAmount) model.FieldResolution {
	if len(pattern) > 0 {
		values := make([]string, 0, len(pattern))
		for _, a := range pattern {
			values = append(values, a.Raw)
		}
		return model.FieldResolution{Values: values, Method: model.MethodPattern}
	}
	if len(statistical) > 0 {
		return model.FieldResolution{Values: statistical, Method: model.MethodStatistical}
	}
	return model.FieldResolution{Method: model.MethodNone}
}

// resolveTravelerCount selects exactly one count: the first pattern
// value that parses as an in-range integer, then the first such
// statistical number. Parsing is re-checked here since the pattern
// table is config-overridable.
func (e *Engine) resolveTravelerCount(statistical, pattern []string) model.FieldResolution {
	if v, ok := e.firstInRange(pattern); ok {
		return model.FieldResolution{Values: []string{v}, Method: model.MethodPattern}
	}
	if v, ok := e.firstInRange(statistical); ok {
		return model.FieldResolution{Values: []string{v}, Method: model.MethodStatistical}
	}
	return model.FieldResolution{Method: model.MethodNone}
}

func (e *Engine) firstInRange(candidates []string) (string, bool) {
	for _, n := range candidates {
		v, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil && v >= e.travelMin && v <= e.travelMax {
			return strconv.Itoa(v), true
		}
	}
	return "", false
}

// resolveContact is pattern-only. Statistical spans never produce
// contact identifiers; a hallucinated phone number is worse than none.
func resolveContact(contact model.ContactInfo) model.FieldResolution {
	values := append(append([]string{}, contact.Emails...), contact.Phones...)
	if len(values) == 0 {
		return model.FieldResolution{Method: model.MethodNone}
	}
	return model.FieldResolution{Values: values, Method: model.MethodPattern}
}

// Date-shape validators for resolveDates. Shapes beyond these pass
// through unvalidated only if they parsed upstream, which they did not,
// so unknown shapes are rejected here.
var (
	dmyNumericRE = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{2,4})$`)
	dayMonthRE   = regexp.MustCompile(`(?i)^(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+)(?:\s+(\d{4}))?$`)
	monthDayRE   = regexp.MustCompile(`(?i)^([A-Za-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?$`)
	isoRangeRE   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}( to \d{4}-\d{2}-\d{2})?$`)
)

var monthPrefixes = []string{
	"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec",
}

// validDateShape checks that a candidate date span is calendar
// plausible: a real month word, day within 1..31. It does not check
// month length or leap years; the strict projection does that later
// when it actually parses.
func validDateShape(s string) bool {
	s = strings.TrimSpace(s)
	if isoRangeRE.MatchString(s) {
		return true
	}
	if m := dmyNumericRE.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return day >= 1 && day <= 31 && month >= 1 && month <= 12
	}
	if m := dayMonthRE.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		return day >= 1 && day <= 31 && isMonthWord(m[2])
	}
	if m := monthDayRE.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[2])
		return day >= 1 && day <= 31 && isMonthWord(m[1])
	}
	return false
}

func isMonthWord(w string) bool {
	w = strings.ToLower(w)
	for _, p := range monthPrefixes {
		if strings.HasPrefix(w, p) {
			return true
		}
	}
	return false
}

// parseDateValue turns a validated date span into a time.Time when the
// span carries enough information. Spans without a year assume the
// next occurrence from now.
func parseDateValue(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := dmyNumericRE.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		return t, t.Day() == day
	}
	if m := dayMonthRE.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := monthFromWord(m[2])
		if !ok {
			return time.Time{}, false
		}
		year := now.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if m[3] == "" && t.Before(now) {
			t = t.AddDate(1, 0, 0)
		}
		return t, t.Day() == day
	}
	if m := monthDayRE.FindStringSubmatch(s); m != nil {
		month, ok := monthFromWord(m[1])
		if !ok {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(m[2])
		t := time.Date(now.Year(), month, day, 0, 0, 0, 0, time.UTC)
		if t.Before(now) {
			t = t.AddDate(1, 0, 0)
		}
		return t, t.Day() == day
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func monthFromWord(w string) (time.Month, bool) {
	w = strings.ToLower(w)
	for i, p := range monthPrefixes {
		if strings.HasPrefix(w, p) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}
