package fusion

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/config"
	"github.com/tripdesk/tripdesk/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.Default(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestResolveNamesMergesNearDuplicates(t *testing.T) {
	res := resolveMerge([]string{"Raj Kumar"}, []string{"raj kumar"})
	if len(res.Values) != 1 {
		t.Fatalf("values = %v, want single merged name", res.Values)
	}
	if res.Values[0] != "Raj Kumar" {
		t.Errorf("merged = %q, want first occurrence kept", res.Values[0])
	}
	if res.Method != model.MethodCombined {
		t.Errorf("method = %v, want COMBINED", res.Method)
	}
}

func TestResolveMergeMethodTags(t *testing.T) {
	if m := resolveMerge(nil, []string{"Goa"}).Method; m != model.MethodPattern {
		t.Errorf("pattern-only method = %v", m)
	}
	if m := resolveMerge([]string{"Goa"}, nil).Method; m != model.MethodStatistical {
		t.Errorf("statistical-only method = %v", m)
	}
	if m := resolveMerge(nil, nil).Method; m != model.MethodNone {
		t.Errorf("empty method = %v", m)
	}
}

func TestResolveBudgetPatternPrecedence(t *testing.T) {
	res := resolveBudget([]string{"a lot of money"}, []model.CurrencyAmount{
		{Raw: "Rs 50,000", Currency: "INR", Normalized: 50000},
	})
	if res.Method != model.MethodPattern {
		t.Errorf("method = %v, want PATTERN despite statistical money", res.Method)
	}
	if res.Values[0] != "Rs 50,000" {
		t.Errorf("values = %v", res.Values)
	}

	res = resolveBudget([]string{"around 60k"}, nil)
	if res.Method != model.MethodStatistical {
		t.Errorf("fallback method = %v, want STATISTICAL", res.Method)
	}
}

func TestResolveContactIsPatternOnly(t *testing.T) {
	res := resolveContact(model.ContactInfo{Emails: []string{"a@b.com"}, Phones: []string{"9876543210"}})
	if res.Method != model.MethodPattern {
		t.Errorf("method = %v, want PATTERN", res.Method)
	}
	if len(res.Values) != 2 {
		t.Errorf("values = %v", res.Values)
	}
	if m := resolveContact(model.ContactInfo{}).Method; m != model.MethodNone {
		t.Errorf("empty contact method = %v", m)
	}
}

func TestResolveTravelerCountSelectsFirst(t *testing.T) {
	e := newTestEngine(t)

	// Multiple pattern matches resolve to exactly one count, the
	// first that parses in range.
	res := e.resolveTravelerCount(nil, []string{"2", "4"})
	if res.Method != model.MethodPattern {
		t.Errorf("method = %v, want PATTERN", res.Method)
	}
	if len(res.Values) != 1 || res.Values[0] != "2" {
		t.Errorf("values = %v, want single count 2", res.Values)
	}

	// Pattern values are re-parsed here, not trusted from upstream.
	res = e.resolveTravelerCount(nil, []string{"many", "75", "3"})
	if res.Method != model.MethodPattern || res.Values[0] != "3" {
		t.Errorf("resolution = %+v, want pattern 3", res)
	}
}

func TestResolveTravelerCountFallback(t *testing.T) {
	e := newTestEngine(t)

	// Out-of-range statistical numbers are skipped, in-range accepted.
	res := e.resolveTravelerCount([]string{"75", "4"}, nil)
	if res.Method != model.MethodStatistical || res.Values[0] != "4" {
		t.Errorf("resolution = %+v, want statistical 4", res)
	}

	res = e.resolveTravelerCount([]string{"75"}, nil)
	if res.Method != model.MethodNone {
		t.Errorf("method = %v, want NONE for out-of-range only", res.Method)
	}
}

func TestResolveDatesValidationAndCombination(t *testing.T) {
	e := newTestEngine(t)

	res := e.resolveDates("", []string{"sometime nice"}, []string{"25th February 2026", "99/99/9999"})
	if res.Method != model.MethodPattern {
		t.Errorf("method = %v, want PATTERN", res.Method)
	}
	if len(res.Values) != 1 || res.Values[0] != "25th February 2026" {
		t.Errorf("values = %v, want only the valid shape", res.Values)
	}

	// Valid pattern dates win outright even when statistical dates
	// would also validate.
	res = e.resolveDates("", []string{"14 March 2026"}, []string{"25th February 2026"})
	if res.Method != model.MethodPattern {
		t.Errorf("method = %v, want PATTERN when pattern dates validate", res.Method)
	}

	// Pattern dates that all fail validation pull in the statistical
	// pool for a joint pass.
	res = e.resolveDates("", []string{"14 March 2026"}, []string{"99/99/9999"})
	if res.Method != model.MethodCombined {
		t.Errorf("method = %v, want COMBINED for invalid pattern plus valid statistical", res.Method)
	}
	if len(res.Values) != 1 || res.Values[0] != "14 March 2026" {
		t.Errorf("values = %v, want the surviving statistical date", res.Values)
	}

	res = e.resolveDates("", []string{"14 March 2026"}, nil)
	if res.Method != model.MethodStatistical {
		t.Errorf("method = %v, want STATISTICAL fallback", res.Method)
	}

	res = e.resolveDates("", []string{"whenever"}, []string{"99/99/9999"})
	if res.Method != model.MethodNone {
		t.Errorf("method = %v, want NONE when nothing validates", res.Method)
	}
}

func TestResolveDestinationsGazetteerFilter(t *testing.T) {
	e := newTestEngine(t)

	// Statistical locations outside the gazetteer are noise and never
	// reach the fused record; pattern destinations pass unfiltered.
	res := e.resolveDestinations([]string{"Mountainville", "Manali"}, []string{"Goa"})
	if res.Method != model.MethodCombined {
		t.Errorf("method = %v, want COMBINED", res.Method)
	}
	for _, v := range res.Values {
		if v == "Mountainville" {
			t.Errorf("values = %v, gazetteer miss should be dropped", res.Values)
		}
	}

	res = e.resolveDestinations([]string{"Mountainville"}, []string{"Goa"})
	if res.Method != model.MethodPattern {
		t.Errorf("method = %v, want PATTERN once all statistical locations filtered", res.Method)
	}
}

func TestCalendarPhraseContributesRange(t *testing.T) {
	e := newTestEngine(t)
	res := e.resolveDates("travel in the second week of november", nil, nil)
	if res.Method != model.MethodPattern {
		t.Fatalf("method = %v, want PATTERN", res.Method)
	}
	if res.Values[0] != "2025-11-10 to 2025-11-16" {
		t.Errorf("values = %v", res.Values)
	}
}

func TestConfidenceBounds(t *testing.T) {
	allNone := model.MethodSet{
		Names: model.MethodNone, Destinations: model.MethodNone,
		Dates: model.MethodNone, Budget: model.MethodNone,
		TravelerCount: model.MethodNone, Contact: model.MethodNone,
	}
	if c := confidence(allNone); c != 0 {
		t.Errorf("all-NONE confidence = %v, want 0", c)
	}

	allCombined := model.MethodSet{
		Names: model.MethodCombined, Destinations: model.MethodCombined,
		Dates: model.MethodCombined, Budget: model.MethodCombined,
		TravelerCount: model.MethodCombined, Contact: model.MethodCombined,
	}
	if c := confidence(allCombined); c != 1 {
		t.Errorf("all-COMBINED confidence = %v, want 1", c)
	}
}

func TestFuseEndToEnd(t *testing.T) {
	e := newTestEngine(t)

	stat := model.EntitySet{
		Persons:   []string{"Amit Gupta"},
		Locations: []string{"Manali"},
	}
	pat := model.PatternResult{
		Names:        []string{"Amit Gupta"},
		Destinations: []string{"Manali"},
		Dates:        []string{"25th February"},
		Amounts:      []model.CurrencyAmount{{Raw: "75,000 INR", Currency: "INR", Normalized: 75000}},
		Contact:      model.ContactInfo{Emails: []string{"amit.gupta@gmail.com"}},
		Durations:    []string{"7 days"},
	}

	rec := e.Fuse("honeymoon trip to Manali for 7 days", stat, pat)
	if !strings.Contains(rec.CustomerName, "Amit Gupta") {
		t.Errorf("customer_name = %q", rec.CustomerName)
	}
	if !strings.Contains(rec.Destination, "Manali") {
		t.Errorf("destination = %q", rec.Destination)
	}
	if !strings.Contains(rec.ContactInfo, "amit.gupta@gmail.com") {
		t.Errorf("contact = %q", rec.ContactInfo)
	}
	if !strings.Contains(rec.Budget, "75,000") {
		t.Errorf("budget = %q", rec.Budget)
	}
	if rec.Methods.Budget != model.MethodPattern {
		t.Errorf("budget method = %v, want PATTERN", rec.Methods.Budget)
	}
	if rec.Confidence <= 0 || rec.Confidence > 1 {
		t.Errorf("confidence = %v, want in (0,1]", rec.Confidence)
	}
	if rec.SpecialRequirements != "7 days" {
		t.Errorf("special requirements = %q, want the duration phrase", rec.SpecialRequirements)
	}
}

func TestFuseIdempotent(t *testing.T) {
	e := newTestEngine(t)
	stat := model.EntitySet{Persons: []string{"Raj Kumar"}, Locations: []string{"Goa"}}
	pat := model.PatternResult{Names: []string{"raj kumar"}, Destinations: []string{"Goa"}}

	a := e.Fuse("trip to Goa", stat, pat)
	b := e.Fuse("trip to Goa", stat, pat)
	if a != b {
		t.Errorf("fusion not deterministic:\n  %+v\n  %+v", a, b)
	}
}

func TestSimilarity(t *testing.T) {
	if s := similarity("Raj Kumar", "raj kumar"); s != 1 {
		t.Errorf("case-insensitive identical similarity = %v, want 1", s)
	}
	if s := similarity("Goa", "Kerala"); s > nearDuplicateThreshold {
		t.Errorf("unrelated similarity = %v, should be below threshold", s)
	}
	if s := similarity("", "Goa"); s != 0 {
		t.Errorf("empty similarity = %v, want 0", s)
	}
}

func TestValidateAndFormat(t *testing.T) {
	e := newTestEngine(t)
	fused := model.FusedRecord{
		CustomerName:   "Amit Gupta",
		Destination:    "Manali",
		TravelDates:    "25th February 2026",
		Budget:         "75,000 INR",
		TravelersCount: "2",
		ContactInfo:    "amit.gupta@gmail.com",
	}

	rec, err := e.ValidateAndFormat("inquiry_1.txt", "honeymoon trip to Manali for 7 days, need flight tickets", fused)
	if err != nil {
		t.Fatalf("ValidateAndFormat: %v", err)
	}
	if rec.NumTravelers != 2 || rec.NumAdults != 2 || rec.NumChildren != 0 {
		t.Errorf("counts = %d/%d/%d", rec.NumTravelers, rec.NumAdults, rec.NumChildren)
	}
	if rec.DurationNights != 6 {
		t.Errorf("duration_nights = %d, want 6 for 7 days", rec.DurationNights)
	}
	if rec.StartDate != "2026-02-25" || rec.EndDate != "2026-03-03" {
		t.Errorf("window = %s..%s", rec.StartDate, rec.EndDate)
	}
	if rec.NeedsFlight == nil || !*rec.NeedsFlight {
		t.Error("needs_flight should be true")
	}
	if len(rec.Destinations) != 1 || rec.Destinations[0] != "Manali" {
		t.Errorf("destinations = %v", rec.Destinations)
	}
	if !strings.Contains(rec.SpecialRequests, "honeymoon") {
		t.Errorf("special_requests = %q, want keyword carried over", rec.SpecialRequests)
	}
}

func TestValidateAndFormatRejectsOutOfSchema(t *testing.T) {
	e := newTestEngine(t)
	fused := model.FusedRecord{TravelersCount: "500", Destination: "Goa"}
	if _, err := e.ValidateAndFormat("x.txt", "big group trip", fused); err == nil {
		t.Fatal("expected schema violation for 500 travelers")
	}
}

func TestDurationNights(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"a 7 days trip", 6},
		{"6 nights in Bali", 6},
		{"2 weeks off", 13},
		{"no duration here", 0},
	}
	for _, tc := range cases {
		if got := durationNights(tc.text); got != tc.want {
			t.Errorf("durationNights(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
