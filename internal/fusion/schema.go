package fusion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tripdesk/tripdesk/internal/model"
)

// tripSchemaJSON is the strict output contract for structured trip
// records. additionalProperties is false on purpose: a field the
// schema does not know is a bug upstream, never something to pass
// through silently.
const tripSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["num_travelers", "destinations"],
  "properties": {
    "num_travelers":     {"type": "integer", "minimum": 0, "maximum": 50},
    "num_adults":        {"type": "integer", "minimum": 0, "maximum": 50},
    "num_children":      {"type": "integer", "minimum": 0, "maximum": 50},
    "destinations":      {"type": "array", "items": {"type": "string", "minLength": 1}},
    "start_date":        {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "end_date":          {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "duration_nights":   {"type": "integer", "minimum": 0, "maximum": 365},
    "hotel_preferences": {"type": "string"},
    "meal_preferences":  {"type": "string"},
    "activities":        {"type": "array", "items": {"type": "string"}},
    "needs_flight":      {"type": "boolean"},
    "needs_visa":        {"type": "boolean"},
    "budget":            {"type": "string"},
    "special_requests":  {"type": "string"},
    "deadline":          {"type": "string"},
    "customer_name":     {"type": "string"},
    "contact_info":      {"type": "string"},
    "file_name":         {"type": "string"}
  }
}`

type tripSchema struct {
	compiled *gojsonschema.Schema
}

func compileTripSchema() (*tripSchema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(tripSchemaJSON))
	if err != nil {
		return nil, err
	}
	return &tripSchema{compiled: schema}, nil
}

// validate checks a trip record against the strict schema and returns
// a joined message of every violation.
func (s *tripSchema) validate(rec *model.TripRecord) error {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(rec))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			errs[i] = e.String()
		}
		return fmt.Errorf("schema violations: %s", strings.Join(errs, "; "))
	}
	return nil
}

var (
	childrenRE = regexp.MustCompile(`(?i)\b(\d+)\s*(?:kids?|children|child)\b`)
	nightsRE   = regexp.MustCompile(`(?i)\b(\d+)\s*(days?|nights?|weeks?)\b`)
	deadlineRE = regexp.MustCompile(`(?i)\b(?:reply|respond|confirm|book)\s+(?:by|before)\s+([A-Za-z0-9 /,-]{3,30})`)
)

// requestKeywords flag trip qualities worth carrying into the
// special-requests field of the strict projection verbatim.
var requestKeywords = []string{
	"honeymoon", "anniversary", "vegetarian", "veg meals", "jain food",
	"wheelchair", "senior citizen", "kids friendly", "visa", "flight",
	"water villa", "luxury", "budget friendly", "adventure",
}

// specialRequests combines requirement keywords found in the text with
// the fused duration phrases.
func specialRequests(lower, fusedRequirements string) string {
	var out []string
	for _, kw := range requestKeywords {
		if strings.Contains(lower, kw) {
			out = append(out, kw)
		}
	}
	if fusedRequirements != "" {
		out = append(out, fusedRequirements)
	}
	return strings.Join(out, "; ")
}

// ValidateAndFormat projects a fused record onto the strict trip
// schema. It parses counts and dates, scans the text for activity,
// hotel, and meal vocabulary, and validates the result. Validation
// failure returns the error alongside a nil record; the caller keeps
// the fused record and marks the result schema-invalid.
func (e *Engine) ValidateAndFormat(sourceID, cleanedText string, fused model.FusedRecord) (*model.TripRecord, error) {
	lower := strings.ToLower(cleanedText)
	rec := &model.TripRecord{
		SourceID:        sourceID,
		CustomerName:    fused.CustomerName,
		ContactInfo:     fused.ContactInfo,
		Budget:          fused.Budget,
		SpecialRequests: specialRequests(lower, fused.SpecialRequirements),
		Destinations:    splitList(fused.Destination),
		Activities:      e.scanAll(cleanedText, e.activity),
	}

	if fused.TravelersCount != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(strings.Split(fused.TravelersCount, ",")[0])); err == nil {
			rec.NumTravelers = n
		}
	}
	if m := childrenRE.FindStringSubmatch(cleanedText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n <= rec.NumTravelers {
			rec.NumChildren = n
		}
	}
	rec.NumAdults = rec.NumTravelers - rec.NumChildren

	rec.DurationNights = durationNights(cleanedText)

	if start, end, ok := e.dateWindow(cleanedText, fused.TravelDates); ok {
		rec.StartDate = start
		rec.EndDate = end
	}

	if kw := e.scanFirst(lower, e.hotel); kw != "" {
		rec.HotelPreference = kw
	}
	if kw := e.scanFirst(lower, e.meal); kw != "" {
		rec.MealPreference = kw
	}
	if strings.Contains(lower, "flight") {
		rec.NeedsFlight = boolPtr(true)
	}
	if strings.Contains(lower, "visa") {
		rec.NeedsVisa = boolPtr(true)
	}
	if m := deadlineRE.FindStringSubmatch(cleanedText); m != nil {
		rec.Deadline = strings.TrimSpace(m[1])
	}

	if rec.Destinations == nil {
		rec.Destinations = []string{}
	}
	if rec.Activities == nil {
		rec.Activities = []string{}
	}

	if err := e.schema.validate(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// dateWindow derives a start/end pair from the fused dates. A literal
// ISO range wins; otherwise the first parseable date starts the window
// and the extracted duration, if any, ends it.
func (e *Engine) dateWindow(cleanedText, travelDates string) (string, string, bool) {
	if rng, ok := e.calendarRange(cleanedText); ok {
		parts := strings.SplitN(rng, " to ", 2)
		return parts[0], parts[1], true
	}

	now := time.Now().UTC()
	for _, candidate := range strings.Split(travelDates, ";") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if parts := strings.SplitN(candidate, " to ", 2); len(parts) == 2 && isoRangeRE.MatchString(candidate) {
			return parts[0], parts[1], true
		}
		start, ok := parseDateValue(candidate, now)
		if !ok {
			continue
		}
		end := start
		if nights := durationNights(cleanedText); nights > 0 {
			end = start.AddDate(0, 0, nights)
		}
		return start.Format("2006-01-02"), end.Format("2006-01-02"), true
	}
	return "", "", false
}

// durationNights converts an extracted duration to nights: N nights
// stays N, N days becomes N-1, N weeks becomes 7N-1.
func durationNights(text string) int {
	m := nightsRE.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	switch {
	case strings.HasPrefix(strings.ToLower(m[2]), "night"):
		return n
	case strings.HasPrefix(strings.ToLower(m[2]), "week"):
		return 7*n - 1
	default:
		return n - 1
	}
}

// scanAll returns every vocabulary entry present in the text, in
// vocabulary order.
func (e *Engine) scanAll(text string, vocab []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, v := range vocab {
		if strings.Contains(lower, strings.ToLower(v)) {
			out = append(out, v)
		}
	}
	return out
}

// scanFirst returns the first vocabulary entry present in the text.
func (e *Engine) scanFirst(lower string, vocab []string) string {
	for _, v := range vocab {
		if strings.Contains(lower, strings.ToLower(v)) {
			return v
		}
	}
	return ""
}

func splitList(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
