// Package model defines the shared data types that flow through the
// tripdesk extraction pipeline: entity sets from the two extractors,
// per-field resolutions with provenance, the fused record, and the
// per-inquiry processing result envelope.
package model

import "time"

// Status is the closed set of terminal states for one inquiry.
type Status string

const (
	StatusSuccess      Status = "SUCCESS"
	StatusEmptyFile    Status = "EMPTY_FILE"
	StatusTextTooShort Status = "TEXT_TOO_SHORT"
	StatusError        Status = "ERROR"
)

// Method tags which extractor(s) produced a resolved field.
type Method string

const (
	MethodStatistical Method = "STATISTICAL"
	MethodPattern     Method = "PATTERN"
	MethodCombined    Method = "COMBINED"
	MethodNone        Method = "NONE"
)

// Score returns the confidence contribution of a method tag.
func (m Method) Score() float64 {
	switch m {
	case MethodCombined:
		return 1.0
	case MethodPattern:
		return 0.8
	case MethodStatistical:
		return 0.7
	default:
		return 0.0
	}
}

// Languages flags which scripts were detected in an inquiry.
// The flags are not mutually exclusive: Hinglish means both.
type Languages struct {
	English  bool `json:"english"`
	Hindi    bool `json:"hindi"`
	Hinglish bool `json:"hinglish"`
}

// TextStats holds basic size statistics for normalized text.
type TextStats struct {
	Chars     int `json:"char_count"`
	Words     int `json:"word_count"`
	Sentences int `json:"sentence_count"`
	Lines     int `json:"line_count"`
}

// EntitySet is the categorized output of the statistical extractor.
// Each category is a deduplicated set; ordering carries no meaning.
type EntitySet struct {
	Persons       []string `json:"persons"`
	Locations     []string `json:"locations"`
	Dates         []string `json:"dates"`
	Money         []string `json:"money"`
	Numbers       []string `json:"numbers"`
	Organizations []string `json:"organizations"`
	Miscellaneous []string `json:"miscellaneous"`
}

// CurrencyAmount is one monetary match from the pattern extractor.
// Normalized is best effort and falls back to 0 when the digits
// cannot be parsed.
type CurrencyAmount struct {
	Raw        string  `json:"amount"`
	Currency   string  `json:"currency"`
	Normalized float64 `json:"normalized"`
}

// ContactInfo groups contact identifiers found by the pattern extractor.
type ContactInfo struct {
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
}

// PatternResult is the categorized output of the pattern extractor.
// Degraded is set when the extractor as a whole failed and the
// categories are empty for that reason rather than by absence.
type PatternResult struct {
	Names          []string         `json:"names"`
	Destinations   []string         `json:"destinations"`
	Dates          []string         `json:"dates"`
	Amounts        []CurrencyAmount `json:"currency_amounts"`
	TravelerCounts []string         `json:"traveler_counts"`
	Durations      []string         `json:"durations"`
	Contact        ContactInfo      `json:"contact_info"`
	Degraded       bool             `json:"degraded,omitempty"`
}

// FieldResolution carries one resolved field value with provenance.
// Invariant: Method == MethodNone exactly when the value is empty.
type FieldResolution struct {
	Values []string `json:"values"`
	Method Method   `json:"method"`
}

// Empty reports whether the resolution carries no value.
func (f FieldResolution) Empty() bool {
	return len(f.Values) == 0
}

// MethodSet records the provenance tag of every fused field.
type MethodSet struct {
	Names         Method `json:"names"`
	Destinations  Method `json:"destinations"`
	Dates         Method `json:"dates"`
	Budget        Method `json:"budget"`
	TravelerCount Method `json:"travelers_count"`
	Contact       Method `json:"contact_info"`
}

// All returns the six method tags in field order.
func (m MethodSet) All() []Method {
	return []Method{m.Names, m.Destinations, m.Dates, m.Budget, m.TravelerCount, m.Contact}
}

// NoneMethods is the method set of a failed or empty record: every
// field tagged NONE rather than left as the zero value.
func NoneMethods() MethodSet {
	return MethodSet{
		Names:         MethodNone,
		Destinations:  MethodNone,
		Dates:         MethodNone,
		Budget:        MethodNone,
		TravelerCount: MethodNone,
		Contact:       MethodNone,
	}
}

// FusedRecord is the reconciled output of both extractors for one inquiry.
type FusedRecord struct {
	CustomerName        string    `json:"customer_name"`
	TravelDates         string    `json:"travel_dates"`
	Destination         string    `json:"destination"`
	Budget              string    `json:"budget"`
	TravelersCount      string    `json:"travelers_count"`
	ContactInfo         string    `json:"contact_info"`
	SpecialRequirements string    `json:"special_requirements"`
	Methods             MethodSet `json:"extraction_methods"`
	Confidence          float64   `json:"confidence_score"`
}

// TripRecord is the strict, schema-validated projection of a fused
// record. Unknown fields are rejected during validation rather than
// silently dropped.
type TripRecord struct {
	NumTravelers    int      `json:"num_travelers"`
	NumAdults       int      `json:"num_adults"`
	NumChildren     int      `json:"num_children"`
	Destinations    []string `json:"destinations"`
	StartDate       string   `json:"start_date,omitempty"`
	EndDate         string   `json:"end_date,omitempty"`
	DurationNights  int      `json:"duration_nights"`
	HotelPreference string   `json:"hotel_preferences,omitempty"`
	MealPreference  string   `json:"meal_preferences,omitempty"`
	Activities      []string `json:"activities"`
	NeedsFlight     *bool    `json:"needs_flight,omitempty"`
	NeedsVisa       *bool    `json:"needs_visa,omitempty"`
	Budget          string   `json:"budget,omitempty"`
	SpecialRequests string   `json:"special_requests,omitempty"`
	Deadline        string   `json:"deadline,omitempty"`
	CustomerName    string   `json:"customer_name,omitempty"`
	ContactInfo     string   `json:"contact_info,omitempty"`
	SourceID        string   `json:"file_name,omitempty"`
}

// Timings is the per-stage elapsed time breakdown for one inquiry.
type Timings struct {
	Normalize   time.Duration `json:"normalize"`
	Statistical time.Duration `json:"statistical"`
	Pattern     time.Duration `json:"pattern"`
	Fusion      time.Duration `json:"fusion"`
	Total       time.Duration `json:"total"`
}

// Result is the per-inquiry processing envelope. It is created once
// by the orchestrator and never mutated afterwards.
type Result struct {
	SourceID    string       `json:"source_id"`
	Status      Status       `json:"status"`
	StatusError string       `json:"status_error,omitempty"`
	Fused       FusedRecord  `json:"fused"`
	Trip        *TripRecord  `json:"trip,omitempty"`
	SchemaValid bool         `json:"schema_valid"`
	SchemaError string       `json:"schema_error,omitempty"`
	Timings     Timings      `json:"timings"`
	Stats       TextStats    `json:"text_stats"`
	Languages   Languages    `json:"languages"`
}

// OK reports whether the inquiry completed the full pipeline.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}
