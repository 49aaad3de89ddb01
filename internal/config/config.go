// Package config holds every tunable the extraction pipeline consumes:
// text-length limits, model settings, the regex pattern table, the
// destination gazetteer, and worker-pool sizing. Values resolve in
// priority order: built-in defaults, then a YAML file, then TRIPDESK_*
// environment variables. Components receive the resolved Config
// explicitly; nothing reads configuration through globals.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits bounds the text accepted by the normalizer.
type Limits struct {
	MinTextLength int `yaml:"min_text_length"`
	MaxTextLength int `yaml:"max_text_length"`
}

// NER configures the statistical extractor.
type NER struct {
	ModelPath           string  `yaml:"model_path"`
	TokenizerPath       string  `yaml:"tokenizer_path"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MaxSequenceLength   int     `yaml:"max_sequence_length"`
}

// Workers configures batch processing.
type Workers struct {
	PoolSize    int           `yaml:"pool_size"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// Patterns is the full regex table for the pattern extractor. Every
// entry can be overridden from the config file so locales can be
// swapped without touching extraction code.
type Patterns struct {
	Email             string   `yaml:"email"`
	Phone             string   `yaml:"phone"`
	CurrencyINR       string   `yaml:"currency_inr"`
	CurrencyUSD       string   `yaml:"currency_usd"`
	DateShapes        []string `yaml:"date_shapes"`
	TravelerCount     string   `yaml:"traveler_count"`
	Duration          string   `yaml:"duration"`
	DestinationSyntax []string `yaml:"destination_syntax"`
	NameSyntax        []string `yaml:"name_syntax"`
}

// DateRange is a literal start/end pair for a calendar phrase.
type DateRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Config is the resolved configuration for one process.
type Config struct {
	Limits   Limits   `yaml:"limits"`
	NER      NER      `yaml:"ner"`
	Workers  Workers  `yaml:"workers"`
	Patterns Patterns `yaml:"patterns"`

	// Gazetteer is the fixed set of known destination names matched
	// case-insensitively by both extractors.
	Gazetteer []string `yaml:"gazetteer"`

	// CalendarPhrases maps literal phrases like "second week of november"
	// to hard-coded date ranges. The table is intentionally closed; new
	// phrases need product input, not code changes.
	CalendarPhrases map[string]DateRange `yaml:"calendar_phrases"`

	// ActivityLexicon, HotelKeywords and MealKeywords drive the strict
	// schema projection in the fusion engine.
	ActivityLexicon []string `yaml:"activity_lexicon"`
	HotelKeywords   []string `yaml:"hotel_keywords"`
	MealKeywords    []string `yaml:"meal_keywords"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Limits: Limits{
			MinTextLength: 10,
			MaxTextLength: 10000,
		},
		NER: NER{
			ConfidenceThreshold: 0.5,
			MaxSequenceLength:   256,
		},
		Workers: Workers{
			PoolSize:    defaultPoolSize(),
			TaskTimeout: 30 * time.Second,
		},
		Patterns: Patterns{
			Email:       `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
			Phone:       `(?:\+91[-\s]?)?[6-9]\d{9}`,
			CurrencyINR: `(?i)(?:(?:Rs\.?|INR|₹)\s*[\d,]+(?:\.\d{2})?|[\d,]+(?:\.\d{2})?\s*(?:INR|rupees?))`,
			CurrencyUSD: `(?i)(?:\$|USD)\s*[\d,]+(?:\.\d{2})?`,
			DateShapes: []string{
				`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{4}\b`,
				`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`,
				`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2}(?:st|nd|rd|th)?\b`,
			},
			TravelerCount: `(?i)\b(\d+)\s*(?:people|persons?|travelers?|pax|adults?)\b`,
			Duration:      `(?i)\b(\d+)\s*(days?|nights?|weeks?)\b`,
			DestinationSyntax: []string{
				`\bto\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`,
				`\bvisit\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`,
				`\btrip\s+to\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`,
			},
			NameSyntax: []string{
				`\bI\s+am\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`,
				`(?i)\bmy\s+name\s+is\s+((?:[A-Z][a-z]+)(?:\s+[A-Z][a-z]+)*)\b`,
				`\bI'm\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`,
				`(?i)\bname:\s*((?:[A-Z][a-z]+)(?:\s+[A-Z][a-z]+)*)\b`,
			},
		},
		Gazetteer:       defaultGazetteer(),
		CalendarPhrases: defaultCalendarPhrases(),
		ActivityLexicon: defaultActivityLexicon(),
		HotelKeywords: []string{
			"water villa", "luxury", "5-star", "4-star", "3-star", "budget",
		},
		MealKeywords: []string{
			"all meals", "breakfast and dinner", "breakfast only", "veg meals",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file over the defaults, then applies
// environment overrides. A missing file is not an error; defaults
// plus environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Limits.MinTextLength < 0 {
		return fmt.Errorf("min_text_length cannot be negative")
	}
	if c.Limits.MaxTextLength <= c.Limits.MinTextLength {
		return fmt.Errorf("max_text_length must exceed min_text_length")
	}
	if c.NER.ConfidenceThreshold < 0 || c.NER.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1]")
	}
	if c.Workers.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}
	if c.Workers.TaskTimeout <= 0 {
		return fmt.Errorf("task_timeout must be positive")
	}
	return nil
}

// GazetteerSet returns the gazetteer as a lowercase lookup set.
func (c Config) GazetteerSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Gazetteer))
	for _, d := range c.Gazetteer {
		set[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return set
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRIPDESK_MODEL_PATH"); v != "" {
		cfg.NER.ModelPath = v
	}
	if v := os.Getenv("TRIPDESK_TOKENIZER_PATH"); v != "" {
		cfg.NER.TokenizerPath = v
	}
	if v := os.Getenv("TRIPDESK_NER_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.NER.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("TRIPDESK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers.PoolSize = n
		}
	}
	if v := os.Getenv("TRIPDESK_TASK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Workers.TaskTimeout = d
		}
	}
	if v := os.Getenv("TRIPDESK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// SharedLibraryPath returns the ONNX Runtime shared library override
// from the environment, or empty to use the library default.
func SharedLibraryPath() string {
	return os.Getenv("TRIPDESK_ORT_LIBRARY")
}

// defaultPoolSize balances I/O-bound reads against CPU-bound extraction.
func defaultPoolSize() int {
	n := runtime.NumCPU() + 4
	if n > 32 {
		n = 32
	}
	return n
}

func defaultGazetteer() []string {
	return []string{
		"goa", "kerala", "rajasthan", "himachal", "kashmir", "delhi", "mumbai",
		"bangalore", "hyderabad", "chennai", "kolkata", "pune", "ahmedabad",
		"jaipur", "udaipur", "jodhpur", "manali", "shimla", "darjeeling",
		"ooty", "kodaikanal", "munnar", "alleppey", "kochi", "trivandrum",
		"pondicherry", "mahabalipuram", "hampi", "mysore", "coorg", "agra",
		"varanasi", "rishikesh", "haridwar", "amritsar", "chandigarh",
		"thailand", "bangkok", "phuket", "maldives", "singapore", "dubai",
		"bali", "nepal", "sri lanka", "bhutan", "mauritius", "paris", "london",
		"cochin", "periyar",
	}
}

func defaultCalendarPhrases() map[string]DateRange {
	return map[string]DateRange{
		"first week of november":  {Start: "2025-11-03", End: "2025-11-09"},
		"second week of november": {Start: "2025-11-10", End: "2025-11-16"},
		"third week of november":  {Start: "2025-11-17", End: "2025-11-23"},
		"last week of november":   {Start: "2025-11-24", End: "2025-11-30"},
		"first week of december":  {Start: "2025-12-01", End: "2025-12-07"},
		"second week of december": {Start: "2025-12-08", End: "2025-12-14"},
	}
}

func defaultActivityLexicon() []string {
	return []string{
		"beach time", "snorkeling", "romantic dinner", "desert safari",
		"city tour", "night safari", "cruise ride", "sightseeing",
		"houseboat", "james bond island", "phi phi island", "island hopping",
		"safari world", "sentosa", "universal studios", "burj khalifa",
		"dhow cruise", "miracle garden", "global village", "swiss alps",
		"kufri", "solang valley", "mall road", "hidimba temple", "dal lake",
		"gulmarg", "sonmarg", "pahalgam", "fort aguada", "baga beach",
		"dudhsagar falls", "water sports", "temples",
	}
}
