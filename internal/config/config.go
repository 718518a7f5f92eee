// Package config loads and validates environment variables at startup.
// Fail-fast: if a variable is malformed, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"jobmate/jobfeed-service/internal/model"
)

// Defaults for the knowledge-management search this service was built for.
var (
	DefaultSearchTerms = []string{
		`"knowledge management"`,
		`"knowledge manager"`,
		`"knowledge lead"`,
		`"technical writer"`,
		`"information architect"`,
		`"ServiceNow knowledge"`,
	}
	DefaultSearchLocations = []string{"United States", "Austin, Texas"}
	DefaultKeywords        = []string{
		"knowledge management", "knowledge manager", "knowledge lead",
		"knowledge specialist", "knowledge analyst", "knowledge coordinator",
		"knowledge engineer", "servicenow knowledge", "knowledge product owner",
		"knowledge base", "kb manager", "kb lead", "km manager", "km lead",
		"km specialist", "km analyst", "knowledge ops", "knowledge operations",
		"knowledge strategist", "knowledge architect", "technical writer",
		"information architect", "content architect", "self-service manager",
		"self service manager", "deflection",
	}
	DefaultExcludeTerms = []string{"intern", "entry-level", "entry level", "part-time", "part time", "contractor"}
)

// Config holds all runtime configuration for the jobfeed service.
type Config struct {
	Port string

	// Optional backends; empty disables the matching sink.
	DatabaseURL  string
	RedisURL     string
	RedisChannel string
	OutputPath   string

	AdzunaAppID   string
	AdzunaAppKey  string
	AdzunaCountry string // e.g. "us", "gb", "fr"

	SearchTerms      []string
	SearchLocations  []string
	Keywords         []string
	ExcludeTerms     []string
	MinSalary        float64
	ResultsWanted    int
	HoursOld         int
	FullDescription  bool
	DescriptionLimit int

	ScrapeIntervalHours int // How often the cron job fires
	RunOnStart          bool
	FetchTimeout        time.Duration
	FetchConcurrency    int

	LogLevel string
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	var p parser
	cfg := &Config{
		Port:         envOr("JOBFEED_PORT", "8081"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		RedisChannel: envOr("REDIS_CHANNEL", "EVENT_JOB_RESULTS_PUBLISHED"),
		OutputPath:   envOr("OUTPUT_PATH", "job_results.csv"),

		AdzunaAppID:   os.Getenv("ADZUNA_APP_ID"),
		AdzunaAppKey:  os.Getenv("ADZUNA_APP_KEY"),
		AdzunaCountry: envOr("ADZUNA_COUNTRY", "us"),

		SearchTerms:      listOr("SEARCH_TERMS", ";", DefaultSearchTerms),
		SearchLocations:  listOr("SEARCH_LOCATIONS", ";", DefaultSearchLocations),
		Keywords:         listOr("RELEVANT_KEYWORDS", ",", DefaultKeywords),
		ExcludeTerms:     listOr("EXCLUDE_TERMS", ",", DefaultExcludeTerms),
		MinSalary:        p.float("MIN_SALARY", 130000),
		ResultsWanted:    p.positiveInt("RESULTS_WANTED", 50),
		HoursOld:         p.positiveInt("HOURS_OLD", 168),
		FullDescription:  p.bool("FULL_DESCRIPTION", true),
		DescriptionLimit: p.positiveInt("DESCRIPTION_LIMIT", 2000),

		ScrapeIntervalHours: p.positiveInt("SCRAPE_INTERVAL_HOURS", 12),
		RunOnStart:          p.bool("RUN_ON_START", true),
		FetchTimeout:        p.duration("FETCH_TIMEOUT", 60*time.Second),
		FetchConcurrency:    p.positiveInt("FETCH_CONCURRENCY", 2),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if len(cfg.SearchTerms) == 0 {
		return nil, fmt.Errorf("SEARCH_TERMS must list at least one term")
	}
	if len(cfg.SearchLocations) == 0 {
		return nil, fmt.Errorf("SEARCH_LOCATIONS must list at least one location")
	}
	return cfg, nil
}

// Queries expands the configured terms and locations into one sub-query per
// pair, term-major, which is the order batches reach the pipeline in.
func (c *Config) Queries() []model.Query {
	queries := make([]model.Query, 0, len(c.SearchTerms)*len(c.SearchLocations))
	for _, term := range c.SearchTerms {
		for _, loc := range c.SearchLocations {
			queries = append(queries, model.Query{Term: term, Location: loc})
		}
	}
	return queries
}

// FetchOptions returns the per-sub-query fetch limits.
func (c *Config) FetchOptions() model.FetchOptions {
	return model.FetchOptions{
		ResultsWanted:   c.ResultsWanted,
		MaxAge:          time.Duration(c.HoursOld) * time.Hour,
		FullDescription: c.FullDescription,
	}
}

// Interval is the scheduling period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.ScrapeIntervalHours) * time.Hour
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// listOr splits key on sep, trimming blanks. An unset variable yields def.
func listOr(key, sep string, def []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return append([]string(nil), def...)
	}
	var out []string
	for _, item := range strings.Split(raw, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parser keeps the first malformed variable so Load reports one clear error.
type parser struct {
	err error
}

func (p *parser) fail(key, want, got string) {
	if p.err == nil {
		p.err = fmt.Errorf("%s must be %s, got %q", key, want, got)
	}
}

func (p *parser) positiveInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		p.fail(key, "a positive integer", s)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		p.fail(key, "a non-negative number", s)
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, "a boolean", s)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil || v <= 0 {
		p.fail(key, "a positive duration", s)
		return def
	}
	return v
}
