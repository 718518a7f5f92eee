// Package pipeline turns the raw listing batches of one cycle into the
// ordered records that get published.
//
// Stages run in a fixed order, each assuming the previous ones already ran:
//
//	concat ──► url dedup ──► relevance ──► salary ──► exclusion ──► title+company dedup ──► shape
//
// The pipeline does no I/O and holds no state: the same batches in the same
// order always produce the same records in the same order.
package pipeline

import (
	"strings"
	"time"
	"unicode/utf8"

	"jobmate/jobfeed-service/internal/model"
)

// DefaultDescriptionLimit is the number of characters kept from a description.
const DefaultDescriptionLimit = 2000

// Options configures the filter stages.
type Options struct {
	Keywords         []string // relevance keywords, substring match on title
	ExcludeTerms     []string // exclusion terms, substring match on title
	MinSalary        float64
	DescriptionLimit int // characters, not bytes; <= 0 means DefaultDescriptionLimit
}

// Stages counts the listings surviving each stage.
type Stages struct {
	Total             int `json:"total"`
	AfterURLDedup     int `json:"afterUrlDedup"`
	AfterRelevance    int `json:"afterRelevance"`
	AfterSalary       int `json:"afterSalary"`
	AfterExclusion    int `json:"afterExclusion"`
	AfterTitleCompany int `json:"afterTitleCompanyDedup"`
}

// Result is the pipeline output.
type Result struct {
	Records []model.OutputRecord
	Stages  Stages
}

// Run applies every stage to batches. runDate becomes each record's
// date_found. An empty input yields an empty, non-nil record slice.
func Run(batches [][]model.RawListing, opts Options, runDate time.Time) Result {
	keywords := normalizeTerms(opts.Keywords)
	exclude := normalizeTerms(opts.ExcludeTerms)
	limit := opts.DescriptionLimit
	if limit <= 0 {
		limit = DefaultDescriptionLimit
	}

	var st Stages

	listings := concat(batches)
	st.Total = len(listings)

	listings = dedupByURL(listings)
	st.AfterURLDedup = len(listings)

	listings = keep(listings, func(l model.RawListing) bool {
		return containsAny(strings.ToLower(l.Title), keywords)
	})
	st.AfterRelevance = len(listings)

	listings = keep(listings, func(l model.RawListing) bool {
		return SalaryOK(l.MinAmount, l.MaxAmount, opts.MinSalary)
	})
	st.AfterSalary = len(listings)

	listings = keep(listings, func(l model.RawListing) bool {
		return !containsAny(strings.ToLower(l.Title), exclude)
	})
	st.AfterExclusion = len(listings)

	listings = dedupByTitleCompany(listings)
	st.AfterTitleCompany = len(listings)

	day := dateOnly(runDate)
	records := make([]model.OutputRecord, 0, len(listings))
	for _, l := range listings {
		records = append(records, shape(l, day, limit))
	}

	return Result{Records: records, Stages: st}
}

// SalaryOK keeps a listing when both bounds are unknown, or when whichever
// bounds are present reach threshold.
func SalaryOK(minAmount, maxAmount *float64, threshold float64) bool {
	if minAmount == nil && maxAmount == nil {
		return true
	}
	return (maxAmount != nil && *maxAmount >= threshold) ||
		(minAmount != nil && *minAmount >= threshold)
}

// Truncate returns the first limit characters of s.
func Truncate(s string, limit int) string {
	if limit < 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func concat(batches [][]model.RawListing) []model.RawListing {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	out := make([]model.RawListing, 0, n)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// dedupByURL keeps the first listing for each non-empty job_url. Listings
// without a URL are all kept.
func dedupByURL(in []model.RawListing) []model.RawListing {
	seen := make(map[string]struct{}, len(in))
	return keep(in, func(l model.RawListing) bool {
		if l.JobURL == "" {
			return true
		}
		if _, dup := seen[l.JobURL]; dup {
			return false
		}
		seen[l.JobURL] = struct{}{}
		return true
	})
}

func dedupByTitleCompany(in []model.RawListing) []model.RawListing {
	seen := make(map[[2]string]struct{}, len(in))
	return keep(in, func(l model.RawListing) bool {
		key := [2]string{strings.ToLower(l.Title), strings.ToLower(l.Company)}
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
}

func keep(in []model.RawListing, pred func(model.RawListing) bool) []model.RawListing {
	out := in[:0:0]
	for _, l := range in {
		if pred(l) {
			out = append(out, l)
		}
	}
	return out
}

func shape(l model.RawListing, day time.Time, limit int) model.OutputRecord {
	desc := ""
	if l.Description != nil {
		desc = Truncate(*l.Description, limit)
	}
	return model.OutputRecord{
		DateFound:   day,
		Company:     l.Company,
		Title:       l.Title,
		Location:    l.Location,
		JobURL:      l.JobURL,
		DatePosted:  l.DatePosted,
		MinAmount:   l.MinAmount,
		MaxAmount:   l.MaxAmount,
		Description: desc,
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
