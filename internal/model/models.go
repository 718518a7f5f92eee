// Package model defines shared data structures for the jobfeed service.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Query is one (search term × location) fetch unit within a cycle.
type Query struct {
	Term     string `json:"term"`
	Location string `json:"location"`
}

func (q Query) String() string {
	return fmt.Sprintf("%s @ %s", q.Term, q.Location)
}

// FetchOptions are passed unchanged to every data-source call of a cycle.
type FetchOptions struct {
	ResultsWanted   int           // cap on listings returned per sub-query
	MaxAge          time.Duration // recency window, e.g. 168h
	FullDescription bool
}

// RawListing is one offer as returned by the data source. It is never
// mutated after the fetcher hands it over.
type RawListing struct {
	Title       string
	Company     string
	Location    string
	JobURL      string // may be empty
	DatePosted  *time.Time
	MinAmount   *float64
	MaxAmount   *float64
	Description *string
	SourceQuery Query
}

// OutputRecord is the published, post-filter shape of a listing.
type OutputRecord struct {
	DateFound   time.Time  `json:"date_found"`
	Company     string     `json:"company"`
	Title       string     `json:"title"`
	Location    string     `json:"location"`
	JobURL      string     `json:"job_url"`
	DatePosted  *time.Time `json:"date_posted"`
	MinAmount   *float64   `json:"min_amount"`
	MaxAmount   *float64   `json:"max_amount"`
	Description string     `json:"description"`
}

// DateLayout is how published dates are rendered in every view.
const DateLayout = "2006-01-02"

// recordJSON shadows the two date fields of OutputRecord with their
// date-only string form.
type recordJSON struct {
	*outputRecordFields
	DateFound  string  `json:"date_found"`
	DatePosted *string `json:"date_posted"`
}

type outputRecordFields OutputRecord

// MarshalJSON renders dates as YYYY-MM-DD, matching the CSV.
func (r OutputRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		outputRecordFields: (*outputRecordFields)(&r),
		DateFound:          r.DateFound.Format(DateLayout),
	}
	if r.DatePosted != nil {
		posted := r.DatePosted.Format(DateLayout)
		out.DatePosted = &posted
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON. Dates come back as
// UTC midnight.
func (r *OutputRecord) UnmarshalJSON(data []byte) error {
	in := recordJSON{outputRecordFields: (*outputRecordFields)(r)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.DateFound = time.Time{}
	if in.DateFound != "" {
		t, err := time.Parse(DateLayout, in.DateFound)
		if err != nil {
			return fmt.Errorf("date_found: %w", err)
		}
		r.DateFound = t
	}
	r.DatePosted = nil
	if in.DatePosted != nil && *in.DatePosted != "" {
		t, err := time.Parse(DateLayout, *in.DatePosted)
		if err != nil {
			return fmt.Errorf("date_posted: %w", err)
		}
		r.DatePosted = &t
	}
	return nil
}

// Raw converts a published record back into a listing, so that output can
// be fed through the pipeline again.
func (r OutputRecord) Raw() RawListing {
	desc := r.Description
	return RawListing{
		Title:       r.Title,
		Company:     r.Company,
		Location:    r.Location,
		JobURL:      r.JobURL,
		DatePosted:  r.DatePosted,
		MinAmount:   r.MinAmount,
		MaxAmount:   r.MaxAmount,
		Description: &desc,
	}
}

// Artifact is the immutable snapshot of the most recent successful cycle.
type Artifact struct {
	RunID       string         `json:"runId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Count       int            `json:"count"`
	Records     []OutputRecord `json:"records"`
}

// SubQueryFailure records one failed or timed-out fetch.
type SubQueryFailure struct {
	Query Query
	Err   error
}

func (f SubQueryFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Query, f.Err)
}

func (f SubQueryFailure) Unwrap() error { return f.Err }
