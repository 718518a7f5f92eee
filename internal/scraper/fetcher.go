// Package scraper fetches raw job listings from the Adzuna public API.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"

	"jobmate/jobfeed-service/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	httpTimeout    = 15 * time.Second
	maxRetries     = 2
)

// ErrNoCredentials is returned by Fetch when the Adzuna app id or key is unset.
var ErrNoCredentials = errors.New("ADZUNA_APP_ID / ADZUNA_APP_KEY not set")

// AdzunaFetcher fetches job offers from the Adzuna public API.
type AdzunaFetcher struct {
	AppID   string
	AppKey  string
	Country string // "us", "gb", "fr", …
	BaseURL string
	client  *http.Client

	retryInitial time.Duration // first backoff interval; 0 keeps the library default
}

// NewAdzunaFetcher constructs a fetcher with a shared HTTP client.
func NewAdzunaFetcher(appID, appKey, country string) *AdzunaFetcher {
	return &AdzunaFetcher{
		AppID:   appID,
		AppKey:  appKey,
		Country: country,
		BaseURL: adzunaBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Company     adzunaCompany  `json:"company"`
	Location    adzunaLocation `json:"location"`
	SalaryMin   float64        `json:"salary_min"`
	SalaryMax   float64        `json:"salary_max"`
	RedirectURL string         `json:"redirect_url"`
	Created     string         `json:"created"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// Fetch retrieves up to opts.ResultsWanted offers for one query, paging
// until the cap is reached or a short page signals the end.
func (f *AdzunaFetcher) Fetch(ctx context.Context, q model.Query, opts model.FetchOptions) ([]model.RawListing, error) {
	if f.AppID == "" || f.AppKey == "" {
		return nil, ErrNoCredentials
	}

	wanted := opts.ResultsWanted
	if wanted <= 0 {
		wanted = adzunaPageSize
	}
	pageSize := min(wanted, adzunaPageSize)

	var listings []model.RawListing
	for page := 1; len(listings) < wanted; page++ {
		batch, err := f.fetchPageWithRetry(ctx, q, opts, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		listings = append(listings, batch...)
		if len(batch) < pageSize {
			break // last page
		}
	}

	if len(listings) > wanted {
		listings = listings[:wanted]
	}
	return listings, nil
}

// fetchPageWithRetry retries network errors and 5xx/429 responses with
// exponential backoff. Other HTTP errors fail immediately.
func (f *AdzunaFetcher) fetchPageWithRetry(ctx context.Context, q model.Query, opts model.FetchOptions, page, pageSize int) ([]model.RawListing, error) {
	eb := backoff.NewExponentialBackOff()
	if f.retryInitial > 0 {
		eb.InitialInterval = f.retryInitial
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, maxRetries), ctx)
	return backoff.RetryWithData(func() ([]model.RawListing, error) {
		return f.fetchPage(ctx, q, opts, page, pageSize)
	}, b)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("adzuna returned %d: %s", e.code, e.body)
}

func (f *AdzunaFetcher) fetchPage(ctx context.Context, q model.Query, opts model.FetchOptions, page, pageSize int) ([]model.RawListing, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", strings.TrimRight(f.BaseURL, "/"), f.Country, page)

	params := url.Values{}
	params.Set("app_id", f.AppID)
	params.Set("app_key", f.AppKey)
	params.Set("results_per_page", strconv.Itoa(pageSize))
	// A quoted term is an exact phrase search, like on the job boards.
	if term := strings.Trim(q.Term, `"`); term != q.Term {
		params.Set("what_phrase", term)
	} else {
		params.Set("what", q.Term)
	}
	params.Set("where", q.Location)
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")
	if days := maxDaysOld(opts.MaxAge); days > 0 {
		params.Set("max_days_old", strconv.Itoa(days))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		serr := &statusError{code: resp.StatusCode, body: string(body)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("json unmarshal: %w", err))
	}

	listings := make([]model.RawListing, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		listings = append(listings, toListing(r, q, opts.FullDescription))
	}
	return listings, nil
}

func toListing(r adzunaResult, q model.Query, fullDescription bool) model.RawListing {
	l := model.RawListing{
		Title:       r.Title,
		Company:     r.Company.DisplayName,
		Location:    r.Location.DisplayName,
		JobURL:      r.RedirectURL,
		MinAmount:   amount(r.SalaryMin),
		MaxAmount:   amount(r.SalaryMax),
		SourceQuery: q,
	}
	if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
		l.DatePosted = &t
	}
	if fullDescription && r.Description != "" {
		desc := PlainText(r.Description)
		l.Description = &desc
	}
	return l
}

// amount maps Adzuna's zero "no salary" value to an absent bound.
func amount(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// maxDaysOld converts a recency window to Adzuna's whole-day filter,
// rounding up so no listing inside the window is lost.
func maxDaysOld(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// PlainText strips HTML markup from an Adzuna description.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
