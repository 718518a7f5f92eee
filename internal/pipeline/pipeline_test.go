package pipeline_test

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobfeed-service/internal/model"
	"jobmate/jobfeed-service/internal/pipeline"
)

var runDate = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func opts() pipeline.Options {
	return pipeline.Options{
		Keywords:     []string{"knowledge management", "knowledge manager", "technical writer"},
		ExcludeTerms: []string{"intern", "entry-level", "part-time", "contractor"},
		MinSalary:    130000,
	}
}

func money(v float64) *float64 { return &v }

func text(s string) *string { return &s }

func listing(title, company, url string) model.RawListing {
	return model.RawListing{Title: title, Company: company, JobURL: url, Location: "Remote"}
}

// ── Scenarios ──────────────────────────────────────────────────────────────

func TestRun_DuplicateURLKeptOnce(t *testing.T) {
	batch := []model.RawListing{
		listing("Knowledge Management Lead", "Acme", "u1"),
		listing("Senior Knowledge Management Analyst", "Globex", "u2"),
		listing("Knowledge Management Director", "Initech", "u1"),
	}

	res := pipeline.Run([][]model.RawListing{batch}, opts(), runDate)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "u1", res.Records[0].JobURL)
	assert.Equal(t, "Acme", res.Records[0].Company)
	assert.Equal(t, "u2", res.Records[1].JobURL)
}

func TestRun_ExclusionBeatsRelevance(t *testing.T) {
	batch := []model.RawListing{listing("Knowledge Management Intern", "Acme", "u1")}

	res := pipeline.Run([][]model.RawListing{batch}, opts(), runDate)

	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Stages.AfterRelevance)
	assert.Equal(t, 0, res.Stages.AfterExclusion)
}

func TestRun_SalaryBelowThresholdDropped(t *testing.T) {
	l := listing("Knowledge Manager", "Acme", "u1")
	l.MinAmount = money(120000)
	l.MaxAmount = money(125000)

	res := pipeline.Run([][]model.RawListing{{l}}, opts(), runDate)

	assert.Empty(t, res.Records)
	assert.Equal(t, 0, res.Stages.AfterSalary)
}

func TestRun_UnknownSalaryIncluded(t *testing.T) {
	l := listing("Knowledge Manager", "Acme", "u1")

	res := pipeline.Run([][]model.RawListing{{l}}, opts(), runDate)

	require.Len(t, res.Records, 1)
	assert.Nil(t, res.Records[0].MinAmount)
	assert.Nil(t, res.Records[0].MaxAmount)
}

func TestRun_EmptyInput(t *testing.T) {
	for _, in := range [][][]model.RawListing{nil, {}, {{}, {}}} {
		res := pipeline.Run(in, opts(), runDate)
		assert.NotNil(t, res.Records)
		assert.Empty(t, res.Records)
		assert.Equal(t, pipeline.Stages{}, res.Stages)
	}
}

// ── Stage behaviour ────────────────────────────────────────────────────────

func TestRun_ConcatPreservesBatchOrder(t *testing.T) {
	a := []model.RawListing{listing("Technical Writer", "A", "a1"), listing("Technical Writer II", "A", "a2")}
	b := []model.RawListing{listing("Technical Writer", "B", "b1")}

	res := pipeline.Run([][]model.RawListing{a, b}, opts(), runDate)

	urls := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		urls = append(urls, r.JobURL)
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, urls)
}

func TestRun_EmptyURLsNeverDedupedAgainstEachOther(t *testing.T) {
	batch := []model.RawListing{
		listing("Technical Writer", "A", ""),
		listing("Technical Writer", "B", ""),
		listing("Technical Writer", "C", ""),
	}

	res := pipeline.Run([][]model.RawListing{batch}, opts(), runDate)

	assert.Equal(t, 3, res.Stages.AfterURLDedup)
	assert.Len(t, res.Records, 3)
}

func TestRun_RelevanceIsCaseInsensitiveSubstring(t *testing.T) {
	batch := []model.RawListing{
		listing("SENIOR KNOWLEDGE MANAGEMENT SPECIALIST", "A", "u1"),
		listing("Principal Technical Writers Guild Lead", "B", "u2"),
		listing("Software Engineer", "C", "u3"),
		listing("", "D", "u4"),
	}

	res := pipeline.Run([][]model.RawListing{batch}, opts(), runDate)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "u1", res.Records[0].JobURL)
	assert.Equal(t, "u2", res.Records[1].JobURL)
}

func TestRun_ExclusionIsSubstring(t *testing.T) {
	batch := []model.RawListing{listing("International Knowledge Manager", "A", "u1")}

	res := pipeline.Run([][]model.RawListing{batch}, opts(), runDate)

	assert.Empty(t, res.Records, "intern matches inside international")
}

func TestRun_TitleCompanyDedupCaseInsensitive(t *testing.T) {
	batch := []model.RawListing{
		listing("Knowledge Manager", "Acme Corp", "u1"),
		listing("knowledge manager", "ACME CORP", "u2"),
		listing("Knowledge Manager", "Other", "u3"),
	}

	res := pipeline.Run([][]model.RawListing{batch}, opts(), runDate)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "u1", res.Records[0].JobURL)
	assert.Equal(t, "u3", res.Records[1].JobURL)
}

func TestRun_ShapeSetsDateFoundAndTruncates(t *testing.T) {
	long := strings.Repeat("é", 2500)
	l := listing("Knowledge Manager", "Acme", "u1")
	l.Description = text(long)
	posted := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	l.DatePosted = &posted
	noDesc := listing("Technical Writer", "Acme", "u2")

	res := pipeline.Run([][]model.RawListing{{l, noDesc}}, opts(), runDate)

	require.Len(t, res.Records, 2)
	rec := res.Records[0]
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), rec.DateFound)
	assert.Equal(t, 2000, utf8.RuneCountInString(rec.Description))
	assert.Equal(t, &posted, rec.DatePosted)
	assert.Equal(t, "", res.Records[1].Description)
}

func TestRun_StageCounts(t *testing.T) {
	low := listing("Knowledge Manager", "Low Pay", "u3")
	low.MaxAmount = money(90000)
	batch := []model.RawListing{
		listing("Knowledge Manager", "Acme", "u1"),
		listing("Knowledge Manager", "Acme", "u1"),
		listing("Chef", "Diner", "u2"),
		low,
		listing("Knowledge Manager (Contractor)", "Temp", "u4"),
		listing("knowledge manager", "acme", "u5"),
	}

	res := pipeline.Run([][]model.RawListing{batch}, opts(), runDate)

	assert.Equal(t, pipeline.Stages{
		Total:             6,
		AfterURLDedup:     5,
		AfterRelevance:    4,
		AfterSalary:       3,
		AfterExclusion:    2,
		AfterTitleCompany: 1,
	}, res.Stages)
}

func TestRun_CustomDescriptionLimit(t *testing.T) {
	l := listing("Knowledge Manager", "Acme", "u1")
	l.Description = text("abcdefghij")
	o := opts()
	o.DescriptionLimit = 4

	res := pipeline.Run([][]model.RawListing{{l}}, o, runDate)

	require.Len(t, res.Records, 1)
	assert.Equal(t, "abcd", res.Records[0].Description)
}

// ── SalaryOK ───────────────────────────────────────────────────────────────

func TestSalaryOK(t *testing.T) {
	cases := []struct {
		name     string
		min, max *float64
		want     bool
	}{
		{"both absent", nil, nil, true},
		{"max meets", money(100000), money(130000), true},
		{"min meets", money(140000), money(120000), true},
		{"both below", money(120000), money(125000), false},
		{"only min below", money(120000), nil, false},
		{"only min meets", money(130000), nil, true},
		{"only max below", nil, money(129999), false},
		{"only max meets", nil, money(200000), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, pipeline.SalaryOK(c.min, c.max, 130000))
		})
	}
}

// ── Truncate ───────────────────────────────────────────────────────────────

func TestTruncate(t *testing.T) {
	assert.Equal(t, "", pipeline.Truncate("abc", 0))
	assert.Equal(t, "abc", pipeline.Truncate("abc", 3))
	assert.Equal(t, "ab", pipeline.Truncate("abc", 2))
	assert.Equal(t, "日本", pipeline.Truncate("日本語", 2))
	assert.Equal(t, "abc", pipeline.Truncate("abc", -1))
}

// ── Properties ─────────────────────────────────────────────────────────────

// mixedBatches builds a deterministic input with overlapping URLs, repeated
// title/company pairs in different case, and long descriptions.
func mixedBatches() [][]model.RawListing {
	titles := []string{"Knowledge Manager", "KNOWLEDGE MANAGER", "Technical Writer", "Knowledge Management Intern", "Barista"}
	companies := []string{"Acme", "acme", "Globex"}
	var batches [][]model.RawListing
	for b := 0; b < 4; b++ {
		var batch []model.RawListing
		for i := 0; i < 30; i++ {
			l := listing(titles[(i+b)%len(titles)], companies[(i*b)%len(companies)], fmt.Sprintf("u%d", (i*7+b)%23))
			if i%5 == 0 {
				l.JobURL = ""
			}
			if i%3 == 0 {
				l.MaxAmount = money(float64(100000 + i*3000))
			}
			l.Description = text(strings.Repeat("x", 1900+i*10))
			batch = append(batch, l)
		}
		batches = append(batches, batch)
	}
	return batches
}

func TestRun_Properties(t *testing.T) {
	res := pipeline.Run(mixedBatches(), opts(), runDate)
	require.NotEmpty(t, res.Records)

	urls := map[string]bool{}
	pairs := map[string]bool{}
	for _, r := range res.Records {
		if r.JobURL != "" {
			assert.False(t, urls[r.JobURL], "duplicate job_url %q", r.JobURL)
			urls[r.JobURL] = true
		}
		key := strings.ToLower(r.Title) + "\x00" + strings.ToLower(r.Company)
		assert.False(t, pairs[key], "duplicate title/company %q", key)
		pairs[key] = true
		assert.LessOrEqual(t, utf8.RuneCountInString(r.Description), 2000)
	}
}

func TestRun_Idempotent(t *testing.T) {
	first := pipeline.Run(mixedBatches(), opts(), runDate)

	again := make([]model.RawListing, 0, len(first.Records))
	for _, r := range first.Records {
		again = append(again, r.Raw())
	}
	second := pipeline.Run([][]model.RawListing{again}, opts(), runDate)

	assert.Equal(t, first.Records, second.Records)
}

func TestRun_Deterministic(t *testing.T) {
	a := pipeline.Run(mixedBatches(), opts(), runDate)
	b := pipeline.Run(mixedBatches(), opts(), runDate)

	assert.Equal(t, a, b)
}
