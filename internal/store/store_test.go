package store_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobfeed-service/internal/model"
	"jobmate/jobfeed-service/internal/store"
)

func money(v float64) *float64 { return &v }

func sampleArtifact(runID string, n int) *model.Artifact {
	day := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	posted := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	recs := make([]model.OutputRecord, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, model.OutputRecord{
			DateFound:   day,
			Company:     "Acme, Inc.",
			Title:       "Knowledge Manager",
			Location:    "Austin, TX",
			JobURL:      "https://example.com/j/" + runID,
			DatePosted:  &posted,
			MinAmount:   money(130000),
			MaxAmount:   money(155000.5),
			Description: "Line one\nLine \"two\"",
		})
	}
	return &model.Artifact{RunID: runID, GeneratedAt: day.Add(9 * time.Hour), Count: n, Records: recs}
}

// ── Store ──────────────────────────────────────────────────────────────────

func TestCurrent_BeforePublish(t *testing.T) {
	s := store.New()

	a, err := s.Current()

	assert.Nil(t, a)
	assert.ErrorIs(t, err, store.ErrNoArtifact)
}

func TestPublish_ReplacesWholesale(t *testing.T) {
	s := store.New()
	first := sampleArtifact("r1", 2)
	second := sampleArtifact("r2", 0)

	s.Publish(first)
	got, err := s.Current()
	require.NoError(t, err)
	assert.Same(t, first, got)

	s.Publish(second)
	got, err = s.Current()
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, 0, got.Count)
}

func TestPublish_ConcurrentReadersSeeCompleteArtifacts(t *testing.T) {
	s := store.New()
	s.Publish(sampleArtifact("r0", 1))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				a, err := s.Current()
				if assert.NoError(t, err) {
					assert.Equal(t, a.Count, len(a.Records))
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		s.Publish(sampleArtifact("r", i%5))
	}
	wg.Wait()
}

// ── CSV ────────────────────────────────────────────────────────────────────

func TestWriteCSV_ColumnsAndFormatting(t *testing.T) {
	a := sampleArtifact("r1", 1)
	a.Records = append(a.Records, model.OutputRecord{
		DateFound: a.Records[0].DateFound,
		Company:   "Globex",
		Title:     "Technical Writer",
	})
	a.Count = 2

	var buf bytes.Buffer
	require.NoError(t, store.WriteCSV(&buf, a))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{
		"date_found", "company", "title", "location", "job_url",
		"date_posted", "min_amount", "max_amount", "description",
	}, rows[0])
	assert.Equal(t, []string{
		"2026-05-02", "Acme, Inc.", "Knowledge Manager", "Austin, TX", "https://example.com/j/r1",
		"2026-04-30", "130000", "155000.5", "Line one\nLine \"two\"",
	}, rows[1])
	assert.Equal(t, []string{"2026-05-02", "Globex", "Technical Writer", "", "", "", "", "", ""}, rows[2])
}

func TestWriteCSV_EmptyArtifactHasHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, store.WriteCSV(&buf, &model.Artifact{Records: []model.OutputRecord{}}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// ── FileSink ───────────────────────────────────────────────────────────────

func TestFileSink_WritesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job_results.csv")
	sink := store.NewFileSink(path)

	require.NoError(t, sink.Write(context.Background(), sampleArtifact("r1", 3)))
	require.NoError(t, sink.Write(context.Background(), sampleArtifact("r2", 1)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "https://example.com/j/r2", rows[1][4])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileSink_FileIsWorldReadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), "job_results.csv")

	require.NoError(t, store.NewFileSink(path).Write(context.Background(), sampleArtifact("r1", 1)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFileSink_MissingDirectory(t *testing.T) {
	sink := store.NewFileSink(filepath.Join(t.TempDir(), "nope", "job_results.csv"))

	err := sink.Write(context.Background(), sampleArtifact("r1", 1))

	assert.Error(t, err)
}
