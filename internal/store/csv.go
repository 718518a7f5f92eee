package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"jobmate/jobfeed-service/internal/model"
)

// Columns is the header of the published CSV, in order.
var Columns = []string{
	"date_found", "company", "title", "location", "job_url",
	"date_posted", "min_amount", "max_amount", "description",
}

// WriteCSV writes the artifact as CSV, one row per record in pipeline order.
func WriteCSV(w io.Writer, a *model.Artifact) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range a.Records {
		if err := cw.Write(csvRow(&a.Records[i])); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(r *model.OutputRecord) []string {
	return []string{
		r.DateFound.Format(model.DateLayout),
		r.Company,
		r.Title,
		r.Location,
		r.JobURL,
		formatDate(r.DatePosted),
		formatAmount(r.MinAmount),
		formatAmount(r.MaxAmount),
		r.Description,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(model.DateLayout)
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
