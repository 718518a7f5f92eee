package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"jobmate/jobfeed-service/internal/model"
)

const fileMode os.FileMode = 0o644

// FileSink rewrites a CSV file after every successful cycle. The file is
// written next to its destination and renamed into place, so a reader never
// opens a half-written file.
type FileSink struct {
	Path string
}

// NewFileSink returns a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

// Name identifies the sink in logs.
func (f *FileSink) Name() string { return "file" }

// Write implements orchestrator.Sink.
func (f *FileSink) Write(_ context.Context, a *model.Artifact) error {
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".job_results-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := WriteCSV(tmp, a); err != nil {
		tmp.Close()
		return err
	}
	// CreateTemp uses 0600; downstream readers may run as another user.
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("rename into %s: %w", f.Path, err)
	}
	return nil
}
