// Package store holds the most recently published artifact and knows how to
// serialize it for downstream consumers.
package store

import (
	"errors"
	"sync/atomic"

	"jobmate/jobfeed-service/internal/model"
)

// ErrNoArtifact is returned by Current before any cycle has succeeded.
var ErrNoArtifact = errors.New("no artifact published yet")

// Store is the in-memory artifact slot. Publish swaps the whole artifact in
// one atomic store, so readers see either the old or the new one.
type Store struct {
	current atomic.Pointer[model.Artifact]
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Publish replaces the stored artifact. Callers must not mutate a after
// handing it over.
func (s *Store) Publish(a *model.Artifact) {
	s.current.Store(a)
}

// Current returns the latest artifact or ErrNoArtifact.
func (s *Store) Current() (*model.Artifact, error) {
	a := s.current.Load()
	if a == nil {
		return nil, ErrNoArtifact
	}
	return a, nil
}
