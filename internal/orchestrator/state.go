// Package orchestrator runs collection cycles with single-flight semantics.
//
// Run status graph:
//
//	IDLE ──► RUNNING ──► IDLE
//
// A trigger arriving while RUNNING is rejected, never queued.
package orchestrator

import (
	"fmt"
	"time"
)

// Status values exposed through RunState.
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusRunning Status = "RUNNING"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusIdle:    {StatusRunning},
	StatusRunning: {StatusIdle},
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusIdle, StatusRunning:
		return st, nil
	}
	return "", fmt.Errorf("unknown run status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RunState is the orchestrator-owned record of the current and last cycle.
// Values returned by Status are deep copies.
type RunState struct {
	Status             Status     `json:"status"`
	CurrentRunID       string     `json:"currentRunId,omitempty"`
	CurrentReason      string     `json:"currentReason,omitempty"`
	LastRunID          string     `json:"lastRunId,omitempty"`
	LastRunStartedAt   *time.Time `json:"lastRunStartedAt"`
	LastRunCompletedAt *time.Time `json:"lastRunCompletedAt"`
	LastRunRecordCount *int       `json:"lastRunRecordCount"`
	LastError          *string    `json:"lastError"`
	LastWarnings       []string   `json:"lastWarnings,omitempty"`
}

func (s RunState) clone() RunState {
	c := s
	c.LastRunStartedAt = clonePtr(s.LastRunStartedAt)
	c.LastRunCompletedAt = clonePtr(s.LastRunCompletedAt)
	c.LastRunRecordCount = clonePtr(s.LastRunRecordCount)
	c.LastError = clonePtr(s.LastError)
	if s.LastWarnings != nil {
		c.LastWarnings = append([]string(nil), s.LastWarnings...)
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
