// Package events announces published artifacts on a Redis pub/sub channel.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/jobfeed-service/internal/model"
)

// DefaultChannel is the channel and event type used when none is configured.
const DefaultChannel = "EVENT_JOB_RESULTS_PUBLISHED"

// Publisher is the subset of *redis.Client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// ResultsPublished is the JSON payload sent after every successful cycle.
type ResultsPublished struct {
	Type        string    `json:"type"`
	RunID       string    `json:"runId"`
	Count       int       `json:"count"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Notifier is an orchestrator sink that publishes a ResultsPublished event.
type Notifier struct {
	rdb     Publisher
	channel string
}

// NewNotifier returns a Notifier publishing on channel (DefaultChannel if empty).
func NewNotifier(rdb Publisher, channel string) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{rdb: rdb, channel: channel}
}

// Name identifies the sink in logs and metrics.
func (n *Notifier) Name() string { return "redis" }

// Write publishes the event for a.
func (n *Notifier) Write(ctx context.Context, a *model.Artifact) error {
	event, err := json.Marshal(ResultsPublished{
		Type:        DefaultChannel,
		RunID:       a.RunID,
		Count:       a.Count,
		GeneratedAt: a.GeneratedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, event).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", n.channel, err)
	}
	return nil
}
