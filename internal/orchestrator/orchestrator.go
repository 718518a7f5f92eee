package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"jobmate/jobfeed-service/internal/logger"
	"jobmate/jobfeed-service/internal/metrics"
	"jobmate/jobfeed-service/internal/model"
	"jobmate/jobfeed-service/internal/pipeline"
)

// ErrTotalFetchFailure is returned in RunResult.Err when every sub-query of
// a cycle failed. The previously published artifact is left untouched.
var ErrTotalFetchFailure = errors.New("every sub-query failed")

// Fetcher is the external data source.
type Fetcher interface {
	Fetch(ctx context.Context, q model.Query, opts model.FetchOptions) ([]model.RawListing, error)
}

// Publisher receives each freshly built artifact. *store.Store implements it.
type Publisher interface {
	Publish(a *model.Artifact)
}

// Sink is a best-effort secondary destination for a published artifact
// (file, database, notification). A failing sink never undoes a publish.
type Sink interface {
	Name() string
	Write(ctx context.Context, a *model.Artifact) error
}

// Outcome is the result kind of a trigger.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "already_running"
)

// RunResult describes what a trigger did.
type RunResult struct {
	RunID       string
	Reason      string
	Outcome     Outcome
	StartedAt   time.Time
	FinishedAt  time.Time
	RecordCount int
	Stages      pipeline.Stages
	Failures    []model.SubQueryFailure
	Err         error
}

// Config is the per-cycle work description.
type Config struct {
	Queries          []model.Query
	FetchOptions     model.FetchOptions
	Filter           pipeline.Options
	FetchTimeout     time.Duration // per sub-query; 0 disables
	FetchConcurrency int           // parallel sub-queries; <= 0 means 1
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSinks registers sinks, written in order after every publish.
func WithSinks(sinks ...Sink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, sinks...) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics sets the metrics sink. Without it metrics go to a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator owns the RunState and is the only writer of the artifact store.
type Orchestrator struct {
	cfg     Config
	fetcher Fetcher
	store   Publisher
	sinks   []Sink
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.RWMutex
	state RunState

	inflight sync.WaitGroup
}

// New constructs an Orchestrator in the IDLE state.
func New(cfg Config, fetcher Fetcher, store Publisher, log logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		log:     log,
		now:     time.Now,
		state:   RunState{Status: StatusIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(prometheus.NewRegistry())
	}
	return o
}

// Status returns a snapshot of the run state. It never blocks on a cycle.
func (o *Orchestrator) Status() RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.clone()
}

// TriggerRun runs one cycle to completion and reports its outcome. If a cycle
// is already running it returns immediately with OutcomeSkipped.
// Cancelling ctx does not stop a cycle once it has started.
func (o *Orchestrator) TriggerRun(ctx context.Context, reason string) RunResult {
	res, ok := o.begin(reason)
	if !ok {
		return res
	}
	return o.execute(context.WithoutCancel(ctx), res)
}

// Start claims the run slot and executes the cycle in the background.
// The returned bool is false when a cycle was already running.
func (o *Orchestrator) Start(ctx context.Context, reason string) (RunResult, bool) {
	res, ok := o.begin(reason)
	if !ok {
		return res, false
	}
	started := res
	started.Outcome = OutcomeStarted

	o.inflight.Add(1)
	go func(r RunResult) {
		defer o.inflight.Done()
		o.execute(context.WithoutCancel(ctx), r)
	}(res)
	return started, true
}

// Seed publishes an artifact persisted by an earlier process and records it
// as the last completed run. It is a no-op once a cycle has started.
func (o *Orchestrator) Seed(a *model.Artifact) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Status != StatusIdle || o.state.LastRunStartedAt != nil {
		return false
	}
	o.store.Publish(a)

	completedAt := a.GeneratedAt
	count := a.Count
	o.state.LastRunID = a.RunID
	o.state.LastRunCompletedAt = &completedAt
	o.state.LastRunRecordCount = &count
	o.metrics.PublishedRecords.Set(float64(count))
	o.metrics.LastSuccessSeconds.Set(float64(completedAt.Unix()))
	return true
}

// Wait blocks until every cycle launched by Start has finished.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// begin performs the IDLE → RUNNING transition under the state lock.
func (o *Orchestrator) begin(reason string) (RunResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !IsTransitionAllowed(o.state.Status, StatusRunning) {
		o.metrics.CyclesTotal.WithLabelValues(reason, string(OutcomeSkipped)).Inc()
		o.log.Info("Cycle already in progress, skipping",
			logger.String("reason", reason),
			logger.String("running_run_id", o.state.CurrentRunID),
		)
		return RunResult{Reason: reason, Outcome: OutcomeSkipped}, false
	}

	startedAt := o.now()
	runID := uuid.NewString()
	o.state.Status = StatusRunning
	o.state.CurrentRunID = runID
	o.state.CurrentReason = reason
	o.state.LastRunStartedAt = &startedAt
	o.metrics.CycleRunning.Set(1)

	return RunResult{RunID: runID, Reason: reason, StartedAt: startedAt}, true
}

// execute runs fetch → filter → publish. The state lock is not held here.
func (o *Orchestrator) execute(ctx context.Context, res RunResult) RunResult {
	log := o.log.With(logger.String("run_id", res.RunID), logger.String("reason", res.Reason))
	log.Info("Cycle started", logger.Int("sub_queries", len(o.cfg.Queries)))

	batches, failures := o.fetchAll(ctx, log)
	res.Failures = failures

	if len(failures) > 0 && len(failures) == len(o.cfg.Queries) {
		causes := make([]error, 0, len(failures))
		for _, f := range failures {
			causes = append(causes, f)
		}
		res.Err = fmt.Errorf("%w: %w", ErrTotalFetchFailure, errors.Join(causes...))
		res.Outcome = OutcomeFailed
		res.FinishedAt = o.now()
		log.Error("Cycle aborted, keeping previous artifact", logger.Error(res.Err))
		o.finish(res)
		return res
	}

	out := pipeline.Run(batches, o.cfg.Filter, res.StartedAt)
	res.Stages = out.Stages
	res.RecordCount = len(out.Records)
	o.logStages(log, out.Stages)

	artifact := &model.Artifact{
		RunID:       res.RunID,
		GeneratedAt: o.now(),
		Count:       len(out.Records),
		Records:     out.Records,
	}
	o.store.Publish(artifact)
	o.writeSinks(ctx, log, artifact)

	res.Outcome = OutcomeCompleted
	res.FinishedAt = o.now()
	log.Info("Cycle completed",
		logger.Int("records", res.RecordCount),
		logger.Int("failed_sub_queries", len(failures)),
		logger.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	o.finish(res)
	return res
}

// finish performs the RUNNING → IDLE transition and records the outcome.
func (o *Orchestrator) finish(res RunResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !IsTransitionAllowed(o.state.Status, StatusIdle) {
		o.log.Error("Unexpected run state on finish", logger.String("status", string(o.state.Status)))
	}
	o.state.Status = StatusIdle
	o.state.CurrentRunID = ""
	o.state.CurrentReason = ""
	o.state.LastRunID = res.RunID

	switch res.Outcome {
	case OutcomeCompleted:
		completedAt := res.FinishedAt
		count := res.RecordCount
		o.state.LastRunCompletedAt = &completedAt
		o.state.LastRunRecordCount = &count
		o.state.LastError = nil
		o.state.LastWarnings = nil
		for _, f := range res.Failures {
			o.state.LastWarnings = append(o.state.LastWarnings, f.Error())
		}
		o.metrics.PublishedRecords.Set(float64(count))
		o.metrics.LastSuccessSeconds.Set(float64(completedAt.Unix()))
	case OutcomeFailed:
		msg := res.Err.Error()
		o.state.LastError = &msg
		o.state.LastWarnings = nil
	}

	o.metrics.CycleRunning.Set(0)
	o.metrics.CyclesTotal.WithLabelValues(res.Reason, string(res.Outcome)).Inc()
	o.metrics.CycleDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
}

// fetchAll invokes the fetcher once per configured sub-query. Batches keep
// the configured query order whatever order the fetches complete in.
func (o *Orchestrator) fetchAll(ctx context.Context, log logger.Logger) ([][]model.RawListing, []model.SubQueryFailure) {
	queries := o.cfg.Queries
	batches := make([][]model.RawListing, len(queries))
	errs := make([]error, len(queries))

	var g errgroup.Group
	g.SetLimit(max(1, o.cfg.FetchConcurrency))
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			listings, err := o.fetchOne(ctx, q)
			if err != nil {
				errs[i] = err
				log.Warn("Sub-query failed, continuing",
					logger.String("query", q.String()), logger.Error(err))
				return nil
			}
			batches[i] = listings
			log.Info("Sub-query fetched",
				logger.String("query", q.String()), logger.Int("listings", len(listings)))
			return nil
		})
	}
	_ = g.Wait() // goroutines never return an error

	var failures []model.SubQueryFailure
	ok := make([][]model.RawListing, 0, len(queries))
	for i, q := range queries {
		if errs[i] != nil {
			failures = append(failures, model.SubQueryFailure{Query: q, Err: errs[i]})
			o.metrics.SubQueryFailures.WithLabelValues(q.Location).Inc()
			continue
		}
		ok = append(ok, batches[i])
	}
	return ok, failures
}

// fetchOne bounds a single fetch by FetchTimeout even if the fetcher ignores
// its context. A panicking fetcher counts as a failed sub-query.
func (o *Orchestrator) fetchOne(ctx context.Context, q model.Query) ([]model.RawListing, error) {
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}

	type result struct {
		listings []model.RawListing
		err      error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("fetcher panic: %v", r)}
			}
		}()
		listings, err := o.fetcher.Fetch(ctx, q, o.cfg.FetchOptions)
		done <- result{listings: listings, err: err}
	}()

	select {
	case r := <-done:
		return r.listings, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch %s: %w", q, ctx.Err())
	}
}

func (o *Orchestrator) writeSinks(ctx context.Context, log logger.Logger, a *model.Artifact) {
	for _, s := range o.sinks {
		if err := s.Write(ctx, a); err != nil {
			o.metrics.SinkFailuresTotal.WithLabelValues(s.Name()).Inc()
			log.Warn("Artifact sink failed", logger.String("sink", s.Name()), logger.Error(err))
		}
	}
}

func (o *Orchestrator) logStages(log logger.Logger, st pipeline.Stages) {
	stages := []struct {
		name  string
		count int
	}{
		{"total", st.Total},
		{"url_dedup", st.AfterURLDedup},
		{"relevance", st.AfterRelevance},
		{"salary", st.AfterSalary},
		{"exclusion", st.AfterExclusion},
		{"title_company_dedup", st.AfterTitleCompany},
	}
	fields := make([]logger.Field, 0, len(stages))
	for _, s := range stages {
		o.metrics.StageRecords.WithLabelValues(s.name).Set(float64(s.count))
		fields = append(fields, logger.Int(s.name, s.count))
	}
	log.Info("Pipeline stages", fields...)
}
