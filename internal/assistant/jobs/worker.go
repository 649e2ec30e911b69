// Package jobs runs the background document-analysis worker.
//
// Jobs are queued by the upload endpoint and survive restarts in the store.
// The worker polls for pending jobs, sends each document through the
// analysis prompt, and records the outcome.  Claiming is a compare-and-swap
// status transition, so several workers (or a restarted one) never process
// the same job twice.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ontime-erp/assistant/internal/assistant/analysis"
	"github.com/ontime-erp/assistant/internal/assistant/llm"
	"github.com/ontime-erp/assistant/internal/assistant/store"
)

const (
	// DefaultPollInterval is the sleep between polls of an empty queue.
	DefaultPollInterval = 2 * time.Second
	// DefaultRetention is how long finished jobs stay queryable before the
	// worker prunes them.
	DefaultRetention = 24 * time.Hour
	// DefaultStaleAfter is how long a job may sit in processing before it is
	// assumed orphaned by a dead worker and requeued.
	DefaultStaleAfter = 15 * time.Minute
	// pruneEvery controls how often the retention and requeue sweeps run.
	pruneEvery = 10 * time.Minute
)

// JobStore is the persistence surface the worker needs.
type JobStore interface {
	ClaimNextJob(ctx context.Context) (*store.Job, error)
	CompleteJob(ctx context.Context, id string, extracted json.RawMessage) error
	FailJob(ctx context.Context, id, message string) error
	PruneJobs(ctx context.Context, retention time.Duration) (int64, error)
	RequeueStaleJobs(ctx context.Context, staleAfter time.Duration) (int64, error)
}

// Completer generates model output for the analysis prompt.  Satisfied by
// *llm.Registry.
type Completer interface {
	Complete(ctx context.Context, provider string, messages []llm.Message) (string, error)
}

// Notifier is told about jobs that fail, so operators hear about model or
// queue trouble without watching logs.  May be nil.
type Notifier interface {
	JobFailed(ctx context.Context, jobID, documentName, reason string)
}

// Worker drains the analysis queue.
type Worker struct {
	store     JobStore
	completer Completer
	notify    Notifier
	provider   string
	interval   time.Duration
	retention  time.Duration
	staleAfter time.Duration
	log        *slog.Logger
}

// Options tune a Worker.  Zero values select defaults.
type Options struct {
	// Provider names the llm registry entry to use; "" selects the default.
	Provider string
	// PollInterval is the sleep between polls of an empty queue.
	PollInterval time.Duration
	// Retention is how long finished jobs are kept.
	Retention time.Duration
	// StaleAfter is how long a processing job may go untouched before it is
	// requeued as orphaned.
	StaleAfter time.Duration
	// Notifier receives failure events.  May be nil.
	Notifier Notifier
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// New returns a Worker.
func New(s JobStore, c Completer, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		store:      s,
		completer:  c,
		notify:     opts.Notifier,
		provider:   opts.Provider,
		interval:   opts.PollInterval,
		retention:  opts.Retention,
		staleAfter: opts.StaleAfter,
		log:        opts.Logger,
	}
}

// Run processes jobs until ctx is cancelled.  Between jobs it sleeps for the
// poll interval; every few minutes it prunes finished jobs past retention and
// requeues processing jobs orphaned by a dead worker.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("analysis worker started",
		"poll_interval", w.interval, "retention", w.retention)

	// Reclaim anything a previous process left mid-flight before polling.
	w.requeueStale(ctx)

	pruneTicker := time.NewTicker(pruneEvery)
	defer pruneTicker.Stop()

	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.log.Error("worker iteration failed", "error", err)
		}

		if processed {
			// Drain the queue without sleeping while work remains.
			continue
		}

		select {
		case <-ctx.Done():
			w.log.Info("analysis worker stopped")
			return
		case <-pruneTicker.C:
			w.requeueStale(ctx)
			w.prune(ctx)
		case <-time.After(w.interval):
		}
	}
}

// RunOnce claims and processes at most one job.  It reports whether a job
// was claimed; claim errors are returned, per-job analysis failures are
// recorded on the job instead.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	w.log.Info("processing analysis job", "job_id", job.ID, "document", job.DocumentName)

	raw, err := w.completer.Complete(ctx, w.provider, analysis.BuildMessages(job.DocumentName, job.Content))
	if err != nil {
		w.fail(ctx, job, "model call failed: "+err.Error())
		return true, nil
	}

	result, err := analysis.ParseOutcome(raw).MarshalResult()
	if err != nil {
		w.fail(ctx, job, "encode analysis result: "+err.Error())
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID, result); err != nil {
		w.log.Error("complete job", "job_id", job.ID, "error", err)
		return true, nil
	}
	w.log.Info("analysis job completed", "job_id", job.ID)
	return true, nil
}

func (w *Worker) fail(ctx context.Context, job *store.Job, reason string) {
	w.log.Error("analysis job failed",
		"job_id", job.ID, "document", job.DocumentName, "reason", reason)
	if err := w.store.FailJob(ctx, job.ID, reason); err != nil {
		w.log.Error("record job failure", "job_id", job.ID, "error", err)
		return
	}
	if w.notify != nil {
		w.notify.JobFailed(ctx, job.ID, job.DocumentName, reason)
	}
}

func (w *Worker) requeueStale(ctx context.Context) {
	n, err := w.store.RequeueStaleJobs(ctx, w.staleAfter)
	if err != nil {
		w.log.Error("requeue stale jobs", "error", err)
		return
	}
	if n > 0 {
		w.log.Warn("requeued orphaned processing jobs", "count", n)
	}
}

func (w *Worker) prune(ctx context.Context) {
	n, err := w.store.PruneJobs(ctx, w.retention)
	if err != nil {
		w.log.Error("prune jobs", "error", err)
		return
	}
	if n > 0 {
		w.log.Info("pruned finished jobs", "count", n)
	}
}
