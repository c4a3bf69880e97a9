// Package pipeline drives query jobs through retrieval, reranking and
// evaluation, isolating failures per job.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/candsearch/internal/evaluation"
	"github.com/kalambet/candsearch/internal/jobs"
	"github.com/kalambet/candsearch/internal/record"
)

// Searcher returns candidates for a query in retrieval order.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]record.Candidate, error)
}

// Ranker reorders candidates by relevance to the query.
type Ranker interface {
	Rerank(ctx context.Context, query string, cands []record.Candidate, topN int) ([]record.Candidate, error)
}

// Submitter sends a ranking to the evaluator.
type Submitter interface {
	Submit(ctx context.Context, configPath string, objectIDs []string) (evaluation.Response, error)
}

// Status is the state of a job. A job moves PENDING -> RETRIEVING, then
// either to NO_RESULTS or on through RERANKING and SUBMITTING to SUCCESS.
// Any stage may end in FAILED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusRetrieving Status = "RETRIEVING"
	StatusReranking  Status = "RERANKING"
	StatusSubmitting Status = "SUBMITTING"
	StatusNoResults  Status = "NO_RESULTS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusNoResults || s == StatusSuccess || s == StatusFailed
}

// Outcome is the result of one job.
type Outcome struct {
	Job    jobs.Job
	Status Status
	// Stage is the state the job was in when it failed.
	Stage Status
	Error string
	// ObjectIDs is the submitted ranking.
	ObjectIDs []string
	Response  evaluation.Response
	Duration  time.Duration
}

// Options tunes a Runner.
type Options struct {
	TopK int
	TopN int
}

// Hooks observe progress. Either field may be nil. index is 1-based.
type Hooks struct {
	JobStarted  func(index, total int, job jobs.Job)
	JobFinished func(index, total int, out Outcome)
}

// Runner processes jobs sequentially with shared, read-only collaborators.
type Runner struct {
	searcher  Searcher
	ranker    Ranker
	submitter Submitter
	opts      Options
}

// NewRunner creates a Runner.
func NewRunner(searcher Searcher, ranker Ranker, submitter Submitter, opts Options) *Runner {
	return &Runner{
		searcher:  searcher,
		ranker:    ranker,
		submitter: submitter,
		opts:      opts,
	}
}

// Run processes every job in order, one at a time, and returns a report with
// one outcome per job. A failing job never stops the batch. Once ctx is
// cancelled the remaining jobs are recorded as FAILED without being started.
func (r *Runner) Run(ctx context.Context, all []jobs.Job, hooks Hooks) Report {
	rep := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Outcomes:  make([]Outcome, 0, len(all)),
	}
	slog.Info("starting batch", "run_id", rep.RunID, "jobs", len(all))

	for i, job := range all {
		if hooks.JobStarted != nil {
			hooks.JobStarted(i+1, len(all), job)
		}
		out := r.Process(ctx, job)
		rep.Outcomes = append(rep.Outcomes, out)
		if hooks.JobFinished != nil {
			hooks.JobFinished(i+1, len(all), out)
		}
	}

	rep.FinishedAt = time.Now().UTC()
	slog.Info("batch finished",
		"run_id", rep.RunID,
		"succeeded", rep.Succeeded(),
		"failed", rep.Failed(),
		"no_results", rep.NoResults(),
	)
	return rep
}

// Process runs one job to a terminal state. Errors and panics raised by a
// collaborator become a FAILED outcome.
func (r *Runner) Process(ctx context.Context, job jobs.Job) (out Outcome) {
	start := time.Now()
	out = Outcome{Job: job, Status: StatusPending}
	stage := StatusPending

	defer func() {
		if p := recover(); p != nil {
			slog.Error("job panicked", "config", job.ConfigPath, "stage", stage, "panic", p, "stack", string(debug.Stack()))
			out.Status = StatusFailed
			out.Stage = stage
			out.Error = fmt.Sprintf("panic: %v", p)
		}
		out.Duration = time.Since(start)
	}()

	fail := func(err error) Outcome {
		slog.Error("job failed", "config", job.ConfigPath, "stage", stage, "error", err)
		out.Status = StatusFailed
		out.Stage = stage
		out.Error = err.Error()
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	stage = StatusRetrieving
	cands, err := r.searcher.Search(ctx, job.Query, r.opts.TopK)
	if err != nil {
		return fail(err)
	}
	if len(cands) == 0 {
		slog.Warn("no candidates found", "config", job.ConfigPath)
		out.Status = StatusNoResults
		return out
	}
	slog.Info("retrieved candidates", "config", job.ConfigPath, "count", len(cands))

	stage = StatusReranking
	ranked, err := r.ranker.Rerank(ctx, job.Query, cands, r.opts.TopN)
	if err != nil {
		return fail(err)
	}
	ids := ObjectIDs(ranked)

	stage = StatusSubmitting
	slog.Info("submitting candidates for evaluation", "config", job.ConfigPath, "count", len(ids))
	resp, err := r.submitter.Submit(ctx, job.ConfigPath, ids)
	if err != nil {
		return fail(err)
	}

	slog.Info("evaluation completed", "config", job.ConfigPath)
	out.Status = StatusSuccess
	out.ObjectIDs = ids
	out.Response = resp
	return out
}

// ObjectIDs returns the identifiers of ranked candidates in order, dropping
// candidates that have none.
func ObjectIDs(ranked []record.Candidate) []string {
	ids := make([]string, 0, len(ranked))
	for i, c := range ranked {
		id, ok := c.Identifier()
		if !ok {
			slog.Warn("dropping candidate without identifier", "rank", i+1)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
