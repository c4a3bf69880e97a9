package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/candsearch/internal/evaluation"
	"github.com/kalambet/candsearch/internal/jobs"
	"github.com/kalambet/candsearch/internal/record"
	"github.com/kalambet/candsearch/internal/reranking"
	"github.com/kalambet/candsearch/internal/retrieval"
)

// --- mocks ---

type mockSearcher struct {
	calls    []string
	searchFn func(ctx context.Context, query string, topK int) ([]record.Candidate, error)
}

func (m *mockSearcher) Search(ctx context.Context, query string, topK int) ([]record.Candidate, error) {
	m.calls = append(m.calls, query)
	return m.searchFn(ctx, query, topK)
}

type mockRanker struct {
	calls    int
	rerankFn func(ctx context.Context, query string, cands []record.Candidate, topN int) ([]record.Candidate, error)
}

func (m *mockRanker) Rerank(ctx context.Context, query string, cands []record.Candidate, topN int) ([]record.Candidate, error) {
	m.calls++
	if m.rerankFn != nil {
		return m.rerankFn(ctx, query, cands, topN)
	}
	if len(cands) > topN {
		cands = cands[:topN]
	}
	return cands, nil
}

type submission struct {
	config string
	ids    []string
}

type mockSubmitter struct {
	subs     []submission
	submitFn func(ctx context.Context, config string, ids []string) (evaluation.Response, error)
}

func (m *mockSubmitter) Submit(ctx context.Context, config string, ids []string) (evaluation.Response, error) {
	m.subs = append(m.subs, submission{config: config, ids: ids})
	if m.submitFn != nil {
		return m.submitFn(ctx, config, ids)
	}
	return evaluation.Response{"average_final_score": json.Number("50")}, nil
}

type mockScorer struct {
	predictFn func(ctx context.Context, pairs []reranking.Pair) ([]float64, error)
}

func (m *mockScorer) Predict(ctx context.Context, pairs []reranking.Pair) ([]float64, error) {
	return m.predictFn(ctx, pairs)
}

// --- helpers ---

func someCandidates(n int) []record.Candidate {
	out := make([]record.Candidate, n)
	for i := range out {
		out[i] = record.Mapping{"id": fmt.Sprintf("cand-%d", i), "rerankSummary": fmt.Sprintf("summary %d", i)}
	}
	return out
}

func threeJobs() []jobs.Job {
	return []jobs.Job{
		{ConfigPath: "a.yml", Query: "query a"},
		{ConfigPath: "b.yml", Query: "query b"},
		{ConfigPath: "c.yml", Query: "query c"},
	}
}

// --- tests ---

func TestRun_FailureIsIsolated(t *testing.T) {
	searcher := &mockSearcher{
		searchFn: func(_ context.Context, query string, _ int) ([]record.Candidate, error) {
			if query == "query b" {
				return nil, fmt.Errorf("%w: index unavailable", retrieval.ErrRetrieval)
			}
			return someCandidates(20), nil
		},
	}
	submitter := &mockSubmitter{}
	r := NewRunner(searcher, &mockRanker{}, submitter, Options{TopK: 50, TopN: 10})

	rep := r.Run(context.Background(), threeJobs(), Hooks{})

	if len(rep.Outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(rep.Outcomes))
	}
	want := []Status{StatusSuccess, StatusFailed, StatusSuccess}
	for i, o := range rep.Outcomes {
		if o.Status != want[i] {
			t.Errorf("outcome %d status = %s, want %s", i, o.Status, want[i])
		}
	}
	failed := rep.Outcomes[1]
	if failed.Stage != StatusRetrieving {
		t.Errorf("failed stage = %s, want RETRIEVING", failed.Stage)
	}
	if !strings.Contains(failed.Error, "index unavailable") {
		t.Errorf("error = %q", failed.Error)
	}
	if len(submitter.subs) != 2 {
		t.Errorf("submissions = %d, want 2", len(submitter.subs))
	}
	if rep.Succeeded() != 2 || rep.Failed() != 1 || rep.NoResults() != 0 {
		t.Errorf("counts = %d/%d/%d", rep.Succeeded(), rep.Failed(), rep.NoResults())
	}
	if rep.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestProcess_NoResultsSkipsRerankAndSubmit(t *testing.T) {
	searcher := &mockSearcher{
		searchFn: func(_ context.Context, _ string, _ int) ([]record.Candidate, error) {
			return nil, nil
		},
	}
	ranker := &mockRanker{}
	submitter := &mockSubmitter{}
	r := NewRunner(searcher, ranker, submitter, Options{})

	out := r.Process(context.Background(), jobs.Job{ConfigPath: "x.yml", Query: "q"})

	if out.Status != StatusNoResults {
		t.Errorf("status = %s, want NO_RESULTS", out.Status)
	}
	if out.Error != "" {
		t.Errorf("error = %q, want empty", out.Error)
	}
	if ranker.calls != 0 {
		t.Errorf("ranker called %d times, want 0", ranker.calls)
	}
	if len(submitter.subs) != 0 {
		t.Errorf("submitter called %d times, want 0", len(submitter.subs))
	}
}

func TestRun_PreservesJobOrder(t *testing.T) {
	searcher := &mockSearcher{
		searchFn: func(_ context.Context, _ string, _ int) ([]record.Candidate, error) {
			return someCandidates(3), nil
		},
	}
	r := NewRunner(searcher, &mockRanker{}, &mockSubmitter{}, Options{TopN: 10})

	var started, finished []string
	hooks := Hooks{
		JobStarted: func(i, n int, job jobs.Job) {
			if n != 3 {
				t.Errorf("total = %d, want 3", n)
			}
			started = append(started, fmt.Sprintf("%d:%s", i, job.ConfigPath))
		},
		JobFinished: func(i, _ int, out Outcome) {
			if !out.Status.Terminal() {
				t.Errorf("job %d finished in non-terminal state %s", i, out.Status)
			}
			finished = append(finished, fmt.Sprintf("%d:%s", i, out.Job.ConfigPath))
		},
	}
	rep := r.Run(context.Background(), threeJobs(), hooks)

	want := []string{"1:a.yml", "2:b.yml", "3:c.yml"}
	if strings.Join(started, ",") != strings.Join(want, ",") {
		t.Errorf("started = %v, want %v", started, want)
	}
	if strings.Join(finished, ",") != strings.Join(want, ",") {
		t.Errorf("finished = %v, want %v", finished, want)
	}
	if got := strings.Join(searcher.calls, ","); got != "query a,query b,query c" {
		t.Errorf("search order = %s", got)
	}
	for i, o := range rep.Outcomes {
		if o.Job != threeJobs()[i] {
			t.Errorf("outcome %d job = %+v", i, o.Job)
		}
	}
}

func TestProcess_TaxLawyerExample(t *testing.T) {
	// 50 candidates, two of which have no summary.
	cands := make([]record.Candidate, 50)
	for i := range cands {
		row := record.Row{ID: fmt.Sprintf("p%02d", i), Attrs: map[string]any{}}
		if i != 7 && i != 31 {
			row.Attrs["rerankSummary"] = fmt.Sprintf("attorney %02d", i)
		}
		cands[i] = row
	}
	searcher := &mockSearcher{
		searchFn: func(_ context.Context, _ string, topK int) ([]record.Candidate, error) {
			if topK != 50 {
				t.Errorf("topK = %d, want 50", topK)
			}
			return cands, nil
		},
	}
	var scoredPairs int
	scorer := &mockScorer{
		predictFn: func(_ context.Context, pairs []reranking.Pair) ([]float64, error) {
			scoredPairs = len(pairs)
			// Later candidates score higher.
			out := make([]float64, len(pairs))
			for i, p := range pairs {
				var n int
				fmt.Sscanf(p.Document, "attorney %d", &n)
				out[i] = float64(n)
			}
			return out, nil
		},
	}
	submitter := &mockSubmitter{}
	r := NewRunner(searcher, reranking.NewReranker(scorer), submitter, Options{TopK: 50, TopN: 10})

	job := jobs.Defaults()[0]
	out := r.Process(context.Background(), job)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %s (%s), want SUCCESS", out.Status, out.Error)
	}
	if scoredPairs != 48 {
		t.Errorf("scored %d pairs, want 48", scoredPairs)
	}
	if len(submitter.subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(submitter.subs))
	}
	sub := submitter.subs[0]
	if sub.config != "tax_lawyer.yml" {
		t.Errorf("config_path = %q, want tax_lawyer.yml", sub.config)
	}
	want := []string{"p49", "p48", "p47", "p46", "p45", "p44", "p43", "p42", "p41", "p40"}
	if strings.Join(sub.ids, ",") != strings.Join(want, ",") {
		t.Errorf("object_ids = %v, want %v", sub.ids, want)
	}
	if strings.Join(out.ObjectIDs, ",") != strings.Join(want, ",") {
		t.Errorf("outcome ids = %v", out.ObjectIDs)
	}
}

func TestProcess_StageErrors(t *testing.T) {
	ok := &mockSearcher{searchFn: func(_ context.Context, _ string, _ int) ([]record.Candidate, error) {
		return someCandidates(5), nil
	}}
	tests := []struct {
		name      string
		searcher  *mockSearcher
		ranker    *mockRanker
		submitter *mockSubmitter
		wantStage Status
		wantErr   error
	}{
		{
			name: "embedding",
			searcher: &mockSearcher{searchFn: func(_ context.Context, _ string, _ int) ([]record.Candidate, error) {
				return nil, fmt.Errorf("%w: 401", retrieval.ErrEmbedding)
			}},
			ranker:    &mockRanker{},
			submitter: &mockSubmitter{},
			wantStage: StatusRetrieving,
			wantErr:   retrieval.ErrEmbedding,
		},
		{
			name:     "rerank",
			searcher: ok,
			ranker: &mockRanker{rerankFn: func(_ context.Context, _ string, _ []record.Candidate, _ int) ([]record.Candidate, error) {
				return nil, fmt.Errorf("%w: model down", reranking.ErrRerank)
			}},
			submitter: &mockSubmitter{},
			wantStage: StatusReranking,
			wantErr:   reranking.ErrRerank,
		},
		{
			name:     "submission",
			searcher: ok,
			ranker:   &mockRanker{},
			submitter: &mockSubmitter{submitFn: func(_ context.Context, _ string, _ []string) (evaluation.Response, error) {
				return nil, fmt.Errorf("%w: not JSON", evaluation.ErrSubmission)
			}},
			wantStage: StatusSubmitting,
			wantErr:   evaluation.ErrSubmission,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(tt.searcher, tt.ranker, tt.submitter, Options{})
			out := r.Process(context.Background(), jobs.Job{ConfigPath: "x.yml", Query: "q"})
			if out.Status != StatusFailed {
				t.Fatalf("status = %s, want FAILED", out.Status)
			}
			if out.Stage != tt.wantStage {
				t.Errorf("stage = %s, want %s", out.Stage, tt.wantStage)
			}
			if !strings.Contains(out.Error, tt.wantErr.Error()) {
				t.Errorf("error = %q, want it to mention %q", out.Error, tt.wantErr)
			}
		})
	}
}

func TestProcess_PanicBecomesFailure(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(_ context.Context, _ string, _ int) ([]record.Candidate, error) {
		return someCandidates(2), nil
	}}
	ranker := &mockRanker{rerankFn: func(_ context.Context, _ string, _ []record.Candidate, _ int) ([]record.Candidate, error) {
		panic("index out of range")
	}}
	r := NewRunner(searcher, ranker, &mockSubmitter{}, Options{})

	rep := r.Run(context.Background(), threeJobs(), Hooks{})
	if rep.Failed() != 3 {
		t.Fatalf("failed = %d, want 3", rep.Failed())
	}
	o := rep.Outcomes[0]
	if o.Stage != StatusReranking || !strings.Contains(o.Error, "index out of range") {
		t.Errorf("outcome = %+v", o)
	}
}

func TestRun_CancelledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	searcher := &mockSearcher{searchFn: func(_ context.Context, query string, _ int) ([]record.Candidate, error) {
		if query == "query a" {
			cancel()
		}
		return someCandidates(2), nil
	}}
	submitter := &mockSubmitter{submitFn: func(ctx context.Context, _ string, _ []string) (evaluation.Response, error) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", evaluation.ErrSubmission, err)
		}
		return evaluation.Response{}, nil
	}}
	r := NewRunner(searcher, &mockRanker{}, submitter, Options{})

	rep := r.Run(ctx, threeJobs(), Hooks{})
	if len(rep.Outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(rep.Outcomes))
	}
	if rep.Failed() != 3 {
		t.Errorf("failed = %d, want 3", rep.Failed())
	}
	if len(searcher.calls) != 1 {
		t.Errorf("search calls = %d, want 1", len(searcher.calls))
	}
	if rep.Outcomes[1].Stage != StatusPending {
		t.Errorf("skipped job stage = %s, want PENDING", rep.Outcomes[1].Stage)
	}
}

func TestReport_AverageScore(t *testing.T) {
	rep := Report{Outcomes: []Outcome{
		{Status: StatusSuccess, Response: evaluation.Response{"average_final_score": json.Number("80")}},
		{Status: StatusSuccess, Response: evaluation.Response{"average_final_score": json.Number("60.5")}},
		{Status: StatusSuccess, Response: evaluation.Response{"detail": "no score"}},
		{Status: StatusFailed},
		{Status: StatusNoResults},
	}}
	avg, ok := rep.AverageScore()
	if !ok || avg != 70.25 {
		t.Errorf("AverageScore = %v, %v; want 70.25, true", avg, ok)
	}
	if rep.Succeeded() != 3 || rep.Failed() != 1 || rep.NoResults() != 1 {
		t.Errorf("counts = %d/%d/%d", rep.Succeeded(), rep.Failed(), rep.NoResults())
	}

	if _, ok := (Report{}).AverageScore(); ok {
		t.Error("empty report reported an average")
	}
}

func TestObjectIDs_DropsUnresolvable(t *testing.T) {
	got := ObjectIDs([]record.Candidate{
		record.Mapping{"id": "a"},
		record.Mapping{"name": "no id"},
		record.Row{ID: "b"},
	})
	if strings.Join(got, ",") != "a,b" {
		t.Errorf("ids = %v, want [a b]", got)
	}
}

func TestProcess_PlainErrorText(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(_ context.Context, _ string, _ int) ([]record.Candidate, error) {
		return nil, errors.New("boom")
	}}
	out := NewRunner(searcher, &mockRanker{}, &mockSubmitter{}, Options{}).Process(context.Background(), jobs.Job{ConfigPath: "x", Query: "q"})
	if out.Status != StatusFailed || out.Error != "boom" {
		t.Errorf("outcome = %+v", out)
	}
}
