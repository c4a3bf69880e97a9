package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kalambet/candsearch/internal/pipeline"
	"github.com/kalambet/candsearch/internal/storage"
)

// toStoredRun converts a report into its storage rows.
func toStoredRun(rep pipeline.Report) (storage.Run, []storage.RunOutcome) {
	run := storage.Run{
		ID:         rep.RunID,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		JobCount:   len(rep.Outcomes),
		Succeeded:  rep.Succeeded(),
		Failed:     rep.Failed(),
		NoResults:  rep.NoResults(),
	}
	if avg, ok := rep.AverageScore(); ok {
		run.AverageScore = &avg
	}

	outcomes := make([]storage.RunOutcome, len(rep.Outcomes))
	for i, o := range rep.Outcomes {
		var resp string
		if o.Response != nil {
			if b, err := json.Marshal(o.Response); err == nil {
				resp = string(b)
			}
		}
		outcomes[i] = storage.RunOutcome{
			RunID:      rep.RunID,
			Position:   i,
			ConfigPath: o.Job.ConfigPath,
			Query:      o.Job.Query,
			Status:     string(o.Status),
			Stage:      string(o.Stage),
			Error:      o.Error,
			ObjectIDs:  o.ObjectIDs,
			Response:   resp,
			DurationMs: o.Duration.Milliseconds(),
		}
	}
	return run, outcomes
}

// saveReport stores rep in the run history under dataDir.
func saveReport(ctx context.Context, dataDir string, rep pipeline.Report) error {
	store, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	run, outcomes := toStoredRun(rep)
	if err := store.SaveRun(ctx, run, outcomes); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}
