package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/candsearch/internal/config"
	"github.com/kalambet/candsearch/internal/jobs"
	"github.com/kalambet/candsearch/internal/pipeline"
	"github.com/kalambet/candsearch/internal/storage"
)

const rule = "======================================================================"

// --- run ---

type runOptions struct {
	JobsFile string
	Only     []string
	TopK     int
	TopN     int
	NoSave   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every job through retrieval, reranking and evaluation",
	Long: `Run every job through retrieval, reranking and evaluation.

Jobs run one at a time in definition order. A failing job is reported and
the batch continues.

Examples:
  candsearch run
  candsearch run --jobs ./jobs.yaml
  candsearch run --only tax_lawyer --top-k 100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := runOptions{}
		opts.JobsFile, _ = cmd.Flags().GetString("jobs")
		opts.Only, _ = cmd.Flags().GetStringSlice("only")
		opts.TopK, _ = cmd.Flags().GetInt("top-k")
		opts.TopN, _ = cmd.Flags().GetInt("top-n")
		opts.NoSave, _ = cmd.Flags().GetBool("no-save")

		_, err = runBatch(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		return err
	},
}

func init() {
	runCmd.Flags().String("jobs", "", "YAML job file (default: jobs.file or the built-in jobs)")
	runCmd.Flags().StringSlice("only", nil, "run only the jobs with these config names")
	runCmd.Flags().Int("top-k", 0, "candidates to retrieve per query (default: retrieval.top_k)")
	runCmd.Flags().Int("top-n", 0, "candidates to submit per query (default: retrieval.top_n)")
	runCmd.Flags().Bool("no-save", false, "do not store the run in the history database")
}

func effectiveJobs(cfg config.Config, file string, only []string) ([]jobs.Job, error) {
	if file == "" {
		file = cfg.Jobs.File
	}
	all, err := jobs.Load(file)
	if err != nil {
		return nil, err
	}
	return jobs.Filter(all, only)
}

// runBatch processes the selected jobs and prints progress and the summary
// to w. Individual job failures do not make it return an error.
func runBatch(ctx context.Context, cfg config.Config, opts runOptions, w io.Writer) (pipeline.Report, error) {
	if err := cfg.ValidateRun(); err != nil {
		return pipeline.Report{}, err
	}
	selected, err := effectiveJobs(cfg, opts.JobsFile, opts.Only)
	if err != nil {
		return pipeline.Report{}, err
	}

	comps, err := buildComponents(ctx, cfg, statusOut)
	if err != nil {
		return pipeline.Report{}, err
	}
	defer comps.Close()

	topK, topN := cfg.Retrieval.TopK, cfg.Retrieval.TopN
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	if opts.TopN > 0 {
		topN = opts.TopN
	}

	printStatus("Embedding", "%s (%s)", cfg.Embedding.Model, cfg.Embedding.Provider)
	printStatus("Index", "%s/%s", cfg.Index.Backend, cfg.Index.Collection)
	printStatus("Reranker", "%s", cfg.Reranker.Model)
	printStep("Processing %d query configurations", len(selected))
	fmt.Fprintln(w, rule)

	runner := buildRunner(comps, cfg, topK, topN)
	rep := runner.Run(ctx, selected, pipeline.Hooks{
		JobStarted: func(i, n int, job jobs.Job) {
			fmt.Fprintf(w, "\n[%d/%d] Processing: %s\n", i, n, job.ConfigPath)
			fmt.Fprintln(w, strings.Repeat("-", len(rule)))
		},
		JobFinished: func(_, _ int, out pipeline.Outcome) {
			printOutcome(w, out)
		},
	})

	printSummary(w, rep)

	if !opts.NoSave {
		if err := saveReport(context.WithoutCancel(ctx), cfg.Storage.DataDir, rep); err != nil {
			printWarning("run not saved: %v", err)
		} else {
			printSuccess("Saved run %s", rep.RunID)
		}
	}
	return rep, nil
}

func printOutcome(w io.Writer, out pipeline.Outcome) {
	switch out.Status {
	case pipeline.StatusSuccess:
		fmt.Fprintf(w, "Status: %s\n", green(string(out.Status)))
		if score, ok := out.Response.AverageFinalScore(); ok {
			fmt.Fprintf(w, "Average Score: %.2f/100\n", score)
		}
	case pipeline.StatusFailed:
		fmt.Fprintf(w, "Status: %s\n", red(string(out.Status)))
		fmt.Fprintf(w, "Error (%s): %s\n", strings.ToLower(string(out.Stage)), out.Error)
	default:
		fmt.Fprintf(w, "Status: %s\n", yellow(string(out.Status)))
	}
}

func printSummary(w io.Writer, rep pipeline.Report) {
	n := len(rep.Outcomes)
	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, bold("EXECUTION SUMMARY"))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run: %s (%s)\n", rep.RunID, rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "Successful: %d/%d\n", rep.Succeeded(), n)
	fmt.Fprintf(w, "Failed: %d/%d\n", rep.Failed(), n)
	if nr := rep.NoResults(); nr > 0 {
		fmt.Fprintf(w, "No results: %d/%d\n", nr, n)
	}
	if avg, ok := rep.AverageScore(); ok {
		fmt.Fprintf(w, "Mean Average Score: %.2f/100\n", avg)
	}
	fmt.Fprintln(w)
	for _, o := range rep.Outcomes {
		fmt.Fprintf(w, "[%s] %s\n", o.Status, o.Job.ConfigPath)
	}
	fmt.Fprintln(w, rule)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Retrieve and rerank candidates for a query without submitting",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		topK, _ := cmd.Flags().GetInt("top-k")
		topN, _ := cmd.Flags().GetInt("top-n")
		return searchOnce(cmd.Context(), cfg, strings.Join(args, " "), topK, topN, cmd.OutOrStdout())
	},
}

func init() {
	searchCmd.Flags().Int("top-k", 0, "candidates to retrieve (default: retrieval.top_k)")
	searchCmd.Flags().Int("top-n", 0, "candidates to show (default: retrieval.top_n)")
}

func searchOnce(ctx context.Context, cfg config.Config, query string, topK, topN int, w io.Writer) error {
	if err := cfg.ValidateSearch(); err != nil {
		return err
	}
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}
	if topN <= 0 {
		topN = cfg.Retrieval.TopN
	}

	comps, err := buildComponents(ctx, cfg, statusOut)
	if err != nil {
		return err
	}
	defer comps.Close()

	cands, err := comps.retriever.Search(ctx, query, topK)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		printWarning("No candidates found")
		return nil
	}
	printStep("Retrieved %d candidates", len(cands))

	ranked, err := comps.reranker.RerankScored(ctx, query, cands, topN)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tSCORE\tSUMMARY")
	for i, s := range ranked {
		id, ok := s.Candidate.Identifier()
		if !ok {
			id = "(none)"
		}
		score := "-"
		if s.Scored {
			score = fmt.Sprintf("%.4f", s.Score)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, id, score, truncate(s.Candidate.Summary(), 80))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the jobs a run would process",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("jobs")
		only, _ := cmd.Flags().GetStringSlice("only")
		selected, err := effectiveJobs(cfg, file, only)
		if err != nil {
			return err
		}
		printJobs(cmd.OutOrStdout(), selected)
		return nil
	},
}

func init() {
	jobsCmd.Flags().String("jobs", "", "YAML job file (default: jobs.file or the built-in jobs)")
	jobsCmd.Flags().StringSlice("only", nil, "list only the jobs with these config names")
}

func printJobs(w io.Writer, all []jobs.Job) {
	for i, j := range all {
		fmt.Fprintf(w, "%2d. %s\n    %s\n", i+1, cyan(j.ConfigPath), j.Query)
	}
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored batch runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}
		return printRuns(cmd.OutOrStdout(), runs)
	},
}

func printRuns(w io.Writer, runs []storage.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tJOBS\tOK\tFAILED\tEMPTY\tAVG SCORE")
	for _, r := range runs {
		avg := "-"
		if r.AverageScore != nil {
			avg = fmt.Sprintf("%.2f", *r.AverageScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			shortID(r.ID), r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.JobCount, r.Succeeded, r.Failed, r.NoResults, avg)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored run and its outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		run, outcomes, err := store.GetRun(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no run with id %q", args[0])
		}
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Run      storage.Run          `json:"run"`
				Outcomes []storage.RunOutcome `json:"outcomes"`
			}{run, outcomes})
		}
		printRun(cmd.OutOrStdout(), run, outcomes)
		return nil
	},
}

func printRun(w io.Writer, run storage.Run, outcomes []storage.RunOutcome) {
	fmt.Fprintf(w, "%s %s\n", bold("Run"), run.ID)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "Successful: %d/%d  Failed: %d/%d  No results: %d/%d\n",
		run.Succeeded, run.JobCount, run.Failed, run.JobCount, run.NoResults, run.JobCount)
	if run.AverageScore != nil {
		fmt.Fprintf(w, "Mean Average Score: %.2f/100\n", *run.AverageScore)
	}
	for _, o := range outcomes {
		fmt.Fprintf(w, "\n[%s] %s (%dms)\n", o.Status, o.ConfigPath, o.DurationMs)
		if o.Error != "" {
			fmt.Fprintf(w, "  error (%s): %s\n", strings.ToLower(o.Stage), o.Error)
		}
		if len(o.ObjectIDs) > 0 {
			fmt.Fprintf(w, "  object_ids: %s\n", strings.Join(o.ObjectIDs, ", "))
		}
		if o.Response != "" {
			fmt.Fprintf(w, "  response: %s\n", o.Response)
		}
	}
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsShowCmd.Flags().Bool("json", false, "print the run as JSON")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "# %s\n", config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(w, "  %s = %s  (%s)\n", bold(k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value in the config file. Valid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
