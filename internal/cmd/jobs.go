package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/protsearch/pkg/jobid"
	"github.com/3leaps/protsearch/pkg/jobregistry"
	"github.com/3leaps/protsearch/pkg/output"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and clean up search jobs",
	Long: `Inspect and clean up search jobs in the configured job directories.

Job ids may be abbreviated to any unique prefix.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsResultsCmd = &cobra.Command{
	Use:   "results <job_id>",
	Short: "Show parsed results for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResults,
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete jobs older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runJobsGC,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsResultsCmd)
	jobsCmd.AddCommand(jobsGCCmd)

	addFormatFlags(jobsListCmd)
	jobsListCmd.Flags().Bool("jsonl", false, "Stream one JSON record per job in directory order, then a summary")
	jobsListCmd.MarkFlagsMutuallyExclusive("json", "yaml", "jsonl")
	addFormatFlags(jobsStatusCmd)
	addFormatFlags(jobsResultsCmd)
	addFormatFlags(jobsGCCmd)
	jobsGCCmd.Flags().String("max-age", "", "Delete jobs older than this duration (default: storage.retention_days)")
	jobsGCCmd.Flags().Bool("dry-run", false, "Show how many jobs would be deleted")
}

func jobsStore(cmd *cobra.Command) (*jobregistry.Store, time.Duration, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, 0, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, 0, err
	}
	return store, cfg.Storage.Retention(), nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	store, retention, err := jobsStore(cmd)
	if err != nil {
		return err
	}
	if stream, _ := cmd.Flags().GetBool("jsonl"); stream {
		return streamJobs(commandContext(cmd), output.NewJSONLWriter(cmd.OutOrStdout()), store, retention)
	}

	jobs, err := store.List()
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []jobregistry.JobSummary{}
	}

	out := cmd.OutOrStdout()
	if done, err := writeStructured(out, formatFromFlags(cmd), jobs); done || err != nil {
		return err
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(out, "No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tSTATUS\tSUBMITTED")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", j.JobID, j.Status, j.JobID.Time().UTC().Format(time.RFC3339))
	}
	return nil
}

// streamJobs writes jobs as they are found instead of sorting them first,
// so large job directories start producing output immediately.
func streamJobs(ctx context.Context, w output.Writer, store *jobregistry.Store, retention time.Duration) error {
	defer func() { _ = w.Close() }()

	started := time.Now()
	sum := &output.SummaryRecord{ByStatus: map[string]int{}}
	for id, err := range store.Jobs() {
		if err != nil {
			return err
		}
		status, err := store.Status(id)
		if err != nil {
			rec := &output.ErrorRecord{Code: output.ErrCodeInternal, Message: err.Error(), JobID: id.String()}
			if jobregistry.IsNotFound(err) {
				rec.Code = output.ErrCodeNotFound
				rec.Message = "job removed while listing"
			}
			sum.Errors++
			if err := w.WriteError(ctx, rec); err != nil {
				return err
			}
			continue
		}

		submitted := id.Time().UTC()
		if err := w.WriteJob(ctx, &output.JobRecord{
			JobID:       id.String(),
			Status:      string(status),
			SubmittedAt: submitted,
			ExpiresAt:   submitted.Add(retention),
		}); err != nil {
			return err
		}
		sum.Jobs++
		sum.ByStatus[string(status)]++
	}

	sum.Duration = time.Since(started)
	sum.DurationHuman = sum.Duration.Round(time.Millisecond).String()
	return w.WriteSummary(ctx, sum)
}

type jobStatusView struct {
	JobID       jobid.ID              `json:"job_id" yaml:"job_id"`
	Status      jobregistry.JobStatus `json:"status" yaml:"status"`
	SubmittedAt time.Time             `json:"submitted_at" yaml:"submitted_at"`
	ExpiresAt   time.Time             `json:"expires_at" yaml:"expires_at"`
	QueryFile   string                `json:"query_file" yaml:"query_file"`
	ResultFile  string                `json:"result_file,omitempty" yaml:"result_file,omitempty"`
	FailureFile string                `json:"failure_file,omitempty" yaml:"failure_file,omitempty"`
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	store, retention, err := jobsStore(cmd)
	if err != nil {
		return err
	}
	id, err := resolveJobID(store, args[0])
	if err != nil {
		return err
	}
	status, err := store.Status(id)
	if err != nil {
		return err
	}

	submitted := id.Time().UTC()
	view := jobStatusView{
		JobID:       id,
		Status:      status,
		SubmittedAt: submitted,
		ExpiresAt:   submitted.Add(retention),
		QueryFile:   store.QueryPath(id),
	}
	switch status {
	case jobregistry.JobStatusCompleted:
		view.ResultFile = store.ResultPath(id)
	case jobregistry.JobStatusFailed:
		view.FailureFile = store.FailurePath(id)
	}

	out := cmd.OutOrStdout()
	if done, err := writeStructured(out, formatFromFlags(cmd), view); done || err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "job_id=%s\n", view.JobID)
	_, _ = fmt.Fprintf(out, "status=%s\n", view.Status)
	_, _ = fmt.Fprintf(out, "submitted_at=%s\n", view.SubmittedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "expires_at=%s\n", view.ExpiresAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "query_file=%s\n", view.QueryFile)
	if view.ResultFile != "" {
		_, _ = fmt.Fprintf(out, "result_file=%s\n", view.ResultFile)
	}
	if view.FailureFile != "" {
		_, _ = fmt.Fprintf(out, "failure_file=%s\n", view.FailureFile)
	}
	return nil
}

func runJobsResults(cmd *cobra.Command, args []string) error {
	store, _, err := jobsStore(cmd)
	if err != nil {
		return err
	}
	id, err := resolveJobID(store, args[0])
	if err != nil {
		return err
	}
	res, err := store.Results(id)
	if err != nil {
		return err
	}
	return printJobResult(cmd.OutOrStdout(), formatFromFlags(cmd), res)
}

func printJobResult(out io.Writer, format outputFormat, res *jobregistry.JobResult) error {
	if done, err := writeStructured(out, format, res); done || err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "job_id=%s\n", res.JobID)
	_, _ = fmt.Fprintf(out, "status=%s\n", res.Status)
	switch res.Status {
	case jobregistry.JobStatusFailed:
		if res.Reason != "" {
			_, _ = fmt.Fprintf(out, "reason=%s\n", res.Reason)
		}
		return nil
	case jobregistry.JobStatusProcessing:
		return nil
	}
	if len(res.Rows) == 0 {
		_, _ = fmt.Fprintln(out, "No hits")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "TARGET\tIDENTITY\tLENGTH\tMISMATCH\tGAPS\tEVALUE\tBITSCORE")
	for _, row := range res.Rows {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%d\t%d\t%d\t%s\t%.1f\n",
			row.Target, row.PIdentity, row.AlgnLength, row.Mismatches, row.GapOpenings, row.EValue, row.BitScore)
	}
	return nil
}

type jobsGCResult struct {
	Scanned     int    `json:"scanned" yaml:"scanned"`
	Deleted     int    `json:"deleted" yaml:"deleted"`
	WouldDelete int    `json:"would_delete" yaml:"would_delete"`
	DryRun      bool   `json:"dry_run" yaml:"dry_run"`
	MaxAge      string `json:"max_age" yaml:"max_age"`
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	store, retention, err := jobsStore(cmd)
	if err != nil {
		return err
	}

	maxAge := retention
	if raw, _ := cmd.Flags().GetString("max-age"); strings.TrimSpace(raw) != "" {
		maxAge, err = time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid --max-age: %w", err)
		}
	}
	if maxAge <= 0 {
		return fmt.Errorf("--max-age must be > 0")
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	res := jobsGCResult{DryRun: dryRun, MaxAge: maxAge.String()}
	now := time.Now()
	if dryRun {
		expired, err := store.Expired(now, maxAge)
		if err != nil {
			return err
		}
		res.WouldDelete = len(expired)
	} else {
		swept, err := store.Sweep(now, maxAge)
		res.Scanned = swept.Scanned
		res.Deleted = swept.Deleted
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if done, err := writeStructured(out, formatFromFlags(cmd), res); done || err != nil {
		return err
	}
	if dryRun {
		_, _ = fmt.Fprintf(out, "would_delete=%d\n", res.WouldDelete)
		return nil
	}
	_, _ = fmt.Fprintf(out, "deleted=%d\n", res.Deleted)
	return nil
}

// resolveJobID accepts a full job id or a unique prefix of one.
func resolveJobID(store *jobregistry.Store, input string) (jobid.ID, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return jobid.Nil, fmt.Errorf("job_id is required")
	}

	if id, err := jobid.Parse(input); err == nil {
		return id, nil
	}

	var matches []jobid.ID
	for id, err := range store.Jobs() {
		if err != nil {
			return jobid.Nil, err
		}
		if strings.HasPrefix(id.String(), input) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return jobid.Nil, fmt.Errorf("%w: %s", jobregistry.ErrJobNotFound, input)
	case 1:
		return matches[0], nil
	default:
		return jobid.Nil, fmt.Errorf("job id prefix is ambiguous (%d matches); use the full job_id", len(matches))
	}
}
