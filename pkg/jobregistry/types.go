package jobregistry

import "github.com/3leaps/protsearch/pkg/jobid"

// JobStatus is the lifecycle state of a search job.
//
// NOTE: Status is never persisted. It is derived from which files exist for a
// job id (see DeriveStatus), and the string values are part of the API
// contract.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// DeriveStatus maps file presence to a JobStatus. ok is false when the job
// does not exist, which is the case whenever the query file is missing.
//
// A result file always wins over a failure marker: the search tool's output
// is the only completion signal.
func DeriveStatus(queryExists, resultExists, failedExists bool) (status JobStatus, ok bool) {
	switch {
	case !queryExists:
		return "", false
	case resultExists:
		return JobStatusCompleted, true
	case failedExists:
		return JobStatusFailed, true
	default:
		return JobStatusProcessing, true
	}
}

// ResultRow is one alignment hit from the search tool's tabular output.
// Values are passed through as-is after type coercion.
type ResultRow struct {
	Target      string  `json:"target" yaml:"target"`
	PIdentity   float64 `json:"p_identity" yaml:"p_identity"`
	AlgnLength  int     `json:"algn_length" yaml:"algn_length"`
	Mismatches  int     `json:"mismatches" yaml:"mismatches"`
	GapOpenings int     `json:"gap_openings" yaml:"gap_openings"`
	EValue      string  `json:"e_value" yaml:"e_value"`
	BitScore    float64 `json:"bit_score" yaml:"bit_score"`
}

// JobSummary is the index view of a job, without row data.
type JobSummary struct {
	JobID  jobid.ID  `json:"job_id" yaml:"job_id"`
	Status JobStatus `json:"status" yaml:"status"`
}

// JobResult is the detail view of a job. Rows is nil unless Status is
// JobStatusCompleted.
type JobResult struct {
	JobID  jobid.ID    `json:"job_id" yaml:"job_id"`
	Status JobStatus   `json:"status" yaml:"status"`
	Rows   []ResultRow `json:"result" yaml:"result"`
	// Reason carries the failure marker contents for failed jobs.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}
