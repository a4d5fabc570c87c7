package model

import "time"

// RunStatus is the overall outcome of one engine run.
type RunStatus string

const (
	// RunSuccess means every plan entry completed.
	RunSuccess RunStatus = "success"
	// RunPartialFailure means the run completed but some entries failed.
	RunPartialFailure RunStatus = "partial-failure"
	// RunFatal means a precondition failure prevented any plan from
	// being computed or executed.
	RunFatal RunStatus = "fatal"
)

// ExitCode maps the run status to the process exit code.
func (s RunStatus) ExitCode() int {
	switch s {
	case RunSuccess:
		return 0
	case RunPartialFailure:
		return 1
	default:
		return 2
	}
}

// Failure records one non-fatal per-entry error for the run report.
type Failure struct {
	TrackID string `json:"trackId"`
	Reason  Reason `json:"reason"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RunReport summarizes one engine run.
type RunReport struct {
	RunID            string        `json:"runId"`
	DryRun           bool          `json:"dryRun"`
	StartedAt        time.Time     `json:"startedAt"`
	FinishedAt       time.Time     `json:"finishedAt"`
	Created          int           `json:"created"`
	Updated          int           `json:"updated"`
	Deleted          int           `json:"deleted"`
	Skipped          int           `json:"skipped"`
	Failed           int           `json:"failed"`
	PlaylistsSynced  int           `json:"playlistsSynced"`
	PlaylistsFailed  int           `json:"playlistsFailed"`
	BytesTransferred int64         `json:"bytesTransferred"`
	Failures         []Failure     `json:"failures,omitempty"`
	// Cancelled marks a run interrupted before every plan entry was
	// attempted; the device may not be fully converged.
	Cancelled bool          `json:"cancelled"`
	Status    RunStatus     `json:"status"`
	Duration  time.Duration `json:"duration"`
}
