package models

import "time"

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"

	// JobStatusNotFound is a lookup sentinel, never stored.
	JobStatusNotFound = "not_found"
)

// Job tracks async cat-fetch jobs. The API returns a job_id on
// POST /api/v1/cats/fetch; the client polls GET /api/v1/jobs/{job_id}
// until status is succeeded or failed. Job state lives in process memory
// only and does not survive a restart.
type Job struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Result       *JobResult `json:"result,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// JobResult is the success payload of a finished job.
type JobResult struct {
	NewCats int `json:"new_cats"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
