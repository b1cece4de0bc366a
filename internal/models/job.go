package models

// Job states reported by the API.
const (
	JobNew        = "new"
	JobPending    = "pending"
	JobWaiting    = "waiting"
	JobRunning    = "running"
	JobSuccessful = "successful"
	JobFailed     = "failed"
	JobError      = "error"
	JobCanceled   = "canceled"
)

// JobStatus is the summary of a job shown by the status and monitor verbs.
type JobStatus struct {
	ID      int     `json:"id"`
	Status  string  `json:"status"`
	Failed  bool    `json:"failed"`
	Elapsed float64 `json:"elapsed"`
}

// JobStatusFrom extracts the status summary from a job record.
func JobStatusFrom(r Record) JobStatus {
	js := JobStatus{
		ID:     r.ID(),
		Status: r.String("status"),
		Failed: r.Bool("failed"),
	}
	switch v := r["elapsed"].(type) {
	case float64:
		js.Elapsed = v
	case interface{ Float64() (float64, error) }:
		js.Elapsed, _ = v.Float64()
	}
	return js
}

// Finished reports whether the job reached a terminal state.
func (j JobStatus) Finished() bool {
	if j.Failed {
		return true
	}
	switch j.Status {
	case JobSuccessful, JobFailed, JobError, JobCanceled:
		return true
	}
	return false
}

// Succeeded reports a clean finish.
func (j JobStatus) Succeeded() bool {
	return j.Status == JobSuccessful && !j.Failed
}

// Record returns the summary as a Record for output.
func (j JobStatus) Record() Record {
	return Record{"id": j.ID, "status": j.Status, "failed": j.Failed, "elapsed": j.Elapsed}
}
