package constants

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobStatusQueued JobStatus = "QUEUED"
	JobStatusDone   JobStatus = "DONE"
	JobStatusFailed JobStatus = "FAILED" // ran past its deadline; the result is a fallback
)
