package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/w2-extractor/constants"
	"github.com/joseph-ayodele/w2-extractor/internal/pipeline"
	"github.com/joseph-ayodele/w2-extractor/internal/result"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document to process.
type Job struct {
	ID          uuid.UUID
	Input       pipeline.Input
	ContentHash string
	SubmittedAt time.Time
}

// NewJob returns a Job for the file at path.
func NewJob(path, mediaType, contentHash string) Job {
	return Job{
		ID:          uuid.New(),
		Input:       pipeline.Input{Path: path, MediaType: mediaType},
		ContentHash: contentHash,
		SubmittedAt: time.Now(),
	}
}

// Outcome pairs a finished job with its result.
type Outcome struct {
	Job      Job
	Result   result.ExtractionResult
	Status   constants.JobStatus
	WorkerID int
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
