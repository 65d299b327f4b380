package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/w2-extractor/constants"
	"github.com/joseph-ayodele/w2-extractor/internal/common"
	"github.com/joseph-ayodele/w2-extractor/internal/pipeline"
	"github.com/joseph-ayodele/w2-extractor/internal/result"
)

type fakeProcessor struct {
	calls atomic.Int32
	block chan struct{}
}

func (f *fakeProcessor) Process(ctx context.Context, in pipeline.Input) result.ExtractionResult {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return result.ExtractionResult{
		DocumentType: constants.DocumentTypeW2,
		Method:       constants.MethodPatternMatched,
		Confidence:   0.9,
		RequestID:    common.RequestIDFromContext(ctx),
		Message:      in.Path,
	}
}

func TestQueueProcessesAllJobs(t *testing.T) {
	proc := &fakeProcessor{}
	var (
		mu   sync.Mutex
		outs []Outcome
	)
	q := NewProcessorQueue(proc, nil,
		WithWorkers(3),
		WithQueueSize(2),
		WithResultHandler(func(o Outcome) {
			mu.Lock()
			outs = append(outs, o)
			mu.Unlock()
		}),
	)

	paths := []string{"a.pdf", "b.pdf", "c.png", "d.txt", "e.jpg"}
	for _, p := range paths {
		require.NoError(t, q.Enqueue(context.Background(), NewJob(p, "", "")))
	}
	q.Shutdown(context.Background())

	assert.EqualValues(t, len(paths), proc.calls.Load())
	require.Len(t, outs, len(paths))
	seen := map[string]bool{}
	for _, o := range outs {
		seen[o.Result.Message] = true
		assert.Equal(t, o.Job.ID.String(), o.Result.RequestID)
		assert.Positive(t, o.WorkerID)
		assert.Equal(t, constants.JobStatusDone, o.Status)
	}
	for _, p := range paths {
		assert.True(t, seen[p], p)
	}
}

func TestQueueRejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&fakeProcessor{}, nil, WithWorkers(1))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), NewJob("late.pdf", "", ""))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueEnqueueHonorsContextUnderBackpressure(t *testing.T) {
	proc := &fakeProcessor{block: make(chan struct{})}
	q := NewProcessorQueue(proc, nil, WithWorkers(1), WithQueueSize(1))

	require.NoError(t, q.Enqueue(context.Background(), NewJob("1.pdf", "", "")))
	require.Eventually(t, func() bool { return proc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), NewJob("2.pdf", "", "")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, NewJob("3.pdf", "", ""))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(proc.block)
	q.Shutdown(context.Background())
	assert.EqualValues(t, 2, proc.calls.Load())
}

func TestQueueJobTimeout(t *testing.T) {
	proc := &fakeProcessor{block: make(chan struct{})}
	done := make(chan Outcome, 1)
	q := NewProcessorQueue(proc, nil,
		WithWorkers(1),
		WithProcessTimeout(10*time.Millisecond),
		WithResultHandler(func(o Outcome) { done <- o }),
	)
	require.NoError(t, q.Enqueue(context.Background(), NewJob("slow.pdf", "", "")))

	select {
	case o := <-done:
		assert.Equal(t, "slow.pdf", o.Result.Message)
		assert.Equal(t, constants.JobStatusFailed, o.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish after its timeout")
	}
	q.Shutdown(context.Background())
}
