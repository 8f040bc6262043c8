package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingApplier records each applied batch; failures scripts the error
// returned per call, in order, before succeeding.
type capturingApplier struct {
	mu       sync.Mutex
	batches  [][]Job
	failures []error
	calls    int
}

func (a *capturingApplier) Apply(_ context.Context, jobs []Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if len(a.failures) > 0 {
		err := a.failures[0]
		a.failures = a.failures[1:]
		if err != nil {
			return err
		}
	}
	batch := make([]Job, len(jobs))
	copy(batch, jobs)
	a.batches = append(a.batches, batch)
	return nil
}

func (a *capturingApplier) batchSizes() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	sizes := make([]int, len(a.batches))
	for i, b := range a.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func (a *capturingApplier) applied() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, b := range a.batches {
		n += len(b)
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWriterFlushesAtMaxBatch(t *testing.T) {
	applier := &capturingApplier{}
	w := NewWriter(applier, WriterConfig{MaxBatch: 3, Interval: time.Hour}, zerolog.Nop())
	defer w.Close()

	for i := 0; i < 3; i++ {
		w.Enqueue(JobMessageCreated, "m", map[string]string{"n": "x"})
	}

	waitFor(t, func() bool { return applier.applied() == 3 })
	assert.Equal(t, []int{3}, applier.batchSizes(), "a full batch flushes immediately")
}

func TestWriterFlushesOnInterval(t *testing.T) {
	applier := &capturingApplier{}
	w := NewWriter(applier, WriterConfig{MaxBatch: 100, Interval: 20 * time.Millisecond}, zerolog.Nop())
	defer w.Close()

	w.Enqueue(JobRoomActivity, "r1", RoomActivity{RoomID: "r1", At: time.Now()})
	w.Enqueue(JobRoomActivity, "r2", RoomActivity{RoomID: "r2", At: time.Now()})

	waitFor(t, func() bool { return applier.applied() == 2 })
	assert.Equal(t, []int{2}, applier.batchSizes(), "a partial batch flushes when the interval lapses")
}

func TestWriterCloseDrains(t *testing.T) {
	applier := &capturingApplier{}
	w := NewWriter(applier, WriterConfig{MaxBatch: 100, Interval: time.Hour}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		w.Enqueue(JobSessionHistory, "h", map[string]string{"n": "x"})
	}
	w.Close()

	assert.Equal(t, 5, applier.applied(), "buffered jobs land before shutdown")
}

func TestWriterRetriesThenSucceeds(t *testing.T) {
	applier := &capturingApplier{failures: []error{errors.New("deadlock"), errors.New("deadlock")}}
	w := NewWriter(applier, WriterConfig{
		MaxBatch:    1,
		Interval:    time.Hour,
		RetryDelays: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	}, zerolog.Nop())
	defer w.Close()

	w.Enqueue(JobMessageCreated, "m1", map[string]string{"n": "x"})

	waitFor(t, func() bool { return applier.applied() == 1 })
	assert.Equal(t, 3, applier.calls, "two failures then a successful retry")
}

// A batch that exhausts the retry schedule is dropped; the writer stays
// healthy and later batches still land.
func TestWriterDropsBatchAfterRetriesExhausted(t *testing.T) {
	boom := errors.New("database down")
	applier := &capturingApplier{failures: []error{boom, boom, boom}}
	w := NewWriter(applier, WriterConfig{
		MaxBatch:    1,
		Interval:    time.Hour,
		RetryDelays: []time.Duration{time.Millisecond, time.Millisecond},
	}, zerolog.Nop())
	defer w.Close()

	w.Enqueue(JobMessageCreated, "m1", map[string]string{"n": "lost"})
	waitFor(t, func() bool { return applier.calls >= 3 })
	require.Zero(t, applier.applied(), "exhausted batch is dropped")

	w.Enqueue(JobMessageCreated, "m2", map[string]string{"n": "kept"})
	waitFor(t, func() bool { return applier.applied() == 1 })
}

func TestWriterIntervalCountsFromFirstJob(t *testing.T) {
	applier := &capturingApplier{}
	w := NewWriter(applier, WriterConfig{MaxBatch: 100, Interval: 50 * time.Millisecond}, zerolog.Nop())
	defer w.Close()

	w.Enqueue(JobRoomActivity, "r1", RoomActivity{RoomID: "r1", At: time.Now()})
	time.Sleep(20 * time.Millisecond)
	// A later job must not push the deadline out.
	w.Enqueue(JobRoomActivity, "r2", RoomActivity{RoomID: "r2", At: time.Now()})

	waitFor(t, func() bool { return applier.applied() == 2 })
	assert.Len(t, applier.batchSizes(), 1)
}

// Enqueue racing shutdown must never panic on the closed channel; jobs
// arriving after Close are dropped.
func TestWriterEnqueueAfterClose(t *testing.T) {
	applier := &capturingApplier{}
	w := NewWriter(applier, WriterConfig{MaxBatch: 1, Interval: time.Hour}, zerolog.Nop())

	w.Enqueue(JobMessageCreated, "m1", map[string]string{"n": "x"})
	w.Close()

	assert.NotPanics(t, func() {
		w.Enqueue(JobMessageCreated, "m2", map[string]string{"n": "late"})
	})
	assert.NotPanics(t, w.Close)
	assert.Equal(t, 1, applier.applied())
}

func TestWriterSkipsUnmarshalablePayload(t *testing.T) {
	applier := &capturingApplier{}
	w := NewWriter(applier, WriterConfig{MaxBatch: 1, Interval: time.Hour}, zerolog.Nop())
	defer w.Close()

	w.Enqueue(JobMessageCreated, "bad", func() {})
	w.Enqueue(JobMessageCreated, "good", map[string]string{"n": "x"})

	waitFor(t, func() bool { return applier.applied() == 1 })
	assert.Equal(t, JobMessageCreated, applier.batches[0][0].Kind)
	assert.Equal(t, "good", applier.batches[0][0].Key)
}
