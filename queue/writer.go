package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Applier executes a batch of jobs as one durable transaction.
type Applier interface {
	Apply(ctx context.Context, jobs []Job) error
}

// WriterConfig bounds the batcher. RetryDelays is the backoff schedule; a
// flush that fails more times than it has delays is dropped.
type WriterConfig struct {
	MaxBatch    int
	Interval    time.Duration
	Timeout     time.Duration
	RetryDelays []time.Duration
	BufferSize  int
}

func (c *WriterConfig) applyDefaults() {
	if c.MaxBatch <= 0 {
		c.MaxBatch = 20
	}
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryDelays == nil {
		c.RetryDelays = []time.Duration{2 * time.Second, 8 * time.Second, 20 * time.Second}
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
}

// Writer is the durable write queue: a single-owner batching actor. All
// buffer and timer state is confined to the run goroutine; Enqueue only
// touches the inbound channel, so the cache-first path never blocks on the
// durable store.
type Writer struct {
	applier Applier
	cfg     WriterConfig
	in      chan Job
	done    chan struct{}
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewWriter(applier Applier, cfg WriterConfig, log zerolog.Logger) *Writer {
	cfg.applyDefaults()
	w := &Writer{
		applier: applier,
		cfg:     cfg,
		in:      make(chan Job, cfg.BufferSize),
		done:    make(chan struct{}),
		log:     log.With().Str("component", "write_queue").Logger(),
	}
	go w.run()
	return w
}

// Enqueue queues a durable mutation. It never blocks: if the buffer is full
// the job is dropped and logged, the same bounded-durability tradeoff as a
// flush that exhausts its retries.
func (w *Writer) Enqueue(kind JobKind, key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.log.Error().Err(err).Str("kind", string(kind)).Str("key", key).Msg("unmarshalable job payload")
		return
	}
	job := Job{Kind: kind, Key: key, Payload: data, EnqueuedAt: time.Now()}

	// The read lock excludes Close, so the send can never hit a closed
	// channel when a mutation races shutdown.
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.log.Warn().Str("kind", string(kind)).Str("key", key).Msg("write queue closed, dropping job")
		return
	}
	select {
	case w.in <- job:
	default:
		w.log.Error().Str("kind", string(kind)).Str("key", key).Msg("write queue full, dropping job")
	}
}

// Close drains the queue, flushes what remains and stops the actor. Safe to
// call once shutdown has begun even while mutations are still enqueueing;
// jobs arriving after Close are dropped.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.in)
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)

	var (
		buf    []Job
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case job, ok := <-w.in:
			if !ok {
				stopTimer()
				w.flush(buf)
				return
			}
			buf = append(buf, job)
			if len(buf) == 1 {
				// Interval counts from the first unflushed job.
				timer = time.NewTimer(w.cfg.Interval)
				timerC = timer.C
			}
			if len(buf) >= w.cfg.MaxBatch {
				stopTimer()
				w.flush(buf)
				buf = nil
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.flush(buf)
			buf = nil
		}
	}
}

// flush applies the batch within the transaction timeout, retrying on the
// backoff schedule. A batch that exhausts the budget is logged for manual
// recovery and dropped so the queue's memory stays bounded.
func (w *Writer) flush(jobs []Job) {
	if len(jobs) == 0 {
		return
	}
	var lastErr error
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
		lastErr = w.applier.Apply(ctx, jobs)
		cancel()
		if lastErr == nil {
			return
		}
		if attempt >= len(w.cfg.RetryDelays) {
			break
		}
		w.log.Warn().Err(lastErr).Int("attempt", attempt+1).Int("jobs", len(jobs)).Msg("durable flush failed, retrying")
		time.Sleep(w.cfg.RetryDelays[attempt])
	}

	kinds := make([]string, len(jobs))
	for i, j := range jobs {
		kinds[i] = string(j.Kind) + ":" + j.Key
	}
	w.log.Error().Err(lastErr).Strs("jobs", kinds).Msg("durable flush exhausted retries, dropping batch")
}
