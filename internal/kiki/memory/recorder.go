package memory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/do"

	"github.com/bdobrica/Kiki/common/trace"
)

const (
	defaultQueueSize   = 64
	defaultTaskTimeout = 3 * time.Minute
)

var (
	// ErrEmptyAnswer rejects a record for an answer that was never produced.
	ErrEmptyAnswer = errors.New("memory: refusing to record an empty answer")
	// ErrRecorderClosed is returned by Enqueue after Shutdown.
	ErrRecorderClosed = errors.New("memory: recorder is shut down")
)

type recordTask struct {
	ctx      context.Context
	question string
	answer   string
}

// Recorder writes exchanges into their stores off the request path. Each
// mode has its own queue and worker, so a slow compression in one mode never
// delays writes to the other, while writes within a mode stay in order.
type Recorder struct {
	modes       *Modes
	logger      *slog.Logger
	taskTimeout time.Duration
	onRecorded  func(Stats)

	mu     sync.RWMutex
	closed bool
	queues map[Mode]chan recordTask
	wg     sync.WaitGroup
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the recorder's logger.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTaskTimeout bounds a single Record call, compression included.
func WithTaskTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.taskTimeout = d
		}
	}
}

// WithRecordedHook is called with the store's stats after each write.
func WithRecordedHook(fn func(Stats)) RecorderOption {
	return func(r *Recorder) { r.onRecorded = fn }
}

// NewRecorder starts one worker per mode. queueSize <= 0 uses the default.
func NewRecorder(modes *Modes, queueSize int, opts ...RecorderOption) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Recorder{
		modes:       modes,
		logger:      slog.Default(),
		taskTimeout: defaultTaskTimeout,
		onRecorded:  func(Stats) {},
		queues:      make(map[Mode]chan recordTask, len(AllModes)),
	}
	for _, o := range opts {
		o(r)
	}
	for mode, store := range modes.stores {
		q := make(chan recordTask, queueSize)
		r.queues[mode] = q
		r.wg.Add(1)
		go r.worker(store, q)
	}
	return r
}

// Enqueue schedules a write of (question, answer) into the store for mode
// and returns immediately. The request context's values (trace id) are kept
// but its cancellation is not, so the write outlives the request.
func (r *Recorder) Enqueue(ctx context.Context, mode Mode, question, answer string) error {
	if strings.TrimSpace(answer) == "" {
		return ErrEmptyAnswer
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}
	q, ok := r.queues[mode]
	if !ok {
		return ErrUnknownMode
	}

	task := recordTask{ctx: context.WithoutCancel(ctx), question: question, answer: answer}
	select {
	case q <- task:
	default:
		// Queue full: write from a detached goroutine rather than drop the
		// turn. The store's writer lock still orders it after queued writes
		// that already started.
		trace.Logger(ctx, r.logger).Warn("memory: record queue full, writing out of band", "mode", string(mode))
		store := r.modes.stores[mode]
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.run(store, task)
		}()
	}
	return nil
}

func (r *Recorder) worker(store *Store, q <-chan recordTask) {
	defer r.wg.Done()
	for task := range q {
		r.run(store, task)
	}
}

func (r *Recorder) run(store *Store, task recordTask) {
	ctx, cancel := context.WithTimeout(task.ctx, r.taskTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			trace.Logger(ctx, r.logger).Error("memory: record panicked", "mode", string(store.Mode()), "panic", p)
		}
	}()

	store.Record(ctx, task.question, task.answer)
	r.onRecorded(store.Stats())
}

// Shutdown stops accepting work and waits for queued writes to finish.
func (r *Recorder) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, q := range r.queues {
		close(q)
	}
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

var _ do.Shutdownable = (*Recorder)(nil)
