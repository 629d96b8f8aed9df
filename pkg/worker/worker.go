// Package worker drives a playback job from a fixed-interval polling loop.
package worker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zurustar/rolandseq/pkg/logger"
	"github.com/zurustar/rolandseq/pkg/playback"
)

// DefaultInterval is the polling interval used when none is given.
const DefaultInterval = 20 * time.Millisecond

// ErrAlreadyRunning is returned by Start while a job is running.
var ErrAlreadyRunning = errors.New("worker already running")

// Job is one unit of polled work. Step is called once per interval with the
// current time and reports whether the job is finished.
type Job interface {
	Step(now time.Time) (done bool)
}

// Option configures a Worker.
type Option func(*Worker)

// WithOnDone registers a callback run when a job finishes by itself. It is
// not run when the worker is stopped.
func WithOnDone(fn func()) Option {
	return func(w *Worker) { w.onDone = fn }
}

// WithClock replaces the clock passed to Step.
func WithClock(c playback.Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.log = l }
}

// Worker calls a Job on its own goroutine every interval until the job
// reports completion or Stop is called.
type Worker struct {
	interval time.Duration
	clock    playback.Clock
	log      *slog.Logger
	onDone   func()

	running bool
	// stopCh is closed to ask the loop to exit; doneCh is closed by the
	// loop once it has.
	stopCh chan struct{}
	doneCh chan struct{}

	mu sync.Mutex
}

// New creates a stopped worker. A zero or negative interval selects
// DefaultInterval.
func New(interval time.Duration, opts ...Option) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	w := &Worker{
		interval: interval,
		clock:    playback.SystemClock(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.GetLogger()
	}
	return w
}

// Interval returns the polling interval.
func (w *Worker) Interval() time.Duration {
	return w.interval
}

// Start runs job on a new goroutine. The first step happens immediately.
func (w *Worker) Start(job Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyRunning
	}

	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.log.Debug("Worker started", "interval", w.interval)

	go w.run(job, time.NewTicker(w.interval), w.stopCh, w.doneCh)
	return nil
}

func (w *Worker) run(job Job, ticker *time.Ticker, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if job.Step(w.clock.Now()) {
			w.finish(stopCh)
			return
		}

		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) finish(stopCh <-chan struct{}) {
	w.mu.Lock()
	current := w.running && w.stopCh == stopCh
	if current {
		w.running = false
	}
	w.mu.Unlock()

	if !current {
		return
	}
	w.log.Debug("Worker finished")
	if w.onDone != nil {
		w.onDone()
	}
}

// Stop ends the running job and waits for the loop to exit. The job's Step
// is not called again once Stop returns. Stop must not be called from Step.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	<-doneCh
	w.log.Debug("Worker stopped")
}

// Done returns a channel closed when the current or last loop has exited.
// Before the first Start it is already closed.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doneCh == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return w.doneCh
}

// IsRunning reports whether a job is running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// EngineJob polls a playback engine. It is done once the engine has
// stopped.
type EngineJob struct {
	Engine *playback.Engine
}

// Step dispatches the engine's due events.
func (j EngineJob) Step(time.Time) bool {
	j.Engine.ProcessUntilNow()
	return j.Engine.State() == playback.Stopped
}
