package pdfrenderer

import (
	"context"
	"fmt"
	"sync"
)

// executor runs engine work somewhere: on a worker goroutine or inline
type executor interface {
	Do(ctx context.Context, fn func() error) error
}

type job struct {
	fn   func() error
	done chan error
}

// Worker is a background goroutine that executes decode/render jobs one at a time,
// in submission order. Engine instances that are not safe for concurrent use are
// only ever touched from their worker.
type Worker struct {
	name string
	jobs chan job
	quit chan struct{}
	stop sync.Once
	wg   sync.WaitGroup
}

// NewWorker starts a worker goroutine
func NewWorker(name string, queue int) *Worker {
	if queue < 0 {
		queue = 0
	}
	w := &Worker{
		name: name,
		jobs: make(chan job, queue),
		quit: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case j := <-w.jobs:
			j.done <- runJob(j.fn)
		}
	}
}

// Do submits fn and waits for it to finish. ctx only bounds the wait for a queue
// slot: once the job has started it runs to completion.
func (w *Worker) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case <-w.quit:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	case w.jobs <- j:
	}
	select {
	case err := <-j.done:
		return err
	case <-w.quit:
		// the loop may have picked the job up just before stopping
		w.wg.Wait()
		select {
		case err := <-j.done:
			return err
		default:
			return ErrWorkerStopped
		}
	}
}

// Stop ends the worker after the job in progress, if any. Safe to call more than once.
func (w *Worker) Stop() {
	w.stop.Do(func() {
		close(w.quit)
	})
	w.wg.Wait()
}

// Name identifies the worker in logs
func (w *Worker) Name() string {
	return w.name
}

// inline runs jobs on the calling goroutine
type inline struct{}

func (inline) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return runJob(fn)
}

func runJob(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in engine job: %v", r)
		}
	}()
	return fn()
}

// goroutineSource starts plain workers
type goroutineSource struct {
	prefix string
	queue  int

	mu   sync.Mutex
	seq  int
	down bool
}

// NewWorkerSource returns a WorkerSource that starts goroutine workers
func NewWorkerSource(prefix string, queue int) WorkerSource {
	return &goroutineSource{prefix: prefix, queue: queue}
}

func (s *goroutineSource) NewWorker(ctx context.Context) (*Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, ErrWorkerStopped
	}
	s.seq++
	return NewWorker(fmt.Sprintf("%s-%d", s.prefix, s.seq), s.queue), nil
}

// binding tracks how a module executes its work
type binding struct {
	mu     sync.RWMutex
	worker *Worker
	source WorkerSource
}

func (b *binding) bindWorker(w *Worker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.worker = w
	b.source = nil
}

func (b *binding) bindSource(src WorkerSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.worker = nil
	b.source = src
}

// executorFor picks the executor for one document. With a bound worker every
// document shares it; with a source each document gets its own worker, or runs
// inline when even that fails. The returned release func must be called once the
// document is closed.
func (b *binding) executorFor(ctx context.Context) (executor, func()) {
	b.mu.RLock()
	w, src := b.worker, b.source
	b.mu.RUnlock()

	if w != nil {
		return w, func() {}
	}
	if src != nil {
		docWorker, err := src.NewWorker(ctx)
		if err == nil {
			return docWorker, docWorker.Stop
		}
		Logger.Warn("Unable to start document worker, running inline", "error", err)
	}
	return inline{}, func() {}
}

func (b *binding) stop() {
	b.mu.Lock()
	w := b.worker
	b.worker = nil
	b.source = nil
	b.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}
