package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

// LoaderState is where a Loader is in its one-shot initialization
type LoaderState int

const (
	// Uninitialized means no load has started (or the last one failed)
	Uninitialized LoaderState = iota
	// Initializing means a load is in flight and callers wait on it
	Initializing
	// Ready means the engine is loaded and cached for the process lifetime
	Ready
)

func (s LoaderState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("LoaderState(%d)", int(s))
	}
}

// pendingLoad is the in-flight initialization every concurrent caller waits on
type pendingLoad struct {
	done   chan struct{}
	module pdfrenderer.Module
	err    error
}

// Loader loads the rendering engine once and hands the same engine to every caller
type Loader struct {
	runtime pdfrenderer.Runtime

	mu      sync.Mutex
	state   LoaderState
	pending *pendingLoad
	module  pdfrenderer.Module
	worker  *pdfrenderer.Worker
	// isolated is false when the worker binding fell back to the worker source
	isolated bool
}

// NewLoader creates a loader for runtime. Nothing is loaded until Acquire.
func NewLoader(runtime pdfrenderer.Runtime) *Loader {
	return &Loader{runtime: runtime}
}

// State reports the current initialization state
func (l *Loader) State() LoaderState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Isolated reports whether the engine runs on its own dedicated worker
func (l *Loader) Isolated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isolated
}

// Backend names the runtime behind this loader
func (l *Loader) Backend() string {
	return l.runtime.Name()
}

// Acquire returns the engine, loading it on first use. Concurrent callers during the
// first load all wait on the same initialization. ctx bounds only this caller's wait;
// the initialization itself keeps going for the other callers.
func (l *Loader) Acquire(ctx context.Context) (pdfrenderer.Engine, error) {
	l.mu.Lock()
	switch l.state {
	case Ready:
		module := l.module
		l.mu.Unlock()
		return module, nil
	case Initializing:
		pending := l.pending
		l.mu.Unlock()
		return l.wait(ctx, pending)
	}

	if err := l.runtime.CheckEnvironment(); err != nil {
		l.mu.Unlock()
		return nil, wrapEnvironment(err)
	}
	pending := &pendingLoad{done: make(chan struct{})}
	l.pending = pending
	l.state = Initializing
	l.mu.Unlock()

	go l.initialize(context.WithoutCancel(ctx), pending)
	return l.wait(ctx, pending)
}

func (l *Loader) wait(ctx context.Context, pending *pendingLoad) (pdfrenderer.Engine, error) {
	select {
	case <-pending.done:
		if pending.err != nil {
			return nil, pending.err
		}
		return pending.module, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loader) initialize(ctx context.Context, pending *pendingLoad) {
	Logger.Info("Loading rendering engine", "backend", l.runtime.Name())

	module, worker, isolated, err := l.load(ctx)

	l.mu.Lock()
	if err != nil {
		Logger.Error("Rendering engine failed to load", "backend", l.runtime.Name(), "error", err)
		l.state = Uninitialized
	} else {
		Logger.Info("Rendering engine ready", "backend", l.runtime.Name(), "isolated", isolated)
		l.state = Ready
		l.module = module
		l.worker = worker
		l.isolated = isolated
	}
	l.pending = nil
	l.mu.Unlock()

	pending.module = module
	pending.err = err
	close(pending.done)
}

// load fetches the module and the worker bundle in parallel, then binds them
func (l *Loader) load(ctx context.Context) (module pdfrenderer.Module, worker *pdfrenderer.Worker, isolated bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wrapEnvironment(fmt.Errorf("panic while loading engine: %v", r))
		}
	}()

	var source pdfrenderer.WorkerSource
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := l.runtime.LoadModule(gctx)
		if err != nil {
			return fmt.Errorf("loading engine module: %w", err)
		}
		module = m
		return nil
	})
	g.Go(func() error {
		src, err := l.runtime.LoadWorkerSource(gctx)
		if err != nil {
			return fmt.Errorf("loading worker source: %w", err)
		}
		source = src
		return nil
	})
	if err := g.Wait(); err != nil {
		if module != nil {
			module.Close()
		}
		return nil, nil, false, wrapEnvironment(err)
	}

	worker, err = bindWorker(ctx, module, source)
	if err != nil {
		Logger.Warn("Dedicated worker unavailable, engine will use the worker source", "error", err)
		module.BindWorkerSource(source)
		return module, nil, false, nil
	}
	return module, worker, true, nil
}

func bindWorker(ctx context.Context, module pdfrenderer.Module, source pdfrenderer.WorkerSource) (*pdfrenderer.Worker, error) {
	worker, err := source.NewWorker(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerBinding, err)
	}
	if err := module.BindWorker(worker); err != nil {
		worker.Stop()
		return nil, fmt.Errorf("%w: %v", ErrWorkerBinding, err)
	}
	return worker, nil
}

func wrapEnvironment(err error) error {
	if errors.Is(err, ErrEnvironment) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrEnvironment, err)
}

// Close releases the engine. Only meant for process shutdown and tests.
func (l *Loader) Close() error {
	l.mu.Lock()
	pending := l.pending
	l.mu.Unlock()
	if pending != nil {
		<-pending.done
	}

	l.mu.Lock()
	module, worker := l.module, l.worker
	l.module, l.worker = nil, nil
	l.state = Uninitialized
	l.isolated = false
	l.mu.Unlock()

	if module == nil {
		return nil
	}
	err := module.Close()
	if worker != nil {
		worker.Stop()
	}
	return err
}

var (
	defaultLoaderOnce sync.Once
	defaultLoader     *Loader
)

// DefaultLoader is the process-wide loader, backed by PDFium
func DefaultLoader() *Loader {
	defaultLoaderOnce.Do(func() {
		defaultLoader = NewLoader(pdfrenderer.NewPDFiumRuntime(pdfrenderer.DefaultPoolConfig()))
	})
	return defaultLoader
}

// AcquireEngine returns the process-wide engine, loading it on first use
func AcquireEngine(ctx context.Context) (pdfrenderer.Engine, error) {
	return DefaultLoader().Acquire(ctx)
}
