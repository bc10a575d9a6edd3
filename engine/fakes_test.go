package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

// fakeRuntime counts loads and lets tests break each step
type fakeRuntime struct {
	envErr        error
	moduleErr     error
	sourceErr     error
	workerErr     error
	bindErr       error
	loadDelay     time.Duration
	moduleLoads   atomic.Int32
	sourceLoads   atomic.Int32
	workersBuilt  atomic.Int32
	lastModule    atomic.Pointer[fakeModule]
	engineFactory func() *fakeEngine
}

func (r *fakeRuntime) Name() string { return "fake" }

func (r *fakeRuntime) CheckEnvironment() error { return r.envErr }

func (r *fakeRuntime) LoadModule(ctx context.Context) (pdfrenderer.Module, error) {
	r.moduleLoads.Add(1)
	time.Sleep(r.loadDelay)
	if r.moduleErr != nil {
		return nil, r.moduleErr
	}
	engine := &fakeEngine{}
	if r.engineFactory != nil {
		engine = r.engineFactory()
	}
	m := &fakeModule{fakeEngine: engine, bindErr: r.bindErr}
	r.lastModule.Store(m)
	return m, nil
}

func (r *fakeRuntime) LoadWorkerSource(ctx context.Context) (pdfrenderer.WorkerSource, error) {
	r.sourceLoads.Add(1)
	time.Sleep(r.loadDelay)
	if r.sourceErr != nil {
		return nil, r.sourceErr
	}
	return &fakeSource{runtime: r}, nil
}

type fakeSource struct {
	runtime *fakeRuntime
}

func (s *fakeSource) NewWorker(ctx context.Context) (*pdfrenderer.Worker, error) {
	if s.runtime.workerErr != nil {
		return nil, s.runtime.workerErr
	}
	n := s.runtime.workersBuilt.Add(1)
	return pdfrenderer.NewWorker(fmt.Sprintf("fake-%d", n), 0), nil
}

type fakeModule struct {
	*fakeEngine
	bindErr error

	mu           sync.Mutex
	worker       *pdfrenderer.Worker
	source       pdfrenderer.WorkerSource
	closed       bool
	bindAttempts int
}

func (m *fakeModule) BindWorker(w *pdfrenderer.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindAttempts++
	if m.bindErr != nil {
		return m.bindErr
	}
	m.worker = w
	return nil
}

func (m *fakeModule) BindWorkerSource(src pdfrenderer.WorkerSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = src
}

func (m *fakeModule) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// fakeEngine "parses" documents that start with %PDF and reads the page size
// from the rest of the header, e.g. "%PDF 612 792"
type fakeEngine struct {
	mu      sync.Mutex
	events  []string
	openErr error
	// per page behaviour
	sizeErr    error
	renderErr  error
	renderHook func()
	closeErr   error
}

func (e *fakeEngine) record(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *fakeEngine) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *fakeEngine) Open(ctx context.Context, data []byte) (pdfrenderer.Document, error) {
	e.record("open")
	if e.openErr != nil {
		return nil, e.openErr
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, fmt.Errorf("%w: missing header", pdfrenderer.ErrDocumentOpen)
	}
	var width, height float64
	pages := 1
	if _, err := fmt.Sscanf(string(data), "%%PDF %g %g", &width, &height); err != nil {
		return nil, fmt.Errorf("%w: %v", pdfrenderer.ErrDocumentOpen, err)
	}
	if bytes.Contains(data, []byte("empty")) {
		pages = 0
	}
	return &fakeDocument{engine: e, width: width, height: height, pages: pages}, nil
}

type fakeDocument struct {
	engine        *fakeEngine
	width, height float64
	pages         int
}

func (d *fakeDocument) PageCount() int { return d.pages }

func (d *fakeDocument) Page(ctx context.Context, index int) (pdfrenderer.Page, error) {
	d.engine.record("page")
	if index >= d.pages {
		return nil, pdfrenderer.ErrNoPages
	}
	return &fakePage{doc: d}, nil
}

func (d *fakeDocument) Close() error {
	d.engine.record("close-document")
	return d.engine.closeErr
}

type fakePage struct {
	doc *fakeDocument
}

func (p *fakePage) Size(ctx context.Context) (float64, float64, error) {
	return p.doc.width, p.doc.height, p.doc.engine.sizeErr
}

func (p *fakePage) Render(ctx context.Context, viewport pdfrenderer.Viewport) (image.Image, error) {
	p.doc.engine.record("render")
	if p.doc.engine.renderHook != nil {
		p.doc.engine.renderHook()
	}
	if p.doc.engine.renderErr != nil {
		return nil, p.doc.engine.renderErr
	}
	img := image.NewRGBA(image.Rect(0, 0, viewport.PixelWidth(), viewport.PixelHeight()))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 200, G: 10, B: 10, A: 255}}, image.Point{}, draw.Src)
	return img, nil
}

func (p *fakePage) Close() error {
	p.doc.engine.record("close-page")
	return p.doc.engine.closeErr
}

// staticEngines hands out one engine (or one error) without a loader
type staticEngines struct {
	engine pdfrenderer.Engine
	err    error
}

func (s staticEngines) Acquire(context.Context) (pdfrenderer.Engine, error) {
	return s.engine, s.err
}

func fakePDF(width, height float64) []byte {
	return []byte(fmt.Sprintf("%%PDF %g %g\n", width, height))
}

var errBoom = errors.New("boom")
