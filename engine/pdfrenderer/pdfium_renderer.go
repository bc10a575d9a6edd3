package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// Backend names accepted by NewRuntime
const (
	BackendPDFium = "pdfium"
	BackendFitz   = "fitz"
)

// PoolConfig sizes the PDFium WebAssembly pool
type PoolConfig struct {
	MinIdle         int
	MaxIdle         int
	MaxTotal        int
	InstanceTimeout time.Duration
	WorkerQueue     int
}

// DefaultPoolConfig keeps one warm instance for the bound worker and one spare
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinIdle:         1,
		MaxIdle:         1,
		MaxTotal:        2,
		InstanceTimeout: 30 * time.Second,
		WorkerQueue:     16,
	}
}

// PDFiumRuntime loads PDFium compiled to WebAssembly (pure Go, no CGo)
type PDFiumRuntime struct {
	config PoolConfig
}

// NewPDFiumRuntime creates a runtime for the PDFium WebAssembly engine
func NewPDFiumRuntime(config PoolConfig) *PDFiumRuntime {
	if config.MaxTotal < 1 {
		config.MaxTotal = 1
	}
	if config.InstanceTimeout <= 0 {
		config.InstanceTimeout = DefaultPoolConfig().InstanceTimeout
	}
	return &PDFiumRuntime{config: config}
}

// Name implements Runtime
func (r *PDFiumRuntime) Name() string {
	return BackendPDFium
}

// CheckEnvironment rejects hosts that cannot run the wazero runtime
func (r *PDFiumRuntime) CheckEnvironment() error {
	switch runtime.GOOS {
	case "js", "wasip1":
		return fmt.Errorf("%w: PDFium WebAssembly cannot run on %s", ErrEnvironment, runtime.GOOS)
	}
	return nil
}

// LoadModule compiles PDFium and starts the instance pool
func (r *PDFiumRuntime) LoadModule(ctx context.Context) (Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	Logger.Info("Initializing PDFium WebAssembly pool",
		"minIdle", r.config.MinIdle, "maxIdle", r.config.MaxIdle, "maxTotal", r.config.MaxTotal)
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  r.config.MinIdle,
		MaxIdle:  r.config.MaxIdle,
		MaxTotal: r.config.MaxTotal,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}
	return &pdfiumModule{pool: pool, timeout: r.config.InstanceTimeout}, nil
}

// LoadWorkerSource returns the goroutine worker source PDFium work runs on
func (r *PDFiumRuntime) LoadWorkerSource(ctx context.Context) (WorkerSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewWorkerSource("pdfium-worker", r.config.WorkerQueue), nil
}

// pdfiumModule is the PDFium engine. A bound worker owns one pinned instance;
// in degraded mode each document checks an instance out of the pool.
type pdfiumModule struct {
	pool    pdfium.Pool
	timeout time.Duration
	binding binding

	mu     sync.Mutex
	pinned pdfium.Pdfium
}

func (m *pdfiumModule) BindWorker(w *Worker) error {
	instance, err := m.pool.GetInstance(m.timeout)
	if err != nil {
		return fmt.Errorf("failed to get PDFium instance for worker %s: %w", w.Name(), err)
	}
	m.mu.Lock()
	m.pinned = instance
	m.mu.Unlock()
	m.binding.bindWorker(w)
	return nil
}

func (m *pdfiumModule) BindWorkerSource(src WorkerSource) {
	m.binding.bindSource(src)
}

// instanceFor returns the instance a document should use and how to give it back
func (m *pdfiumModule) instanceFor() (pdfium.Pdfium, func(), error) {
	m.mu.Lock()
	pinned := m.pinned
	m.mu.Unlock()
	if pinned != nil {
		return pinned, func() {}, nil
	}
	instance, err := m.pool.GetInstance(m.timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}
	return instance, func() {
		if err := instance.Close(); err != nil {
			Logger.Warn("Unable to return PDFium instance to pool", "error", err)
		}
	}, nil
}

func (m *pdfiumModule) Open(ctx context.Context, data []byte) (Document, error) {
	exec, stopWorker := m.binding.executorFor(ctx)
	instance, putInstance, err := m.instanceFor()
	if err != nil {
		stopWorker()
		return nil, err
	}
	release := func() {
		putInstance()
		stopWorker()
	}

	doc := &pdfiumDocument{exec: exec, instance: instance, release: release}
	err = exec.Do(ctx, func() error {
		opened, err := instance.OpenDocument(&requests.OpenDocument{File: &data})
		if err != nil {
			return err
		}
		doc.ref = opened.Document

		count, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: opened.Document})
		if err != nil {
			instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: opened.Document})
			return err
		}
		doc.pages = count.PageCount
		return nil
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrDocumentOpen, err)
	}
	return doc, nil
}

func (m *pdfiumModule) Close() error {
	m.binding.stop()
	m.mu.Lock()
	pinned := m.pinned
	m.pinned = nil
	m.mu.Unlock()
	if pinned != nil {
		pinned.Close()
	}
	if m.pool != nil {
		return m.pool.Close()
	}
	return nil
}

type pdfiumDocument struct {
	exec     executor
	instance pdfium.Pdfium
	ref      references.FPDF_DOCUMENT
	pages    int
	release  func()
	closed   sync.Once
}

func (d *pdfiumDocument) PageCount() int {
	return d.pages
}

func (d *pdfiumDocument) Page(ctx context.Context, index int) (Page, error) {
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("%w: page %d of %d", ErrNoPages, index, d.pages)
	}
	page := &pdfiumPage{doc: d}
	err := d.exec.Do(ctx, func() error {
		loaded, err := d.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
			Document: d.ref,
			Index:    index,
		})
		if err != nil {
			return err
		}
		page.ref = loaded.Page
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to load page %d: %w", index, err)
	}
	return page, nil
}

func (d *pdfiumDocument) Close() error {
	var err error
	d.closed.Do(func() {
		err = d.exec.Do(context.Background(), func() error {
			_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.ref})
			return err
		})
		d.release()
	})
	return err
}

type pdfiumPage struct {
	doc *pdfiumDocument
	ref references.FPDF_PAGE
}

func (p *pdfiumPage) selector() requests.Page {
	return requests.Page{ByReference: &p.ref}
}

func (p *pdfiumPage) Size(ctx context.Context) (float64, float64, error) {
	var width, height float64
	err := p.doc.exec.Do(ctx, func() error {
		size, err := p.doc.instance.GetPageSize(&requests.GetPageSize{Page: p.selector()})
		if err != nil {
			return err
		}
		width, height = size.Width, size.Height
		return nil
	})
	return width, height, err
}

func (p *pdfiumPage) Render(ctx context.Context, viewport Viewport) (image.Image, error) {
	var img image.Image
	err := p.doc.exec.Do(ctx, func() error {
		rendered, err := p.doc.instance.RenderPageInPixels(&requests.RenderPageInPixels{
			Page:   p.selector(),
			Width:  viewport.PixelWidth(),
			Height: viewport.PixelHeight(),
		})
		if err != nil {
			return err
		}
		// the bitmap lives in engine memory until Cleanup
		img = imaging.Clone(rendered.Result.Image)
		rendered.Cleanup()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (p *pdfiumPage) Close() error {
	return p.doc.exec.Do(context.Background(), func() error {
		_, err := p.doc.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{Page: p.ref})
		return err
	})
}
