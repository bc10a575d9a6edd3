package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// pointsPerInch is the PDF user space unit, so a scale of 1 renders at 72 DPI
const pointsPerInch = 72.0

// FitzRuntime loads MuPDF through go-fitz (requires CGo and MuPDF)
type FitzRuntime struct {
	queue int
}

// NewFitzRuntime creates a runtime for the MuPDF engine
func NewFitzRuntime() *FitzRuntime {
	return &FitzRuntime{queue: DefaultPoolConfig().WorkerQueue}
}

// Name implements Runtime
func (r *FitzRuntime) Name() string {
	return BackendFitz
}

// CheckEnvironment rejects hosts without native code support
func (r *FitzRuntime) CheckEnvironment() error {
	switch runtime.GOOS {
	case "js", "wasip1":
		return fmt.Errorf("%w: MuPDF cannot run on %s", ErrEnvironment, runtime.GOOS)
	}
	return nil
}

// LoadModule opens a generated one page document so a missing MuPDF shows up now
// instead of on the first conversion
func (r *FitzRuntime) LoadModule(ctx context.Context) (Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(BlankPDF(pointsPerInch, pointsPerInch))
	if err != nil {
		return nil, fmt.Errorf("MuPDF smoke test failed: %w", err)
	}
	doc.Close()
	return &fitzModule{}, nil
}

// LoadWorkerSource returns the goroutine worker source MuPDF work runs on
func (r *FitzRuntime) LoadWorkerSource(ctx context.Context) (WorkerSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewWorkerSource("fitz-worker", r.queue), nil
}

type fitzModule struct {
	binding binding
}

func (m *fitzModule) BindWorker(w *Worker) error {
	m.binding.bindWorker(w)
	return nil
}

func (m *fitzModule) BindWorkerSource(src WorkerSource) {
	m.binding.bindSource(src)
}

func (m *fitzModule) Open(ctx context.Context, data []byte) (Document, error) {
	exec, release := m.binding.executorFor(ctx)
	doc := &fitzDocument{exec: exec, release: release}
	err := exec.Do(ctx, func() error {
		opened, err := fitz.NewFromMemory(data)
		if err != nil {
			return err
		}
		doc.doc = opened
		doc.pages = opened.NumPage()
		return nil
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrDocumentOpen, err)
	}
	return doc, nil
}

func (m *fitzModule) Close() error {
	m.binding.stop()
	return nil
}

type fitzDocument struct {
	exec    executor
	doc     *fitz.Document
	pages   int
	release func()
	closed  sync.Once
}

func (d *fitzDocument) PageCount() int {
	return d.pages
}

func (d *fitzDocument) Page(ctx context.Context, index int) (Page, error) {
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("%w: page %d of %d", ErrNoPages, index, d.pages)
	}
	return &fitzPage{doc: d, index: index}, nil
}

func (d *fitzDocument) Close() error {
	var err error
	d.closed.Do(func() {
		err = d.exec.Do(context.Background(), d.doc.Close)
		d.release()
	})
	return err
}

// fitzPage is an index into the document; MuPDF loads the page on each call
type fitzPage struct {
	doc   *fitzDocument
	index int
}

func (p *fitzPage) Size(ctx context.Context) (float64, float64, error) {
	var bounds image.Rectangle
	err := p.doc.exec.Do(ctx, func() error {
		var err error
		bounds, err = p.doc.doc.Bound(p.index)
		return err
	})
	return float64(bounds.Dx()), float64(bounds.Dy()), err
}

func (p *fitzPage) Render(ctx context.Context, viewport Viewport) (image.Image, error) {
	var img image.Image
	err := p.doc.exec.Do(ctx, func() error {
		rendered, err := p.doc.doc.ImageDPI(p.index, pointsPerInch*viewport.Scale)
		if err != nil {
			return err
		}
		img = rendered
		return nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (p *fitzPage) Close() error {
	return nil
}
