package pdfrenderer

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

var (
	// ErrDocumentOpen is returned when the document bytes cannot be opened
	ErrDocumentOpen = errors.New("unable to open PDF document")
	// ErrNoPages is returned when a document opens but has no pages to render
	ErrNoPages = errors.New("pdf has no pages")
	// ErrEnvironment is returned when the host cannot run a rendering engine
	ErrEnvironment = errors.New("rendering environment unavailable")
	// ErrWorkerStopped is returned for jobs submitted to a stopped worker
	ErrWorkerStopped = errors.New("worker stopped")
)

// Viewport is the page geometry at a given scale
type Viewport struct {
	Width  float64
	Height float64
	Scale  float64
}

// NewViewport scales the intrinsic page size (at scale 1) by scale
func NewViewport(baseWidth, baseHeight, scale float64) Viewport {
	return Viewport{Width: baseWidth * scale, Height: baseHeight * scale, Scale: scale}
}

// PixelWidth truncates the viewport width to whole raster units
func (v Viewport) PixelWidth() int {
	return truncate(v.Width)
}

// PixelHeight truncates the viewport height to whole raster units
func (v Viewport) PixelHeight() int {
	return truncate(v.Height)
}

func truncate(f float64) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

// Engine opens documents from raw bytes
type Engine interface {
	// Open parses a document held in memory. Malformed input returns an error wrapping ErrDocumentOpen.
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is an opened document owned by a single conversion
type Document interface {
	PageCount() int
	// Page loads the page at a zero based index
	Page(ctx context.Context, index int) (Page, error)
	// Close releases the document (and the engine resources behind it)
	Close() error
}

// Page is a single page view derived from a Document
type Page interface {
	// Size returns the intrinsic page size at scale 1, in PDF points
	Size(ctx context.Context) (width, height float64, err error)
	// Render rasterizes the page at the viewport's scale
	Render(ctx context.Context, viewport Viewport) (image.Image, error)
	Close() error
}

// Module is a loaded rendering engine that still needs an execution context
type Module interface {
	Engine

	// BindWorker dedicates a live worker to all decode/render work of the module
	BindWorker(w *Worker) error

	// BindWorkerSource configures the module to start its own workers from src
	// (degraded mode used when BindWorker is not possible)
	BindWorkerSource(src WorkerSource)

	// Close cleans up any resources used by the module
	Close() error
}

// WorkerSource constructs background workers
type WorkerSource interface {
	NewWorker(ctx context.Context) (*Worker, error)
}

// Runtime loads a rendering engine module and the worker bundle it runs on
type Runtime interface {
	Name() string

	// CheckEnvironment verifies the host can run this engine at all
	CheckEnvironment() error

	LoadModule(ctx context.Context) (Module, error)
	LoadWorkerSource(ctx context.Context) (WorkerSource, error)
}

// NewRuntime returns the runtime for a configured backend name ("pdfium" or "fitz")
func NewRuntime(backend string, poolConfig PoolConfig) (Runtime, error) {
	switch backend {
	case "", BackendPDFium:
		return NewPDFiumRuntime(poolConfig), nil
	case BackendFitz:
		return NewFitzRuntime(), nil
	default:
		return nil, errors.New("unknown PDF backend: " + backend)
	}
}
