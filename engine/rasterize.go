package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

// Scale policy. The longest output edge never exceeds MaxDimension and pages are
// never upscaled beyond MaxScale.
const (
	MaxDimension = 2048
	MaxScale     = 4
)

// ComputeScale picks the render scale for a page of the given intrinsic size
func ComputeScale(baseWidth, baseHeight float64) float64 {
	maxSide := math.Max(baseWidth, baseHeight)
	autoScale := math.Min(MaxScale, MaxDimension/maxSide)
	if !(autoScale > 0) {
		return 1
	}
	return autoScale
}

// conversionState tracks one conversion through its steps
type conversionState int

const (
	stateIdle conversionState = iota
	stateEngineReady
	stateDocumentOpen
	statePageLoaded
	stateRendered
	stateEncoded
	stateDone
	stateFailed
)

var stateNames = [...]string{"idle", "engine-ready", "document-open", "page-loaded", "rendered", "encoded", "done", "failed"}

func (s conversionState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("conversionState(%d)", int(s))
}

// EngineSource hands out the rendering engine. *Loader implements it.
type EngineSource interface {
	Acquire(ctx context.Context) (pdfrenderer.Engine, error)
}

// Converter rasterizes the first page of PDF documents into PNG artifacts
type Converter struct {
	Engines  EngineSource
	Images   *ImageStore
	Encoders []Encoder
}

// NewConverter wires a converter with the default encoder chain
func NewConverter(engines EngineSource, images *ImageStore) *Converter {
	return &Converter{Engines: engines, Images: images, Encoders: DefaultEncoders()}
}

// Expiry of the default converter's handles. Callers that are done with an image
// sooner should Revoke it.
const (
	DefaultHandleTTL            = time.Hour
	defaultSweepIntervalMinutes = 5
)

var (
	defaultConverterOnce sync.Once
	defaultConverter     *Converter
	defaultSweeper       *cron.Cron
)

// DefaultConverter uses the process-wide loader and an image store whose handles
// expire after DefaultHandleTTL
func DefaultConverter() *Converter {
	defaultConverterOnce.Do(func() {
		images := NewImageStore("", DefaultHandleTTL)
		defaultSweeper = InitializeSchedules(images, defaultSweepIntervalMinutes)
		defaultConverter = NewConverter(DefaultLoader(), images)
	})
	return defaultConverter
}

// ConvertPDFToImage rasterizes the first page with the default converter. The
// returned ImageURL stays live until revoked on DefaultConverter().Images or swept
// after DefaultHandleTTL.
func ConvertPDFToImage(ctx context.Context, document []byte, sourceName string) ConversionResult {
	return DefaultConverter().RasterizeFirstPage(ctx, document, sourceName)
}

// conversion holds the resources owned by a single call
type conversion struct {
	sourceName string
	state      conversionState
	doc        pdfrenderer.Document
	page       pdfrenderer.Page
}

func (c *conversion) advance(state conversionState) {
	c.state = state
	Logger.Debug("Conversion step", "source", c.sourceName, "state", state)
}

// release closes the page and the document. Failures are logged, never returned.
func (c *conversion) release() {
	if c.page != nil {
		if err := c.page.Close(); err != nil {
			Logger.Warn("Unable to release page", "source", c.sourceName, "error", err)
		}
		c.page = nil
	}
	if c.doc != nil {
		if err := c.doc.Close(); err != nil {
			Logger.Warn("Unable to release document", "source", c.sourceName, "error", err)
		}
		c.doc = nil
	}
}

// RasterizeFirstPage renders page one of document to a PNG artifact. It never panics
// and never returns a partial result: on any failure the result only carries Error.
func (c *Converter) RasterizeFirstPage(ctx context.Context, document []byte, sourceName string) (result ConversionResult) {
	conv := &conversion{sourceName: sourceName, state: stateIdle}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = failureResult(fmt.Errorf("panic during conversion: %v", r))
		}
		conv.release()
		if result.Err != nil {
			Logger.Error("PDF conversion failed", "source", sourceName, "step", conv.state, "error", result.Err)
			conv.advance(stateFailed)
			return
		}
		conv.advance(stateDone)
		Logger.Info("PDF converted to image", "source", sourceName, "file", result.File.Name,
			"bytes", result.File.Size(), "duration", time.Since(start))
	}()

	data, err := c.render(ctx, conv, document)
	if err != nil {
		return failureResult(err)
	}
	conv.advance(stateEncoded)

	file := &File{
		Name:        ArtifactName(sourceName),
		ContentType: PNGContentType,
		Data:        data,
		ModTime:     time.Now(),
	}
	return successResult(c.Images.Create(data, PNGContentType), file)
}

// render walks open, page, render, release, encode in strict order
func (c *Converter) render(ctx context.Context, conv *conversion, document []byte) ([]byte, error) {
	engine, err := c.Engines.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	conv.advance(stateEngineReady)

	conv.doc, err = engine.Open(ctx, document)
	if err != nil {
		if !errors.Is(err, ErrDocumentOpen) {
			err = fmt.Errorf("%w: %v", ErrDocumentOpen, err)
		}
		return nil, err
	}
	conv.advance(stateDocumentOpen)

	conv.page, err = conv.doc.Page(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentOpen, err)
	}
	conv.advance(statePageLoaded)

	baseWidth, baseHeight, err := conv.page.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading page size: %v", ErrRender, err)
	}
	viewport := pdfrenderer.NewViewport(baseWidth, baseHeight, ComputeScale(baseWidth, baseHeight))

	surface, err := NewSurface(viewport)
	if err != nil {
		return nil, err
	}
	surface.SetHighQualitySmoothing()

	img, err := conv.page.Render(ctx, viewport)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	surface.Draw(img)
	conv.advance(stateRendered)

	// free engine memory before the encode
	conv.release()

	return EncodeWithFallback(ctx, surface.Image(), c.Encoders)
}
