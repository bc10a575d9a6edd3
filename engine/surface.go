package engine

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

// maxSurfacePixels bounds the RGBA buffer (about 256 MB) regardless of what a page claims
const maxSurfacePixels int64 = 64 * 1024 * 1024

// Surface is an off-screen raster the page is drawn into
type Surface struct {
	img    *image.NRGBA
	filter imaging.ResampleFilter
}

// NewSurface allocates a white surface sized exactly to the viewport
func NewSurface(viewport pdfrenderer.Viewport) (*Surface, error) {
	width, height := viewport.PixelWidth(), viewport.PixelHeight()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrSurfaceUnavailable, width, height)
	}
	if int64(width)*int64(height) > maxSurfacePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrSurfaceUnavailable, width, height)
	}
	return &Surface{
		img:    imaging.New(width, height, color.White),
		filter: imaging.NearestNeighbor,
	}, nil
}

// SetHighQualitySmoothing switches resampling to Lanczos
func (s *Surface) SetHighQualitySmoothing() {
	s.filter = imaging.Lanczos
}

// Bounds of the surface
func (s *Surface) Bounds() image.Rectangle {
	return s.img.Bounds()
}

// Draw composites img over the surface, resampling when the engine's bitmap does not
// match the surface size exactly
func (s *Surface) Draw(img image.Image) {
	bounds := s.img.Bounds()
	if img.Bounds().Dx() != bounds.Dx() || img.Bounds().Dy() != bounds.Dy() {
		img = imaging.Resize(img, bounds.Dx(), bounds.Dy(), s.filter)
	}
	s.img = imaging.Overlay(s.img, img, image.Pt(0, 0), 1.0)
}

// Image returns the current raster
func (s *Surface) Image() image.Image {
	return s.img
}
