package pdfrenderer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewportPixels(t *testing.T) {
	vp := NewViewport(612, 792, 2.5)
	assert.Equal(t, 1530, vp.PixelWidth())
	assert.Equal(t, 1980, vp.PixelHeight())

	vp = NewViewport(595.3, 841.9, 1)
	assert.Equal(t, 595, vp.PixelWidth())
	assert.Equal(t, 841, vp.PixelHeight())

	assert.Equal(t, 0, NewViewport(0, 0, 4).PixelWidth())
	assert.Equal(t, 0, Viewport{Width: math.NaN()}.PixelWidth())
	assert.Equal(t, 0, Viewport{Width: -3}.PixelWidth())
	assert.Equal(t, 10, Viewport{Height: 10.9}.PixelHeight())
}

func TestNewRuntime(t *testing.T) {
	rt, err := NewRuntime("", DefaultPoolConfig())
	require.NoError(t, err)
	assert.Equal(t, BackendPDFium, rt.Name())

	rt, err = NewRuntime(BackendFitz, DefaultPoolConfig())
	require.NoError(t, err)
	assert.Equal(t, BackendFitz, rt.Name())

	_, err = NewRuntime("ghostscript", DefaultPoolConfig())
	assert.Error(t, err)
}

func TestPDFiumRuntimeDefaults(t *testing.T) {
	rt := NewPDFiumRuntime(PoolConfig{})
	assert.Equal(t, 1, rt.config.MaxTotal)
	assert.Equal(t, DefaultPoolConfig().InstanceTimeout, rt.config.InstanceTimeout)
	assert.NoError(t, rt.CheckEnvironment())
}

// renderBlankPage drives a real engine end to end
func renderBlankPage(t *testing.T, rt Runtime) {
	t.Helper()
	ctx := context.Background()

	module, err := rt.LoadModule(ctx)
	require.NoError(t, err)
	defer module.Close()

	src, err := rt.LoadWorkerSource(ctx)
	require.NoError(t, err)
	w, err := src.NewWorker(ctx)
	require.NoError(t, err)
	require.NoError(t, module.BindWorker(w))

	doc, err := module.Open(ctx, BlankPDF(200, 100))
	require.NoError(t, err)
	defer doc.Close()
	assert.Equal(t, 1, doc.PageCount())

	page, err := doc.Page(ctx, 0)
	require.NoError(t, err)
	defer page.Close()

	width, height, err := page.Size(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 200, width, 1)
	assert.InDelta(t, 100, height, 1)

	img, err := page.Render(ctx, NewViewport(width, height, 2))
	require.NoError(t, err)
	assert.InDelta(t, 400, img.Bounds().Dx(), 2)
	assert.InDelta(t, 200, img.Bounds().Dy(), 2)

	_, err = doc.Page(ctx, 1)
	assert.ErrorIs(t, err, ErrNoPages)

	_, err = module.Open(ctx, []byte("not a pdf at all"))
	assert.True(t, errors.Is(err, ErrDocumentOpen))
}

func TestPDFiumRenderBlankPage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PDFium WebAssembly test in short mode")
	}
	renderBlankPage(t, NewPDFiumRuntime(DefaultPoolConfig()))
}

func TestFitzRenderBlankPage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping MuPDF test in short mode")
	}
	renderBlankPage(t, NewFitzRuntime())
}
