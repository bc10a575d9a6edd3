package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "github.com/drummonds/pdf2img/engine"
	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

func TestParseFlags(t *testing.T) {
	opts, files, err := parseFlags([]string{"--out", "/tmp/pngs", "-b", "fitz", "a.pdf", "b.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pngs", opts.outDir)
	assert.Equal(t, "fitz", opts.backend)
	assert.False(t, opts.info)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, files)

	opts, files, err = parseFlags([]string{"--info", "c.pdf"})
	require.NoError(t, err)
	assert.True(t, opts.info)
	assert.Equal(t, ".", opts.outDir)
	assert.Equal(t, []string{"c.pdf"}, files)

	_, _, err = parseFlags(nil)
	assert.Error(t, err)
	_, _, err = parseFlags([]string{"--bogus", "a.pdf"})
	assert.Error(t, err)
}

func TestPrintInfo(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "letter.pdf")
	require.NoError(t, os.WriteFile(good, pdfrenderer.BlankPDF(612, 792), 0o644))
	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	assert.Equal(t, 0, printInfo([]string{good}))
	assert.Equal(t, 1, printInfo([]string{good, bad}))
	assert.Equal(t, 1, printInfo([]string{filepath.Join(dir, "missing.pdf")}))
}

func TestConvertAllWithPDFium(t *testing.T) {
	if testing.Short() {
		t.Skip("loads the PDFium WebAssembly module")
	}
	Logger = slog.Default()

	dir := t.TempDir()
	in := filepath.Join(dir, "Letter.PDF")
	require.NoError(t, os.WriteFile(in, pdfrenderer.BlankPDF(612, 792), 0o644))
	broken := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(broken, []byte("%PDF-1.4 garbage"), 0o644))

	loader := engine.NewLoader(pdfrenderer.NewPDFiumRuntime(pdfrenderer.DefaultPoolConfig()))
	defer loader.Close()
	converter := engine.NewConverter(loader, engine.NewImageStore("", 0))

	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0o755))
	failed := convertAll(context.Background(), converter, []string{in, broken}, out)
	assert.Equal(t, 1, failed)

	info, err := os.Stat(filepath.Join(out, "Letter.png"))
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
	assert.Equal(t, 0, converter.Images.Len())
}
