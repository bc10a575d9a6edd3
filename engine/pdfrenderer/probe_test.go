package pdfrenderer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlankPDFLayout(t *testing.T) {
	data := BlankPDF(612, 792)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.4\n")))
	assert.True(t, bytes.HasSuffix(data, []byte("%%EOF\n")))
	assert.Contains(t, string(data), "/MediaBox [0 0 612 792]")

	// the catalog offset in the xref table must point at "1 0 obj"
	idx := bytes.Index(data, []byte("1 0 obj"))
	assert.Contains(t, string(data), "0000000009 00000 n \n")
	assert.Equal(t, 9, idx)
}

func TestInspect(t *testing.T) {
	info, err := Inspect(BlankPDF(612, 792))
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pages)
	assert.InDelta(t, 612, info.Width, 0.001)
	assert.InDelta(t, 792, info.Height, 0.001)
}

func TestInspectMalformed(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		[]byte("hello world"),
		[]byte("%PDF-1.4\nthis is not really a pdf\n%%EOF\n"),
	} {
		_, err := Inspect(data)
		assert.ErrorIs(t, err, ErrDocumentOpen, "input %q", data)
	}
}
