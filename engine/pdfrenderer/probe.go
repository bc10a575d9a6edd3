package pdfrenderer

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// DocumentInfo is what the structural probe learns without rendering
type DocumentInfo struct {
	Pages int
	// Width and Height of the first page MediaBox, in PDF points
	Width  float64
	Height float64
}

// Inspect reads the document structure with a pure Go parser
func Inspect(data []byte) (info DocumentInfo, err error) {
	defer func() {
		// the parser panics on some malformed input
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDocumentOpen, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return info, fmt.Errorf("%w: %v", ErrDocumentOpen, err)
	}
	info.Pages = reader.NumPage()
	if info.Pages == 0 {
		return info, ErrNoPages
	}

	page := reader.Page(1)
	if page.V.IsNull() {
		return info, fmt.Errorf("%w: first page missing", ErrDocumentOpen)
	}
	box := inheritedKey(page.V, "MediaBox")
	if box.Len() == 4 {
		info.Width = box.Index(2).Float64() - box.Index(0).Float64()
		info.Height = box.Index(3).Float64() - box.Index(1).Float64()
	}
	return info, nil
}

// inheritedKey looks key up on the page node and then up the page tree
func inheritedKey(v pdf.Value, key string) pdf.Value {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if found := v.Key(key); !found.IsNull() {
			return found
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

// BlankPDF builds a minimal single page document with a correct xref table
func BlankPDF(width, height float64) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << >> /Contents 4 0 R >>", width, height),
		"<< /Length 0 >>\nstream\n\nendstream",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
