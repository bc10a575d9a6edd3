package engine

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

// PNGContentType is the content type of every artifact we produce
const PNGContentType = "image/png"

// Failure kinds. WorkerBinding never reaches a caller, the loader recovers from it.
var (
	ErrEnvironment        = pdfrenderer.ErrEnvironment
	ErrWorkerBinding      = errors.New("worker binding failed")
	ErrDocumentOpen       = pdfrenderer.ErrDocumentOpen
	ErrSurfaceUnavailable = errors.New("drawing surface unavailable")
	ErrRender             = errors.New("page render failed")
	ErrEncoding           = errors.New("failed to create image blob")
)

// Messages shown to users for failures that have a fixed wording
const (
	encodingFailureMessage = "Failed to create image blob"
	surfaceFailureMessage  = "Drawing surface unavailable"
)

// File is a named binary artifact
type File struct {
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Data        []byte    `json:"-"`
	ModTime     time.Time `json:"modTime"`
}

// Size is the artifact length in bytes
func (f *File) Size() int {
	return len(f.Data)
}

// ConversionResult is either a display handle plus file, or an error message. Never both.
type ConversionResult struct {
	ImageURL string `json:"imageUrl"`
	File     *File  `json:"file"`
	Error    string `json:"error,omitempty"`
	// Err keeps the failure kind for errors.Is
	Err error `json:"-"`
}

// Succeeded reports whether the result carries an artifact
func (r ConversionResult) Succeeded() bool {
	return r.Error == "" && r.ImageURL != "" && r.File != nil
}

func successResult(imageURL string, file *File) ConversionResult {
	return ConversionResult{ImageURL: imageURL, File: file}
}

func failureResult(err error) ConversionResult {
	switch {
	case errors.Is(err, ErrEncoding):
		return ConversionResult{Error: encodingFailureMessage, Err: err}
	case errors.Is(err, ErrSurfaceUnavailable):
		return ConversionResult{Error: surfaceFailureMessage, Err: err}
	}
	return ConversionResult{Error: fmt.Sprintf("Failed to convert PDF: %v", err), Err: err}
}

var pdfSuffix = regexp.MustCompile(`(?i)\.pdf$`)

// ArtifactName derives the PNG name from the uploaded document name
func ArtifactName(sourceName string) string {
	return pdfSuffix.ReplaceAllString(sourceName, "") + ".png"
}
