package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

const dataURIPrefix = "data:" + PNGContentType + ";base64,"

// Encoder turns a rendered surface into PNG bytes
type Encoder struct {
	Name   string
	Encode func(ctx context.Context, img image.Image) ([]byte, error)
}

// encodeOutcome is one encoder's result, success or failure
type encodeOutcome struct {
	encoder string
	data    []byte
	err     error
	// empty is a completed encode with no bytes; it ends the chain
	empty bool
}

// DefaultEncoders is the fallback chain: an asynchronous stream first, then the data URI path
func DefaultEncoders() []Encoder {
	return []Encoder{
		{Name: "blob", Encode: encodeBlob},
		{Name: "data-uri", Encode: encodeViaDataURI},
	}
}

// EncodeWithFallback tries each encoder in order and returns the first payload.
// An encoder that errors or panics hands over to the next one. An encoder that
// completes with an empty payload ends the chain. Either way the failure is ErrEncoding.
func EncodeWithFallback(ctx context.Context, img image.Image, encoders []Encoder) ([]byte, error) {
	var failures []error
	for _, enc := range encoders {
		outcome := runEncoder(ctx, enc, img)
		if outcome.err == nil {
			return outcome.data, nil
		}
		if outcome.empty {
			Logger.Warn("Image encoder produced no data", "encoder", outcome.encoder)
			failures = append(failures, fmt.Errorf("%s: %w", outcome.encoder, outcome.err))
			break
		}
		Logger.Warn("Image encoder failed, trying next", "encoder", outcome.encoder, "error", outcome.err)
		failures = append(failures, fmt.Errorf("%s: %w", outcome.encoder, outcome.err))
	}
	if len(failures) == 0 {
		return nil, fmt.Errorf("%w: no encoders configured", ErrEncoding)
	}
	return nil, fmt.Errorf("%w: %w", ErrEncoding, errors.Join(failures...))
}

func runEncoder(ctx context.Context, enc Encoder, img image.Image) (outcome encodeOutcome) {
	outcome.encoder = enc.Name
	defer func() {
		if r := recover(); r != nil {
			outcome.data = nil
			outcome.err = fmt.Errorf("panic: %v", r)
		}
	}()
	data, err := enc.Encode(ctx, img)
	if err != nil {
		outcome.err = err
		return outcome
	}
	if len(data) == 0 {
		outcome.err = errors.New("empty payload")
		outcome.empty = true
		return outcome
	}
	outcome.data = data
	return outcome
}

// encodeBlob streams the PNG from a background goroutine
func encodeBlob(ctx context.Context, img image.Image) ([]byte, error) {
	pr, pw := io.Pipe()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				pw.CloseWithError(fmt.Errorf("panic while encoding: %v", r))
			}
		}()
		pw.CloseWithError(imaging.Encode(pw, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)))
	}()

	type readResult struct {
		data []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(pr)
		done <- readResult{data, err}
	}()

	select {
	case res := <-done:
		return res.data, res.err
	case <-ctx.Done():
		pr.CloseWithError(ctx.Err())
		return nil, ctx.Err()
	}
}

// encodeViaDataURI produces a data URI synchronously and decodes its payload back to bytes
func encodeViaDataURI(ctx context.Context, img image.Image) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uri, err := toDataURI(img)
	if err != nil {
		return nil, err
	}
	return decodeDataURI(uri)
}

func toDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeDataURI(uri string) ([]byte, error) {
	_, payload, found := strings.Cut(uri, ",")
	if !found {
		return nil, errors.New("malformed data URI")
	}
	return base64.StdEncoding.DecodeString(payload)
}
