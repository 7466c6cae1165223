// Package ocr defines the text-detection collaborator consumed by the
// verification pipeline and its Google Cloud Vision implementation.
package ocr

import "context"

// TextBlock is one unit of recognized text. Engines return blocks in the
// order the backend produced them; the first block is conventionally the
// full-page transcript and downstream field extraction depends on that
// ordering being preserved.
type TextBlock struct {
	Text   string
	Locale string
}

// Engine converts image bytes into an ordered sequence of text blocks. An
// error means the engine could not run (undecodable input, transport or
// credential failure), not that the image carried no text.
type Engine interface {
	DetectText(ctx context.Context, imageBytes []byte) ([]TextBlock, error)
}
