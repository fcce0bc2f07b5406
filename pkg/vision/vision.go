// Package vision captions screenshots with a local vision-language model.
//
// An Engine loads a model artifact once and returns an immutable Model that
// is shared by all workers. Each image is encoded once and the encoding is
// reused for both the caption and the question.
package vision

import (
	"context"
	"image"

	"shotprobe/pkg/model"
)

// EncodedImage is a model-ready representation of one image
type EncodedImage struct {
	Width   int
	Height  int
	payload string
}

// Model answers questions about encoded images. Implementations must be
// safe to share; Analyzer bounds how many calls run at once.
type Model interface {
	EncodeImage(ctx context.Context, img image.Image) (EncodedImage, error)
	Caption(ctx context.Context, enc EncodedImage) (string, error)
	Query(ctx context.Context, enc EncodedImage, question string) (string, error)
}

// Engine turns an on-disk artifact into a loaded Model
type Engine interface {
	Load(ctx context.Context, artifact model.Artifact) (Model, error)
}
