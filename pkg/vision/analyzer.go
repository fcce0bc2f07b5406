package vision

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	_ "golang.org/x/image/webp"
	errs "shotprobe/pkg/errors"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/models"
)

// DefaultQuestion is asked about every image
const DefaultQuestion = "What's in this image?"

// Analyzer runs the caption and question for downloaded images against one
// shared Model. At most slots images are inside the model at any time.
type Analyzer struct {
	model    Model
	question string
	slots    chan struct{}
	logger   logger.Logger
}

// NewAnalyzer creates an analyzer. slots below 1 are treated as 1.
func NewAnalyzer(m Model, question string, slots int, log logger.Logger) *Analyzer {
	if slots < 1 {
		slots = 1
	}
	if question == "" {
		question = DefaultQuestion
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Analyzer{
		model:    m,
		question: question,
		slots:    make(chan struct{}, slots),
		logger:   log,
	}
}

// Analyze decodes the image at path, encodes it once and asks the model for
// a caption and an answer. Every failure wraps errors.ErrAnalysisFailed.
func (a *Analyzer) Analyze(ctx context.Context, path string) (models.Analysis, error) {
	start := time.Now()

	img, format, err := decodeFile(path)
	if err != nil {
		return models.Analysis{}, errs.Wrap(errs.ErrorTypeAnalysis, "decoding image", err)
	}
	result := models.Analysis{
		Question: a.question,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Format:   format,
	}

	select {
	case a.slots <- struct{}{}:
	case <-ctx.Done():
		return result, errs.Wrap(errs.ErrorTypeAnalysis, "waiting for model slot", ctx.Err())
	}
	defer func() { <-a.slots }()

	enc, err := a.model.EncodeImage(ctx, img)
	if err != nil {
		return result, errs.Wrap(errs.ErrorTypeAnalysis, "encoding image", err)
	}
	if result.Caption, err = a.model.Caption(ctx, enc); err != nil {
		return result, errs.Wrap(errs.ErrorTypeAnalysis, "captioning image", err)
	}
	if result.Answer, err = a.model.Query(ctx, enc, a.question); err != nil {
		return result, errs.Wrap(errs.ErrorTypeAnalysis, "querying image", err)
	}

	result.Duration = time.Since(start)
	a.logger.DebugWithFields("Image analyzed", map[string]interface{}{
		"path":     path,
		"format":   format,
		"duration": result.Duration,
	})
	return result, nil
}

func decodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return img, format, nil
}
