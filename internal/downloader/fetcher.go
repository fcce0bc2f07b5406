package downloader

import (
	"context"
	"fmt"
	"io"
	"time"

	errs "shotprobe/pkg/errors"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/storage"
)

// ImageSource opens a streamed image body. done releases any per-download
// resources and is called after the body has been closed.
type ImageSource interface {
	OpenImage(ctx context.Context, imageURL string) (body io.ReadCloser, done context.CancelFunc, err error)
}

// Fetcher streams images to disk
type Fetcher struct {
	source ImageSource
	logger logger.Logger
}

// NewFetcher creates a fetcher reading from source
func NewFetcher(source ImageSource, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Fetcher{source: source, logger: log}
}

// Fetch downloads imageURL to destPath and returns the number of bytes
// written. A non-200 answer, a network error or a failed write returns an
// ErrorTypeDownload error and leaves no file at destPath.
func (f *Fetcher) Fetch(ctx context.Context, imageURL, destPath string) (int64, error) {
	start := time.Now()

	body, done, err := f.source.OpenImage(ctx, imageURL)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeDownload, fmt.Sprintf("requesting %s", imageURL), err)
	}
	defer done()

	n, err := storage.WriteAtomic(destPath, body)
	closeErr := body.Close()
	if err != nil {
		return n, errs.Wrap(errs.ErrorTypeDownload, fmt.Sprintf("saving %s", imageURL), err)
	}
	if closeErr != nil {
		f.logger.DebugWithFields("closing image body", map[string]interface{}{
			"url":   imageURL,
			"error": closeErr.Error(),
		})
	}

	f.logger.DebugWithFields("Downloaded image", map[string]interface{}{
		"url":      imageURL,
		"path":     destPath,
		"bytes":    n,
		"duration": time.Since(start),
	})
	return n, nil
}
