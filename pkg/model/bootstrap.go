package model

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"shotprobe/pkg/config"
	errs "shotprobe/pkg/errors"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/retry"
	"shotprobe/pkg/storage"
)

// Bootstrapper resolves the model artifact to use, downloading the default
// variant when neither variant is on disk
type Bootstrapper struct {
	dir        string
	preferred  Variant
	fallback   Variant
	url        string
	downloader Downloader
	retry      *retry.Config
	logger     logger.Logger
}

// Option customizes a Bootstrapper
type Option func(*Bootstrapper)

// WithRetry sets the retry policy for the artifact download
func WithRetry(cfg *retry.Config) Option {
	return func(b *Bootstrapper) { b.retry = cfg }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(b *Bootstrapper) { b.logger = l }
}

// NewBootstrapper creates a bootstrapper for the model section of the config
func NewBootstrapper(cfg config.ModelConfig, d Downloader, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		dir:        cfg.Dir,
		preferred:  PreferredVariant,
		fallback:   DefaultVariant,
		url:        cfg.DownloadURL,
		downloader: d,
		retry:      &retry.Config{MaxAttempts: 1},
		logger:     logger.NewNopLogger(),
	}
	if cfg.PreferredFile != "" {
		b.preferred.File = cfg.PreferredFile
	}
	if cfg.DefaultFile != "" {
		b.fallback.File = cfg.DefaultFile
	}
	if b.url == "" {
		b.url = DefaultDownloadURL
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Acquire returns a complete artifact. The preferred variant wins when it is
// present and nothing is downloaded in that case. Every failure wraps
// errors.ErrModelUnavailable and leaves no partial file behind.
func (b *Bootstrapper) Acquire(ctx context.Context) (Artifact, error) {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return Artifact{}, unavailable("creating model directory", err)
	}

	for _, st := range Inspect(b.dir, b.preferred, b.fallback) {
		if st.Present {
			b.logger.InfoWithFields("Using local model", map[string]interface{}{
				"variant": st.Variant.Name,
				"path":    st.Path,
				"size":    st.Size,
			})
			return Artifact{Path: st.Path, Variant: st.Variant, Size: st.Size}, nil
		}
	}

	return b.download(ctx)
}

func (b *Bootstrapper) download(ctx context.Context) (Artifact, error) {
	final := filepath.Join(b.dir, b.fallback.File)
	archive := final + ".gz"
	defer os.Remove(archive)

	b.logger.InfoWithFields("Downloading model", map[string]interface{}{
		"variant": b.fallback.Name,
		"url":     b.url,
	})

	err := retry.Do(ctx, b.retry, func(ctx context.Context) error {
		f, err := os.Create(archive)
		if err != nil {
			return err
		}
		_, dlErr := b.downloader.Download(ctx, b.url, f)
		closeErr := f.Close()
		if dlErr != nil {
			return dlErr
		}
		return closeErr
	})
	if err != nil {
		return Artifact{}, unavailable("downloading model archive", err)
	}

	if err := decompress(archive, final); err != nil {
		os.Remove(final)
		return Artifact{}, unavailable("decompressing model archive", err)
	}

	size, ok := usable(final)
	if !ok {
		os.Remove(final)
		return Artifact{}, unavailable("verifying model file", fmt.Errorf("%s is empty", final))
	}

	b.logger.InfoWithFields("Model ready", map[string]interface{}{
		"variant": b.fallback.Name,
		"path":    final,
		"size":    size,
	})
	return Artifact{Path: final, Variant: b.fallback, Size: size, Downloaded: true}, nil
}

// decompress gunzips archive into dest; dest only appears once complete
func decompress(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	_, err = storage.WriteAtomic(dest, zr)
	return err
}

func unavailable(step string, err error) error {
	return errs.Wrap(errs.ErrorTypeModelUnavailable, step, err)
}
