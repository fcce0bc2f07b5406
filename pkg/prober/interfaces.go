package prober

import (
	"context"

	"shotprobe/pkg/models"
)

// Resolver turns a candidate code into a probe result. It never fails;
// failures are misses.
type Resolver interface {
	Resolve(ctx context.Context, code string) models.ProbeResult
}

// Fetcher downloads an image to destPath
type Fetcher interface {
	Fetch(ctx context.Context, imageURL, destPath string) (int64, error)
}

// Analyzer describes a downloaded image
type Analyzer interface {
	Analyze(ctx context.Context, path string) (models.Analysis, error)
}

// Destinations maps codes to file paths
type Destinations interface {
	PathFor(code string) string
}

// CodeSource yields candidate codes
type CodeSource interface {
	Next() string
}

// Observer receives every terminal attempt event. Events are delivered one
// at a time from a single goroutine, in the order they complete.
type Observer interface {
	OnEvent(e models.Event)
}

// Finisher is implemented by observers that want the final statistics
type Finisher interface {
	OnFinish(stats models.Stats, runErr error)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(e models.Event)

func (f ObserverFunc) OnEvent(e models.Event) { f(e) }
