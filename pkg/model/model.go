// Package model makes sure a vision model artifact is available locally.
//
// Two variants are known. The larger preferred variant is used whenever it is
// present; otherwise the default variant is used, and it is downloaded as a
// gzip archive and unpacked when missing.
package model

import (
	"os"
	"path/filepath"
)

// Variant is one known model artifact
type Variant struct {
	Name string
	File string
}

var (
	// PreferredVariant is used when present but never downloaded
	PreferredVariant = Variant{Name: "moondream-2b-int8", File: "moondream-2b-int8.mf"}
	// DefaultVariant is the one fetched when nothing usable is on disk
	DefaultVariant = Variant{Name: "moondream-0_5b-int8", File: "moondream-0_5b-int8.mf"}
)

// DefaultDownloadURL points at the gzip archive of DefaultVariant
const DefaultDownloadURL = "https://huggingface.co/vikhyatk/moondream2/resolve/9dddae84d54db4ac56fe37817aeaeb502ed083e2/moondream-0_5b-int8.mf.gz?download=true"

// Artifact is a complete model file on disk
type Artifact struct {
	Path       string
	Variant    Variant
	Size       int64
	Downloaded bool
}

// Status describes whether a variant is usable in a directory
type Status struct {
	Variant Variant
	Path    string
	Present bool
	Size    int64
}

// Inspect reports which of the variants are usable in dir, in the given order
func Inspect(dir string, variants ...Variant) []Status {
	out := make([]Status, 0, len(variants))
	for _, v := range variants {
		path := filepath.Join(dir, v.File)
		size, ok := usable(path)
		out = append(out, Status{Variant: v, Path: path, Present: ok, Size: size})
	}
	return out
}

// usable reports whether path is a non-empty regular file
func usable(path string) (int64, bool) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() || fi.Size() == 0 {
		return 0, false
	}
	return fi.Size(), true
}
