package metadata

import (
	"shotprobe/pkg/logger"
	"shotprobe/pkg/models"
)

// Writer saves a sidecar for every downloaded image it observes
type Writer struct {
	format  Format
	variant string
	logger  logger.Logger
	written int
}

// NewWriter creates a sidecar writer. variant names the vision model that
// produced the captions, if any.
func NewWriter(format Format, variant string, log logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Writer{format: format, variant: variant, logger: log}
}

// OnEvent writes metadata for attempts that left an image on disk
func (w *Writer) OnEvent(e models.Event) {
	if !e.State.Downloaded() || e.File == "" {
		return
	}

	meta := FromEvent(e, w.variant)
	tags, err := ReadEXIF(e.File)
	if err != nil {
		w.logger.WithError(err).WithField("code", e.Code).Debug("EXIF not readable")
	}
	meta.EXIF = tags

	if err := meta.Save(e.File, w.format); err != nil {
		w.logger.WithError(err).WithField("code", e.Code).Warn("Failed to save metadata")
		return
	}
	w.written++
}

// Written returns how many sidecars were saved
func (w *Writer) Written() int {
	return w.written
}
