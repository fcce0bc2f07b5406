package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	"gopkg.in/yaml.v3"
	"shotprobe/pkg/models"
)

// Format selects the sidecar encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a configured metadata format
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported metadata format %q", s)
}

// ImageMetadata is everything known about one downloaded screenshot
type ImageMetadata struct {
	RunID    string `json:"run_id" yaml:"run_id"`
	Code     string `json:"code" yaml:"code"`
	PageURL  string `json:"page_url" yaml:"page_url"`
	ImageURL string `json:"image_url" yaml:"image_url"`
	File     string `json:"file" yaml:"file"`
	FileSize int64  `json:"file_size" yaml:"file_size"`

	DownloadedAt time.Time `json:"downloaded_at" yaml:"downloaded_at"`

	// Image properties as decoded by the analyzer
	Width       int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height      int    `json:"height,omitempty" yaml:"height,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty" yaml:"aspect_ratio,omitempty"`
	Format      string `json:"format,omitempty" yaml:"format,omitempty"`

	Caption          string        `json:"caption,omitempty" yaml:"caption,omitempty"`
	Question         string        `json:"question,omitempty" yaml:"question,omitempty"`
	Answer           string        `json:"answer,omitempty" yaml:"answer,omitempty"`
	AnalysisError    string        `json:"analysis_error,omitempty" yaml:"analysis_error,omitempty"`
	AnalysisDuration time.Duration `json:"analysis_duration,omitempty" yaml:"analysis_duration,omitempty"`
	ModelVariant     string        `json:"model_variant,omitempty" yaml:"model_variant,omitempty"`

	EXIF map[string]string `json:"exif,omitempty" yaml:"exif,omitempty"`
}

// FromEvent builds metadata for a downloaded attempt
func FromEvent(e models.Event, modelVariant string) *ImageMetadata {
	f := e.Finding()
	meta := &ImageMetadata{
		RunID:         e.RunID,
		Code:          f.Code,
		PageURL:       f.PageURL,
		ImageURL:      f.ImageURL,
		File:          f.File,
		FileSize:      f.Bytes,
		DownloadedAt:  f.FoundAt,
		Caption:       f.Caption,
		Answer:        f.Answer,
		AnalysisError: f.AnalysisError,
	}
	if e.Analysis != nil {
		meta.Width = e.Analysis.Width
		meta.Height = e.Analysis.Height
		meta.AspectRatio = AspectRatio(e.Analysis.Width, e.Analysis.Height)
		meta.Format = e.Analysis.Format
		meta.Question = e.Analysis.Question
		meta.AnalysisDuration = e.Analysis.Duration
		meta.ModelVariant = modelVariant
	}
	return meta
}

// Save writes the metadata next to the image
func (m *ImageMetadata) Save(imagePath string, format Format) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(m)
	default:
		format = FormatJSON
		data, err = json.MarshalIndent(m, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(sidecarPath(imagePath, format), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// AspectRatio names common screen ratios and falls back to "x.xx:1"
func AspectRatio(width, height int) string {
	if height == 0 {
		return "unknown"
	}

	ratio := float64(width) / float64(height)
	switch {
	case ratio > 1.7 && ratio < 1.8:
		return "16:9"
	case ratio > 1.55 && ratio < 1.65:
		return "16:10"
	case ratio > 1.3 && ratio < 1.4:
		return "4:3"
	case ratio > 0.9 && ratio < 1.1:
		return "1:1"
	case ratio > 0.55 && ratio < 0.57:
		return "9:16"
	default:
		return fmt.Sprintf("%.2f:1", ratio)
	}
}

// Load reads the sidecar of an image, trying JSON first
func Load(imagePath string) (*ImageMetadata, error) {
	var lastErr error
	for _, format := range []Format{FormatJSON, FormatYAML} {
		data, err := os.ReadFile(sidecarPath(imagePath, format))
		if err != nil {
			lastErr = err
			continue
		}

		var meta ImageMetadata
		if format == FormatYAML {
			err = yaml.Unmarshal(data, &meta)
		} else {
			err = json.Unmarshal(data, &meta)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		return &meta, nil
	}
	return nil, fmt.Errorf("failed to read metadata file: %w", lastErr)
}

// Exists checks if a sidecar exists for an image in any format
func Exists(imagePath string) bool {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		if _, err := os.Stat(sidecarPath(imagePath, format)); err == nil {
			return true
		}
	}
	return false
}

// CleanOrphaned removes sidecars whose image is gone and returns how many
// were removed
func CleanOrphaned(directory string) (int, error) {
	removed := 0
	err := filepath.Walk(directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".yaml" {
			return nil
		}
		imagePath := strings.TrimSuffix(path, ext)
		if filepath.Ext(imagePath) != ".jpg" {
			return nil
		}

		if _, err := os.Stat(imagePath); os.IsNotExist(err) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove orphaned metadata %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// ReadEXIF returns the flattened EXIF tags of an image file. Images without
// EXIF yield nil and no error.
func ReadEXIF(imagePath string) (map[string]string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to locate exif: %w", err)
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exif: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	tags := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.TagName == "" || entry.Formatted == "" {
			continue
		}
		tags[entry.TagName] = entry.Formatted
	}
	return tags, nil
}

func sidecarPath(imagePath string, format Format) string {
	return imagePath + "." + string(format)
}
