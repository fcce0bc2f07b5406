package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"shotprobe/pkg/config"
	errs "shotprobe/pkg/errors"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/model"
	"shotprobe/pkg/retry"
)

// HTTPEngine serves a model through a local moondream-compatible inference
// server exposing POST /caption and POST /query.
type HTTPEngine struct {
	endpoint      string
	captionLength string
	client        *http.Client
	retry         *retry.Config
	logger        logger.Logger
}

// NewHTTPEngine creates an engine for the inference section of the config
func NewHTTPEngine(cfg config.InferenceConfig, rc *retry.Config, log logger.Logger) *HTTPEngine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if rc == nil {
		rc = &retry.Config{MaxAttempts: 1}
	}
	length := cfg.CaptionLength
	if length == "" {
		length = "normal"
	}
	return &HTTPEngine{
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		captionLength: length,
		client:        &http.Client{Timeout: cfg.Timeout},
		retry:         rc,
		logger:        log,
	}
}

// Load checks that the artifact is on disk and returns a handle bound to it
func (e *HTTPEngine) Load(ctx context.Context, artifact model.Artifact) (Model, error) {
	fi, err := os.Stat(artifact.Path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeModelUnavailable, "loading model", err)
	}
	if !fi.Mode().IsRegular() || fi.Size() == 0 {
		return nil, errs.New(errs.ErrorTypeModelUnavailable, fmt.Sprintf("%s is not a usable model file", artifact.Path))
	}

	e.logger.InfoWithFields("Model loaded", map[string]interface{}{
		"variant":  artifact.Variant.Name,
		"path":     artifact.Path,
		"endpoint": e.endpoint,
	})
	return &httpModel{engine: e}, nil
}

// httpModel relies on the inference server having loaded the same weights.
// The server API has no way to select or report the model.
type httpModel struct {
	engine *HTTPEngine
}

type captionRequest struct {
	ImageURL string `json:"image_url"`
	Length   string `json:"length"`
	Stream   bool   `json:"stream"`
}

type captionResponse struct {
	Caption string `json:"caption"`
}

type queryRequest struct {
	ImageURL string `json:"image_url"`
	Question string `json:"question"`
	Stream   bool   `json:"stream"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

// EncodeImage serializes img once as a JPEG data URL
func (m *httpModel) EncodeImage(ctx context.Context, img image.Image) (EncodedImage, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return EncodedImage{}, fmt.Errorf("encoding image: %w", err)
	}
	b := img.Bounds()
	return EncodedImage{
		Width:   b.Dx(),
		Height:  b.Dy(),
		payload: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func (m *httpModel) Caption(ctx context.Context, enc EncodedImage) (string, error) {
	var out captionResponse
	err := m.engine.post(ctx, "/caption", captionRequest{
		ImageURL: enc.payload,
		Length:   m.engine.captionLength,
	}, &out)
	return strings.TrimSpace(out.Caption), err
}

func (m *httpModel) Query(ctx context.Context, enc EncodedImage, question string) (string, error) {
	var out queryResponse
	err := m.engine.post(ctx, "/query", queryRequest{
		ImageURL: enc.payload,
		Question: question,
	}, &out)
	return strings.TrimSpace(out.Answer), err
}

func (e *HTTPEngine) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	return retry.Do(ctx, e.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := e.client.Do(req)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeNetwork, "inference request", err)
		}
		defer resp.Body.Close()
		logger.LogRequest(e.logger, req.Method, req.URL.String(), resp.StatusCode, time.Since(start))

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return errs.FromStatus(resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.Wrap(errs.ErrorTypeParsing, "decoding inference response", err)
		}
		return nil
	})
}
