package model

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	errs "shotprobe/pkg/errors"
)

// Downloader streams the body at url into w
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// ProgressFunc receives the bytes written so far and the expected total
// (-1 when the server did not announce a length)
type ProgressFunc func(written, total int64)

// HTTPDownloader fetches artifacts over HTTP. Its timeout bounds connecting
// and waiting for response headers; the body itself may take as long as the
// caller's context allows.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	progress  ProgressFunc
}

// NewHTTPDownloader creates a downloader with the given connect/header timeout
func NewHTTPDownloader(timeout time.Duration, userAgent string, progress ProgressFunc) *HTTPDownloader {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout

	return &HTTPDownloader{
		client:    &http.Client{Transport: transport},
		userAgent: userAgent,
		progress:  progress,
	}
}

// Download implements Downloader
func (d *HTTPDownloader) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeDownload, "invalid artifact url", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeNetwork, "requesting artifact", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errs.FromStatus(resp.StatusCode, fmt.Sprintf("artifact download returned %s", resp.Status))
	}

	if d.progress != nil {
		w = &progressWriter{w: w, total: resp.ContentLength, report: d.progress}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errs.Wrap(errs.ErrorTypeNetwork, "streaming artifact", err)
	}
	return n, nil
}

type progressWriter struct {
	w        io.Writer
	written  int64
	total    int64
	report   ProgressFunc
	lastTick time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if now := time.Now(); now.Sub(p.lastTick) >= 250*time.Millisecond || p.written == p.total {
		p.lastTick = now
		p.report(p.written, p.total)
	}
	return n, err
}
