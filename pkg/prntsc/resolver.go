package prntsc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	errs "shotprobe/pkg/errors"
	"shotprobe/pkg/models"
)

const ogImageSelector = `meta[property="og:image"]`

// Resolve fetches the share page for code and extracts the image URL from
// its og:image tag. It never returns an error: every failure is a Miss with
// a reason.
func (c *Client) Resolve(ctx context.Context, code string) models.ProbeResult {
	result := models.ProbeResult{
		Kind:    models.Miss,
		Code:    code,
		PageURL: c.PageURL(code),
	}

	if err := c.pace(ctx); err != nil {
		result.Reason = models.MissTransient
		result.Err = err
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.resolveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.PageURL, nil)
	if err != nil {
		result.Reason = models.MissTransient
		result.Err = err
		return result
	}

	resp, err := c.doRequest(req)
	if err != nil {
		result.Reason = models.MissTransient
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Reason = models.MissNotFound
		result.Err = errs.FromStatus(resp.StatusCode, "share page unavailable")
		return result
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		result.Reason = models.MissTransient
		result.Err = errs.Wrap(errs.ErrorTypeNetwork, "reading share page", err)
		return result
	}

	imageURL, err := extractImageURL(doc, resp.Request.URL)
	if err != nil {
		result.Reason = models.MissNoImageTag
		result.Err = err
		return result
	}

	if c.IsPlaceholder(imageURL) {
		result.Reason = models.MissPlaceholder
		result.ImageURL = imageURL
		return result
	}

	result.Kind = models.Hit
	result.ImageURL = imageURL
	c.logger.DebugWithFields("Found image", map[string]interface{}{
		"code": code,
		"url":  imageURL,
	})
	return result
}

// IsPlaceholder reports whether imageURL is the host's placeholder image
func (c *Client) IsPlaceholder(imageURL string) bool {
	return strings.Contains(imageURL, c.placeholderMarker)
}

var errNoImageTag = errors.New("page has no og:image tag")

// extractImageURL reads the first og:image content and resolves it against
// the page URL, so protocol-relative and relative values become absolute.
func extractImageURL(doc *goquery.Document, base *url.URL) (string, error) {
	content, ok := doc.Find(ogImageSelector).First().Attr("content")
	content = strings.TrimSpace(content)
	if !ok || content == "" {
		return "", errs.Wrap(errs.ErrorTypeParsing, "extracting image url", errNoImageTag)
	}

	u, err := url.Parse(content)
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeParsing, fmt.Sprintf("invalid og:image %q", content), err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errs.New(errs.ErrorTypeParsing, fmt.Sprintf("unsupported og:image %q", content))
	}
	return u.String(), nil
}
