// Package imagefetch downloads post images into bytes a vision model accepts.
package imagefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
)

// defaultMaxBytes caps the download; vision APIs reject larger payloads anyway.
const defaultMaxBytes = 20 << 20

// Fetcher downloads images over HTTP.
type Fetcher struct {
	http     *http.Client
	maxBytes int64
}

// New creates an image fetcher. timeout zero means 30 seconds, maxBytes
// zero means 20MB.
func New(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if maxBytes == 0 {
		maxBytes = defaultMaxBytes
	}
	return &Fetcher{http: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

// Fetch downloads the image at url and returns its bytes with the media
// type. Non-image responses and oversized bodies are errors, not data.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*domain.ImageData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrImageUnavailable, resp.StatusCode)
	}

	mediaType := mediaTypeOf(resp, url)
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: content type %q is not an image", domain.ErrImageUnavailable, mediaType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrImageUnavailable, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrImageUnavailable, f.maxBytes)
	}

	return &domain.ImageData{Bytes: body, MediaType: mediaType}, nil
}

// mediaTypeOf prefers the Content-Type header and falls back to the URL
// extension for servers that omit or mislabel it.
func mediaTypeOf(resp *http.Response, url string) string {
	ct := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}

	switch strings.ToLower(path.Ext(strings.SplitN(url, "?", 2)[0])) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return ct
}
