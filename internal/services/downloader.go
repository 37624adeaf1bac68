package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/errors"
)

// MaxPDFSize is the default bound on how much of a response body is read
const MaxPDFSize int64 = 100 * 1024 * 1024

// HTTPClient abstracts HTTP operations for downloads and API calls
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Downloader fetches judgement PDFs over HTTP
type Downloader struct {
	client  HTTPClient
	timeout time.Duration
	maxSize int64
}

// NewDownloader creates a Downloader that gives each request the given timeout
func NewDownloader(client HTTPClient, timeout time.Duration) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{
		client:  client,
		timeout: timeout,
		maxSize: MaxPDFSize,
	}
}

// WithMaxSize returns a copy of the Downloader that rejects bodies over n bytes
func (d *Downloader) WithMaxSize(n int64) *Downloader {
	c := *d
	c.maxSize = n
	return &c
}

// Download GETs url and returns the body. Non-2xx responses are errors.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	logger := zerolog.Ctx(ctx)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", PDFContentType+", */*")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s returned %d", errors.ErrUnexpectedStatus, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	if int64(len(data)) > d.maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %s", errors.ErrPDFTooLarge, url, humanize.IBytes(uint64(d.maxSize)))
	}

	logger.Debug().
		Str("url", url).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("downloaded judgement")

	return data, nil
}
