package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Fetcher downloads media over HTTP with a bounded body size.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher builds a fetcher with the given per-request timeout and body cap.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if maxBytes == 0 {
		maxBytes = 100 * 1024 * 1024
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// FetchBytes downloads url into memory, capped at limit bytes (or the
// fetcher default when limit is zero).
func (f *Fetcher) FetchBytes(ctx context.Context, url string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = f.maxBytes
	}
	body, err := f.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, &TransferError{URL: url, Err: err}
	}
	if int64(len(data)) > limit {
		return nil, &TransferError{URL: url, Err: fmt.Errorf("body exceeds %d bytes", limit)}
	}
	return data, nil
}

// FetchToFile streams url into path and returns the byte count. Videos go
// through here so a large download never sits fully in memory. A body over
// the size cap is an error, never a silently truncated file.
func (f *Fetcher) FetchToFile(ctx context.Context, url, path string) (int64, error) {
	body, err := f.open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	n, err := io.Copy(out, io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		out.Close()
		return 0, &TransferError{URL: url, Err: err}
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if n > f.maxBytes {
		return 0, &TransferError{URL: url, Err: fmt.Errorf("body exceeds %d bytes", f.maxBytes)}
	}
	return n, nil
}

func (f *Fetcher) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransferError{URL: url, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransferError{URL: url, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, &TransferError{URL: url, Status: resp.StatusCode}
	}
	return resp.Body, nil
}
