package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type BlobStore interface {
	Exists(ctx context.Context, name string) (bool, error)

	// GetReadURL returns an empty string when the blob does not exist.
	GetReadURL(ctx context.Context, name string, ttl time.Duration) (string, error)

	Download(ctx context.Context, url string) ([]byte, error)

	Upload(ctx context.Context, data []byte, name string) error
}

func newHttpClient() *resty.Client {
	return resty.New().SetTimeout(2 * time.Minute)
}

func downloadHttp(ctx context.Context, client *resty.Client, url string) ([]byte, error) {
	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("error downloading %s: %w", redactQuery(url), err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("error downloading %s: received status %d", redactQuery(url), resp.StatusCode())
	}
	return resp.Body(), nil
}
