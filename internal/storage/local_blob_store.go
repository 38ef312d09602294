package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// LocalBlobStore keeps blobs as files under a base directory and hands out
// file:// urls. Read urls do not expire.
type LocalBlobStore struct {
	baseDir string
	http    *resty.Client
}

var _ BlobStore = (*LocalBlobStore)(nil)

func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", baseDir, err)
	}

	return &LocalBlobStore{baseDir: baseDir, http: newHttpClient()}, nil
}

func (s *LocalBlobStore) Exists(ctx context.Context, name string) (bool, error) {
	info, err := os.Stat(localStorageFullpath(s.baseDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s/%s: %w", s.baseDir, name, err)
	}
	return !info.IsDir(), nil
}

func (s *LocalBlobStore) GetReadURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	exists, err := s.Exists(ctx, name)
	if err != nil || !exists {
		return "", err
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(localStorageFullpath(s.baseDir, name))}
	return u.String(), nil
}

func (s *LocalBlobStore) Download(ctx context.Context, rawURL string) ([]byte, error) {
	if !strings.HasPrefix(rawURL, "file://") {
		return downloadHttp(ctx, s.http, rawURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid blob url %s: %w", rawURL, err)
	}

	path := filepath.FromSlash(parsed.Path)
	if !isWithinDir(s.baseDir, path) {
		return nil, fmt.Errorf("blob url %s is outside of %s", rawURL, s.baseDir)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (s *LocalBlobStore) Upload(ctx context.Context, data []byte, name string) error {
	path := localStorageFullpath(s.baseDir, name)
	if !isWithinDir(s.baseDir, path) {
		return fmt.Errorf("blob name %s is outside of %s", name, s.baseDir)
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s/%s: %w", s.baseDir, name, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s/%s: %w", s.baseDir, name, err)
	}

	return nil
}
