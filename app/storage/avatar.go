package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/playshelf/playshelf-api/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// AvatarStore copies a provider-hosted image into durable object storage and
// returns its public URL.
type AvatarStore interface {
	UploadFromURL(ctx context.Context, sourceURL, key string) (string, error)
}

type ObjectStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	httpClient    *http.Client
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object storage client: %w", err)
	}

	publicBaseURL := cfg.PublicBaseURL
	if publicBaseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBaseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &ObjectStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: publicBaseURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// UploadFromURL fetches sourceURL and stores it under key, overwriting any
// previous object. Keys are deterministic per provider identity, so repeated
// logins replace the avatar instead of accumulating copies.
func (s *ObjectStore) UploadFromURL(ctx context.Context, sourceURL, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("avatar fetch request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("avatar fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("avatar fetch: unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, resp.Body, resp.ContentLength, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("avatar upload: %w", err)
	}

	return s.publicBaseURL + "/" + key, nil
}
