package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"

	"github.com/forkline/api/internal/services"
)

// MenuImageStore persists menu item images in a Cloud Storage bucket.
type MenuImageStore struct {
	client *gcs.Client
	bucket string
}

// NewMenuImageStore constructs the store over an existing Cloud Storage client.
func NewMenuImageStore(client *gcs.Client, bucket string) (*MenuImageStore, error) {
	if client == nil {
		return nil, errors.New("storage: menu image store requires client")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &MenuImageStore{client: client, bucket: bucket}, nil
}

// SaveMenuImage streams the upload into the bucket and returns the object
// path. Existing images for the same item are overwritten in place.
func (s *MenuImageStore) SaveMenuImage(ctx context.Context, tenantID, sku string, upload services.ImageUpload) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage: menu image store not initialised")
	}
	if upload.Body == nil {
		return "", errors.New("storage: image body is required")
	}

	ext, err := imageExtension(upload.ContentType)
	if err != nil {
		return "", err
	}
	object, err := BuildObjectPath(PurposeMenuImage, PathParams{
		TenantID: tenantID,
		SKU:      sku,
		FileName: "image" + ext,
	})
	if err != nil {
		return "", err
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = upload.ContentType
	writer.CacheControl = "public, max-age=300"

	if _, err := io.Copy(writer, upload.Body); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: write menu image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: finalise menu image: %w", err)
	}
	return object, nil
}

func imageExtension(contentType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("storage: unsupported image content type %q", contentType)
	}
}

var _ services.ImageStore = (*MenuImageStore)(nil)
