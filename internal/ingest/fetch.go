package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStorageService fetches statement files from Google Cloud Storage
// or, for local paths, straight from disk.
type GCSStorageService struct{}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService() *GCSStorageService {
	return &GCSStorageService{}
}

// FetchStatement loads the statement bytes. Sources starting with
// gs:// are read from GCS, anything else is a local file path.
func (s *GCSStorageService) FetchStatement(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "gs://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("FetchStatement: read file %q: %w", source, err)
		}
		return data, nil
	}

	trimmed := strings.TrimPrefix(source, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return nil, fmt.Errorf("FetchStatement: invalid GCS URI %q", source)
	}
	bucketName, objectName := parts[0], parts[1]

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchStatement: create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchStatement: open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("FetchStatement: read GCS object: %w", err)
	}

	return data, nil
}

var _ StorageService = (*GCSStorageService)(nil)
