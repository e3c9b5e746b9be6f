// Package export serializes audit reports for offline review and
// uploads them to Google Cloud Storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/storage"

	"github.com/calycompta/compta-core/internal/audit"
)

// ObjectName builds the canonical object path for a tenant's audit
// export, e.g. "audits/club-1/2024/06/report-20240614T101500Z.json".
func ObjectName(tenantID string, generatedAt time.Time) string {
	return fmt.Sprintf("audits/%s/%s/report-%s.json",
		tenantID,
		generatedAt.UTC().Format("2006/01"),
		generatedAt.UTC().Format("20060102T150405Z"))
}

// UploadReport serializes the report's export document and writes it to
// the given GCS bucket. It assumes Application Default Credentials are
// configured. Returns the gs:// URI of the uploaded object.
func UploadReport(ctx context.Context, bucketName string, report *audit.Report) (string, error) {
	if bucketName == "" {
		return "", fmt.Errorf("UploadReport: bucket name is required")
	}

	doc := report.Export()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("UploadReport: marshal report: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("UploadReport: create storage client: %w", err)
	}
	defer client.Close()

	objectName := ObjectName(report.TenantID, report.GeneratedAt)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("UploadReport: write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("UploadReport: finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", bucketName, objectName), nil
}

// WriteReportFile serializes the report's export document to a local
// file, for review without a GCS bucket.
func WriteReportFile(report *audit.Report, path string) error {
	doc := report.Export()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("WriteReportFile: marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("WriteReportFile: write %q: %w", path, err)
	}

	return nil
}
