package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Archiver keeps the raw text behind each ingestion so it can be replayed.
type Archiver interface {
	// ArchiveRaw stores text under id and returns its gs:// URI.
	ArchiveRaw(ctx context.Context, id, text string) (string, error)

	// Fetch downloads the object at a gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// GCSArchive stores raw inputs in a Cloud Storage bucket.
type GCSArchive struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewGCSArchive creates an archive with its own storage client. It assumes
// Application Default Credentials are configured.
func NewGCSArchive(ctx context.Context, bucket string) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSArchive: create storage client: %w", err)
	}
	return NewGCSArchiveWithClient(client, bucket), nil
}

// NewGCSArchiveWithClient wraps an existing storage client.
func NewGCSArchiveWithClient(client *storage.Client, bucket string) *GCSArchive {
	return &GCSArchive{client: client, bucket: bucket, now: time.Now}
}

// Close closes the storage client.
func (a *GCSArchive) Close() error {
	return a.client.Close()
}

// ArchiveRaw uploads text to raw/YYYY/MM/DD/<id>.txt.
func (a *GCSArchive) ArchiveRaw(ctx context.Context, id, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	object := ObjectName(id, a.now())
	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	w.Metadata = map[string]string{"ingestion_id": id}

	if _, err := io.Copy(w, strings.NewReader(text)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("ArchiveRaw: copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ArchiveRaw: finalize upload: %w", err)
	}
	return "gs://" + a.bucket + "/" + object, nil
}

// Fetch downloads the object bytes at uri.
func (a *GCSArchive) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// ObjectName returns the archive path for id ingested at t.
func ObjectName(id string, t time.Time) string {
	return path.Join("raw", t.UTC().Format("2006/01/02"), id+".txt")
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// IDFromURI returns the ingestion id encoded in an archive URI,
// e.g. "gs://b/raw/2025/01/15/abc.txt" → "abc".
func IDFromURI(uri string) string {
	return strings.TrimSuffix(path.Base(uri), ".txt")
}

var _ Archiver = (*GCSArchive)(nil)
