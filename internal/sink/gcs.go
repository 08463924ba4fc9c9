package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSSink archives recordings to a Google Cloud Storage bucket.
type GCSSink struct {
	bucket string
	prefix string
	client *storage.Client
}

// NewGCSSink builds a GCSSink against bucket, using application default
// credentials.
func NewGCSSink(ctx context.Context, bucket, prefix string) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSSink{bucket: bucket, prefix: prefix, client: client}, nil
}

func (s *GCSSink) objectName(remotePath string) string {
	return strings.TrimPrefix(strings.TrimSuffix(s.prefix, "/")+"/"+remotePath, "/")
}

// Upload puts a local file's contents at the given object name.
func (s *GCSSink) Upload(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	ctx := context.Background()
	w := s.client.Bucket(s.bucket).Object(s.objectName(remotePath)).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("gcs upload %s: %w", remotePath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs upload %s: close: %w", remotePath, err)
	}
	return nil
}

// Download fetches an object to localPath.
func (s *GCSSink) Download(remotePath, localPath string) error {
	ctx := context.Background()
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(remotePath)).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("gcs download %s: %w", remotePath, err)
	}
	defer r.Close()

	dest, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, r); err != nil {
		return fmt.Errorf("write destination: %w", err)
	}
	return nil
}

// List enumerates objects under prefix/subPrefix.
func (s *GCSSink) List(subPrefix string) ([]string, error) {
	ctx := context.Background()
	full := s.objectName(subPrefix)
	query := &storage.Query{Prefix: full}

	var out []string
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s: %w", subPrefix, err)
		}
		out = append(out, strings.TrimPrefix(attrs.Name, strings.TrimSuffix(s.prefix, "/")+"/"))
	}
	return out, nil
}

// Delete removes an object.
func (s *GCSSink) Delete(remotePath string) error {
	ctx := context.Background()
	if err := s.client.Bucket(s.bucket).Object(s.objectName(remotePath)).Delete(ctx); err != nil {
		return fmt.Errorf("gcs delete %s: %w", remotePath, err)
	}
	return nil
}
