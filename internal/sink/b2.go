package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Backblaze/blazer/b2"
)

// B2Sink archives recordings to a Backblaze B2 bucket.
type B2Sink struct {
	prefix string
	bucket *b2.Bucket
}

// NewB2Sink authenticates against Backblaze B2 with the given account ID
// and application key, and binds to bucket.
func NewB2Sink(ctx context.Context, accountID, appKey, bucket, prefix string) (*B2Sink, error) {
	client, err := b2.NewClient(ctx, accountID, appKey)
	if err != nil {
		return nil, fmt.Errorf("b2 client: %w", err)
	}
	bkt, err := client.Bucket(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("b2 bucket %s: %w", bucket, err)
	}
	return &B2Sink{prefix: prefix, bucket: bkt}, nil
}

func (s *B2Sink) objectName(remotePath string) string {
	return strings.TrimPrefix(strings.TrimSuffix(s.prefix, "/")+"/"+remotePath, "/")
}

// Upload puts a local file's contents at the given object name.
func (s *B2Sink) Upload(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	ctx := context.Background()
	w := s.bucket.Object(s.objectName(remotePath)).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("b2 upload %s: %w", remotePath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("b2 upload %s: close: %w", remotePath, err)
	}
	return nil
}

// Download fetches an object to localPath.
func (s *B2Sink) Download(remotePath, localPath string) error {
	ctx := context.Background()
	r := s.bucket.Object(s.objectName(remotePath)).NewReader(ctx)
	defer r.Close()

	dest, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, r); err != nil {
		return fmt.Errorf("b2 download %s: %w", remotePath, err)
	}
	return nil
}

// List enumerates objects under prefix/subPrefix.
func (s *B2Sink) List(subPrefix string) ([]string, error) {
	ctx := context.Background()
	full := s.objectName(subPrefix)

	var out []string
	it := s.bucket.List(ctx, b2.ListPrefix(full))
	for it.Next() {
		name := it.Object().Name()
		out = append(out, strings.TrimPrefix(name, strings.TrimSuffix(s.prefix, "/")+"/"))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("b2 list %s: %w", subPrefix, err)
	}
	return out, nil
}

// Delete removes an object.
func (s *B2Sink) Delete(remotePath string) error {
	ctx := context.Background()
	if err := s.bucket.Object(s.objectName(remotePath)).Delete(ctx); err != nil {
		return fmt.Errorf("b2 delete %s: %w", remotePath, err)
	}
	return nil
}
