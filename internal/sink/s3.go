package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Sink archives recordings to an S3-compatible bucket.
type S3Sink struct {
	bucket string
	prefix string
	client *s3.Client
}

// NewS3Sink builds an S3Sink for bucket in region, under the given key
// prefix. Credentials are resolved the standard way (env vars, shared
// config, instance role).
func NewS3Sink(ctx context.Context, bucket, region, prefix string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Sink{bucket: bucket, prefix: prefix, client: s3.NewFromConfig(cfg)}, nil
}

func (s *S3Sink) key(remotePath string) string {
	return strings.TrimPrefix(strings.TrimSuffix(s.prefix, "/")+"/"+remotePath, "/")
}

// Upload puts a local file's contents at key prefix/remotePath.
func (s *S3Sink) Upload(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	ctx := context.Background()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(remotePath)),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", remotePath, err)
	}
	return nil
}

// Download fetches an object to localPath.
func (s *S3Sink) Download(remotePath, localPath string) error {
	ctx := context.Background()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(remotePath)),
	})
	if err != nil {
		return fmt.Errorf("s3 get %s: %w", remotePath, err)
	}
	defer out.Body.Close()

	dest, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, out.Body); err != nil {
		return fmt.Errorf("write destination: %w", err)
	}
	return nil
}

// List enumerates objects under prefix/subPrefix.
func (s *S3Sink) List(subPrefix string) ([]string, error) {
	ctx := context.Background()
	var out []string
	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.key(subPrefix)),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", subPrefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, strings.TrimPrefix(aws.ToString(obj.Key), strings.TrimSuffix(s.prefix, "/")+"/"))
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

// Delete removes an object.
func (s *S3Sink) Delete(remotePath string) error {
	ctx := context.Background()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(remotePath)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", remotePath, err)
	}
	return nil
}
