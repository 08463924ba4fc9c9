package sink

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// AzureBlobSink archives recordings to an Azure Blob Storage container.
type AzureBlobSink struct {
	container string
	prefix    string
	client    *azblob.Client
}

// NewAzureBlobSink builds an AzureBlobSink against accountURL (e.g.
// "https://<account>.blob.core.windows.net") using a shared key.
func NewAzureBlobSink(accountURL, accountName, accountKey, container, prefix string) (*AzureBlobSink, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure shared key credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return &AzureBlobSink{container: container, prefix: prefix, client: client}, nil
}

func (s *AzureBlobSink) blobName(remotePath string) string {
	return strings.TrimPrefix(strings.TrimSuffix(s.prefix, "/")+"/"+remotePath, "/")
}

// Upload puts a local file's contents as a block blob.
func (s *AzureBlobSink) Upload(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	ctx := context.Background()
	_, err = s.client.UploadFile(ctx, s.container, s.blobName(remotePath), f, nil)
	if err != nil {
		return fmt.Errorf("azure upload %s: %w", remotePath, err)
	}
	return nil
}

// Download fetches a blob to localPath.
func (s *AzureBlobSink) Download(remotePath, localPath string) error {
	ctx := context.Background()
	dest, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer dest.Close()

	_, err = s.client.DownloadFile(ctx, s.container, s.blobName(remotePath), dest, nil)
	if err != nil {
		return fmt.Errorf("azure download %s: %w", remotePath, err)
	}
	return nil
}

// List enumerates blobs under prefix/subPrefix.
func (s *AzureBlobSink) List(subPrefix string) ([]string, error) {
	ctx := context.Background()
	full := s.blobName(subPrefix)
	var out []string

	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &full,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure list %s: %w", subPrefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			out = append(out, strings.TrimPrefix(*item.Name, strings.TrimSuffix(s.prefix, "/")+"/"))
		}
	}
	return out, nil
}

// Delete removes a blob.
func (s *AzureBlobSink) Delete(remotePath string) error {
	ctx := context.Background()
	_, err := s.client.DeleteBlob(ctx, s.container, s.blobName(remotePath), &blob.DeleteOptions{})
	if err != nil {
		return fmt.Errorf("azure delete %s: %w", remotePath, err)
	}
	return nil
}
