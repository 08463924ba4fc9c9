// Package sink stores and retrieves downloaded recordings and snapshots
// on a local filesystem or in object storage.
package sink

// Provider is the destination for archived recordings: a local directory
// tree, or an object storage bucket.
type Provider interface {
	Upload(localPath, remotePath string) error
	Download(remotePath, localPath string) error
	List(prefix string) ([]string, error)
	Delete(remotePath string) error
}
