package archiver

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/openipc/dvrip-go/internal/sink"
)

const (
	snapshotRootDir     = "snapshots"
	snapshotFilesDir    = "files"
	snapshotManifestKey = "manifest.json"
)

// Snapshot is one point-in-time archive of recordings pulled off a device.
type Snapshot struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Files     []SnapshotFile `json:"files"`
	Size      int64          `json:"size"`
}

// SnapshotFile records where one archived recording landed.
type SnapshotFile struct {
	SourceName  string    `json:"sourceName"`
	ArchivePath string    `json:"archivePath"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"modTime"`
}

func createSnapshot(dest sink.Provider, files []archivedFile) (*Snapshot, error) {
	if len(files) == 0 {
		return nil, errors.New("archiver: no files to snapshot")
	}

	snap := &Snapshot{ID: newID("snapshot"), Timestamp: time.Now().UTC()}
	prefix := path.Join(snapshotRootDir, snap.ID)
	var errs []error

	for _, f := range files {
		archivePath := path.Join(prefix, snapshotFilesDir, f.snapshotPath)
		if err := dest.Upload(f.localPath, archivePath); err != nil {
			err = fmt.Errorf("upload %s: %w", f.localPath, err)
			errs = append(errs, err)
			log.Warn("upload failed", "path", f.localPath, "error", err)
			continue
		}
		snap.Files = append(snap.Files, SnapshotFile{
			SourceName:  f.snapshotPath,
			ArchivePath: archivePath,
			Size:        f.size,
			ModTime:     f.modTime,
		})
		snap.Size += f.size
	}

	if len(snap.Files) == 0 {
		return nil, errors.Join(errs...)
	}

	manifestPath, err := writeManifest(snap)
	if err != nil {
		return snap, err
	}
	defer os.Remove(manifestPath)

	if err := dest.Upload(manifestPath, path.Join(prefix, snapshotManifestKey)); err != nil {
		return snap, fmt.Errorf("upload snapshot manifest: %w", err)
	}
	return snap, errors.Join(errs...)
}

// ListSnapshots returns every snapshot manifest found in dest, oldest
// first.
func ListSnapshots(dest sink.Provider) ([]Snapshot, error) {
	items, err := dest.List(snapshotRootDir)
	if err != nil {
		return nil, err
	}

	var snaps []Snapshot
	var errs []error

	for _, item := range items {
		if !isManifestPath(item) {
			continue
		}
		snap, err := readManifest(dest, item)
		if err != nil {
			errs = append(errs, err)
			log.Warn("failed to read snapshot manifest", "error", err)
			continue
		}
		snaps = append(snaps, *snap)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Timestamp.Before(snaps[j].Timestamp) })
	if len(snaps) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return snaps, errors.Join(errs...)
}

func readManifest(dest sink.Provider, item string) (*Snapshot, error) {
	tmp, err := os.CreateTemp("", "snapshot-manifest-*.json")
	if err != nil {
		return nil, fmt.Errorf("create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := dest.Download(item, tmpPath); err != nil {
		return nil, fmt.Errorf("download manifest %s: %w", item, err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", tmpPath, err)
	}
	defer f.Close()

	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", item, err)
	}
	return &snap, nil
}

// pruneSnapshots deletes the oldest snapshots beyond retention.
func pruneSnapshots(dest sink.Provider, retention int) error {
	if retention <= 0 {
		return nil
	}
	snaps, err := ListSnapshots(dest)
	if err != nil && len(snaps) == 0 {
		return err
	}
	if len(snaps) <= retention {
		return err
	}

	var errs []error
	for _, snap := range snaps[:len(snaps)-retention] {
		prefix := path.Join(snapshotRootDir, snap.ID)
		items, listErr := dest.List(prefix)
		if listErr != nil {
			errs = append(errs, fmt.Errorf("list snapshot %s: %w", snap.ID, listErr))
			continue
		}
		for _, item := range items {
			if delErr := dest.Delete(item); delErr != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", item, delErr))
			}
		}
	}
	return errors.Join(append([]error{err}, errs...)...)
}

func isManifestPath(item string) bool {
	item = path.Clean(item)
	return strings.HasSuffix(item, "/"+snapshotManifestKey) || path.Base(item) == snapshotManifestKey
}

func writeManifest(snap *Snapshot) (string, error) {
	tmp, err := os.CreateTemp("", "snapshot-manifest-*.json")
	if err != nil {
		return "", fmt.Errorf("create snapshot manifest: %w", err)
	}
	enc := json.NewEncoder(tmp)
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode snapshot manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close snapshot manifest: %w", err)
	}
	return tmp.Name(), nil
}

func newID(prefix string) string {
	random := make([]byte, 4)
	_, _ = rand.Read(random)
	return fmt.Sprintf("%s-%s-%x", prefix, time.Now().UTC().Format("20060102T150405Z"), random)
}
