// Package archiver schedules recurring pulls of recorded files off a
// device and archives them to a sink.Provider as timestamped snapshots.
package archiver

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/openipc/dvrip-go/internal/logging"
	"github.com/openipc/dvrip-go/internal/sink"
)

var log = logging.L("archiver")

const (
	jobStatusRunning   = "running"
	jobStatusCompleted = "completed"
	jobStatusFailed    = "failed"
	jobStatusSkipped   = "skipped"
)

// DeviceFileSource is the subset of pkg/dvrip.Client an Archiver needs:
// list recordings in a time range, and pull one down to a local path.
type DeviceFileSource interface {
	ListFiles(beginTime, endTime, fileType string, channel int) ([]map[string]any, error)
	DownloadFile(beginTime, endTime, fileName, destPath string) error
}

// Config describes one archival run's scope.
type Config struct {
	Source    DeviceFileSource
	Sink      sink.Provider
	Channel   int
	FileType  string // "h264", "jpg", or "" for all
	Schedule  time.Duration
	Retention int // snapshots to keep; 0 disables pruning
	WorkDir   string
}

// Job tracks the state of one archive run.
type Job struct {
	ID            string
	StartedAt     time.Time
	CompletedAt   time.Time
	Snapshot      *Snapshot
	FilesArchived int
	BytesArchived int64
	Status        string
	Err           error
}

// Manager orchestrates scheduled and on-demand archive runs.
type Manager struct {
	config Config

	mu               sync.Mutex
	jobRunning       bool
	schedulerRunning bool
	stopCh           chan struct{}
	doneCh           chan struct{}
	lastRunEnd       time.Time
}

// NewManager builds a Manager for cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// Start begins scheduled archive runs. A non-positive Schedule disables
// the scheduler; callers still drive RunOnce manually in that case.
func (m *Manager) Start() error {
	if m.config.Source == nil || m.config.Sink == nil {
		return errors.New("archiver: source and sink are required")
	}
	if m.config.Schedule <= 0 {
		log.Info("scheduled archival disabled")
		return nil
	}

	m.mu.Lock()
	if m.schedulerRunning {
		m.mu.Unlock()
		return errors.New("archiver: already started")
	}
	m.schedulerRunning = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	log.Info("starting scheduler", "interval", m.config.Schedule)
	go m.runScheduler()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight run to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.schedulerRunning {
		m.mu.Unlock()
		return
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.schedulerRunning = false
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
	log.Info("scheduler stopped")
}

func (m *Manager) runScheduler() {
	defer close(m.doneCh)
	if _, err := m.RunOnce(); err != nil {
		log.Warn("initial run failed", "error", err)
	}

	ticker := time.NewTicker(m.config.Schedule)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if _, err := m.RunOnce(); err != nil {
				log.Warn("scheduled run failed", "error", err)
			}
		}
	}
}

// RunOnce lists recordings since the previous run (or from the device's
// zero time "0000-00-00 00:00:00", on the first call), downloads each, and
// uploads it into the sink as one snapshot.
func (m *Manager) RunOnce() (*Job, error) {
	if m.config.Source == nil || m.config.Sink == nil {
		return nil, errors.New("archiver: source and sink are required")
	}

	m.mu.Lock()
	if m.jobRunning {
		m.mu.Unlock()
		return nil, errors.New("archiver: run already in progress")
	}
	m.jobRunning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.jobRunning = false
		m.mu.Unlock()
	}()

	job := &Job{ID: newID("job"), StartedAt: time.Now().UTC(), Status: jobStatusRunning}

	begin := "0000-00-00 00:00:00"
	if !m.lastRunEnd.IsZero() {
		begin = m.lastRunEnd.Format("2006-01-02 15:04:05")
	}
	end := time.Now().UTC().Format("2006-01-02 15:04:05")

	entries, err := m.config.Source.ListFiles(begin, end, m.config.FileType, m.config.Channel)
	if err != nil {
		job.Status = jobStatusFailed
		job.CompletedAt = time.Now().UTC()
		job.Err = fmt.Errorf("list recordings: %w", err)
		return job, job.Err
	}
	if len(entries) == 0 {
		job.Status = jobStatusSkipped
		job.CompletedAt = time.Now().UTC()
		return job, nil
	}

	files, downloadErrs := m.downloadAll(begin, end, entries)
	if len(files) == 0 {
		job.Status = jobStatusFailed
		job.CompletedAt = time.Now().UTC()
		job.Err = errors.Join(downloadErrs...)
		return job, job.Err
	}

	snapshot, snapErr := createSnapshot(m.config.Sink, files)
	for _, f := range files {
		os.Remove(f.localPath)
	}
	job.CompletedAt = time.Now().UTC()
	job.Snapshot = snapshot
	if snapshot != nil {
		job.FilesArchived = len(snapshot.Files)
		job.BytesArchived = snapshot.Size
	}

	var retentionErr error
	if snapshot != nil && m.config.Retention > 0 {
		if retentionErr = pruneSnapshots(m.config.Sink, m.config.Retention); retentionErr != nil {
			log.Warn("retention prune failed", "error", retentionErr)
		}
	}

	m.lastRunEnd = time.Now().UTC()

	if snapErr != nil {
		job.Status = jobStatusFailed
		job.Err = errors.Join(append(downloadErrs, snapErr)...)
		return job, job.Err
	}

	job.Status = jobStatusCompleted
	job.Err = errors.Join(append(downloadErrs, retentionErr)...)
	return job, nil
}

type archivedFile struct {
	localPath    string
	snapshotPath string
	size         int64
	modTime      time.Time
}

func (m *Manager) downloadAll(begin, end string, entries []map[string]any) ([]archivedFile, []error) {
	workDir := m.config.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	var files []archivedFile
	var errs []error
	seen := make(map[string]struct{})

	for _, e := range entries {
		name, _ := e["FileName"].(string)
		if name == "" || name == "NULL" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		localPath := fmt.Sprintf("%s/%s", workDir, sanitizeFileName(name))
		if err := m.config.Source.DownloadFile(begin, end, name, localPath); err != nil {
			errs = append(errs, fmt.Errorf("download %s: %w", name, err))
			continue
		}

		info, statErr := os.Stat(localPath)
		if statErr != nil {
			errs = append(errs, fmt.Errorf("stat %s: %w", localPath, statErr))
			continue
		}

		files = append(files, archivedFile{
			localPath:    localPath,
			snapshotPath: sanitizeFileName(name),
			size:         info.Size(),
			modTime:      info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].snapshotPath < files[j].snapshotPath })
	return files, errs
}

func sanitizeFileName(name string) string {
	clean := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '/' || r == '\\' {
			r = '_'
		}
		clean = append(clean, r)
	}
	return string(clean)
}
