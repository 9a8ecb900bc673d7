// Package manifest persists per-title chapter download state so repeated
// runs skip completed work and retry only what failed.
//
// One manifest lives in each title export directory, guarded by a sidecar
// lock file so concurrent processes targeting the same directory serialize
// their reads and writes. Writes are atomic (temp file + rename); corrupt
// or unreadable files degrade to empty state instead of failing the run.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

const (
	// Filename is the fixed manifest sentinel name inside a title directory.
	Filename = ".plusload-manifest.json"
	// Schema identifies the manifest payload shape.
	Schema = "plusload.title_download_manifest"
	// Version is the current payload version.
	Version = 2

	lockSuffix = ".lock"

	// DefaultLockTimeout bounds lock acquisition. A timeout is fatal for
	// the manifest operation; it is not retried.
	DefaultLockTimeout = 30 * time.Second

	lockRetryDelay = 50 * time.Millisecond
)

// Status is the per-chapter download state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is the persisted record for one chapter.
type Entry struct {
	ChapterID    int    `json:"chapter_id"`
	ChapterName  string `json:"chapter_name,omitempty"`
	SubTitle     string `json:"sub_title,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	Status       Status `json:"status"`
	StartedAt    string `json:"started_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	FailedAt     string `json:"failed_at,omitempty"`
	Error        string `json:"error,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`
}

type filePayload struct {
	Version  int              `json:"version"`
	Schema   string           `json:"schema"`
	Chapters map[string]Entry `json:"chapters"`
}

// Manifest manages chapter download progress for a single title directory.
//
// In autosave mode every mutation re-reads state from disk under the lock
// before merging, so concurrent writers' progress is picked up. In manual
// mode mutations stay in memory until Flush; appropriate for one long-lived
// loader that wants batched I/O.
type Manifest struct {
	path        string
	lockPath    string
	lock        *flock.Flock
	lockTimeout time.Duration
	autosave    bool
	chapters    map[string]Entry
	dirty       bool
	now         func() time.Time
}

// Option configures a Manifest before the initial load.
type Option func(*Manifest)

// WithAutosave toggles persist-on-every-mutation behavior.
func WithAutosave(autosave bool) Option {
	return func(m *Manifest) { m.autosave = autosave }
}

// WithLockTimeout bounds lock acquisition.
func WithLockTimeout(timeout time.Duration) Option {
	return func(m *Manifest) { m.lockTimeout = timeout }
}

// WithClock pins the timestamp source. Tests use this to make mark calls
// deterministic.
func WithClock(now func() time.Time) Option {
	return func(m *Manifest) { m.now = now }
}

// Open loads the manifest for titleDir, creating the directory when absent.
func Open(titleDir string, opts ...Option) (*Manifest, error) {
	if err := os.MkdirAll(titleDir, 0o755); err != nil {
		return nil, fmt.Errorf("create title directory: %w", err)
	}
	path := filepath.Join(titleDir, Filename)
	m := &Manifest{
		path:        path,
		lockPath:    path + lockSuffix,
		lock:        flock.New(path + lockSuffix),
		lockTimeout: DefaultLockTimeout,
		autosave:    true,
		chapters:    make(map[string]Entry),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.withLock(m.loadLocked); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the manifest file location.
func (m *Manifest) Path() string {
	return m.path
}

func (m *Manifest) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.lockTimeout)
	defer cancel()
	locked, err := m.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire manifest lock %s: %w", m.lockPath, err)
	}
	if !locked {
		return fmt.Errorf("acquire manifest lock %s: timed out", m.lockPath)
	}
	defer m.lock.Unlock()
	return fn()
}

// loadLocked reads on-disk state. Unreadable or garbled files are treated
// as empty state, never as an error.
func (m *Manifest) loadLocked() error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		m.chapters = make(map[string]Entry)
		m.dirty = false
		return nil
	}
	chapters, migrated := normalizePayload(raw)
	m.chapters = chapters
	m.dirty = migrated
	if migrated && m.autosave {
		return m.saveLocked()
	}
	return nil
}

// saveLocked atomically replaces the manifest file: serialize to a temp
// file in the same directory, then rename over the destination.
func (m *Manifest) saveLocked() error {
	payload := filePayload{
		Version:  Version,
		Schema:   Schema,
		Chapters: m.chapters,
	}
	serialized, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, Filename+".tmp-*")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(serialized); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write manifest temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close manifest temp file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace manifest: %w", err)
	}
	m.dirty = false
	return nil
}

// Save persists current state unconditionally.
func (m *Manifest) Save() error {
	return m.withLock(m.saveLocked)
}

// Flush persists pending in-memory mutations when autosave is disabled.
// A clean manifest is a no-op.
func (m *Manifest) Flush() error {
	if !m.dirty {
		return nil
	}
	return m.withLock(func() error {
		if !m.dirty {
			return nil
		}
		return m.saveLocked()
	})
}

// Reset clears in-memory state and deletes the on-disk file. A missing
// file is not an error.
func (m *Manifest) Reset() error {
	return m.withLock(func() error {
		m.chapters = make(map[string]Entry)
		m.dirty = false
		if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove manifest: %w", err)
		}
		return nil
	})
}

// IsCompleted reports whether a chapter is recorded as completed.
func (m *Manifest) IsCompleted(chapterID int) bool {
	entry, ok := m.chapters[chapterKey(chapterID)]
	return ok && entry.Status == StatusCompleted
}

// Entry returns the stored entry for a chapter, if any.
func (m *Manifest) Entry(chapterID int) (Entry, bool) {
	entry, ok := m.chapters[chapterKey(chapterID)]
	return entry, ok
}

// Len returns the number of tracked chapters.
func (m *Manifest) Len() int {
	return len(m.chapters)
}

func chapterKey(chapterID int) string {
	return strconv.Itoa(chapterID)
}

func (m *Manifest) timestamp() string {
	return m.now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// markEntry merges one update and persists according to the autosave mode.
// When the merged entry equals the stored one the write is skipped
// entirely, so replaying an identical mark never dirties the file.
func (m *Manifest) markEntry(chapterID int, merge func(Entry) Entry) error {
	key := chapterKey(chapterID)
	apply := func() (changed bool) {
		existing, ok := m.chapters[key]
		if !ok {
			existing = Entry{ChapterID: chapterID}
		}
		merged := merge(existing)
		if ok && merged == existing {
			return false
		}
		m.chapters[key] = merged
		m.dirty = true
		return true
	}

	if !m.autosave {
		apply()
		return nil
	}
	return m.withLock(func() error {
		if err := m.loadLocked(); err != nil {
			return err
		}
		if !apply() {
			return nil
		}
		return m.saveLocked()
	})
}

// MarkStarted records a chapter as in progress, together with the metadata
// needed for resume reporting. A failed chapter transitions back to
// in_progress here on retry.
func (m *Manifest) MarkStarted(chapterID int, chapterName, subTitle string, outputFormat string) error {
	now := m.timestamp()
	return m.markEntry(chapterID, func(entry Entry) Entry {
		entry.ChapterID = chapterID
		entry.ChapterName = chapterName
		entry.SubTitle = subTitle
		entry.OutputFormat = outputFormat
		entry.Status = StatusInProgress
		entry.StartedAt = now
		entry.CompletedAt = ""
		entry.FailedAt = ""
		entry.Error = ""
		return entry
	})
}

// MarkCompleted records a chapter as completed, storing the exporter's
// output path when known.
func (m *Manifest) MarkCompleted(chapterID int, outputPath string) error {
	now := m.timestamp()
	return m.markEntry(chapterID, func(entry Entry) Entry {
		entry.ChapterID = chapterID
		entry.Status = StatusCompleted
		entry.CompletedAt = now
		entry.FailedAt = ""
		entry.Error = ""
		if outputPath != "" {
			entry.OutputPath = outputPath
		}
		return entry
	})
}

// MarkFailed records a chapter as failed with an error description.
func (m *Manifest) MarkFailed(chapterID int, errText string) error {
	now := m.timestamp()
	return m.markEntry(chapterID, func(entry Entry) Entry {
		entry.ChapterID = chapterID
		entry.Status = StatusFailed
		entry.FailedAt = now
		entry.Error = errText
		return entry
	})
}
