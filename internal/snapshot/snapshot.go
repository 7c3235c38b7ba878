// Package snapshot guards the database file against corruption of the
// live copy. A snapshot is a byte-for-byte copy taken after a WAL
// checkpoint; on startup the snapshot is authoritative whenever it
// disagrees with the live file.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Checkpointer flushes pending writes into the live database file so a
// file copy observes every committed transaction.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Manager owns the snapshot lifecycle: startup restore, the commit
// counter that triggers mid-day snapshots, and the daily schedule.
type Manager struct {
	livePath  string
	snapPath  string
	threshold int
	log       *slog.Logger

	mu      sync.Mutex
	commits int

	// src is nil until the database is opened; RestoreIfNeeded runs
	// before that and needs no checkpoint.
	src Checkpointer
}

func New(livePath, snapPath string, threshold int, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{livePath: livePath, snapPath: snapPath, threshold: threshold, log: log}
}

// Attach hands the manager its checkpoint source once the database is
// open. Snapshots taken before Attach copy whatever is on disk.
func (m *Manager) Attach(src Checkpointer) { m.src = src }

// RestoreIfNeeded reconciles the live file with the snapshot. Must run
// before the database is opened.
//
//   - no snapshot: the live file is trusted as-is
//   - no live file: the snapshot is copied into place
//   - both present: content digests are compared and the snapshot wins
//     on any mismatch
func (m *Manager) RestoreIfNeeded() error {
	snapSum, err := fileDigest(m.snapPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("digest snapshot: %w", err)
	}

	liveSum, err := fileDigest(m.livePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("digest live db: %w", err)
	}
	if err == nil && liveSum == snapSum {
		return nil
	}

	m.log.Warn("restoring database from snapshot", "live", m.livePath, "snapshot", m.snapPath)
	if err := copyFile(m.snapPath, m.livePath); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	// Stale WAL sidecars would replay writes from the discarded live
	// file over the restored copy.
	_ = os.Remove(m.livePath + "-wal")
	_ = os.Remove(m.livePath + "-shm")
	return nil
}

// RegisterCommit records one committed mutation. Every threshold-th
// commit triggers a snapshot; snapshot failures are logged, never
// surfaced, so a full disk cannot take down the write path.
func (m *Manager) RegisterCommit(ctx context.Context) {
	m.mu.Lock()
	m.commits++
	due := m.commits >= m.threshold
	if due {
		m.commits = 0
	}
	m.mu.Unlock()

	if !due {
		return
	}
	if err := m.CreateSnapshot(ctx); err != nil {
		m.log.Error("threshold snapshot failed", "err", err)
	}
}

// CreateSnapshot checkpoints the database and copies it next to the
// snapshot path, replacing the old snapshot only once the new copy is
// fully on disk.
func (m *Manager) CreateSnapshot(ctx context.Context) error {
	if m.src != nil {
		if err := m.src.Checkpoint(ctx); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
	}
	if err := copyFile(m.livePath, m.snapPath); err != nil {
		return fmt.Errorf("copy db: %w", err)
	}
	m.log.Info("snapshot written", "path", m.snapPath)
	return nil
}

// Run takes a snapshot at every local midnight until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(untilNextMidnight(time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := m.CreateSnapshot(ctx); err != nil {
				m.log.Error("scheduled snapshot failed", "err", err)
			}
		}
	}
}

func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyFile writes src to dst via a temp file and rename, so dst is
// either the old content or the complete new content, never a torn copy.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
