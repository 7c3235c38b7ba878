package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func newTestManager(t *testing.T, threshold int) (*Manager, string, string) {
	t.Helper()
	dir := t.TempDir()
	live := filepath.Join(dir, "live.db")
	snap := filepath.Join(dir, "live.db.snapshot")
	return New(live, snap, threshold, nil), live, snap
}

func TestRestoreNoSnapshotTrustsLive(t *testing.T) {
	m, live, _ := newTestManager(t, 50)
	writeFile(t, live, "live content")

	if err := m.RestoreIfNeeded(); err != nil {
		t.Fatalf("RestoreIfNeeded: %v", err)
	}
	if got := readFile(t, live); got != "live content" {
		t.Fatalf("live changed without a snapshot: %q", got)
	}
}

func TestRestoreMissingLiveCopiesSnapshot(t *testing.T) {
	m, live, snap := newTestManager(t, 50)
	writeFile(t, snap, "snapshot content")

	if err := m.RestoreIfNeeded(); err != nil {
		t.Fatalf("RestoreIfNeeded: %v", err)
	}
	if got := readFile(t, live); got != "snapshot content" {
		t.Fatalf("live = %q, want snapshot content", got)
	}
}

func TestRestoreMismatchSnapshotWins(t *testing.T) {
	m, live, snap := newTestManager(t, 50)
	writeFile(t, live, "corrupted")
	writeFile(t, snap, "good copy")
	writeFile(t, live+"-wal", "stale wal")

	if err := m.RestoreIfNeeded(); err != nil {
		t.Fatalf("RestoreIfNeeded: %v", err)
	}
	if got := readFile(t, live); got != "good copy" {
		t.Fatalf("live = %q, want good copy", got)
	}
	if _, err := os.Stat(live + "-wal"); !os.IsNotExist(err) {
		t.Fatalf("stale wal survived restore")
	}
}

func TestRestoreMatchLeavesBoth(t *testing.T) {
	m, live, snap := newTestManager(t, 50)
	writeFile(t, live, "same")
	writeFile(t, snap, "same")

	before, err := os.Stat(live)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := m.RestoreIfNeeded(); err != nil {
		t.Fatalf("RestoreIfNeeded: %v", err)
	}
	after, _ := os.Stat(live)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("live rewritten despite matching digest")
	}
}

func TestRegisterCommitThreshold(t *testing.T) {
	m, live, snap := newTestManager(t, 3)
	writeFile(t, live, "v1")

	ctx := context.Background()
	m.RegisterCommit(ctx)
	m.RegisterCommit(ctx)
	if _, err := os.Stat(snap); !os.IsNotExist(err) {
		t.Fatalf("snapshot taken before threshold")
	}

	m.RegisterCommit(ctx)
	if got := readFile(t, snap); got != "v1" {
		t.Fatalf("snapshot = %q, want v1", got)
	}

	// Counter reset: the next two commits stay below the threshold.
	writeFile(t, live, "v2")
	m.RegisterCommit(ctx)
	m.RegisterCommit(ctx)
	if got := readFile(t, snap); got != "v1" {
		t.Fatalf("snapshot advanced early: %q", got)
	}
	m.RegisterCommit(ctx)
	if got := readFile(t, snap); got != "v2" {
		t.Fatalf("snapshot = %q, want v2", got)
	}
}

type fakeCheckpointer struct{ calls int }

func (f *fakeCheckpointer) Checkpoint(context.Context) error {
	f.calls++
	return nil
}

func TestCreateSnapshotCheckpointsFirst(t *testing.T) {
	m, live, snap := newTestManager(t, 50)
	writeFile(t, live, "data")

	cp := &fakeCheckpointer{}
	m.Attach(cp)
	if err := m.CreateSnapshot(context.Background()); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if cp.calls != 1 {
		t.Fatalf("checkpoint calls = %d, want 1", cp.calls)
	}
	if got := readFile(t, snap); got != "data" {
		t.Fatalf("snapshot = %q", got)
	}
	if _, err := os.Stat(snap + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m, _, _ := newTestManager(t, 50)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}
