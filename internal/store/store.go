// Package store manages image files on disk. Uploads land in a pending
// quarantine under random names; approval promotes them into the store
// under their permanent catalog ID. The filesystem is abstracted with
// afero so tests run on an in-memory fs.
package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/UsotsukiKaze/PicManager/internal/errs"
	"github.com/UsotsukiKaze/PicManager/internal/fsutil"
)

// Store holds the two managed directories.
type Store struct {
	fs         afero.Fs
	storeDir   string
	pendingDir string
}

func New(fs afero.Fs, storeDir, pendingDir string) (*Store, error) {
	if storeDir == "" || pendingDir == "" {
		return nil, errors.New("store and pending dirs are required")
	}
	for _, dir := range []string{storeDir, pendingDir} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Store{fs: fs, storeDir: storeDir, pendingDir: pendingDir}, nil
}

// Quarantine writes an upload into the pending dir under a random name
// and returns that name. The name, not a full path, is what gets
// persisted with the pending request.
func (s *Store) Quarantine(r io.Reader, ext string) (string, int64, error) {
	if ext == "" {
		return "", 0, fmt.Errorf("%w: file extension is required", errs.ErrInvalidInput)
	}
	u := uuid.New()
	name := hex.EncodeToString(u[:]) + "." + ext

	path := filepath.Join(s.pendingDir, name)
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(path)
		return "", 0, err
	}
	return name, n, nil
}

// StatQuarantined returns the size of a quarantined file. A vanished
// file reports ErrInvalidState so the caller can refuse to approve a
// request whose upload no longer exists.
func (s *Store) StatQuarantined(name string) (int64, error) {
	path, err := fsutil.WithinRoot(s.pendingDir, name)
	if err != nil {
		return 0, err
	}
	fi, err := s.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: quarantined file missing: %s", errs.ErrInvalidState, name)
	}
	return fi.Size(), nil
}

// Promote moves a quarantined file into the store under its permanent
// image ID. It returns the stored filename, relative to the store dir.
func (s *Store) Promote(name, imageID, ext string) (string, error) {
	src, err := fsutil.WithinRoot(s.pendingDir, name)
	if err != nil {
		return "", err
	}
	if imageID == "" || ext == "" {
		return "", fmt.Errorf("%w: image id and extension are required", errs.ErrInvalidInput)
	}
	rel := imageID + "." + ext
	if err := s.fs.Rename(src, filepath.Join(s.storeDir, rel)); err != nil {
		return "", fmt.Errorf("promote %s: %w", name, err)
	}
	return rel, nil
}

// Demote moves a stored file back into quarantine under its old
// pending name, unwinding a promote whose decision failed to commit.
func (s *Store) Demote(imageID, ext, name string) error {
	dst, err := fsutil.WithinRoot(s.pendingDir, name)
	if err != nil {
		return err
	}
	if imageID == "" || ext == "" {
		return fmt.Errorf("%w: image id and extension are required", errs.ErrInvalidInput)
	}
	return s.fs.Rename(filepath.Join(s.storeDir, imageID+"."+ext), dst)
}

// RemoveStored deletes an approved image file. Missing files are fine;
// the row is already gone and the goal is a clean store.
func (s *Store) RemoveStored(rel string) error {
	path, err := fsutil.WithinRoot(s.storeDir, rel)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveQuarantined deletes a pending upload, tolerating absence.
func (s *Store) RemoveQuarantined(name string) error {
	path, err := fsutil.WithinRoot(s.pendingDir, name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
