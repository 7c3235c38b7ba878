package setup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/UsotsukiKaze/PicManager/internal/auth"
	"github.com/UsotsukiKaze/PicManager/internal/db"
)

type ResetRootOptions struct {
	DBPath          string
	RootPassword    string
	RootPasswordEnv bool
}

// ResetRoot replaces the root password directly in the database. The
// server does not need to be running.
func ResetRoot(ctx context.Context, opt ResetRootOptions) error {
	if opt.DBPath == "" {
		return errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opt.DBPath), 0o700); err != nil {
		return err
	}

	d, err := db.Open(ctx, opt.DBPath)
	if err != nil {
		return err
	}
	defer d.Close()

	roots, err := d.ListUsersByRole(ctx, db.RoleRoot)
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		return errors.New("not initialized; run setup")
	}

	pass, err := resolveRootPassword("Set root password", opt.RootPassword, opt.RootPasswordEnv)
	if err != nil {
		return err
	}
	h, err := auth.HashPassword(pass, auth.DefaultArgon2Params())
	if err != nil {
		return err
	}
	return d.SetUserPasswordHash(ctx, roots[0].ID, h)
}

func resolveRootPassword(label string, flagValue string, fromEnv bool) (string, error) {
	if flagValue != "" && fromEnv {
		return "", errors.New("choose one of --root-password or --root-password-env")
	}
	if fromEnv {
		v := strings.TrimSpace(os.Getenv("PICMANAGER_ROOT_PASSWORD"))
		if v == "" {
			return "", errors.New("PICMANAGER_ROOT_PASSWORD is empty")
		}
		return v, nil
	}
	if flagValue != "" {
		v := strings.TrimSpace(flagValue)
		if v == "" {
			return "", errors.New("root password is empty")
		}
		return v, nil
	}
	return promptPassword(label)
}
