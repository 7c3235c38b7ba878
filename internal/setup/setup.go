// Package setup performs first-run initialization: it creates the data
// directories, opens the database, and seeds the root account.
package setup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/UsotsukiKaze/PicManager/internal/auth"
	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/validate"
)

type Options struct {
	DBPath      string
	DataDir     string
	RootAccount string
}

func Run(ctx context.Context, opt Options) error {
	if opt.DBPath == "" {
		return errors.New("db path is required")
	}
	if opt.DataDir == "" {
		return errors.New("data-dir is required")
	}
	if err := validate.Account(opt.RootAccount); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opt.DBPath), 0o700); err != nil {
		return err
	}
	for _, dir := range []string{opt.DataDir, filepath.Join(opt.DataDir, "store"), filepath.Join(opt.DataDir, "pending")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	d, err := db.Open(ctx, opt.DBPath)
	if err != nil {
		return err
	}
	defer d.Close()
	_ = os.Chmod(opt.DBPath, 0o600)

	initialized, err := d.HasRoot(ctx)
	if err != nil {
		return err
	}
	if initialized {
		return errors.New("already initialized")
	}

	rootPass, err := promptPassword("Set root password")
	if err != nil {
		return err
	}
	rootHash, err := auth.HashPassword(rootPass, auth.DefaultArgon2Params())
	if err != nil {
		return err
	}
	if _, err := d.CreateUser(ctx, opt.RootAccount, "root", db.RoleRoot, rootHash); err != nil {
		return err
	}
	return nil
}

func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		for {
			fmt.Fprintf(os.Stderr, "%s: ", label)
			p1b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			fmt.Fprint(os.Stderr, "Confirm password: ")
			p2b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			p1 := strings.TrimSpace(string(p1b))
			p2 := strings.TrimSpace(string(p2b))
			if p1 == "" {
				fmt.Fprintln(os.Stderr, "password cannot be empty")
				continue
			}
			if p1 != p2 {
				fmt.Fprintln(os.Stderr, "passwords do not match")
				continue
			}
			return p1, nil
		}
	}

	// Non-interactive fallback (e.g. piped input). Echo suppression isn't possible.
	r := bufio.NewReader(os.Stdin)
	for {
		fmt.Fprintf(os.Stderr, "%s: ", label)
		p1, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		fmt.Fprint(os.Stderr, "Confirm password: ")
		p2, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		p1 = strings.TrimSpace(p1)
		p2 = strings.TrimSpace(p2)
		if p1 == "" {
			fmt.Fprintln(os.Stderr, "password cannot be empty")
			continue
		}
		if p1 != p2 {
			fmt.Fprintln(os.Stderr, "passwords do not match")
			continue
		}
		return p1, nil
	}
}
