// Package resetroot implements the "picmanager reset-root" CLI
// subcommand. It resets the root password directly in the SQLite
// database.
package resetroot

import (
	"context"
	"flag"

	isetup "github.com/UsotsukiKaze/PicManager/internal/setup"
)

// Options captures CLI flags for the root password reset.
// RootPassword and RootPasswordEnv are mutually exclusive by usage.
type Options struct {
	DBPath          string
	RootPassword    string
	RootPasswordEnv bool
}

func Run(args []string) error {
	fs := flag.NewFlagSet("reset-root", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.DBPath, "db", "./data/picmanager.db", "sqlite database path")
	fs.StringVar(&opt.RootPassword, "root-password", "", "set root password non-interactively")
	fs.BoolVar(&opt.RootPasswordEnv, "root-password-env", false, "read root password from PICMANAGER_ROOT_PASSWORD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return isetup.ResetRoot(context.Background(), isetup.ResetRootOptions{
		DBPath:          opt.DBPath,
		RootPassword:    opt.RootPassword,
		RootPasswordEnv: opt.RootPasswordEnv,
	})
}
