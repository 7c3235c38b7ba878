// Package setup implements the "picmanager setup" CLI subcommand.
package setup

import (
	"context"
	"flag"

	isetup "github.com/UsotsukiKaze/PicManager/internal/setup"
)

type Options struct {
	DBPath      string
	DataDir     string
	RootAccount string
}

func Run(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.DBPath, "db", "./data/picmanager.db", "sqlite database path")
	fs.StringVar(&opt.DataDir, "data-dir", "./data", "data directory (image store and quarantine)")
	fs.StringVar(&opt.RootAccount, "root-account", "", "account number for the root user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return isetup.Run(context.Background(), isetup.Options{
		DBPath:      opt.DBPath,
		DataDir:     opt.DataDir,
		RootAccount: opt.RootAccount,
	})
}
