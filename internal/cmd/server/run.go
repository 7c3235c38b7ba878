// Package server implements the "picmanager server" CLI subcommand.
package server

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/UsotsukiKaze/PicManager/internal/config"
	"github.com/UsotsukiKaze/PicManager/internal/daemon"
	"github.com/UsotsukiKaze/PicManager/internal/logging"
	"github.com/UsotsukiKaze/PicManager/internal/version"
)

type Options struct {
	ConfigPath string
	LogLevel   string

	DBPath          string
	SnapshotPath    string
	CommitThreshold int
	DataDir         string
	BindAddr        string
	Port            int
	MaxUploadMB     int
	UserTTLHours    int
	GuestTTLHours   int
	GuestDailyLimit int
}

func Run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	var opt Options
	var showVersion bool
	fs.StringVar(&opt.ConfigPath, "config", "", "path to picmanager.yaml (when set, other flags are ignored)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&opt.LogLevel, "log-level", "info", "log level: debug|info|warning|error")
	fs.StringVar(&opt.DBPath, "db", "./data/picmanager.db", "sqlite database path")
	fs.StringVar(&opt.SnapshotPath, "snapshot", "", "snapshot path (defaults to db path + .snapshot)")
	fs.IntVar(&opt.CommitThreshold, "snapshot-commits", 50, "commits between automatic snapshots")
	fs.StringVar(&opt.DataDir, "data-dir", "./data", "data directory (image store and quarantine)")
	fs.StringVar(&opt.BindAddr, "bind", "127.0.0.1", "bind address")
	fs.IntVar(&opt.Port, "port", 8178, "HTTP port")
	fs.IntVar(&opt.MaxUploadMB, "max-upload-mb", 50, "maximum upload size in MiB")
	fs.IntVar(&opt.UserTTLHours, "user-ttl-hours", 168, "user session lifetime in hours")
	fs.IntVar(&opt.GuestTTLHours, "guest-ttl-hours", 24, "guest session lifetime in hours")
	fs.IntVar(&opt.GuestDailyLimit, "guest-daily-limit", 5, "guest submissions per IP per day")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("picmanager server %s\n", version.Version)
		return nil
	}

	if opt.ConfigPath != "" {
		c, err := config.Load(opt.ConfigPath)
		if err != nil {
			return err
		}
		base := filepath.Dir(opt.ConfigPath)
		lg, err := logging.New(logging.Options{Level: c.Log.Level, JSON: c.Log.JSON, DefaultSlog: true})
		if err != nil {
			return err
		}
		return daemon.Run(context.Background(), daemon.Options{
			DBPath:          resolvePath(base, c.DB.Path),
			SnapshotPath:    resolvePath(base, c.Snapshot.Path),
			CommitThreshold: c.Snapshot.CommitThreshold,
			StoreDir:        resolvePath(base, c.StoreDir()),
			PendingDir:      resolvePath(base, c.PendingDir()),
			BindAddr:        c.HTTP.Bind,
			Port:            c.HTTP.Port,
			MaxUploadMB:     c.HTTP.MaxUploadMB,
			UserTTL:         c.Session.UserTTL,
			GuestTTL:        c.Session.GuestTTL,
			GuestDailyLimit: c.Guest.DailyLimit,
			Logger:          lg,
		})
	}

	lg, err := logging.New(logging.Options{Level: opt.LogLevel, DefaultSlog: true})
	if err != nil {
		return err
	}
	snapPath := strings.TrimSpace(opt.SnapshotPath)
	if snapPath == "" {
		snapPath = opt.DBPath + ".snapshot"
	}
	return daemon.Run(context.Background(), daemon.Options{
		DBPath:          opt.DBPath,
		SnapshotPath:    snapPath,
		CommitThreshold: opt.CommitThreshold,
		StoreDir:        filepath.Join(opt.DataDir, "store"),
		PendingDir:      filepath.Join(opt.DataDir, "pending"),
		BindAddr:        opt.BindAddr,
		Port:            opt.Port,
		MaxUploadMB:     opt.MaxUploadMB,
		UserTTL:         time.Duration(opt.UserTTLHours) * time.Hour,
		GuestTTL:        time.Duration(opt.GuestTTLHours) * time.Hour,
		GuestDailyLimit: opt.GuestDailyLimit,
		Logger:          lg,
	})
}

func resolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
