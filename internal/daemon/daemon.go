// Package daemon wires the storage, moderation, and HTTP layers into a
// running server process.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/httpapi"
	"github.com/UsotsukiKaze/PicManager/internal/moderation"
	"github.com/UsotsukiKaze/PicManager/internal/quota"
	"github.com/UsotsukiKaze/PicManager/internal/session"
	"github.com/UsotsukiKaze/PicManager/internal/snapshot"
	"github.com/UsotsukiKaze/PicManager/internal/store"
)

const sessionSweepInterval = time.Hour

type Options struct {
	DBPath          string
	SnapshotPath    string
	CommitThreshold int
	StoreDir        string
	PendingDir      string

	BindAddr    string
	Port        int
	MaxUploadMB int

	UserTTL         time.Duration
	GuestTTL        time.Duration
	GuestDailyLimit int

	Logger *slog.Logger
}

func Run(ctx context.Context, opt Options) error {
	if opt.DBPath == "" {
		return errors.New("db path is required")
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}

	// The snapshot is reconciled before the database is opened so a
	// corrupted live file never reaches the driver.
	snap := snapshot.New(opt.DBPath, opt.SnapshotPath, opt.CommitThreshold, lg)
	if err := snap.RestoreIfNeeded(); err != nil {
		return err
	}

	d, err := db.Open(ctx, opt.DBPath)
	if err != nil {
		return err
	}
	defer d.Close()
	snap.Attach(d)

	initialized, err := d.HasRoot(ctx)
	if err != nil {
		return err
	}
	if !initialized {
		return errors.New("not initialized; run setup")
	}

	files, err := store.New(afero.NewOsFs(), opt.StoreDir, opt.PendingDir)
	if err != nil {
		return err
	}

	sessions := session.New(d, opt.UserTTL, opt.GuestTTL)
	tracker := quota.New(d, opt.GuestDailyLimit)
	engine := moderation.New(d, files, tracker, lg)

	api := &httpapi.Server{
		DB:          d,
		Sessions:    sessions,
		Quota:       tracker,
		Engine:      engine,
		Files:       files,
		Snap:        snap,
		Logger:      lg,
		BindAddr:    opt.BindAddr,
		Port:        opt.Port,
		MaxUploadMB: opt.MaxUploadMB,
		UserTTL:     opt.UserTTL,
		GuestTTL:    opt.GuestTTL,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- api.ListenAndServe() }()
	go snap.Run(ctx)
	go sweepSessions(ctx, sessions, lg)

	lg.Info("server started", "bind", opt.BindAddr, "port", opt.Port, "db", opt.DBPath)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweepSessions removes expired session rows on a fixed interval so the
// table does not accumulate stale guests.
func sweepSessions(ctx context.Context, sessions *session.Registry, lg *slog.Logger) {
	t := time.NewTicker(sessionSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := sessions.SweepExpired(ctx)
			if err != nil {
				lg.Error("sweeping sessions", "err", err)
				continue
			}
			if n > 0 {
				lg.Debug("swept expired sessions", "count", n)
			}
		}
	}
}
