package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "picmanager.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "log:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Guest.DailyLimit != 5 {
		t.Fatalf("guest.daily_limit default = %d, want 5", c.Guest.DailyLimit)
	}
	if c.Session.UserTTL != 7*24*time.Hour || c.Session.GuestTTL != 24*time.Hour {
		t.Fatalf("session defaults = %v/%v", c.Session.UserTTL, c.Session.GuestTTL)
	}
	if c.Snapshot.Path != c.DB.Path+".snapshot" {
		t.Fatalf("snapshot path default = %q", c.Snapshot.Path)
	}
	if c.Snapshot.CommitThreshold != 50 {
		t.Fatalf("commit threshold default = %d", c.Snapshot.CommitThreshold)
	}
}

func TestLoadRejectsGuestTTLAboveUserTTL(t *testing.T) {
	_, err := Load(writeConfig(t, "session:\n  user_ttl: 1h\n  guest_ttl: 2h\n"))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	_, err := Load(writeConfig(t, "http:\n  port: 70000\n"))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestStoreAndPendingDirs(t *testing.T) {
	var c Config
	ApplyDefaults(&c)
	if c.StoreDir() != filepath.Join("./data", "store") {
		t.Fatalf("StoreDir = %q", c.StoreDir())
	}
	if c.PendingDir() != filepath.Join("./data", "pending") {
		t.Fatalf("PendingDir = %q", c.PendingDir())
	}
}
