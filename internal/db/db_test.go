package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	d, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	_ = d.Close()
}

func TestUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	id, err := d.CreateUser(ctx, "10001", "alice", RoleAdmin, "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u, ok, err := d.GetUserByAccount(ctx, "10001")
	if err != nil || !ok {
		t.Fatalf("GetUserByAccount: ok=%v err=%v", ok, err)
	}
	if u.ID != id || u.Role != RoleAdmin || u.Nickname != "alice" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := d.CreateUser(ctx, "10001", "dup", RoleUser, ""); err == nil {
		t.Fatalf("expected unique constraint on account")
	}

	if err := d.SetUserRole(ctx, id, RoleUser); err != nil {
		t.Fatalf("SetUserRole: %v", err)
	}
	u, _, _ = d.GetUserByID(ctx, id)
	if u.Role != RoleUser {
		t.Fatalf("role = %q after update", u.Role)
	}
}

func TestHasRoot(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	ok, err := d.HasRoot(ctx)
	if err != nil || ok {
		t.Fatalf("HasRoot on empty db: ok=%v err=%v", ok, err)
	}
	if _, err := d.CreateUser(ctx, "1", "root", RoleRoot, "h"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	ok, err = d.HasRoot(ctx)
	if err != nil || !ok {
		t.Fatalf("HasRoot after seed: ok=%v err=%v", ok, err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	uid, err := d.CreateUser(ctx, "20002", "bob", RoleUser, "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	now := time.Now().Unix()
	if err := d.CreateSession(ctx, "tok1", &uid, nil, now, now+60); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	ip := "203.0.113.9"
	if err := d.CreateSession(ctx, "tok2", nil, &ip, now, now+30); err != nil {
		t.Fatalf("guest CreateSession: %v", err)
	}
	if err := d.CreateSession(ctx, "tok3", &uid, &ip, now, now+30); err == nil {
		t.Fatalf("expected rejection of session with both identities")
	}

	s, ok, err := d.GetSession(ctx, "tok2")
	if err != nil || !ok {
		t.Fatalf("GetSession: ok=%v err=%v", ok, err)
	}
	if s.GuestIP == nil || *s.GuestIP != ip || s.UserID != nil {
		t.Fatalf("unexpected session: %+v", s)
	}

	n, err := d.DeleteExpiredSessions(ctx, now+45)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredSessions = %d, %v", n, err)
	}
	if _, ok, _ := d.GetSession(ctx, "tok2"); ok {
		t.Fatalf("expired session survived sweep")
	}
	if _, ok, _ := d.GetSession(ctx, "tok1"); !ok {
		t.Fatalf("live session swept")
	}
}

func TestConsumeGuestQuotaCeiling(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	for i := 0; i < 5; i++ {
		ok, err := d.ConsumeGuestQuota(ctx, "198.51.100.7", "2026-09-01", 5)
		if err != nil {
			t.Fatalf("Consume #%d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("attempt %d denied below ceiling", i+1)
		}
	}
	ok, err := d.ConsumeGuestQuota(ctx, "198.51.100.7", "2026-09-01", 5)
	if err != nil {
		t.Fatalf("Consume #6: %v", err)
	}
	if ok {
		t.Fatalf("6th attempt allowed past ceiling")
	}

	// A new day starts a fresh counter.
	ok, _ = d.ConsumeGuestQuota(ctx, "198.51.100.7", "2026-09-02", 5)
	if !ok {
		t.Fatalf("fresh day denied")
	}
	n, err := d.GetGuestQuota(ctx, "198.51.100.7", "2026-09-01")
	if err != nil || n != 5 {
		t.Fatalf("GetGuestQuota = %d, %v", n, err)
	}
}

func TestMarkRequestReviewedOnce(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	uid, _ := d.CreateUser(ctx, "30003", "carol", RoleUser, "")
	id, err := d.CreateRequest(ctx, &PendingRequest{
		RequestType: "group_add",
		UserID:      &uid,
		Payload:     `{"name":"Band A"}`,
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	now := time.Now().Unix()
	ok, err := d.MarkRequestReviewed(ctx, id, StatusApproved, uid, "", now)
	if err != nil || !ok {
		t.Fatalf("first review: ok=%v err=%v", ok, err)
	}
	ok, err = d.MarkRequestReviewed(ctx, id, StatusRejected, uid, "late", now)
	if err != nil {
		t.Fatalf("second review: %v", err)
	}
	if ok {
		t.Fatalf("second review matched an already decided row")
	}

	r, _, _ := d.GetRequest(ctx, id)
	if r.Status != StatusApproved {
		t.Fatalf("status = %q after double decide", r.Status)
	}

	if ok, _ := d.DeletePendingRequest(ctx, id); ok {
		t.Fatalf("withdraw removed a decided request")
	}
}

func TestGroupCascadeDelete(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	gid, err := d.CreateGroup(ctx, "Band A", "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	cid, err := d.CreateCharacter(ctx, gid, "Alice", "")
	if err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	if err := d.SetCharacterNicknames(ctx, cid, []string{"al", "ali"}); err != nil {
		t.Fatalf("SetCharacterNicknames: %v", err)
	}
	if err := d.CreateImage(ctx, &Image{ImageID: "0123456789", Ext: "png", FilePath: "0123456789.png"}); err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if err := d.SetImageCharacters(ctx, "0123456789", []int64{cid}); err != nil {
		t.Fatalf("SetImageCharacters: %v", err)
	}

	if err := d.DeleteGroup(ctx, gid); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if _, ok, _ := d.GetCharacterByID(ctx, cid); ok {
		t.Fatalf("character survived group delete")
	}
	tags, err := d.ListImageCharacters(ctx, "0123456789")
	if err != nil {
		t.Fatalf("ListImageCharacters: %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("associations survived cascade: %v", tags)
	}
	if _, ok, _ := d.GetImage(ctx, "0123456789"); !ok {
		t.Fatalf("image row should outlive its tags")
	}
}

func TestTxRollbackDiscardsEffect(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	tx, err := d.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx.CreateGroup(ctx, "Ephemeral", ""); err != nil {
		t.Fatalf("CreateGroup in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, ok, _ := d.GetGroupByName(ctx, "Ephemeral"); ok {
		t.Fatalf("rolled back group persisted")
	}
}
