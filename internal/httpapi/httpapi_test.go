package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/UsotsukiKaze/PicManager/internal/auth"
	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/moderation"
	"github.com/UsotsukiKaze/PicManager/internal/quota"
	"github.com/UsotsukiKaze/PicManager/internal/session"
	"github.com/UsotsukiKaze/PicManager/internal/store"
)

const (
	rootAccount  = "10000"
	adminAccount = "11111"
	rootPassword = "rootsecret"
)

type testStack struct {
	db *db.DB
	fs afero.Fs
	ts *httptest.Server
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	ctx := context.Background()

	d, err := db.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	fs := afero.NewMemMapFs()
	files, err := store.New(fs, "data/store", "data/pending")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	tracker := quota.New(d, 5)
	srv := &Server{
		DB:          d,
		Sessions:    session.New(d, 7*24*time.Hour, 24*time.Hour),
		Quota:       tracker,
		Engine:      moderation.New(d, files, tracker, nil),
		Files:       files,
		MaxUploadMB: 8,
		UserTTL:     7 * 24 * time.Hour,
		GuestTTL:    24 * time.Hour,
	}

	hash, err := auth.HashPassword(rootPassword, auth.DefaultArgon2Params())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if _, err := d.CreateUser(ctx, rootAccount, "root", db.RoleRoot, hash); err != nil {
		t.Fatalf("seed root: %v", err)
	}
	if _, err := d.CreateUser(ctx, adminAccount, "mod", db.RoleAdmin, hash); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testStack{db: d, fs: fs, ts: ts}
}

// client is one browser-like caller with its own cookie jar.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (st *testStack) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &client{t: t, base: st.ts.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if rd != nil {
		req.Header.Set("content-type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (c *client) login(account, password string) {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/auth/login", map[string]string{"account": account, "password": password})
	if status != http.StatusOK {
		c.t.Fatalf("login %s: status %d body %v", account, status, body)
	}
}

func (c *client) upload(filename, content, payload string) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		c.t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		c.t.Fatalf("write file: %v", err)
	}
	if payload != "" {
		if err := mw.WriteField("payload", payload); err != nil {
			c.t.Fatalf("write field: %v", err)
		}
	}
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, c.base+"/api/upload", &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("content-type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestLoginCreatesAccountOnFirstUse(t *testing.T) {
	st := newTestStack(t)
	c := st.client(t)

	status, body := c.do(http.MethodPost, "/auth/login", map[string]string{"account": "55555"})
	if status != http.StatusOK {
		t.Fatalf("login status %d body %v", status, body)
	}

	status, body = c.do(http.MethodGet, "/auth/me", nil)
	if status != http.StatusOK {
		t.Fatalf("me status %d", status)
	}
	user, _ := body["user"].(map[string]any)
	if user == nil || user["account"] != "55555" || user["role"] != "user" {
		t.Fatalf("unexpected /auth/me body %v", body)
	}
}

func TestLoginRejectsBadAccount(t *testing.T) {
	st := newTestStack(t)
	c := st.client(t)
	status, _ := c.do(http.MethodPost, "/auth/login", map[string]string{"account": "12ab"})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestAdminLoginRequiresPassword(t *testing.T) {
	st := newTestStack(t)

	status, _ := st.client(t).do(http.MethodPost, "/auth/login", map[string]string{"account": adminAccount})
	if status != http.StatusUnauthorized {
		t.Fatalf("missing password: status %d, want 401", status)
	}
	status, _ = st.client(t).do(http.MethodPost, "/auth/login", map[string]string{"account": adminAccount, "password": "wrong"})
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d, want 401", status)
	}
	st.client(t).login(adminAccount, rootPassword)
}

func TestUnauthenticatedMutationRejected(t *testing.T) {
	st := newTestStack(t)
	c := st.client(t)
	status, _ := c.do(http.MethodPost, "/api/groups", map[string]string{"name": "Band A"})
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}

func TestUserSubmissionQueuesAndAdminApproves(t *testing.T) {
	st := newTestStack(t)

	user := st.client(t)
	user.login("20001", "")
	status, body := user.do(http.MethodPost, "/api/groups", map[string]string{"name": "Band A"})
	if status != http.StatusAccepted || body["status"] != "pending" {
		t.Fatalf("submit: status %d body %v", status, body)
	}
	reqID := int64(body["request_id"].(float64))

	// Nothing public yet.
	_, listBody := user.do(http.MethodGet, "/api/groups", nil)
	if groups, _ := listBody["groups"].([]any); len(groups) != 0 {
		t.Fatalf("groups visible before approval: %v", listBody)
	}

	admin := st.client(t)
	admin.login(adminAccount, rootPassword)
	status, body = admin.do(http.MethodGet, "/admin/pending", nil)
	if status != http.StatusOK {
		t.Fatalf("pending list status %d", status)
	}
	if reqs, _ := body["requests"].([]any); len(reqs) != 1 {
		t.Fatalf("pending queue %v", body)
	}

	status, body = admin.do(http.MethodPost, "/admin/pending/"+itoa(reqID), map[string]string{"action": "approve"})
	if status != http.StatusOK {
		t.Fatalf("decide status %d body %v", status, body)
	}

	_, listBody = user.do(http.MethodGet, "/api/groups", nil)
	if groups, _ := listBody["groups"].([]any); len(groups) != 1 {
		t.Fatalf("group missing after approval: %v", listBody)
	}

	// History shows the approved request.
	_, hist := user.do(http.MethodGet, "/auth/my-requests", nil)
	reqs, _ := hist["requests"].([]any)
	if len(reqs) != 1 || reqs[0].(map[string]any)["status"] != "approved" {
		t.Fatalf("history %v", hist)
	}
}

func TestAdminShortCircuitApplies(t *testing.T) {
	st := newTestStack(t)
	admin := st.client(t)
	admin.login(adminAccount, rootPassword)

	status, body := admin.do(http.MethodPost, "/api/groups", map[string]string{"name": "Band A"})
	if status != http.StatusOK || body["status"] != "applied" {
		t.Fatalf("status %d body %v", status, body)
	}

	// Duplicate name conflicts immediately.
	status, _ = admin.do(http.MethodPost, "/api/groups", map[string]string{"name": "Band A"})
	if status != http.StatusConflict {
		t.Fatalf("duplicate status %d, want 409", status)
	}
}

func TestDecideRequiresAdmin(t *testing.T) {
	st := newTestStack(t)
	user := st.client(t)
	user.login("20002", "")
	status, _ := user.do(http.MethodGet, "/admin/pending", nil)
	if status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", status)
	}
}

func TestGuestQuotaOverHTTP(t *testing.T) {
	st := newTestStack(t)
	guest := st.client(t)

	status, body := guest.do(http.MethodPost, "/auth/guest", nil)
	if status != http.StatusOK || body["remaining_quota"].(float64) != 5 {
		t.Fatalf("guest login: status %d body %v", status, body)
	}

	names := []string{"A", "B", "C", "D", "E"}
	for _, n := range names {
		status, _ := guest.do(http.MethodPost, "/api/groups", map[string]string{"name": "Band " + n})
		if status != http.StatusAccepted {
			t.Fatalf("guest submit %q: status %d", n, status)
		}
	}
	status, _ = guest.do(http.MethodPost, "/api/groups", map[string]string{"name": "Band F"})
	if status != http.StatusTooManyRequests {
		t.Fatalf("6th submit status %d, want 429", status)
	}

	_, me := guest.do(http.MethodGet, "/auth/me", nil)
	if me["remaining_quota"].(float64) != 0 {
		t.Fatalf("remaining quota %v", me)
	}
}

func TestWithdrawOverHTTP(t *testing.T) {
	st := newTestStack(t)
	user := st.client(t)
	user.login("20003", "")

	_, body := user.do(http.MethodPost, "/api/groups", map[string]string{"name": "Band A"})
	reqID := int64(body["request_id"].(float64))

	status, _ := user.do(http.MethodDelete, "/auth/pending/"+itoa(reqID), nil)
	if status != http.StatusOK {
		t.Fatalf("withdraw status %d", status)
	}
	status, _ = user.do(http.MethodDelete, "/auth/pending/"+itoa(reqID), nil)
	if status != http.StatusNotFound {
		t.Fatalf("second withdraw status %d, want 404", status)
	}
}

func TestEditMissingGroupIs404(t *testing.T) {
	st := newTestStack(t)
	user := st.client(t)
	user.login("20004", "")
	status, _ := user.do(http.MethodPut, "/api/groups/999", map[string]string{"name": "X"})
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestUploadLifecycleOverHTTP(t *testing.T) {
	st := newTestStack(t)

	user := st.client(t)
	user.login("20005", "")
	status, body := user.upload("cat.png", "png bytes", `{"description":"a cat"}`)
	if status != http.StatusAccepted {
		t.Fatalf("upload status %d body %v", status, body)
	}
	reqID := int64(body["request_id"].(float64))

	admin := st.client(t)
	admin.login(adminAccount, rootPassword)
	status, body = admin.do(http.MethodPost, "/admin/pending/"+itoa(reqID), map[string]string{"action": "approve"})
	if status != http.StatusOK {
		t.Fatalf("approve status %d body %v", status, body)
	}
	req, _ := body["request"].(map[string]any)
	imageID, _ := req["image_id"].(string)
	if len(imageID) != 10 {
		t.Fatalf("image id %q", imageID)
	}

	status, body = user.do(http.MethodGet, "/api/images/"+imageID, nil)
	if status != http.StatusOK {
		t.Fatalf("get image status %d", status)
	}
	img, _ := body["image"].(map[string]any)
	if img["ext"] != "png" || img["description"] != "a cat" {
		t.Fatalf("image body %v", body)
	}
	if ok, _ := afero.Exists(st.fs, "data/store/"+imageID+".png"); !ok {
		t.Fatalf("stored file missing")
	}
}

func TestUploadRejectsBadExtension(t *testing.T) {
	st := newTestStack(t)
	user := st.client(t)
	user.login("20006", "")
	status, _ := user.upload("script.exe", "mz", "")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestRootManagesAdmins(t *testing.T) {
	st := newTestStack(t)

	root := st.client(t)
	root.login(rootAccount, rootPassword)

	status, body := root.do(http.MethodPost, "/auth/admins", map[string]string{"account": "33333", "password": "adminpass1"})
	if status != http.StatusOK {
		t.Fatalf("appoint status %d body %v", status, body)
	}
	newID := int64(body["id"].(float64))

	_, body = root.do(http.MethodGet, "/auth/admins", nil)
	if admins, _ := body["admins"].([]any); len(admins) != 2 {
		t.Fatalf("admins %v", body)
	}

	// The new admin can log in with a password and decide requests.
	newAdmin := st.client(t)
	newAdmin.login("33333", "adminpass1")

	status, _ = root.do(http.MethodDelete, "/auth/admins/"+itoa(newID), nil)
	if status != http.StatusOK {
		t.Fatalf("demote status %d", status)
	}
	_, body = root.do(http.MethodGet, "/auth/admins", nil)
	if admins, _ := body["admins"].([]any); len(admins) != 1 {
		t.Fatalf("admins after demote %v", body)
	}

	// Admin management is root-only.
	admin := st.client(t)
	admin.login(adminAccount, rootPassword)
	status, _ = admin.do(http.MethodGet, "/auth/admins", nil)
	if status != http.StatusForbidden {
		t.Fatalf("admin listing admins: status %d, want 403", status)
	}
}

func TestGroupEditOmittedFieldsSurvive(t *testing.T) {
	st := newTestStack(t)
	admin := st.client(t)
	admin.login(adminAccount, rootPassword)

	status, _ := admin.do(http.MethodPost, "/api/groups", map[string]string{"name": "Band A", "description": "five members"})
	if status != http.StatusOK {
		t.Fatalf("create status %d", status)
	}
	_, body := admin.do(http.MethodGet, "/api/groups", nil)
	groups, _ := body["groups"].([]any)
	gid := int64(groups[0].(map[string]any)["id"].(float64))

	// Description only; the name must come through untouched.
	status, _ = admin.do(http.MethodPut, "/api/groups/"+itoa(gid), map[string]string{"description": "four members"})
	if status != http.StatusOK {
		t.Fatalf("edit status %d", status)
	}

	_, body = admin.do(http.MethodGet, "/api/groups/"+itoa(gid), nil)
	g, _ := body["group"].(map[string]any)
	if g["name"] != "Band A" || g["description"] != "four members" {
		t.Fatalf("group after edit: %v", g)
	}
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	srv := &Server{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	h := srv.withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	st := newTestStack(t)
	c := st.client(t)
	c.login("20007", "")

	if status, _ := c.do(http.MethodPost, "/auth/logout", nil); status != http.StatusOK {
		t.Fatalf("logout failed")
	}
	status, _ := c.do(http.MethodGet, "/auth/me", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("me after logout: status %d, want 401", status)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
