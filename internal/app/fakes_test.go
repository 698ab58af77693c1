package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"padlink/api/internal/auth"
	"padlink/api/internal/cleanup"
	"padlink/api/internal/config"
	"padlink/api/internal/etherpad/etherpadtest"
	"padlink/api/internal/pad"
	"padlink/api/internal/padsession"
	"padlink/api/internal/store"
)

const (
	testSecret    = "test-secret"
	testPublicURL = "http://localhost:9001"
	testGroupID   = "g.s8oes9dhwrvt0zif"
	testAuthorID  = "a.s8oes9dhwrvt0zif"
	testItemID    = "3b0f9e5a-4a4c-4f3e-9a52-3d2c1b0a9f11"
	testParentID  = "9d1c2b3a-5e6f-4a7b-8c9d-0e1f2a3b4c5d"
	testPadName   = "1f6b7d5e-2c3a-4b9d-8e7f-6a5b4c3d2e1f"
)

var testMember = auth.Member{ID: "member-1", Name: "Avery"}

type fakeStore struct {
	pingFn          func(context.Context) error
	getItemFn       func(context.Context, string) (store.Item, error)
	getPublicItemFn func(context.Context, string) (store.Item, error)
	getPermissionFn func(context.Context, string, string) (string, error)
	createItemFn    func(context.Context, store.Item, string) (store.Item, error)
	deleteItemFn    func(context.Context, string) ([]store.Item, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetItem(ctx context.Context, itemID string) (store.Item, error) {
	if f.getItemFn != nil {
		return f.getItemFn(ctx, itemID)
	}
	return store.Item{}, sql.ErrNoRows
}

func (f *fakeStore) GetPublicItem(ctx context.Context, itemID string) (store.Item, error) {
	if f.getPublicItemFn != nil {
		return f.getPublicItemFn(ctx, itemID)
	}
	return store.Item{}, sql.ErrNoRows
}

func (f *fakeStore) GetPermission(ctx context.Context, memberID, itemPath string) (string, error) {
	if f.getPermissionFn != nil {
		return f.getPermissionFn(ctx, memberID, itemPath)
	}
	return "", sql.ErrNoRows
}

func (f *fakeStore) CreateItem(ctx context.Context, item store.Item, parentID string) (store.Item, error) {
	if f.createItemFn != nil {
		return f.createItemFn(ctx, item, parentID)
	}
	item.Path = item.ID
	if parentID != "" {
		item.Path = parentID + "." + item.ID
	}
	return item, nil
}

func (f *fakeStore) DeleteItem(ctx context.Context, itemID string) ([]store.Item, error) {
	if f.deleteItemFn != nil {
		return f.deleteItemFn(ctx, itemID)
	}
	return nil, nil
}

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []cleanup.Task
}

func (r *recordingScheduler) Submit(_ context.Context, tasks ...cleanup.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, tasks...)
}

func (r *recordingScheduler) Tasks() []cleanup.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cleanup.Task(nil), r.tasks...)
}

// etherpadItem is an etherpad item whose pad lives in testGroupID.
func etherpadItem(id string) store.Item {
	return store.Item{
		ID:      id,
		Name:    "doc1",
		Type:    store.ItemTypeEtherpad,
		Path:    id,
		Extra:   pad.BuildExtra(testGroupID, testPadName),
		Creator: testMember.ID,
	}
}

func itemStore(item store.Item, permission string) *fakeStore {
	return &fakeStore{
		getItemFn: func(_ context.Context, itemID string) (store.Item, error) {
			if itemID != item.ID {
				return store.Item{}, sql.ErrNoRows
			}
			return item, nil
		},
		getPermissionFn: func(context.Context, string, string) (string, error) {
			if permission == "" {
				return "", sql.ErrNoRows
			}
			return permission, nil
		},
	}
}

type testEnv struct {
	service  *Service
	server   *HTTPServer
	etherpad *etherpadtest.Server
	store    *fakeStore
	cleanup  *recordingScheduler
}

var testNow = time.Unix(1_700_000_000, 0)

// newTestEnv wires a service to fs and a fake Etherpad with working session
// endpoints.
func newTestEnv(t *testing.T, fs *fakeStore) *testEnv {
	t.Helper()
	srv := etherpadtest.New(t)
	srv.Reply("checkToken", etherpadtest.OK(nil))
	srv.Reply("createGroupIfNotExistsFor", etherpadtest.OK(map[string]any{"groupID": testGroupID}))
	srv.Reply("createGroupPad", etherpadtest.OK(nil))
	srv.Reply("setHTML", etherpadtest.OK(nil))
	srv.Reply("copyPad", etherpadtest.OK(nil))
	srv.Reply("deletePad", etherpadtest.OK(nil))
	srv.Reply("getReadOnlyID", etherpadtest.OK(map[string]any{"readOnlyID": "r.readonly"}))
	srv.Reply("createAuthorIfNotExistsFor", etherpadtest.OK(map[string]any{"authorID": testAuthorID}))
	srv.Reply("createSession", etherpadtest.OK(map[string]any{"sessionID": "s.new"}))
	srv.Reply("listSessionsOfAuthor", etherpadtest.OK(map[string]any{
		"s.new": map[string]any{"groupID": testGroupID, "authorID": testAuthorID, "validUntil": testNow.Add(24 * time.Hour).Unix()},
	}))

	scheduler := &recordingScheduler{}
	client := srv.Client()
	cfg := config.Config{
		JWTSecret: testSecret,
		Etherpad:  config.Etherpad{URL: srv.URL, PublicURL: testPublicURL, CookieDomain: "localhost"},
	}
	svc := New(cfg, Dependencies{
		Store:    fs,
		Pads:     pad.NewManager(client, pad.WithNameFactory(func() string { return testPadName })),
		Sessions: padsession.NewReconciler(client, scheduler, padsession.Options{CookieDomain: "localhost", Now: func() time.Time { return testNow }}),
		Etherpad: client,
		Cleanup:  scheduler,
	})
	return &testEnv{
		service:  svc,
		server:   NewHTTPServer(svc, "*", nil),
		etherpad: srv,
		store:    fs,
		cleanup:  scheduler,
	}
}

func issueTestToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), testMember, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, body string, authenticated bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+issueTestToken(t))
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
	if payload["origin"] != "padlink" {
		t.Fatalf("expected origin padlink, got %v", payload["origin"])
	}
	if payload["statusCode"] != float64(status) {
		t.Fatalf("expected statusCode %d, got %v", status, payload["statusCode"])
	}
}
