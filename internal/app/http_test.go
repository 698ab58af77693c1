package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"padlink/api/internal/auth"
	"padlink/api/internal/store"
)

func TestCreateRoute(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rr := env.do(t, http.MethodPost, "/etherpad/create", `{"name":"doc1"}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	if payload["name"] != "doc1" || payload["type"] != "etherpad" {
		t.Fatalf("unexpected item: %v", payload)
	}
	extra, _ := payload["extra"].(map[string]any)
	ep, _ := extra["etherpad"].(map[string]any)
	if ep["padID"] != testGroupID+"$"+testPadName || ep["groupID"] != testGroupID {
		t.Fatalf("unexpected extra: %v", extra)
	}
}

func TestCreateRouteRejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	tests := []struct {
		name string
		path string
		body string
		code string
	}{
		{name: "missing name", path: "/etherpad/create", body: `{}`, code: "INVALID_REQUEST"},
		{name: "empty name", path: "/etherpad/create", body: `{"name":""}`, code: "INVALID_REQUEST"},
		{name: "extra property", path: "/etherpad/create", body: `{"name":"doc","color":"red"}`, code: "INVALID_REQUEST"},
		{name: "not json", path: "/etherpad/create", body: `name=doc`, code: "INVALID_REQUEST"},
		{name: "no body", path: "/etherpad/create", body: "", code: "INVALID_BODY"},
		{name: "bad parent", path: "/etherpad/create?parentId=nope", body: `{"name":"doc"}`, code: "INVALID_REQUEST"},
		{name: "unknown query", path: "/etherpad/create?foo=bar", body: `{"name":"doc"}`, code: "INVALID_REQUEST"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tc.path, tc.body, true)
			assertErrorCode(t, rr, http.StatusBadRequest, tc.code)
		})
	}
	if len(env.etherpad.Calls()) != 0 {
		t.Fatalf("invalid requests reached etherpad: %v", env.etherpad.Methods())
	}
}

func TestViewRouteReadModeSetsNoCookie(t *testing.T) {
	env := newTestEnv(t, itemStore(etherpadItem(testItemID), "write"))

	rr := env.do(t, http.MethodGet, "/etherpad/view/"+testItemID+"?mode=read", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if cookie := rr.Header().Get("Set-Cookie"); cookie != "" {
		t.Fatalf("expected no cookie, got %q", cookie)
	}
	if payload := decodeJSON(t, rr); payload["padUrl"] != testPublicURL+"/p/r.readonly" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if methods := env.etherpad.Methods(); len(methods) != 1 || methods[0] != "getReadOnlyID" {
		t.Fatalf("expected only getReadOnlyID, got %v", methods)
	}
}

func TestViewRouteDefaultsToRead(t *testing.T) {
	env := newTestEnv(t, itemStore(etherpadItem(testItemID), "admin"))

	rr := env.do(t, http.MethodGet, "/etherpad/view/"+testItemID, "", true)
	if rr.Code != http.StatusOK || rr.Header().Get("Set-Cookie") != "" {
		t.Fatalf("expected read access, got %d cookie=%q", rr.Code, rr.Header().Get("Set-Cookie"))
	}
}

func TestViewRouteWriteModeSetsCookie(t *testing.T) {
	env := newTestEnv(t, itemStore(etherpadItem(testItemID), "write"))

	rr := env.do(t, http.MethodGet, "/etherpad/view/"+testItemID+"?mode=write", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodeJSON(t, rr); payload["padUrl"] != testPublicURL+"/p/"+testGroupID+"$"+testPadName {
		t.Fatalf("unexpected payload: %v", payload)
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != "sessionID" || cookie.Value != "s.new" {
		t.Fatalf("unexpected cookie: %+v", cookie)
	}
	if cookie.Domain != "localhost" || cookie.Path != "/" || cookie.HttpOnly {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}
	if !cookie.Expires.Equal(testNow.Add(24 * time.Hour)) {
		t.Fatalf("unexpected cookie expiry %v", cookie.Expires)
	}
}

func TestViewRouteWriteWithReadPermission(t *testing.T) {
	env := newTestEnv(t, itemStore(etherpadItem(testItemID), "read"))

	rr := env.do(t, http.MethodGet, "/etherpad/view/"+testItemID+"?mode=write", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Set-Cookie") != "" {
		t.Fatal("readers must not receive a session cookie")
	}
	if payload := decodeJSON(t, rr); payload["padUrl"] != testPublicURL+"/p/r.readonly" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestViewRouteErrors(t *testing.T) {
	env := newTestEnv(t, itemStore(etherpadItem(testItemID), ""))

	assertErrorCode(t, env.do(t, http.MethodGet, "/etherpad/view/"+testItemID, "", true), http.StatusForbidden, "GPEPERR004")
	assertErrorCode(t, env.do(t, http.MethodGet, "/etherpad/view/"+testParentID, "", true), http.StatusNotFound, "GPEPERR002")
	assertErrorCode(t, env.do(t, http.MethodGet, "/etherpad/view/not-a-uuid", "", true), http.StatusBadRequest, "INVALID_REQUEST")
	assertErrorCode(t, env.do(t, http.MethodGet, "/etherpad/view/"+testItemID+"?mode=admin", "", true), http.StatusBadRequest, "INVALID_REQUEST")
	assertErrorCode(t, env.do(t, http.MethodPost, "/etherpad/view/"+testItemID, "", true), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
}

func TestViewRouteEtherpadFailure(t *testing.T) {
	env := newTestEnv(t, itemStore(etherpadItem(testItemID), "write"))
	env.etherpad.Close()

	rr := env.do(t, http.MethodGet, "/etherpad/view/"+testItemID+"?mode=write", "", true)
	assertErrorCode(t, rr, http.StatusInternalServerError, "GPEPERR001")
	if payload := decodeJSON(t, rr); payload["message"] != "Internal Etherpad server error" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
}

func TestPublicReadRoute(t *testing.T) {
	item := etherpadItem(testItemID)
	env := newTestEnv(t, &fakeStore{
		getPublicItemFn: func(_ context.Context, itemID string) (store.Item, error) {
			if itemID != testItemID {
				return store.Item{}, store.ErrNotFound
			}
			return item, nil
		},
	})

	rr := env.do(t, http.MethodGet, "/etherpad/read/"+testItemID, "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Set-Cookie") != "" {
		t.Fatal("public read must not set a cookie")
	}
	if payload := decodeJSON(t, rr); payload["padUrl"] != testPublicURL+"/p/r.readonly" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	assertErrorCode(t, env.do(t, http.MethodGet, "/etherpad/read/"+testParentID, "", false), http.StatusNotFound, "GPEPERR002")
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	paths := []struct {
		method string
		path   string
	}{
		{method: http.MethodPost, path: "/etherpad/create"},
		{method: http.MethodGet, path: "/etherpad/view/" + testItemID},
		{method: http.MethodDelete, path: "/items/" + testItemID},
		{method: http.MethodPost, path: "/items/" + testItemID + "/copy"},
	}
	for _, p := range paths {
		assertErrorCode(t, env.do(t, p.method, p.path, "", false), http.StatusUnauthorized, "UNAUTHORIZED")
	}
}

func TestProtectedRouteWithExpiredBearerReturnsUnauthorized(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})
	token, err := auth.IssueToken([]byte(testSecret), testMember, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := newRequest(http.MethodGet, "/etherpad/view/"+testItemID, token)
	rr := serve(env, req)
	assertErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestProtectedRouteWithForeignBearerReturnsUnauthorized(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})
	token, err := auth.IssueToken([]byte("other-secret"), testMember, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rr := serve(env, newRequest(http.MethodGet, "/etherpad/view/"+testItemID, token))
	assertErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})
	assertErrorCode(t, env.do(t, http.MethodGet, "/documents", "", true), http.StatusNotFound, "NOT_FOUND")
	assertErrorCode(t, env.do(t, http.MethodGet, "/etherpad/unknown", "", true), http.StatusNotFound, "NOT_FOUND")
}

func TestMiddlewareSetsHeaders(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})
	req := newRequest(http.MethodOptions, "/etherpad/create", "")
	req.Header.Set("X-Request-ID", "req-42")
	rr := serve(env, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") != "req-42" {
		t.Fatalf("request id not echoed: %q", rr.Header().Get("X-Request-ID"))
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected CORS origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Fatal("DELETE is not allowed by CORS")
	}
}

func newRequest(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	return rr
}
