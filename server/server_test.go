package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amonks/issues/api"
	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/issue"
	"github.com/amonks/issues/store"
	"golang.org/x/crypto/bcrypt"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	clock := &stepClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	st, err := store.Open(filepath.Join(t.TempDir(), "issues.db"), store.Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	svc, err := auth.New(st.DB(), auth.Options{BcryptCost: bcrypt.MinCost, Now: clock.Now})
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	server, err := New(Options{Store: st, Auth: svc})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func call(t *testing.T, handler http.Handler, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, request)
	return response
}

func decodeResponse[T any](t *testing.T, response *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func signUp(t *testing.T, handler http.Handler, email string) string {
	t.Helper()
	response := call(t, handler, api.RouteSignUp, "", api.CredentialsRequest{Email: email, Password: "hunter22"})
	if response.Code != http.StatusOK {
		t.Fatalf("sign up: status %d: %s", response.Code, response.Body.String())
	}
	return decodeResponse[api.SessionResponse](t, response).Token
}

func createIssue(t *testing.T, handler http.Handler, token, title string) api.CreateResponse {
	t.Helper()
	response := call(t, handler, api.RouteCreate, token, api.CreateRequest{Title: title})
	if response.Code != http.StatusOK {
		t.Fatalf("create %q: status %d: %s", title, response.Code, response.Body.String())
	}
	return decodeResponse[api.CreateResponse](t, response)
}

func TestSignUpWhoAmISignOut(t *testing.T) {
	handler := newTestServer(t).Handler()
	token := signUp(t, handler, " Kim@Example.com ")

	response := call(t, handler, api.RouteWhoAmI, token, api.EmptyRequest{})
	if response.Code != http.StatusOK {
		t.Fatalf("whoami: status %d", response.Code)
	}
	if got := decodeResponse[api.WhoAmIResponse](t, response).Email; got != "kim@example.com" {
		t.Fatalf("expected normalized email, got %q", got)
	}

	if response := call(t, handler, api.RouteSignOut, token, api.EmptyRequest{}); response.Code != http.StatusOK {
		t.Fatalf("signout: status %d", response.Code)
	}
	if response := call(t, handler, api.RouteWhoAmI, token, api.EmptyRequest{}); response.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after sign out, got %d", response.Code)
	}
}

func TestAuthErrorsMapToStatus(t *testing.T) {
	handler := newTestServer(t).Handler()
	signUp(t, handler, "kim@example.com")

	cases := []struct {
		name string
		path string
		body api.CredentialsRequest
		want int
	}{
		{name: "duplicate", path: api.RouteSignUp, body: api.CredentialsRequest{Email: "kim@example.com", Password: "hunter22"}, want: http.StatusConflict},
		{name: "weak password", path: api.RouteSignUp, body: api.CredentialsRequest{Email: "lee@example.com", Password: "123"}, want: http.StatusUnauthorized},
		{name: "long password", path: api.RouteSignUp, body: api.CredentialsRequest{Email: "lee@example.com", Password: strings.Repeat("x", 100)}, want: http.StatusUnauthorized},
		{name: "bad email", path: api.RouteSignUp, body: api.CredentialsRequest{Email: "lee", Password: "hunter22"}, want: http.StatusUnauthorized},
		{name: "wrong password", path: api.RouteSignIn, body: api.CredentialsRequest{Email: "kim@example.com", Password: "nope-nope"}, want: http.StatusUnauthorized},
		{name: "unknown user", path: api.RouteSignIn, body: api.CredentialsRequest{Email: "lee@example.com", Password: "hunter22"}, want: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			response := call(t, handler, tc.path, "", tc.body)
			if response.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, response.Code, response.Body.String())
			}
			if decodeResponse[api.ErrorResponse](t, response).Error == "" {
				t.Fatalf("expected error message")
			}
		})
	}
}

func TestIssueRoutesRequireToken(t *testing.T) {
	handler := newTestServer(t).Handler()
	routes := []string{api.RouteList, api.RouteSimilar, api.RouteWhoAmI}
	for _, route := range routes {
		response := call(t, handler, route, "bogus", map[string]any{})
		if response.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", route, response.Code)
		}
	}
	response := call(t, handler, api.RouteCreate, "", api.CreateRequest{Title: "anonymous"})
	if response.Code != http.StatusUnauthorized {
		t.Fatalf("create: expected 401, got %d", response.Code)
	}
}

func TestCreateReturnsSimilarIssues(t *testing.T) {
	handler := newTestServer(t).Handler()
	token := signUp(t, handler, "kim@example.com")

	first := createIssue(t, handler, token, "Fix login bug")
	if len(first.Similar) != 0 {
		t.Fatalf("expected no similar issues for the first create, got %v", first.Similar)
	}
	if first.Issue.CreatedBy != "kim@example.com" {
		t.Fatalf("expected creator from token, got %q", first.Issue.CreatedBy)
	}
	if first.Issue.Status != issue.StatusOpen || first.Issue.Priority != issue.PriorityMedium {
		t.Fatalf("expected open/medium defaults, got %s/%s", first.Issue.Status, first.Issue.Priority)
	}

	second := createIssue(t, handler, token, "login")
	if len(second.Similar) != 1 || second.Similar[0].ID != first.Issue.ID {
		t.Fatalf("expected first issue as similar, got %v", second.Similar)
	}

	response := call(t, handler, api.RouteSimilar, token, api.SimilarRequest{Title: "LOGIN"})
	if response.Code != http.StatusOK {
		t.Fatalf("similar: status %d", response.Code)
	}
	if got := decodeResponse[api.SimilarResponse](t, response).Issues; len(got) != 2 {
		t.Fatalf("expected both issues, got %v", got)
	}
}

func TestCreateRejectsBlankTitle(t *testing.T) {
	handler := newTestServer(t).Handler()
	token := signUp(t, handler, "kim@example.com")

	response := call(t, handler, api.RouteCreate, token, api.CreateRequest{Title: "   "})
	if response.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.Code)
	}
}

func TestListFiltersNewestFirst(t *testing.T) {
	handler := newTestServer(t).Handler()
	token := signUp(t, handler, "kim@example.com")
	older := createIssue(t, handler, token, "older").Issue
	newer := createIssue(t, handler, token, "newer").Issue
	call(t, handler, api.RouteCreate, token, api.CreateRequest{Title: "urgent", Priority: issue.PriorityHigh})

	response := call(t, handler, api.RouteList, token, api.ListRequest{Filter: issue.Filter{Priority: "medium"}})
	if response.Code != http.StatusOK {
		t.Fatalf("list: status %d", response.Code)
	}
	payload := decodeResponse[api.ListResponse](t, response)
	if len(payload.Issues) != 2 || payload.Issues[0].ID != newer.ID || payload.Issues[1].ID != older.ID {
		t.Fatalf("expected [newer older], got %v", payload.Issues)
	}
	if payload.Seq == 0 {
		t.Fatalf("expected a sequence number")
	}

	response = call(t, handler, api.RouteList, token, api.ListRequest{Filter: issue.Filter{Status: "nope"}})
	if response.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad filter, got %d", response.Code)
	}
}

func TestUpdateRejectsOpenToDone(t *testing.T) {
	handler := newTestServer(t).Handler()
	token := signUp(t, handler, "kim@example.com")
	created := createIssue(t, handler, token, "ship it").Issue

	response := call(t, handler, api.RouteUpdate, token, api.UpdateRequest{ID: created.ID, Patch: issue.Patch{Status: issue.StatusPtr(issue.StatusDone)}})
	if response.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.Code)
	}
	if message := decodeResponse[api.ErrorResponse](t, response).Error; !strings.Contains(message, "Open to Done") {
		t.Fatalf("unexpected message %q", message)
	}

	response = call(t, handler, api.RouteUpdate, token, api.UpdateRequest{ID: created.ID[:4], Patch: issue.Patch{Status: issue.StatusPtr(issue.StatusInProgress)}})
	if response.Code != http.StatusOK {
		t.Fatalf("expected prefix update to succeed, got %d: %s", response.Code, response.Body.String())
	}
	if got := decodeResponse[api.IssueResponse](t, response).Issue.Status; got != issue.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", got)
	}

	response = call(t, handler, api.RouteUpdate, token, api.UpdateRequest{ID: created.ID, Patch: issue.Patch{Status: issue.StatusPtr(issue.StatusDone)}})
	if response.Code != http.StatusOK {
		t.Fatalf("expected in_progress to done to succeed, got %d", response.Code)
	}
}

func TestUpdateAndDeleteMissingIssue(t *testing.T) {
	handler := newTestServer(t).Handler()
	token := signUp(t, handler, "kim@example.com")

	response := call(t, handler, api.RouteUpdate, token, api.UpdateRequest{ID: "zzzzzzzz", Patch: issue.Patch{Title: issue.StringPtr("x")}})
	if response.Code != http.StatusNotFound {
		t.Fatalf("update: expected 404, got %d", response.Code)
	}
	response = call(t, handler, api.RouteDelete, token, api.DeleteRequest{ID: "zzzzzzzz"})
	if response.Code != http.StatusNotFound {
		t.Fatalf("delete: expected 404, got %d", response.Code)
	}
	response = call(t, handler, api.RouteUpdate, token, api.UpdateRequest{ID: "zzzzzzzz"})
	if response.Code != http.StatusBadRequest {
		t.Fatalf("empty patch: expected 400, got %d", response.Code)
	}
}

func TestDeleteRemovesIssue(t *testing.T) {
	handler := newTestServer(t).Handler()
	token := signUp(t, handler, "kim@example.com")
	created := createIssue(t, handler, token, "remove me").Issue

	if response := call(t, handler, api.RouteDelete, token, api.DeleteRequest{ID: created.ID}); response.Code != http.StatusOK {
		t.Fatalf("delete: status %d", response.Code)
	}
	payload := decodeResponse[api.ListResponse](t, call(t, handler, api.RouteList, token, api.ListRequest{}))
	if len(payload.Issues) != 0 {
		t.Fatalf("expected empty list, got %v", payload.Issues)
	}
}

func TestImportKeepsIDs(t *testing.T) {
	handler := newTestServer(t).Handler()
	token := signUp(t, handler, "kim@example.com")
	items := []issue.Issue{
		{ID: "legacy01", Title: "from before", Priority: issue.PriorityLow, Status: issue.StatusDone, CreatedBy: "lee@example.com"},
	}

	response := call(t, handler, api.RouteImport, token, api.ImportRequest{Issues: items})
	if response.Code != http.StatusOK {
		t.Fatalf("import: status %d: %s", response.Code, response.Body.String())
	}
	if got := decodeResponse[api.ImportResponse](t, response).Count; got != 1 {
		t.Fatalf("expected 1 imported, got %d", got)
	}
	payload := decodeResponse[api.ListResponse](t, call(t, handler, api.RouteList, token, api.ListRequest{}))
	if len(payload.Issues) != 1 || payload.Issues[0].ID != "legacy01" || payload.Issues[0].CreatedAt != nil {
		t.Fatalf("unexpected list after import: %+v", payload.Issues)
	}
}

func TestImportCannotSkipTransitionOrRewriteCreator(t *testing.T) {
	handler := newTestServer(t).Handler()
	kimToken := signUp(t, handler, "kim@example.com")
	malloryToken := signUp(t, handler, "mallory@example.com")
	created := createIssue(t, handler, kimToken, "Fix login bug").Issue

	forged := created
	forged.Status = issue.StatusDone
	forged.CreatedBy = "mallory@example.com"
	response := call(t, handler, api.RouteImport, malloryToken, api.ImportRequest{Issues: []issue.Issue{forged}})
	if response.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", response.Code, response.Body.String())
	}
	if message := decodeResponse[api.ErrorResponse](t, response).Error; !strings.Contains(message, "cannot move directly from Open to Done") {
		t.Fatalf("expected transition message, got %q", message)
	}

	forged.Status = issue.StatusInProgress
	response = call(t, handler, api.RouteImport, malloryToken, api.ImportRequest{Issues: []issue.Issue{forged}})
	if response.Code != http.StatusOK {
		t.Fatalf("import: status %d: %s", response.Code, response.Body.String())
	}

	payload := decodeResponse[api.ListResponse](t, call(t, handler, api.RouteList, kimToken, api.ListRequest{}))
	if len(payload.Issues) != 1 {
		t.Fatalf("expected one issue, got %+v", payload.Issues)
	}
	got := payload.Issues[0]
	if got.Status != issue.StatusInProgress || got.CreatedBy != "kim@example.com" {
		t.Fatalf("expected status change with original creator, got %+v", got)
	}
}

func TestRejectsWrongMethodAndUnknownFields(t *testing.T) {
	handler := newTestServer(t).Handler()

	request := httptest.NewRequest(http.MethodGet, api.RouteList, nil)
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, request)
	if response.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", response.Code)
	}
	if allow := response.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("expected Allow POST, got %q", allow)
	}

	response = call(t, handler, api.RouteSignUp, "", map[string]string{"email": "a@b.c", "password": "hunter22", "admin": "yes"})
	if response.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", response.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t).Handler()
	request := httptest.NewRequest(http.MethodGet, api.RouteHealth, nil)
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, request)
	if response.Code != http.StatusOK || strings.TrimSpace(response.Body.String()) != "ok" {
		t.Fatalf("unexpected health response %d %q", response.Code, response.Body.String())
	}
}

func TestRecoverHandlerReturnsJSONError(t *testing.T) {
	server := newTestServer(t)
	handler := server.recoverHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest(http.MethodPost, "/", nil))
	if response.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", response.Code)
	}
	if got := decodeResponse[api.ErrorResponse](t, response).Error; got != "internal server error" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestSubscribeStreamsSnapshots(t *testing.T) {
	server := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()
	handler := server.Handler()
	token := signUp(t, handler, "kim@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, httpServer.URL+api.RouteSubscribe, strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(response.Body)
		t.Fatalf("subscribe: status %d: %s", response.StatusCode, body)
	}

	reader := bufio.NewReader(response.Body)
	next := func() issue.Snapshot {
		t.Helper()
		line, err := reader.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		var snapshot issue.Snapshot
		if err := json.Unmarshal(line, &snapshot); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		return snapshot
	}

	initial := next()
	if len(initial.Issues) != 0 {
		t.Fatalf("expected empty initial snapshot, got %v", initial.Issues)
	}

	created := createIssue(t, handler, token, "streamed").Issue
	updated := next()
	if updated.Seq <= initial.Seq {
		t.Fatalf("expected seq to advance, got %d then %d", initial.Seq, updated.Seq)
	}
	if _, ok := updated.Find(created.ID); !ok {
		t.Fatalf("expected streamed snapshot to include %s", created.ID)
	}
}

func TestResolveWebBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                       "",
		":8089":                  "http://127.0.0.1:8089",
		"0.0.0.0:9000":           "http://127.0.0.1:9000",
		"localhost:8089":         "http://localhost:8089",
		"https://issues.test/":   "https://issues.test",
		"  http://127.0.0.1:80 ": "http://127.0.0.1:80",
	}
	for input, want := range cases {
		if got := resolveWebBaseURL(input); got != want {
			t.Fatalf("resolveWebBaseURL(%q) = %q, want %q", input, got, want)
		}
	}
}
