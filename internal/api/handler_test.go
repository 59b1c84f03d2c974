package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alecgard/liftline/internal/account"
	"github.com/alecgard/liftline/internal/complaint"
	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/metrics"
	"github.com/alecgard/liftline/internal/mirror"
	"github.com/alecgard/liftline/internal/model"
	"github.com/alecgard/liftline/internal/push"
	"github.com/alecgard/liftline/internal/ratelimit"
	"github.com/alecgard/liftline/internal/sales"
	"github.com/alecgard/liftline/internal/site"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const (
	installerEmail  = "ravi@example.com"
	supervisorEmail = "asha@example.com"
	ownerEmail      = "owner@example.com"
	customerEmail   = "meera@example.com"
)

// failingStore fails updates on selected paths.
type failingStore struct {
	*docstore.MemoryStore
	mu   sync.Mutex
	fail map[string]error
}

func (s *failingStore) Update(ctx context.Context, path string, updates []docstore.Update) error {
	s.mu.Lock()
	err := s.fail[path]
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Update(ctx, path, updates)
}

type testEnv struct {
	handler  http.Handler
	docs     *failingStore
	sessions *account.Sessions
	tokens   map[string]string
}

func siteDoc() map[string]any {
	return map[string]any{
		"siteId":      "S-1",
		"liftId":      "L-9",
		"ownerEmail":  ownerEmail,
		"siteAddress": "12 MG Road",
		"civilWork":   map[string]any{"pitReady": false, "status": "Incomplete"},
		"installationTasks": map[string]any{
			"Rail Fixing":  "2025-03-14",
			"Door Fitting": "2025-03-15",
			"Safety check": "Pending",
		},
		"materialsList": []any{
			map[string]any{"name": "Rails", "status": "Placed"},
		},
	}
}

func complaintDoc() map[string]any {
	return map[string]any{
		"complaintId":       "C-42",
		"customerEmail":     customerEmail,
		"subject":           "Door stuck",
		"status":            "Accepted",
		"secretServiceCode": "482913",
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	docs := &failingStore{MemoryStore: docstore.NewMemoryStore(), fail: map[string]error{}}

	seed := map[string]map[string]any{
		"team/ravi@example.com/sites/S-1":         siteDoc(),
		"team/asha@example.com/sites/S-1":         siteDoc(),
		"sites/g-7":                               siteDoc(),
		"team/ravi@example.com/complaints/C-42":   complaintDoc(),
		"Complaints/C-42":                         complaintDoc(),
		"Users/meera@example.com/Complaints/C-42": complaintDoc(),
	}
	for path, data := range seed {
		if err := docs.Set(ctx, path, data); err != nil {
			t.Fatal(err)
		}
	}

	accounts := account.NewStore(docs)
	sessions := account.NewSessions(account.NewMemorySessionStore(), time.Hour)
	env := &testEnv{docs: docs, sessions: sessions, tokens: map[string]string{}}
	for _, in := range []account.CreateInput{
		{Email: installerEmail, Password: "correct-horse", Name: "Ravi", Role: model.RoleInstaller},
		{Email: supervisorEmail, Password: "correct-horse", Name: "Asha", Role: model.RoleSupervisor},
	} {
		m, err := accounts.Create(ctx, in)
		if err != nil {
			t.Fatal(err)
		}
		token, _, err := sessions.Create(ctx, m)
		if err != nil {
			t.Fatal(err)
		}
		env.tokens[in.Email] = token
	}

	coord := mirror.NewCoordinator(docs, nil)
	complaints := complaint.NewService(docs, coord, accounts, push.Nop{})
	env.handler = NewRouter(RouterDeps{
		Sites:        site.NewService(docs, coord, accounts, push.Nop{}),
		Complaints:   complaints,
		Flows:        complaint.NewFlows(complaints),
		Sales:        sales.NewService(docs),
		Accounts:     accounts,
		Sessions:     sessions,
		LoginLimiter: ratelimit.New(3, time.Minute),
		Metrics:      metrics.New(),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[email])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error envelope: %v", body)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %v", code, errObj["code"])
	}
	return errObj
}

// ---------------------------------------------------------------------------
// Health and manifest
// ---------------------------------------------------------------------------

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		ping       func(context.Context) error
		wantStatus int
		wantStore  string
	}{
		{"no store check", nil, http.StatusOK, ""},
		{"store reachable", func(context.Context) error { return nil }, http.StatusOK, "connected"},
		{"store down", func(context.Context) error { return errors.New("refused") }, http.StatusServiceUnavailable, "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRouter(RouterDeps{Ping: tt.ping})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			body := decode(t, rec)
			if got, _ := body["store"].(string); got != tt.wantStore {
				t.Errorf("store = %q, want %q", got, tt.wantStore)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("expected X-Request-ID header")
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("expected secure headers")
			}
		})
	}
}

func TestWellKnownHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	WellKnownHandler(rec, httptest.NewRequest(http.MethodGet, "/.well-known/liftline.json", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
	body := decode(t, rec)
	for _, field := range []string{"name", "api_base", "auth", "endpoints", "health"} {
		if _, ok := body[field]; !ok {
			t.Errorf("manifest missing required field %q", field)
		}
	}
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": installerEmail, "password": "correct-horse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	token, _ := body["token"].(string)
	if !strings.HasPrefix(token, "lft_") {
		t.Fatalf("unexpected token %q", token)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	me := httptest.NewRecorder()
	env.handler.ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", me.Code)
	}
	if decode(t, me)["email"] != installerEmail {
		t.Error("me returned the wrong member")
	}
}

func TestLogin_FailuresAreGeneric(t *testing.T) {
	env := newTestEnv(t)
	for _, creds := range []map[string]string{
		{"email": installerEmail, "password": "wrong-horse"},
		{"email": "nobody@example.com", "password": "correct-horse"},
	} {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", creds)
		errObj := assertError(t, rec, http.StatusUnauthorized, "unauthorized")
		if errObj["message"] != "invalid email or password" {
			t.Errorf("unexpected message %v", errObj["message"])
		}
	}
}

func TestLogin_RateLimitedPerIP(t *testing.T) {
	env := newTestEnv(t)
	creds := map[string]string{"email": installerEmail, "password": "wrong-horse"}
	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", creds); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", creds)
	assertError(t, rec, http.StatusTooManyRequests, "rate_limited")
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodPost, "/api/v1/auth/logout", installerEmail, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/v1/sites", installerEmail, nil)
	assertError(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/v1/sites", "/api/v1/complaints", "/api/v1/sales", "/api/v1/auth/me"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assertError(t, rec, http.StatusUnauthorized, "unauthorized")
	}
}

func TestRegisterPushToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPut, "/api/v1/me/push-token", installerEmail, map[string]string{"token": "fcm-1"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	doc, _ := env.docs.Get(context.Background(), "team/ravi@example.com")
	if doc.Data["pushToken"] != "fcm-1" {
		t.Errorf("push token not stored: %v", doc.Data["pushToken"])
	}
	sess, _ := env.sessions.Get(context.Background(), env.tokens[installerEmail])
	if sess.PushToken != "fcm-1" {
		t.Errorf("session not updated: %+v", sess)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/me/push-token", installerEmail, map[string]string{})
	assertError(t, rec, http.StatusUnprocessableEntity, "validation_error")
}

// ---------------------------------------------------------------------------
// Sites
// ---------------------------------------------------------------------------

func TestSites_ListAndGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/sites", installerEmail, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sites, _ := decode(t, rec)["sites"].([]any); len(sites) != 1 {
		t.Errorf("expected 1 site, got %v", sites)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/sites/nope", installerEmail, nil)
	assertError(t, rec, http.StatusNotFound, "not_found")
}

func TestSites_TodaysTasks(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/sites/S-1/tasks/today?date=2025-03-14", installerEmail, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	tasks, _ := decode(t, rec)["tasks"].([]any)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %v", tasks)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/sites/S-1/tasks/today?date=14-03-2025", installerEmail, nil)
	assertError(t, rec, http.StatusUnprocessableEntity, "validation_error")
}

func TestSites_ScheduleTaskWithSpaces(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPut, "/api/v1/sites/S-1/tasks/Cabin%20Fitting", installerEmail, map[string]string{"date": "2025-03-20"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	for _, p := range []string{"team/ravi@example.com/sites/S-1", "sites/g-7"} {
		doc, _ := env.docs.Get(context.Background(), p)
		tasks, _ := doc.Data["installationTasks"].(map[string]any)
		if tasks["Cabin Fitting"] != "2025-03-20" {
			t.Errorf("%s: task not scheduled: %v", p, tasks)
		}
	}
}

func TestSites_SendChat(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/sites/S-1/chats", installerEmail, map[string]string{"message": "On site at 10"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	mirrors, _ := decode(t, rec)["mirrors"].(map[string]any)
	if written, _ := mirrors["written"].([]any); len(written) != 2 {
		t.Errorf("expected both mirrors written, got %v", mirrors)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/sites/S-1/chats", installerEmail, nil)
	if chats, _ := decode(t, rec)["chats"].([]any); len(chats) != 1 {
		t.Errorf("expected 1 chat, got %v", chats)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/sites/S-1/chats", installerEmail, map[string]string{"message": " "})
	assertError(t, rec, http.StatusUnprocessableEntity, "validation_error")
}

func TestSites_SendChatReportsSkippedMirror(t *testing.T) {
	env := newTestEnv(t)
	env.docs.Delete(context.Background(), "sites/g-7")

	rec := env.do(t, http.MethodPost, "/api/v1/sites/S-1/chats", installerEmail, map[string]string{"message": "hello"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	mirrors, _ := decode(t, rec)["mirrors"].(map[string]any)
	skipped, _ := mirrors["skipped"].([]any)
	if len(skipped) != 1 || skipped[0] != "global" {
		t.Errorf("expected global skipped, got %v", mirrors)
	}
}

func TestSites_PartialWriteIs502(t *testing.T) {
	env := newTestEnv(t)
	env.docs.fail["sites/g-7"] = errors.New("deadline exceeded talking to backend 10.1.2.3")

	rec := env.do(t, http.MethodPut, "/api/v1/sites/S-1/checklists/civilWork", installerEmail, map[string]any{
		"flags": map[string]bool{"pitReady": true},
	})
	errObj := assertError(t, rec, http.StatusBadGateway, "partial_write")
	if msg, _ := errObj["message"].(string); strings.Contains(msg, "10.1.2.3") {
		t.Errorf("internal detail leaked: %q", msg)
	}
}

func TestSites_QualityCheck(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/sites/S-1/quality-checks/Safety%20check"

	rec := env.do(t, http.MethodPut, path, installerEmail, map[string]string{"result": "Passed"})
	assertError(t, rec, http.StatusForbidden, "forbidden")

	rec = env.do(t, http.MethodPut, path, supervisorEmail, map[string]string{"result": "Maybe"})
	assertError(t, rec, http.StatusUnprocessableEntity, "validation_error")

	rec = env.do(t, http.MethodPut, path, supervisorEmail, map[string]string{"result": "Passed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPut, path, supervisorEmail, map[string]string{"result": "Failed"})
	assertError(t, rec, http.StatusConflict, "status_locked")
}

func TestSites_AdvanceMaterial(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/sites/S-1/materials/x", installerEmail, map[string]string{"status": "Delivered"})
	assertError(t, rec, http.StatusBadRequest, "invalid_index")

	rec = env.do(t, http.MethodPut, "/api/v1/sites/S-1/materials/0", installerEmail, map[string]string{"status": "Delivered"})
	assertError(t, rec, http.StatusConflict, "status_locked")

	rec = env.do(t, http.MethodPut, "/api/v1/sites/S-1/materials/0", installerEmail, map[string]string{"status": "Out for Delivery"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPut, "/api/v1/sites/S-1/materials/5", installerEmail, map[string]string{"status": "Delivered"})
	assertError(t, rec, http.StatusUnprocessableEntity, "validation_error")
}

func TestSites_StreamChats(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sites/S-1/chats/stream?access_token=" + env.tokens[installerEmail]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame struct {
		Type  string              `json:"type"`
		Chats []model.ChatMessage `json:"chats"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("initial frame: %v", err)
	}
	if frame.Type != "chats" || len(frame.Chats) != 0 {
		t.Fatalf("unexpected initial frame %+v", frame)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/sites/S-1/chats", installerEmail, map[string]string{"message": "Rails delivered"}); rec.Code != http.StatusCreated {
		t.Fatalf("send: %d", rec.Code)
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("update frame: %v", err)
	}
	if len(frame.Chats) != 1 || frame.Chats[0].Message != "Rails delivered" {
		t.Errorf("unexpected update frame %+v", frame)
	}
}

// ---------------------------------------------------------------------------
// Complaints
// ---------------------------------------------------------------------------

func TestComplaints_GetHidesServiceCode(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/complaints/C-42", installerEmail, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "482913") {
		t.Error("service code must not be exposed")
	}
}

func TestComplaints_CompletionFlow(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/v1/complaints/C-42/completion"

	rec := env.do(t, http.MethodPost, base+"/notes", installerEmail, map[string]string{"notes": "done"})
	assertError(t, rec, http.StatusConflict, "completion_state")

	rec = env.do(t, http.MethodPost, base+"/code", installerEmail, map[string]string{"code": "4829"})
	assertError(t, rec, http.StatusUnprocessableEntity, "validation_error")

	rec = env.do(t, http.MethodPost, base+"/code", installerEmail, map[string]string{"code": "482912"})
	errObj := assertError(t, rec, http.StatusUnprocessableEntity, "service_code_mismatch")
	if errObj["message"] != "Invalid service code" {
		t.Errorf("unexpected message %v", errObj["message"])
	}
	doc, _ := env.docs.Get(context.Background(), "Complaints/C-42")
	if doc.Data["status"] != "Accepted" {
		t.Fatalf("mismatch must not write, status = %v", doc.Data["status"])
	}

	rec = env.do(t, http.MethodPost, base+"/code", installerEmail, map[string]string{"code": "482 913"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["stage"] != string(complaint.StageCodeVerified) {
		t.Error("expected code_verified stage")
	}

	rec = env.do(t, http.MethodPost, base+"/code", installerEmail, map[string]string{"code": "000000"})
	assertError(t, rec, http.StatusUnprocessableEntity, "service_code_mismatch")

	rec = env.do(t, http.MethodPost, base+"/notes", installerEmail, map[string]string{"notes": "Replaced door sensor"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	for _, p := range []string{"team/ravi@example.com/complaints/C-42", "Complaints/C-42", "Users/meera@example.com/Complaints/C-42"} {
		doc, _ := env.docs.Get(context.Background(), p)
		if doc.Data["status"] != "Completed" {
			t.Errorf("%s: status = %v", p, doc.Data["status"])
		}
		if msgs, _ := doc.Data["messages"].([]any); len(msgs) != 2 {
			t.Errorf("%s: expected note and closure messages, got %v", p, msgs)
		}
	}

	rec = env.do(t, http.MethodPost, "/api/v1/complaints/C-42/accept", installerEmail, nil)
	assertError(t, rec, http.StatusConflict, "status_locked")
}

func TestComplaints_CancelResetsFlow(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/v1/complaints/C-42/completion"

	if rec := env.do(t, http.MethodPost, base+"/code", installerEmail, map[string]string{"code": "482913"}); rec.Code != http.StatusOK {
		t.Fatalf("code: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, base, installerEmail, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("cancel: expected 204, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, base+"/notes", installerEmail, map[string]string{"notes": "done"})
	assertError(t, rec, http.StatusConflict, "completion_state")
}

func TestComplaints_AddMessage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/complaints/C-42/messages", installerEmail, map[string]string{"message": "On the way"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	mirrors, _ := decode(t, rec)["mirrors"].(map[string]any)
	if written, _ := mirrors["written"].([]any); len(written) != 3 {
		t.Errorf("expected three mirrors written, got %v", mirrors)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/complaints/C-99/messages", installerEmail, map[string]string{"message": "x"})
	assertError(t, rec, http.StatusNotFound, "not_found")
}

// ---------------------------------------------------------------------------
// Sales
// ---------------------------------------------------------------------------

func TestSales_CreateAndList(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/sales", installerEmail, map[string]any{
		"customerName": "Anita Rao", "phone": "9845012345", "floors": 4,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := decode(t, rec)["saleId"].(string)
	if !strings.HasPrefix(id, "AnitaRao12345") {
		t.Errorf("unexpected saleId %q", id)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/sales", installerEmail, nil)
	if leads, _ := decode(t, rec)["leads"].([]any); len(leads) != 1 {
		t.Errorf("expected 1 lead, got %v", leads)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/sales", installerEmail, map[string]any{"phone": "9845012345"})
	assertError(t, rec, http.StatusUnprocessableEntity, "validation_error")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestClientIP(t *testing.T) {
	tests := []struct {
		name, xff, remote, want string
	}{
		{"remote addr", "", "10.0.0.1:5123", "10.0.0.1"},
		{"forwarded", "203.0.113.7, 10.0.0.1", "10.0.0.1:5123", "203.0.113.7"},
		{"no port", "", "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	if originChecker(nil) != nil {
		t.Error("no allow list should use the default same-host check")
	}
	check := originChecker([]string{"https://ops.example.com"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	if check(r) {
		t.Error("unlisted origin accepted")
	}
	r.Header.Set("Origin", "https://ops.example.com")
	if !check(r) {
		t.Error("listed origin rejected")
	}
}

func TestEncodedSlashInPathIsRefused(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name, method, path string
		body               any
	}{
		{"site id", http.MethodGet, "/api/v1/sites/S-1%2Fchats", nil},
		{"task name", http.MethodPut, "/api/v1/sites/S-1/tasks/Rails%2FDoors", map[string]string{"date": "2025-03-20"}},
		{"complaint id", http.MethodGet, "/api/v1/complaints/C-42%2fmessages", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, installerEmail, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			errObj, _ := decode(t, rec)["error"].(map[string]any)
			if errObj["code"] != "invalid_path" {
				t.Errorf("unexpected error %v", errObj)
			}
		})
	}

	doc, err := env.docs.Get(context.Background(), "team/ravi@example.com/sites/S-1")
	if err != nil {
		t.Fatal(err)
	}
	if tasks, _ := doc.Data["installationTasks"].(map[string]any); tasks["Rails/Doors"] != nil {
		t.Error("task with '/' must not be written")
	}
}
