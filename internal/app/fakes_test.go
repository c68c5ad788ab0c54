package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"portfolio/api/internal/authpw"
	"portfolio/api/internal/config"
	"portfolio/api/internal/content"
	"portfolio/api/internal/docsync"
	"portfolio/api/internal/email"
	"portfolio/api/internal/history"
	"portfolio/api/internal/media"
	"portfolio/api/internal/metrics"
	"portfolio/api/internal/store"
)

const (
	testAdminEmail = "admin@example.com"
	testPassword   = "correct-horse"
)

type fakeStore struct {
	mu        sync.Mutex
	pingFn    func(context.Context) error
	row       *store.ContentRow
	readErr   error
	writeErr  error
	revokeErr error
	lookupErr error
	revoked   map[string]time.Time
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) LoadContentRow(context.Context) (*store.ContentRow, error) {
	return f.row, f.readErr
}

func (f *fakeStore) CheckWriteAccess(context.Context) error {
	return f.writeErr
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked == nil {
		f.revoked = make(map[string]time.Time)
	}
	f.revoked[jti] = exp
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.revoked[jti]
	return ok, nil
}

type fakeMedia struct {
	err      error
	received []byte
}

func (f *fakeMedia) Upload(_ context.Context, r io.Reader) (media.Upload, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return media.Upload{}, err
	}
	f.received = payload
	if f.err != nil {
		return media.Upload{}, f.err
	}
	return media.Upload{
		Key:         "uploads/2025/05/abc.png",
		URL:         "https://cdn.example.com/uploads/2025/05/abc.png",
		ContentType: "image/png",
		Size:        int64(len(payload)),
	}, nil
}

func (f *fakeMedia) MaxBytes() int64 {
	return 1024
}

type fakeMailer struct {
	configured bool
	err        error
	to         []string
	messages   []email.ContactMessage
}

func (f *fakeMailer) IsConfigured() bool {
	return f.configured
}

func (f *fakeMailer) SendContactMessage(to string, msg email.ContactMessage) error {
	f.to = append(f.to, to)
	f.messages = append(f.messages, msg)
	return f.err
}

type failingHistory struct{}

func (failingHistory) Record(content.Tree, string, string) (history.Revision, bool, error) {
	return history.Revision{}, false, errors.New("disk full")
}

func (failingHistory) List(int) ([]history.Revision, error) {
	return nil, errors.New("disk full")
}

func (failingHistory) Get(string) (content.Tree, history.Revision, error) {
	return nil, history.Revision{}, errors.New("disk full")
}

type testEnv struct {
	svc    *Service
	server *HTTPServer
	docs   *docsync.Store
	db     *fakeStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	docs := docsync.Open(nil, nil, docsync.Options{})
	t.Cleanup(docs.Close)
	<-docs.Ready()

	hist, err := history.Open(t.TempDir())
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	hash, err := authpw.HashPassword(testPassword, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	admin, err := authpw.NewService(testAdminEmail, hash)
	if err != nil {
		t.Fatalf("authpw.NewService() error = %v", err)
	}

	cfg := config.Config{
		JWTSecret:           "test-secret",
		AccessTTL:           time.Hour,
		SignInRatePerMinute: 100,
	}
	svc := New(cfg, Deps{Content: docs, History: hist, Admin: admin, Metrics: metrics.New()})
	t.Cleanup(svc.Close)

	db := &fakeStore{}
	svc.store = db
	return &testEnv{svc: svc, server: NewHTTPServer(svc, "*"), docs: docs, db: db}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) signIn(t *testing.T) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/signin", `{"email":"`+testAdminEmail+`","password":"`+testPassword+`"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("sign in: status %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	token, _ := payload["accessToken"].(string)
	if token == "" {
		t.Fatalf("sign in returned no token: %v", payload)
	}
	return token
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	if got, _ := decodeJSON(t, rr)["code"].(string); got != code {
		t.Fatalf("expected code %s, got %q", code, got)
	}
}

func heroName(t *testing.T, doc any) string {
	t.Helper()
	tree, _ := doc.(map[string]any)
	hero, _ := tree["hero"].(map[string]any)
	name, _ := hero["name"].(string)
	return name
}
