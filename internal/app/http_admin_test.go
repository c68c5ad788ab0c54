package app

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portfolio/api/internal/content"
	"portfolio/api/internal/media"
	"portfolio/api/internal/store"
)

func TestHistoryRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)

	env.do(t, http.MethodPut, "/api/content", `{"hero":{"name":"Old"}}`, token)
	env.do(t, http.MethodPut, "/api/content", `{"hero":{"name":"New"}}`, token)

	rr := env.do(t, http.MethodGet, "/api/history?limit=1", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if revisions := decodeJSON(t, rr)["revisions"].([]any); len(revisions) != 1 {
		t.Fatalf("expected limit to apply, got %d revisions", len(revisions))
	}

	revisions, err := env.svc.ListRevisions(0)
	if err != nil || len(revisions) != 2 {
		t.Fatalf("ListRevisions() = %v, %v", revisions, err)
	}
	oldHash := revisions[1].Hash

	rr = env.do(t, http.MethodGet, "/api/history/"+oldHash, "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if name := heroName(t, decodeJSON(t, rr)["content"]); name != "Old" {
		t.Fatalf("expected revision content Old, got %q", name)
	}

	rr = env.do(t, http.MethodPost, "/api/history/"+oldHash+"/restore", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if name := heroName(t, env.svc.content.Current()); name != "Old" {
		t.Fatalf("expected restored hero name Old, got %q", name)
	}
	revisions, _ = env.svc.ListRevisions(0)
	if len(revisions) != 3 || revisions[0].Message != "Restore revision "+oldHash {
		t.Fatalf("expected a restore revision, got %+v", revisions)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/history/not-hex", "", token), http.StatusBadRequest, "INVALID_HASH")
	expectError(t, env.do(t, http.MethodGet, "/api/history/deadbeef", "", token), http.StatusNotFound, "NOT_FOUND")
	expectError(t, env.do(t, http.MethodPost, "/api/history/deadbeef/restore", "", token), http.StatusNotFound, "NOT_FOUND")
	expectError(t, env.do(t, http.MethodDelete, "/api/history/"+oldHash, "", token), http.StatusNotFound, "NOT_FOUND")
	expectError(t, env.do(t, http.MethodGet, "/api/history", "", ""), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestHistoryDisabled(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)
	env.svc.history = nil

	expectError(t, env.do(t, http.MethodGet, "/api/history", "", token), http.StatusServiceUnavailable, "HISTORY_DISABLED")

	// Writes still work without history.
	if rr := env.do(t, http.MethodPut, "/api/content", `{"hero":{"name":"X"}}`, token); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestHistoryFailureDoesNotFailWrites(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)
	env.svc.history = failingHistory{}

	rr := env.do(t, http.MethodPut, "/api/content", `{"hero":{"name":"Kept"}}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if name := heroName(t, env.svc.content.Current()); name != "Kept" {
		t.Fatalf("expected write to land, got %q", name)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/history", "", token), http.StatusInternalServerError, "SERVER_ERROR")
}

func uploadRequest(t *testing.T, token, field string, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, "logo.png")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/media", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestMediaUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)

	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, uploadRequest(t, token, "file", []byte("png-bytes")))
	expectError(t, rr, http.StatusServiceUnavailable, "MEDIA_DISABLED")

	fake := &fakeMedia{}
	env.svc.media = fake

	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, uploadRequest(t, token, "file", []byte("png-bytes")))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if url := decodeJSON(t, rr)["url"]; url != "https://cdn.example.com/uploads/2025/05/abc.png" {
		t.Fatalf("unexpected url %v", url)
	}
	if string(fake.received) != "png-bytes" {
		t.Fatalf("uploader received %q", fake.received)
	}

	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, uploadRequest(t, token, "attachment", []byte("png-bytes")))
	expectError(t, rr, http.StatusBadRequest, "MISSING_FILE")

	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, uploadRequest(t, "", "file", []byte("png-bytes")))
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestMediaUploadRejections(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{err: fmt.Errorf("%w: text/plain", media.ErrUnsupportedType), status: http.StatusUnsupportedMediaType, code: "UNSUPPORTED_MEDIA_TYPE"},
		{err: fmt.Errorf("%w: max 1024 bytes", media.ErrTooLarge), status: http.StatusRequestEntityTooLarge, code: "FILE_TOO_LARGE"},
		{err: media.ErrEmpty, status: http.StatusBadRequest, code: "EMPTY_FILE"},
		{err: errors.New("connection refused"), status: http.StatusBadGateway, code: "UPLOAD_FAILED"},
	}
	for _, tc := range cases {
		env.svc.media = &fakeMedia{err: tc.err}
		rr := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rr, uploadRequest(t, token, "file", []byte("data")))
		expectError(t, rr, tc.status, tc.code)
	}
}

func TestContactForm(t *testing.T) {
	env := newTestEnv(t)
	body := `{"name":"Visitor","email":"visitor@example.com","message":"Hello"}`

	expectError(t, env.do(t, http.MethodPost, "/api/contact", body, ""), http.StatusServiceUnavailable, "EMAIL_DISABLED")

	mail := &fakeMailer{configured: true}
	env.svc.mail = mail

	rr := env.do(t, http.MethodPost, "/api/contact", body, "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(mail.to) != 1 || mail.to[0] != "yasinaliabir@gmail.com" {
		t.Fatalf("expected mail to the published contact address, got %v", mail.to)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/contact", `{"name":"V","email":"nope","message":"hi"}`, ""), http.StatusBadRequest, "INVALID_CONTACT")

	mail.err = errors.New("554 rejected")
	expectError(t, env.do(t, http.MethodPost, "/api/contact", body, ""), http.StatusBadGateway, "EMAIL_FAILED")
}

func TestContactUsesEditedAddress(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)
	mail := &fakeMailer{configured: true}
	env.svc.mail = mail

	env.do(t, http.MethodPatch, "/api/content", `{"contactInfo":{"email":"studio@example.com"}}`, token)
	env.do(t, http.MethodPost, "/api/contact", `{"name":"V","email":"v@example.com","message":"hi"}`, "")
	if len(mail.to) != 1 || mail.to[0] != "studio@example.com" {
		t.Fatalf("expected mail to the edited address, got %v", mail.to)
	}

	env.do(t, http.MethodPatch, "/api/content", `{"contactInfo":{"email":""}}`, token)
	expectError(t, env.do(t, http.MethodPost, "/api/contact", `{"name":"V","email":"v@example.com","message":"hi"}`, ""), http.StatusServiceUnavailable, "EMAIL_DISABLED")
}

func TestDiagnostics(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)
	updated := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	env.db.row = &store.ContentRow{ID: store.ContentRowID, Content: content.Tree{"hero": content.Tree{}}, UpdatedAt: updated}

	rr := env.do(t, http.MethodGet, "/api/diagnostics", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	if payload["ok"] != true || payload["contentState"] != "ready" {
		t.Fatalf("unexpected diagnostics %v", payload)
	}
	checks := payload["checks"].(map[string]any)
	for _, name := range []string{"connection", "read", "write"} {
		check, _ := checks[name].(map[string]any)
		if check["status"] != "ok" {
			t.Fatalf("expected %s check ok, got %v", name, check)
		}
	}
	read := checks["read"].(map[string]any)["detail"].(map[string]any)
	if read["stored"] != true || read["sections"] != float64(1) {
		t.Fatalf("unexpected read detail %v", read)
	}

	env.db.writeErr = errors.New("permission denied for table site_content")
	payload = decodeJSON(t, env.do(t, http.MethodGet, "/api/diagnostics", "", token))
	write := payload["checks"].(map[string]any)["write"].(map[string]any)
	if payload["ok"] != false || write["status"] != "error" || write["error"] != "permission denied for table site_content" {
		t.Fatalf("expected failing write check, got %v", payload)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/diagnostics", "", ""), http.StatusUnauthorized, "UNAUTHORIZED")
}
