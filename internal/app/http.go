package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"portfolio/api/internal/auth"
	"portfolio/api/internal/content"
	"portfolio/api/internal/email"
	"portfolio/api/internal/rbac"
)

// Admin documents embed data-URL images, so bodies get a generous limit.
const maxBodyBytes = 8 << 20

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

var errBodyTooLarge = errors.New("request body too large")

type HTTPServer struct {
	service        *Service
	corsOrigin     string
	trustProxy     bool
	signInLimiter  *ipLimiter
	contactLimiter *ipLimiter
	upgrader       websocket.Upgrader
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	perMinute := service.cfg.SignInRatePerMinute
	return &HTTPServer{
		service:        service,
		corsOrigin:     corsOrigin,
		trustProxy:     service.cfg.TrustProxy,
		signInLimiter:  newIPLimiter(perMinute),
		contactLimiter: newIPLimiter(perMinute),
		upgrader:       newUpgrader(corsOrigin),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// forbid writes a 403 Forbidden response and logs the denial
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) {
	s.service.logger.Warn("permission denied",
		zap.String("email", session.Email),
		zap.String("role", session.Role),
		zap.String("action", string(action)),
		zap.String("path", r.URL.Path),
	)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if isRead(r) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if isRead(r) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		if s.service.metrics == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.service.metrics.Handler().ServeHTTP(w, r)
		return
	}

	if r.URL.Path == "/api/content" {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			doc, ready := s.service.Content()
			writeJSON(w, http.StatusOK, map[string]any{"content": doc, "ready": ready})
		case http.MethodPut, http.MethodPatch:
			s.handleWriteContent(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/content/live" {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader already answered with an HTTP error.
			return
		}
		s.service.live.serve(conn, s.service.content.Current)
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signout" {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		if err := s.service.SignOut(r.Context(), session); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		anonymous := map[string]any{"authenticated": false, "email": nil, "role": string(rbac.RoleViewer)}
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, anonymous)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, anonymous)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"email":         session.Email,
			"role":          session.Role,
			"expiresAt":     session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/media" {
		s.handleMediaUpload(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/contact" {
		s.handleContact(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/diagnostics" {
		if _, ok := s.requireAdmin(w, r, rbac.ActionDiagnostics); !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()
		writeJSON(w, http.StatusOK, s.service.Diagnostics(ctx))
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "history" {
		s.handleHistory(w, r, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	// Check database connectivity
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":           status == "ready",
		"status":       status,
		"contentReady": s.service.content.IsReady(),
		"checks":       checks,
	})
}

func (s *HTTPServer) handleWriteContent(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireAdmin(w, r, rbac.ActionWrite)
	if !ok {
		return
	}
	doc, err := readDocument(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	message := strings.TrimSpace(r.URL.Query().Get("message"))
	var next content.Tree
	if r.Method == http.MethodPut {
		next = s.service.ReplaceContent(session.Email, doc, message)
	} else {
		next = s.service.PatchContent(session.Email, doc, message)
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": next, "ready": s.service.content.IsReady()})
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	if !s.signInLimiter.Allow(clientIP(r, s.trustProxy)) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many sign-in attempts, try again later", nil)
		return
	}

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	session, err := s.service.SignIn(body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": session.Token,
		"email":       session.Email,
		"role":        session.Role,
		"expiresAt":   session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r, rbac.ActionUpload); !ok {
		return
	}
	if s.service.media == nil {
		s.fail(w, r, disabledError("MEDIA_DISABLED", "Media uploads are not configured"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, errBodyTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "Multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	upload, err := s.service.UploadMedia(r.Context(), file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

func (s *HTTPServer) handleContact(w http.ResponseWriter, r *http.Request) {
	if !s.contactLimiter.Allow(clientIP(r, s.trustProxy)) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many messages, try again later", nil)
		return
	}
	var body email.ContactMessage
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.SendContact(body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		if _, ok := s.requireAdmin(w, r, rbac.ActionHistory); !ok {
			return
		}
		revisions, err := s.service.ListRevisions(historyLimit(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": revisions})

	case len(parts) == 1 && r.Method == http.MethodGet:
		if _, ok := s.requireAdmin(w, r, rbac.ActionHistory); !ok {
			return
		}
		doc, rev, err := s.service.Revision(parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revision": rev, "content": doc})

	case len(parts) == 2 && parts[1] == "restore" && r.Method == http.MethodPost:
		session, ok := s.requireAdmin(w, r, rbac.ActionWrite)
		if !ok {
			return
		}
		next, rev, err := s.service.RestoreRevision(session.Email, parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"restored": rev, "content": next})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func historyLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	return min(limit, maxHistoryLimit)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.service.logger.Error("session lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request, action rbac.Action) (Session, bool) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return Session{}, false
	}
	if !s.service.Can(session.Role, action) {
		s.forbid(w, r, session, action)
		return Session{}, false
	}
	return session, true
}

// fail maps err onto an error response. Unexpected errors are logged.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError && code == "SERVER_ERROR" {
		s.service.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		if s.service.metrics != nil {
			s.service.metrics.ObserveRequest(routeLabel(r.URL.Path), writer.status, elapsed)
		}
		s.service.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the live endpoint take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

var knownRoutes = map[string]bool{
	"/api/health":       true,
	"/api/ready":        true,
	"/api/content":      true,
	"/api/content/live": true,
	"/api/auth/signin":  true,
	"/api/auth/signout": true,
	"/api/session":      true,
	"/api/media":        true,
	"/api/contact":      true,
	"/api/diagnostics":  true,
	"/api/history":      true,
	"/metrics":          true,
}

// routeLabel keeps metric label cardinality bounded.
func routeLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	parts := splitPath(path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "history" {
		if len(parts) == 4 && parts[3] == "restore" {
			return "/api/history/:hash/restore"
		}
		return "/api/history/:hash"
	}
	return "other"
}

func isRead(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	return nil
}

// readDocument decodes a request body that must be a JSON object.
func readDocument(r *http.Request) (content.Tree, error) {
	if r.Body == nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Content must be a JSON object", nil)
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	doc, err := content.Parse(raw)
	if errors.Is(err, content.ErrNotObject) {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Content must be a JSON object", nil)
	}
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	return doc, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large", map[string]any{"maxBytes": maxBodyBytes}
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
