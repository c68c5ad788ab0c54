package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"portfolio/api/internal/auth"
	"portfolio/api/internal/authpw"
	"portfolio/api/internal/config"
	"portfolio/api/internal/content"
	"portfolio/api/internal/docsync"
	"portfolio/api/internal/email"
	"portfolio/api/internal/history"
	"portfolio/api/internal/media"
	"portfolio/api/internal/merge"
	"portfolio/api/internal/metrics"
	"portfolio/api/internal/rbac"
	"portfolio/api/internal/store"
)

type documentStore interface {
	Current() content.Tree
	IsReady() bool
	State() docsync.State
	Write(content.Tree)
	Update(func(prev content.Tree) content.Tree) content.Tree
	Watch(func(content.Tree)) (cancel func())
}

type dataStore interface {
	Ping(ctx context.Context) error
	LoadContentRow(ctx context.Context) (*store.ContentRow, error)
	CheckWriteAccess(ctx context.Context) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type revisionLog interface {
	Record(doc content.Tree, author, message string) (history.Revision, bool, error)
	List(limit int) ([]history.Revision, error)
	Get(hash string) (content.Tree, history.Revision, error)
}

type mediaStore interface {
	Upload(ctx context.Context, r io.Reader) (media.Upload, error)
	MaxBytes() int64
}

type mailer interface {
	IsConfigured() bool
	SendContactMessage(to string, msg email.ContactMessage) error
}

type authenticator interface {
	Authenticate(email, password string) (authpw.Identity, error)
}

// Deps are the collaborators New wires into a Service. Only Content is
// required; a nil optional dependency disables its routes.
type Deps struct {
	Content  *docsync.Store
	Database *store.PostgresStore
	History  *history.Service
	Media    *media.Uploader
	Mail     *email.Service
	Admin    *authpw.Service
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Session struct {
	Token     string
	Email     string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

type Service struct {
	cfg      config.Config
	content  documentStore
	store    dataStore
	history  revisionLog
	media    mediaStore
	mail     mailer
	admin    authenticator
	tokens   *auth.Issuer
	metrics  *metrics.Metrics
	logger   *zap.Logger
	defaults content.Tree
	live     *liveHub

	// writeMu keeps history commits in the order writes were adopted.
	writeMu   sync.Mutex
	stopWatch func()
	closeOnce sync.Once
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:      cfg,
		content:  deps.Content,
		tokens:   auth.NewIssuer([]byte(cfg.JWTSecret), cfg.AccessTTL),
		metrics:  deps.Metrics,
		logger:   logger,
		defaults: content.DefaultTree(),
	}
	// Assigned one by one so an absent dependency stays a nil interface.
	if deps.Database != nil {
		s.store = deps.Database
	}
	if deps.History != nil {
		s.history = deps.History
	}
	if deps.Media != nil {
		s.media = deps.Media
	}
	if deps.Mail != nil {
		s.mail = deps.Mail
	}
	if deps.Admin != nil {
		s.admin = deps.Admin
	}
	s.startLive()
	return s
}

func (s *Service) startLive() {
	s.live = newLiveHub(s.logger, s.metrics)
	s.stopWatch = s.content.Watch(s.live.broadcast)
}

// Close disconnects live clients and stops watching the document store.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if s.stopWatch != nil {
			s.stopWatch()
		}
		if s.live != nil {
			s.live.close()
		}
	})
}

func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return errors.New("database not configured")
	}
	return s.store.Ping(ctx)
}

// Content returns the live document and whether the initial load has
// settled.
func (s *Service) Content() (content.Tree, bool) {
	return s.content.Current(), s.content.IsReady()
}

// ReplaceContent adopts body merged over the canonical default, so
// sections missing from body fall back to their defaults.
func (s *Service) ReplaceContent(actor string, body content.Tree, message string) content.Tree {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := merge.Document(s.defaults, body)
	s.content.Write(next)
	s.record(next, actor, message)
	return next
}

// PatchContent merges body over the live document.
func (s *Service) PatchContent(actor string, body content.Tree, message string) content.Tree {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.content.Update(func(prev content.Tree) content.Tree {
		return merge.Document(prev, body)
	})
	s.record(next, actor, message)
	return next
}

// record commits an adopted document to history. Failures are logged and
// never reach the caller.
func (s *Service) record(doc content.Tree, actor, message string) {
	if s.history == nil {
		return
	}
	rev, ok, err := s.history.Record(doc, actor, message)
	if err != nil {
		s.logger.Warn("record content revision", zap.String("actor", actor), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.Revisions.Inc()
	}
	s.logger.Info("content revision recorded", zap.String("hash", rev.Hash), zap.String("actor", actor))
}

func (s *Service) SignIn(emailAddr, password string) (Session, error) {
	if s.admin == nil {
		return Session{}, disabledError("AUTH_UNAVAILABLE", "Admin sign-in is not configured")
	}
	identity, err := s.admin.Authenticate(emailAddr, password)
	if err != nil {
		if errors.Is(err, authpw.ErrNotConfigured) {
			return Session{}, disabledError("AUTH_UNAVAILABLE", "Admin sign-in is not configured")
		}
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}

	token, claims, err := s.tokens.Issue(identity.Email, identity.Email, identity.Role)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	s.logger.Info("admin signed in", zap.String("email", identity.Email))
	return sessionFromClaims(token, claims), nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}
	if s.store != nil {
		revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
		if err != nil {
			return Session{}, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return Session{}, auth.ErrInvalidToken
		}
	}
	return sessionFromClaims(token, claims), nil
}

func (s *Service) SignOut(ctx context.Context, session Session) error {
	if s.store == nil || session.JTI == "" {
		return nil
	}
	if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func sessionFromClaims(token string, claims auth.Claims) Session {
	return Session{
		Token:     token,
		Email:     claims.Email,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) ListRevisions(limit int) ([]history.Revision, error) {
	if s.history == nil {
		return nil, disabledError("HISTORY_DISABLED", "Revision history is not configured")
	}
	revisions, err := s.history.List(limit)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revisions, nil
}

func (s *Service) Revision(hash string) (content.Tree, history.Revision, error) {
	if s.history == nil {
		return nil, history.Revision{}, disabledError("HISTORY_DISABLED", "Revision history is not configured")
	}
	doc, rev, err := s.history.Get(hash)
	switch {
	case errors.Is(err, history.ErrInvalidHash):
		return nil, history.Revision{}, domainError(http.StatusBadRequest, "INVALID_HASH", "Invalid revision hash", nil)
	case errors.Is(err, history.ErrRevisionNotFound):
		return nil, history.Revision{}, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	case err != nil:
		return nil, history.Revision{}, fmt.Errorf("load revision: %w", err)
	}
	return doc, rev, nil
}

// RestoreRevision adopts the document stored at hash, merged over the
// canonical default, as a new write.
func (s *Service) RestoreRevision(actor, hash string) (content.Tree, history.Revision, error) {
	doc, rev, err := s.Revision(hash)
	if err != nil {
		return nil, history.Revision{}, err
	}
	next := s.ReplaceContent(actor, doc, "Restore revision "+rev.Hash)
	return next, rev, nil
}

func (s *Service) UploadMedia(ctx context.Context, r io.Reader) (media.Upload, error) {
	if s.media == nil {
		return media.Upload{}, disabledError("MEDIA_DISABLED", "Media uploads are not configured")
	}
	upload, err := s.media.Upload(ctx, r)
	s.countUpload(err)
	switch {
	case errors.Is(err, media.ErrTooLarge):
		return media.Upload{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), map[string]any{"maxBytes": s.media.MaxBytes()})
	case errors.Is(err, media.ErrUnsupportedType):
		return media.Upload{}, domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error(), nil)
	case errors.Is(err, media.ErrEmpty):
		return media.Upload{}, domainError(http.StatusBadRequest, "EMPTY_FILE", err.Error(), nil)
	case err != nil:
		s.logger.Error("media upload failed", zap.Error(err))
		return media.Upload{}, domainError(http.StatusBadGateway, "UPLOAD_FAILED", "Upload failed", nil)
	}
	s.logger.Info("media uploaded", zap.String("key", upload.Key), zap.Int64("size", upload.Size))
	return upload, nil
}

func (s *Service) countUpload(err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	s.metrics.Uploads.WithLabelValues(outcome).Inc()
}

// SendContact mails a contact form submission to the address shown in the
// site's contact section.
func (s *Service) SendContact(msg email.ContactMessage) error {
	if s.mail == nil || !s.mail.IsConfigured() {
		return disabledError("EMAIL_DISABLED", "Contact form is not configured")
	}
	msg, err := msg.Normalize()
	if err != nil {
		s.countContact("invalid")
		return invalidError("INVALID_CONTACT", err)
	}
	to := contactAddress(s.content.Current())
	if to == "" {
		return disabledError("EMAIL_DISABLED", "No contact address is published")
	}

	if err := s.mail.SendContactMessage(to, msg); err != nil {
		s.countContact("failed")
		s.logger.Error("send contact message", zap.Error(err))
		return domainError(http.StatusBadGateway, "EMAIL_FAILED", "Message could not be sent", nil)
	}
	s.countContact("sent")
	return nil
}

func (s *Service) countContact(outcome string) {
	if s.metrics != nil {
		s.metrics.ContactResults.WithLabelValues(outcome).Inc()
	}
}

func contactAddress(doc content.Tree) string {
	info, _ := doc["contactInfo"].(content.Tree)
	addr, _ := info["email"].(string)
	return strings.TrimSpace(addr)
}

type Diagnostics struct {
	store.Report
	ContentState string `json:"contentState"`
}

// Diagnostics reports the database checks together with the state of the
// document store.
func (s *Service) Diagnostics(ctx context.Context) Diagnostics {
	state := s.content.State().String()
	if s.store == nil {
		return Diagnostics{
			Report: store.Report{Checks: map[string]store.Check{
				"connection": {Status: "error", Error: "database not configured"},
			}},
			ContentState: state,
		}
	}
	return Diagnostics{Report: store.Diagnose(ctx, s.store), ContentState: state}
}
