// Package email delivers contact-form messages over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

var (
	ErrNotConfigured = errors.New("email not configured")
	ErrInvalidInput  = errors.New("invalid contact message")
)

const (
	maxNameLength    = 200
	maxMessageLength = 5000
	boundary         = "boundary-site-contact"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// ContactMessage is one submission of the site's contact form.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// Normalize trims the fields, folds the single-line ones onto one line and
// reports the first validation problem.
func (m ContactMessage) Normalize() (ContactMessage, error) {
	m.Name = headerSafe(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Phone = headerSafe(m.Phone)
	m.Subject = headerSafe(m.Subject)
	m.Message = strings.TrimSpace(m.Message)

	switch {
	case m.Name == "":
		return m, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case len(m.Name) > maxNameLength:
		return m, fmt.Errorf("%w: name is too long", ErrInvalidInput)
	case m.Message == "":
		return m, fmt.Errorf("%w: message is required", ErrInvalidInput)
	case len(m.Message) > maxMessageLength:
		return m, fmt.Errorf("%w: message is too long", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(m.Email)
	if err != nil || addr.Address != m.Email {
		return m, fmt.Errorf("%w: email is not a valid address", ErrInvalidInput)
	}
	return m, nil
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now    func() time.Time
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
		now:    time.Now,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendContactMessage mails msg to the site owner at to. Replies go to the
// visitor.
func (s *Service) SendContactMessage(to string, msg ContactMessage) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg, err := msg.Normalize()
	if err != nil {
		return err
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("contact recipient %q: %w", to, err)
	}

	subject := "New contact message from " + msg.Name
	if msg.Subject != "" {
		subject = msg.Subject + " (" + msg.Name + ")"
	}
	html, err := renderTemplate(contactTemplate, contactData{ContactMessage: msg, ReceivedAt: s.now().UTC().Format(time.RFC1123)})
	if err != nil {
		return fmt.Errorf("render contact template: %w", err)
	}

	payload := s.compose(to, msg.Email, subject, plainText(msg), html)
	if err := s.send(s.server, s.auth, s.config.From, []string{to}, payload); err != nil {
		return fmt.Errorf("send contact message: %w", err)
	}
	return nil
}

func (s *Service) compose(to, replyTo, subject, text, html string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = (&mail.Address{Name: s.config.FromName, Address: s.config.From}).String()
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Reply-To: %s\r\n", replyTo)
	fmt.Fprintf(&msg, "Subject: %s\r\n", headerSafe(subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", text)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", html)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

// headerSafe drops line breaks so visitor input cannot add headers.
func headerSafe(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func plainText(msg ContactMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\r\nEmail: %s\r\n", msg.Name, msg.Email)
	if msg.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\r\n", msg.Phone)
	}
	fmt.Fprintf(&b, "\r\n%s", msg.Message)
	return b.String()
}

type contactData struct {
	ContactMessage
	ReceivedAt string
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const contactTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New contact message</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #f59e0b; padding-bottom: 10px; margin-bottom: 20px; }
        .field { margin: 4px 0; }
        .message { white-space: pre-wrap; background: #f9fafb; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>New contact message</h1>
    </div>

    <p class="field"><strong>Name:</strong> {{.Name}}</p>
    <p class="field"><strong>Email:</strong> <a href="mailto:{{.Email}}">{{.Email}}</a></p>
    {{if .Phone}}<p class="field"><strong>Phone:</strong> {{.Phone}}</p>{{end}}
    {{if .Subject}}<p class="field"><strong>Subject:</strong> {{.Subject}}</p>{{end}}

    <div class="message">{{.Message}}</div>

    <div class="footer">
        <p>Sent from the website contact form on {{.ReceivedAt}}. Reply to this email to answer the visitor.</p>
    </div>
</body>
</html>`
