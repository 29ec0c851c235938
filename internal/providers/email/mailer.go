package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"net/url"
	"path"
	"strings"
	texttemplate "text/template"
	"time"
)

//go:embed templates
var templateFS embed.FS

const (
	TemplateInviteMember  = "invite_member"
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"

	DefaultLocale = "en"
)

// Mailer sends the application's transactional emails, rendered in the
// recipient's locale when a translation exists and in English otherwise.
type Mailer interface {
	SendInvitation(ctx context.Context, to string, locale string, data InvitationData) error
	SendVerification(ctx context.Context, to string, locale string, data VerificationData) error
	SendPasswordReset(ctx context.Context, to string, locale string, data PasswordResetData) error
}

type InvitationData struct {
	InvitationID     string
	OrganizationName string
	InviterName      string
	InviterEmail     string
	Role             string
	ExpiresAt        time.Time
	Link             string
}

type VerificationData struct {
	Name  string
	Token string
	Link  string
}

type PasswordResetData struct {
	Name  string
	Token string
	Link  string
}

type MailerConfig struct {
	From     string
	FromName string
	AppURL   string
}

type messageTemplate struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

type TemplateMailer struct {
	provider  Provider
	cfg       MailerConfig
	templates map[string]map[string]*messageTemplate
}

func NewMailer(provider Provider, cfg MailerConfig) (*TemplateMailer, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading email templates: %w", err)
	}
	if _, ok := templates[DefaultLocale]; !ok {
		return nil, fmt.Errorf("no %s email templates found", DefaultLocale)
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	return &TemplateMailer{provider: provider, cfg: cfg, templates: templates}, nil
}

// loadTemplates reads templates/<locale>/<name>/{subject,html,plaintext}.tmpl.
func loadTemplates() (map[string]map[string]*messageTemplate, error) {
	locales, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]*messageTemplate, len(locales))
	for _, locale := range locales {
		if !locale.IsDir() {
			continue
		}
		localePath := path.Join("templates", locale.Name())
		groups, err := templateFS.ReadDir(localePath)
		if err != nil {
			return nil, err
		}

		out[locale.Name()] = make(map[string]*messageTemplate, len(groups))
		for _, group := range groups {
			if !group.IsDir() {
				continue
			}
			groupPath := path.Join(localePath, group.Name())
			tmpl, err := parseGroup(groupPath)
			if err != nil {
				return nil, fmt.Errorf("template group %s: %w", groupPath, err)
			}
			out[locale.Name()][group.Name()] = tmpl
		}
	}
	return out, nil
}

func parseGroup(groupPath string) (*messageTemplate, error) {
	subject, err := texttemplate.ParseFS(templateFS, path.Join(groupPath, "subject.tmpl"))
	if err != nil {
		return nil, err
	}
	html, err := htmltemplate.ParseFS(templateFS, path.Join(groupPath, "html.tmpl"))
	if err != nil {
		return nil, err
	}
	text, err := texttemplate.ParseFS(templateFS, path.Join(groupPath, "plaintext.tmpl"))
	if err != nil {
		return nil, err
	}
	return &messageTemplate{subject: subject, html: html, text: text}, nil
}

func (m *TemplateMailer) SendInvitation(ctx context.Context, to string, locale string, data InvitationData) error {
	data.Link = m.cfg.AppURL + "/invitations/" + url.PathEscape(data.InvitationID)
	return m.send(ctx, to, locale, TemplateInviteMember, data)
}

func (m *TemplateMailer) SendVerification(ctx context.Context, to string, locale string, data VerificationData) error {
	data.Link = m.cfg.AppURL + "/verify-email?token=" + url.QueryEscape(data.Token)
	return m.send(ctx, to, locale, TemplateVerifyEmail, data)
}

func (m *TemplateMailer) SendPasswordReset(ctx context.Context, to string, locale string, data PasswordResetData) error {
	data.Link = m.cfg.AppURL + "/reset-password?token=" + url.QueryEscape(data.Token)
	return m.send(ctx, to, locale, TemplateResetPassword, data)
}

func (m *TemplateMailer) send(ctx context.Context, to, locale, name string, data any) error {
	msg, err := m.Render(locale, name, data)
	if err != nil {
		return err
	}
	msg.To = to
	return m.provider.Send(ctx, *msg)
}

// Render builds the message for template name without sending it.
func (m *TemplateMailer) Render(locale, name string, data any) (*Message, error) {
	tmpl, ok := m.lookup(locale, name)
	if !ok {
		return nil, fmt.Errorf("template %s not found: %w", name, fs.ErrNotExist)
	}

	var subject, html, text bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("rendering subject: %w", err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("rendering html: %w", err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("rendering plaintext: %w", err)
	}

	return &Message{
		From:     m.cfg.From,
		FromName: m.cfg.FromName,
		Subject:  strings.TrimSpace(subject.String()),
		HTML:     html.String(),
		Text:     text.String(),
	}, nil
}

func (m *TemplateMailer) lookup(locale, name string) (*messageTemplate, bool) {
	if group, ok := m.templates[strings.ToLower(locale)]; ok {
		if tmpl, ok := group[name]; ok {
			return tmpl, true
		}
	}
	tmpl, ok := m.templates[DefaultLocale][name]
	return tmpl, ok
}
