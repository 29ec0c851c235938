package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type SMTPProvider struct {
	cfg SMTPConfig
}

func NewSMTP(cfg SMTPConfig) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	if err := smtp.SendMail(addr, auth, msg.From, []string{msg.To}, buildMIME(msg)); err != nil {
		return fmt.Errorf("send via smtp: %w", err)
	}
	return nil
}

// buildMIME renders msg as multipart/alternative with base64 bodies.
func buildMIME(msg Message) []byte {
	var buf bytes.Buffer

	from := msg.From
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", msg.FromName), msg.From)
	}
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	buf.WriteString("MIME-Version: 1.0\r\n")

	boundary := fmt.Sprintf("_TASKLANE_BOUNDARY_%d", time.Now().UnixNano())
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary))

	writePart := func(contentType, body string) {
		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString(fmt.Sprintf("Content-Type: %s; charset=utf-8\r\n", contentType))
		buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		buf.WriteString(base64.StdEncoding.EncodeToString([]byte(body)))
		buf.WriteString("\r\n")
	}
	writePart("text/plain", msg.Text)
	writePart("text/html", msg.HTML)
	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes()
}
