package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"time"

	"github.com/estatedesk/internal/config"
	"github.com/estatedesk/internal/model"
)

// Sender mails the site owner when a new visitor opens a conversation.
type Sender struct {
	cfg *config.SMTPConfig
	to  string
}

func NewSender(cfg *config.SMTPConfig, ownerEmail string) *Sender {
	return &Sender{cfg: cfg, to: ownerEmail}
}

// SendNewInquiry notifies the owner about a freshly created conversation.
func (s *Sender) SendNewInquiry(ctx context.Context, conv *model.Conversation) error {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return fmt.Errorf("email: SMTP is not configured")
	}
	subject := "New inquiry from " + conv.VisitorName
	body := fmt.Sprintf("A visitor just started a conversation.\n\nName: %s\nEmail: %s\nPhone: %s\n\nOpen the dashboard to reply.",
		conv.VisitorName, conv.VisitorEmail, conv.VisitorPhone)
	return s.send(ctx, subject, body)
}

func (s *Sender) send(ctx context.Context, subject, body string) error {
	from := s.cfg.FromEmail
	if from == "" {
		from = s.cfg.Username
	}
	var buf bytes.Buffer
	buf.WriteString("From: " + s.cfg.FromName + " <" + from + ">\r\n")
	buf.WriteString("To: " + s.to + "\r\n")
	buf.WriteString("Subject: " + subject + "\r\n")
	buf.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(body)
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(addr, auth, from, []string{s.to}, buf.Bytes()) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// SendTest sends a probe message so SMTP settings can be verified from ops.
func (s *Sender) SendTest(ctx context.Context) error {
	return s.send(ctx, "SMTP test", fmt.Sprintf("Test message sent at %s.", time.Now().Format(time.RFC1123Z)))
}
