package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
)

// SMTPConfig addresses the operator mailbox.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSink mails notifications to operators.
type SMTPSink struct {
	cfg   SMTPConfig
	send  sendFunc
	retry apperrors.RetryConfig
	now   func() time.Time
}

// NewSMTPSink creates a sink. Host, From and at least one recipient are required.
func NewSMTPSink(cfg SMTPConfig) (*SMTPSink, error) {
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, apperrors.ConfigError("smtp notifications need host, from and to", nil)
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	retry := apperrors.DefaultRetryConfig()
	retry.MaxRetries = 2
	return &SMTPSink{cfg: cfg, send: smtp.SendMail, retry: retry, now: time.Now}, nil
}

// Notify implements Sink. Transient delivery failures are retried.
func (s *SMTPSink) Notify(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	body := s.format(msg)

	err := apperrors.Retry(ctx, s.retry, func() error {
		return s.send(addr, auth, s.cfg.From, s.cfg.To, body)
	})
	if err != nil {
		return apperrors.New(apperrors.ErrCodeNotifyFailed,
			fmt.Sprintf("failed to mail %q", msg.Subject), err)
	}
	return nil
}

func (s *SMTPSink) format(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}
