package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/d60-Lab/tailor-checkout/config"
	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
)

// ErrDisabled SMTP 或收件人未配置
var ErrDisabled = errors.New("notify: smtp is not configured")

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Notifier 新订单管理员邮件
type Notifier struct {
	sender  sender
	from    string
	to      string
	timeout time.Duration
}

func NewNotifier(cfg config.SMTPConfig) *Notifier {
	n := &Notifier{from: cfg.From, to: cfg.AdminEmail, timeout: cfg.Timeout}
	if n.timeout <= 0 {
		n.timeout = 15 * time.Second
	}
	if n.from == "" {
		n.from = cfg.Username
	}
	if cfg.Host != "" {
		n.sender = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return n
}

// Enabled reports whether a mail server and recipient are configured.
func (n *Notifier) Enabled() bool {
	return n.sender != nil && n.to != "" && n.from != ""
}

// NotifyAdmin 发送失败只记录日志，返回 false
func (n *Notifier) NotifyAdmin(ctx context.Context, rec model.OrderRecord) bool {
	if err := n.send(ctx, rec); err != nil {
		logger.Warn("admin notification failed",
			zap.String("reference", rec.Reference),
			zap.Error(err),
		)
		return false
	}
	logger.Info("admin notified", zap.String("reference", rec.Reference), zap.String("to", n.to))
	return true
}

func (n *Notifier) send(ctx context.Context, rec model.OrderRecord) (err error) {
	if !n.Enabled() {
		return ErrDisabled
	}
	msg, err := n.buildMessage(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("smtp send panic: %v", r)
			}
		}()
		done <- n.sender.DialAndSend(msg)
	}()

	select {
	case err = <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func (n *Notifier) buildMessage(rec model.OrderRecord) (*gomail.Message, error) {
	view := newEmailView(rec)

	var plain, html bytes.Buffer
	if err := plainTmpl.Execute(&plain, view); err != nil {
		return nil, fmt.Errorf("render plain body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to)
	if rec.Customer.Email != "" {
		m.SetHeader("Reply-To", rec.Customer.Email)
	}
	m.SetHeader("Subject", view.Subject)
	m.SetBody("text/plain", plain.String())
	m.AddAlternative("text/html", html.String())
	return m, nil
}
