package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"

	"stockwatch/internal/config"
	"stockwatch/internal/metrics"
	logx "stockwatch/pkg/logx"
)

// sendFunc is swapped out in tests.
type sendFunc func(msg *email.Email, addr string, auth smtp.Auth) error

// Mailer delivers stock alerts over SMTP. It holds no SMTP settings itself:
// the caller passes the current email config on every send so hot-reloaded
// recipients take effect immediately.
type Mailer struct {
	log  logx.Logger
	send sendFunc
}

func NewMailer(log logx.Logger) *Mailer {
	return &Mailer{
		log: log,
		send: func(msg *email.Email, addr string, auth smtp.Auth) error {
			return msg.Send(addr, auth)
		},
	}
}

// SendAlert emails the alert to every configured recipient, one message per
// address so a single bad mailbox cannot block the rest. It returns the
// number of messages delivered; the error is non-nil only when nothing went
// out at all.
func (m *Mailer) SendAlert(ctx context.Context, cfg config.EmailConfig, a Alert) (int, error) {
	if len(cfg.Recipients) == 0 {
		m.log.Debug("no alert recipients configured", logx.String("product", a.ProductID))
		return 0, nil
	}

	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	var auth smtp.Auth
	if cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Sender, cfg.Password, cfg.SMTPHost)
	}

	sent := 0
	var lastErr error
	for _, rcpt := range cfg.Recipients {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		msg := email.NewEmail()
		msg.From = fmt.Sprintf("Stockwatch <%s>", cfg.Sender)
		msg.To = []string{rcpt}
		msg.Subject = subject(a)
		msg.Text = []byte(body(a))

		if err := m.send(msg, addr, auth); err != nil {
			lastErr = err
			metrics.ObserveEmail(false)
			m.log.Error("alert email failed",
				logx.String("product", a.ProductID),
				logx.String("recipient", rcpt),
				logx.Err(err))
			continue
		}
		sent++
		metrics.ObserveEmail(true)
		m.log.Info("alert email sent",
			logx.String("product", a.ProductID),
			logx.String("recipient", rcpt))
	}

	if sent == 0 && lastErr != nil {
		return 0, fmt.Errorf("all %d recipients failed: %w", len(cfg.Recipients), lastErr)
	}
	return sent, nil
}
