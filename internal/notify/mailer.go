// Package notify emails users a receipt once their analysis request has been
// handed to the stock analysis agent.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"

	"finance-a2a-backend/internal/config"
	"finance-a2a-backend/internal/dialogue"
	"finance-a2a-backend/pkg/logger"
)

var _ dialogue.Notifier = (*Mailer)(nil)

// Mailer sends dispatch receipts over SMTP.
type Mailer struct {
	send func(*gomail.Message) error
	from string
	log  *logger.Logger
}

// NewMailer returns a Mailer for cfg, or nil when SMTP is not configured.
// A nil *Mailer is a valid no-op Notifier.
func NewMailer(cfg config.MailConfig) *Mailer {
	if cfg.SMTPHost == "" {
		return nil
	}
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	return &Mailer{
		send: func(m *gomail.Message) error { return d.DialAndSend(m) },
		from: cfg.From,
		log:  logger.Get().With("component", "mailer"),
	}
}

// NotifyDispatched emails req.ReceiverEmail a summary of the submitted
// request. It gives up when ctx is done; the SMTP exchange may still finish
// in the background.
func (m *Mailer) NotifyDispatched(ctx context.Context, req dialogue.DelegationRequest) error {
	if m == nil {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", req.ReceiverEmail)
	msg.SetHeader("Subject", "Your stock analysis request has been received")
	msg.SetBody("text/html", renderReceipt(req))

	errc := make(chan error, 1)
	go func() { errc <- m.send(msg) }()
	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.log.Errorw("Failed to send dispatch receipt", "to", req.ReceiverEmail, "session_id", req.SessionID, "error", err)
		return fmt.Errorf("failed to send receipt: %w", err)
	}
	m.log.Infow("Dispatch receipt sent", "to", req.ReceiverEmail, "session_id", req.SessionID)
	return nil
}

func renderReceipt(req dialogue.DelegationRequest) string {
	var rows strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&rows, `<tr><td style="padding: 4px 12px 4px 0; color: #666;">%s</td><td style="padding: 4px 0;">%s</td></tr>`,
			label, html.EscapeString(value))
	}
	row("Investment amount", req.InvestmentAmount.String())
	row("Strategy", req.Strategy)
	if len(req.ExistingStocks) > 0 {
		row("Current holdings", strings.Join(req.ExistingStocks, ", "))
	}
	if len(req.NewStocks) > 0 {
		row("New stocks", strings.Join(req.NewStocks, ", "))
	}

	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>We're on it!</h2>
			<p>Your portfolio analysis request has been submitted. A detailed stock analysis report will be sent to this address shortly.</p>
			<table>%s</table>
			<p style="color: #999; font-size: 12px;">Reference: %s</p>
		</div>
	`, rows.String(), html.EscapeString(req.SessionID))
}
