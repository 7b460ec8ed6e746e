package notify

import (
	"context"
	"log/slog"
	"strings"

	"alertgateway/internal/config"
	"alertgateway/internal/domain"
	"alertgateway/internal/failure"

	"github.com/russross/blackfriday/v2"
	"gopkg.in/gomail.v2"
)

// Mailer delivers prepared messages; *gomail.Dialer also satisfies it.
type Mailer interface {
	DialAndSend(messages ...*gomail.Message) error
}

// EmailSender renders markdown alerts to HTML mail and sends them over SMTP.
// Delivery failures are logged and reported in Result, never returned.
type EmailSender struct {
	mailer      Mailer
	fromAddress string
	fromName    string
	logger      *slog.Logger
}

// NewEmailSender creates SMTP sender.
// Params: smtp config (use_tls selects implicit TLS, timeout_sec bounds each session) and logger.
// Returns: initialized sender.
func NewEmailSender(cfg config.SMTPConfig, logger *slog.Logger) *EmailSender {
	return NewEmailSenderWithMailer(newSMTPTransport(cfg), cfg.FromAddress, cfg.FromName, logger)
}

// NewEmailSenderWithMailer creates sender over custom transport.
// Params: mailer, sender address, display name, and logger.
// Returns: initialized sender.
func NewEmailSenderWithMailer(mailer Mailer, fromAddress, fromName string, logger *slog.Logger) *EmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{
		mailer:      mailer,
		fromAddress: fromAddress,
		fromName:    fromName,
		logger:      logger,
	}
}

// Send emails one alert to recipient.
// Params: ctx bounding the wait, recipient address, and alert.
// Returns: success or error result; failures are only logged.
func (s *EmailSender) Send(ctx context.Context, recipient string, alert domain.AlertEvent) Result {
	message := s.buildMessage(recipient, alert)

	// gomail has no context support; the transport deadline ends the goroutine after ctx gives up.
	done := make(chan error, 1)
	go func() {
		done <- s.mailer.DialAndSend(message)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		failed := failure.EmailDeliveryFailed{Recipient: recipient, Err: err}
		s.logger.Error("email delivery failed", "recipient", recipient, "error", failed)
		return Result{Status: StatusError, Detail: failed.Error()}
	}
	s.logger.Info("email sent", "recipient", recipient)
	return Result{Status: StatusSuccess, Detail: "Email sent successfully!"}
}

func (s *EmailSender) buildMessage(recipient string, alert domain.AlertEvent) *gomail.Message {
	message := gomail.NewMessage()
	message.SetAddressHeader("From", s.fromAddress, s.fromName)
	message.SetHeader("To", recipient)
	message.SetHeader("Subject", emailSubject(alert))
	message.SetBody("text/html", renderMarkdown(alert.Message))
	return message
}

// emailSubject returns "SEVERITY - title", or title when severity is absent.
func emailSubject(alert domain.AlertEvent) string {
	if !alert.HasSeverity() {
		return alert.Title
	}
	return strings.ToUpper(string(alert.Severity)) + " - " + alert.Title
}

func renderMarkdown(markdown string) string {
	return string(blackfriday.Run([]byte(markdown)))
}
