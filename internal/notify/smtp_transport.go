package notify

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"alertgateway/internal/config"

	"gopkg.in/gomail.v2"
)

const defaultSMTPTimeout = 10 * time.Second

// smtpTransport sends gomail messages over one SMTP session bounded by a connection deadline.
// gomail.Dialer only bounds the TCP dial, so a stalled relay would otherwise hold the session forever.
type smtpTransport struct {
	host     string
	port     int
	username string
	password string
	ssl      bool
	timeout  time.Duration
}

func newSMTPTransport(cfg config.SMTPConfig) *smtpTransport {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	return &smtpTransport{
		host:     cfg.Server,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		ssl:      cfg.UseTLS,
		timeout:  timeout,
	}
}

// DialAndSend opens a session, sends every message, and quits; all I/O shares one deadline.
// Params: prepared messages.
// Returns: dial, TLS, auth, or send error.
func (t *smtpTransport) DialAndSend(messages ...*gomail.Message) error {
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	conn, err := net.DialTimeout("tcp", addr, t.timeout)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("set smtp deadline: %w", err)
	}
	if t.ssl {
		conn = tls.Client(conn, t.tlsConfig())
	}

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if !t.ssl {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.tlsConfig()); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if t.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	send := gomail.SendFunc(func(from string, to []string, message io.WriterTo) error {
		if err := client.Mail(from); err != nil {
			return err
		}
		for _, recipient := range to {
			if err := client.Rcpt(recipient); err != nil {
				return err
			}
		}
		writer, err := client.Data()
		if err != nil {
			return err
		}
		if _, err := message.WriteTo(writer); err != nil {
			_ = writer.Close()
			return err
		}
		return writer.Close()
	})
	if err := gomail.Send(send, messages...); err != nil {
		return err
	}
	return client.Quit()
}

func (t *smtpTransport) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: t.host, MinVersion: tls.VersionTLS12}
}
