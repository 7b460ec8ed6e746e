package testutil

import (
	"fmt"
	"io"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"testing"
)

// SMTPMessage is one captured mail transaction.
type SMTPMessage struct {
	From       string
	Recipients []string
	Header     mail.Header
	Body       string
}

// SMTPServer is an in-process SMTP sink that speaks just enough protocol for plain-auth-less clients.
// Params: none.
// Returns: capture server bound to a loopback port.
type SMTPServer struct {
	Host string
	Port int

	listener   net.Listener
	wg         sync.WaitGroup
	mu         sync.Mutex
	messages   []SMTPMessage
	rejectRcpt bool
}

// StartSMTPServer starts a capture server closed through tb.Cleanup.
// Params: test handle.
// Returns: running server.
func StartSMTPServer(tb testing.TB) *SMTPServer {
	tb.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen smtp: %v", err)
	}
	addr := listener.Addr().(*net.TCPAddr)
	s := &SMTPServer{Host: addr.IP.String(), Port: addr.Port, listener: listener}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	tb.Cleanup(s.Close)
	return s
}

// RejectRecipients makes every RCPT command fail with a permanent error.
func (s *SMTPServer) RejectRecipients() {
	s.mu.Lock()
	s.rejectRcpt = true
	s.mu.Unlock()
}

// Messages returns a snapshot of captured messages.
func (s *SMTPServer) Messages() []SMTPMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SMTPMessage(nil), s.messages...)
}

// Close stops accepting connections and waits for in-flight sessions.
func (s *SMTPServer) Close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *SMTPServer) run() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

// handleConn implements the EHLO/MAIL/RCPT/DATA/QUIT subset of SMTP and records each message.
func (s *SMTPServer) handleConn(conn net.Conn) {
	tc := textproto.NewConn(conn)
	if err := tc.PrintfLine("220 localhost ready"); err != nil {
		return
	}

	var current SMTPMessage
	for {
		line, err := tc.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(line)
		if len(verb) > 4 {
			verb = verb[:4]
		}
		switch verb {
		case "EHLO", "HELO", "NOOP", "RSET":
			_ = tc.PrintfLine("250 Ok")
		case "MAIL":
			current = SMTPMessage{From: addressArg(line)}
			_ = tc.PrintfLine("250 Ok")
		case "RCPT":
			s.mu.Lock()
			reject := s.rejectRcpt
			s.mu.Unlock()
			if reject {
				_ = tc.PrintfLine("550 mailbox unavailable")
				continue
			}
			current.Recipients = append(current.Recipients, addressArg(line))
			_ = tc.PrintfLine("250 Ok")
		case "DATA":
			if err := tc.PrintfLine("354 Go ahead"); err != nil {
				return
			}
			message, err := mail.ReadMessage(tc.DotReader())
			if err != nil {
				_ = tc.PrintfLine("554 %s", err.Error())
				return
			}
			body, err := readBody(message)
			if err != nil {
				_ = tc.PrintfLine("554 %s", err.Error())
				return
			}
			current.Header = message.Header
			current.Body = body
			s.mu.Lock()
			s.messages = append(s.messages, current)
			s.mu.Unlock()
			_ = tc.PrintfLine("250 Ok")
		case "QUIT":
			_ = tc.PrintfLine("221 Goodbye")
			return
		default:
			_ = tc.PrintfLine("502 %s", fmt.Sprintf("command %q not implemented", line))
		}
	}
}

func readBody(message *mail.Message) (string, error) {
	var reader io.Reader = message.Body
	if strings.EqualFold(message.Header.Get("Content-Transfer-Encoding"), "quoted-printable") {
		reader = quotedprintable.NewReader(reader)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// addressArg extracts the address from "MAIL FROM:<a@b>" or "RCPT TO:<a@b>".
func addressArg(line string) string {
	start := strings.IndexByte(line, '<')
	end := strings.LastIndexByte(line, '>')
	if start < 0 || end <= start {
		return ""
	}
	return line[start+1 : end]
}
