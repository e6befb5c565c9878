package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/aegis-secops/aegis/internal/scoring"
)

// SMTPSender delivers alert messages via an SMTP server.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send delivers the alert message to a single recipient.
func (s *SMTPSender) Send(_ context.Context, to string, msg Message) error {
	raw := s.Compose(to, msg)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	// Port 465 uses implicit TLS; 587 uses STARTTLS (smtp.SendMail handles this).
	if s.port == 465 {
		return s.submitTLS(addr, auth, to, raw)
	}
	return smtp.SendMail(addr, auth, s.from, []string{to}, raw)
}

// Compose renders the RFC 5322 message for one recipient. Urgency maps
// to priority headers so critical and high alerts land in priority
// inboxes while low alerts can be filtered without rules on the subject.
func (s *SMTPSender) Compose(to string, msg Message) []byte {
	xPriority, importance := priorityHeaders(msg.Urgency)
	lines := []string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + msg.Subject,
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"X-Priority: " + xPriority,
		"Importance: " + importance,
		"X-Aegis-Urgency: " + msg.Urgency,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		msg.Body,
	}
	return []byte(strings.Join(lines, "\r\n"))
}

// priorityHeaders maps an urgency tier to X-Priority and Importance
// header values. Unknown tiers get normal priority.
func priorityHeaders(urgency string) (xPriority, importance string) {
	switch scoring.Severity(urgency) {
	case scoring.SeverityCritical, scoring.SeverityHigh:
		return "1 (Highest)", "High"
	case scoring.SeverityLow:
		return "5 (Lowest)", "Low"
	default:
		return "3 (Normal)", "Normal"
	}
}

// submitTLS performs the SMTP dialogue over an implicit-TLS connection.
func (s *SMTPSender) submitTLS(addr string, auth smtp.Auth, to string, raw []byte) error {
	host, _, _ := net.SplitHostPort(addr)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("smtp tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := wc.Write(raw); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	return wc.Close()
}
