package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// EmailService sends plain-text email on behalf of the assistant. When SMTP
// is unset in the development environment it runs in dev mode and logs
// outgoing mail instead of delivering it; when SMTP is unset anywhere else
// the service reports itself unconfigured and refuses to send.
type EmailService struct {
	host    string
	port    string
	user    string
	pass    string
	from    string
	devMode bool
}

func NewEmailService(host, port, user, pass, from, env string) *EmailService {
	devMode := env == "development" && (host == "" || user == "")
	if devMode {
		log.Println("⚠ Email service running in DEV MODE (logging to console)")
	} else if host == "" || user == "" {
		log.Println("⚠ Email service not configured; outgoing mail is disabled")
	}
	return &EmailService{
		host:    host,
		port:    port,
		user:    user,
		pass:    pass,
		from:    from,
		devMode: devMode,
	}
}

// Configured reports whether Send can do anything useful. Dev mode "sends"
// by logging, so it counts; an unconfigured production service does not.
func (s *EmailService) Configured() bool {
	return s.devMode || (s.host != "" && s.user != "")
}

func (s *EmailService) Send(ctx context.Context, to, subject, body string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", to, err)
	}

	if s.devMode {
		log.Printf("📧 [DEV EMAIL] To: %s | Subject: %s", to, subject)
		log.Printf("📧 Body:\n%s", body)
		return nil
	}
	if !s.Configured() {
		return fmt.Errorf("email service is not configured")
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	if err := s.deliver(ctx, to, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	log.Printf("✓ Email sent to %s", to)
	return nil
}

// deliver speaks SMTP over a context-aware connection so a cancelled turn
// does not leave the caller blocked on a stalled mail server.
func (s *EmailService) deliver(ctx context.Context, to string, message []byte) error {
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	} else {
		if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
			return err
		}
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(message); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
