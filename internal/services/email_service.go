package services

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// SMTPConfigFromEnv reads the SMTP_* and EMAIL_FROM* variables.
func SMTPConfigFromEnv() SMTPConfig {
	return SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     os.Getenv("SMTP_PORT"),
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("EMAIL_FROM"),
		FromName: os.Getenv("EMAIL_FROM_NAME"),
	}
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailService struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

func NewEmailService(cfg SMTPConfig) *EmailService {
	return &EmailService{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *EmailService) Configured() bool {
	return s.cfg.Host != "" && s.cfg.Username != "" && s.cfg.Password != ""
}

const emailLayout = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #1f2937; background-color: #f3f4f6; margin: 0; padding: 0; }
    .container { background-color: #ffffff; border-radius: 12px; max-width: 600px; margin: 40px auto; padding: 40px; }
    .footer { text-align: center; margin-top: 40px; font-size: 12px; color: #9ca3af; }
</style>
</head>
<body>
<div class="container">
    %s
    <div class="footer">OutreachGuard</div>
</div>
</body>
</html>
`

func (s *EmailService) SendEmail(to []string, subject string, body string) error {
	if !s.Configured() {
		return fmt.Errorf("SMTP configuration missing")
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	msg := []byte(fmt.Sprintf("To: %s\r\n"+
		"From: \"%s\" <%s>\r\n"+
		"Subject: %s\r\n"+
		"MIME-version: 1.0;\r\n"+
		"Content-Type: text/html; charset=\"UTF-8\";\r\n"+
		"\r\n"+
		"%s", strings.Join(to, ","), s.cfg.FromName, s.cfg.From, subject, fmt.Sprintf(emailLayout, body)))

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, s.cfg.From, to, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendVerificationRequired tells the account owner that new sessions are
// limited until a phone number is verified.
func (s *EmailService) SendVerificationRequired(to string) error {
	body := `
		<h2 style="color: #b91c1c;">Verification required</h2>
		<p>We noticed your account being used from a device that is shared with other accounts.</p>
		<p>Your outreach limits are reduced until you verify your phone number from the dashboard.</p>
	`
	return s.SendEmail([]string{to}, "[OutreachGuard] Verify your phone number", body)
}
