package utils

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"followmail/automation"
	"followmail/models"
)

// SMTPMailer delivers through the sender's own SMTP account. It
// implements automation.Mailer.
type SMTPMailer struct{}

func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{}
}

// Send dials the sender's SMTP host and delivers the message. The
// stored SMTP password is decrypted just-in-time and never logged.
func (s *SMTPMailer) Send(sender *models.Sender, msg automation.Email) (string, error) {
	password, err := Decrypt(sender.SMTPPassword)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), sender.SMTPHost)

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", msg.Body)

	d := gomail.NewDialer(sender.SMTPHost, sender.SMTPPort, sender.SMTPUsername, password)
	if sender.Encryption == "SSL" {
		d.SSL = true
	}

	if err := d.DialAndSend(m); err != nil {
		return "", fmt.Errorf("error sending email: %w", err)
	}

	return messageID, nil
}
