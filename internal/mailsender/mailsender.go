package mailsender

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"code_auth/internal/lib/logger/sl"
	"code_auth/internal/models"

	"gopkg.in/gomail.v2"
)

var ErrUnknownPurpose = errors.New("unknown message purpose")

type Sender interface {
	Send(to, subject, body string) error
}

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *Mailer) Send(to, subject, body string) error {
	from := m.From
	if from == "" {
		from = m.Username
	}

	msg := gomail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", from)
	msg.SetHeader("Subject", subject)

	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	return dialer.DialAndSend(msg)
}

// SMSLogger stands in for an SMS gateway and writes messages to the log.
type SMSLogger struct {
	Log *slog.Logger
}

func (s *SMSLogger) Send(to, _, body string) error {
	s.Log.Info("sms", slog.String("to", to), slog.String("body", body))
	return nil
}

// Render builds the subject and body of a notification.
func Render(msg models.Message) (string, string, error) {
	switch msg.Purpose {
	case models.PurposeVerificationCode:
		return "Verification code", fmt.Sprintf("Your verification code is %s", msg.Code), nil
	case models.PurposeResetPassword:
		return "Reset password",
			fmt.Sprintf("To reset your password, follow this link: %s\n"+
				"If you did not request a password reset, ignore this email.", msg.Link), nil
	case models.PurposeVerifyEmail:
		return "Email verification",
			fmt.Sprintf("To verify your email, follow this link: %s", msg.Link), nil
	}

	return "", "", fmt.Errorf("%w: %q", ErrUnknownPurpose, msg.Purpose)
}

// NewHandler decodes queue deliveries and hands them to sender.
func NewHandler(log *slog.Logger, sender Sender) func(body []byte) error {
	return func(body []byte) error {
		const op = "mailsender.Handle"

		log := log.With(slog.String("op", op))

		var msg models.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			log.Error("failed to unmarshal message", sl.Err(err))
			return err
		}

		subject, text, err := Render(msg)
		if err != nil {
			log.Error("failed to render message", sl.Err(err))
			return err
		}

		if err := sender.Send(msg.To, subject, text); err != nil {
			log.Error("failed to send message", sl.Err(err))
			return err
		}

		log.Info("message sent successfully", slog.String("purpose", msg.Purpose))

		return nil
	}
}
