package email

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// Service delivers notification emails. Implementations must be safe
// for concurrent use.
type Service interface {
	SendAppointmentCreated(ctx context.Context, to, appointmentNumber, when string) error
	SendAppointmentConfirmed(ctx context.Context, to, appointmentNumber, when string) error
	SendAppointmentCancelled(ctx context.Context, to, appointmentNumber, reason string) error
	SendAppointmentReminder(ctx context.Context, to, appointmentNumber, when, window string) error
	SendCustom(ctx context.Context, to, subject, body string) error
}

type Config struct {
	Host     string `envconfig:"SMTP_HOST" default:"localhost"`
	Port     int    `envconfig:"SMTP_PORT" default:"587"`
	Username string `envconfig:"SMTP_USERNAME"`
	Password string `envconfig:"SMTP_PASSWORD"`
	From     string `envconfig:"SMTP_FROM" default:"no-reply@consult.local"`
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg *Config) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendAppointmentCreated(ctx context.Context, to, number, when string) error {
	return s.send(ctx, to, "Appointment booked: "+number,
		fmt.Sprintf("Your appointment %s is booked for %s. It will be confirmed once payment completes.", number, when))
}

func (s *smtpService) SendAppointmentConfirmed(ctx context.Context, to, number, when string) error {
	return s.send(ctx, to, "Appointment confirmed: "+number,
		fmt.Sprintf("Your appointment %s on %s is confirmed.", number, when))
}

func (s *smtpService) SendAppointmentCancelled(ctx context.Context, to, number, reason string) error {
	body := fmt.Sprintf("Your appointment %s has been cancelled.", number)
	if reason != "" {
		body += " Reason: " + reason
	}
	return s.send(ctx, to, "Appointment cancelled: "+number, body)
}

func (s *smtpService) SendAppointmentReminder(ctx context.Context, to, number, when, window string) error {
	return s.send(ctx, to, "Appointment reminder: "+number,
		fmt.Sprintf("Reminder: your appointment %s starts at %s (in about %s).", number, when, window))
}

func (s *smtpService) SendCustom(ctx context.Context, to, subject, body string) error {
	return s.send(ctx, to, subject, body)
}

func (s *smtpService) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// NoopService drops every message. Used when SMTP is not configured.
type NoopService struct{}

func (NoopService) SendAppointmentCreated(context.Context, string, string, string) error { return nil }
func (NoopService) SendAppointmentConfirmed(context.Context, string, string, string) error {
	return nil
}
func (NoopService) SendAppointmentCancelled(context.Context, string, string, string) error {
	return nil
}
func (NoopService) SendAppointmentReminder(context.Context, string, string, string, string) error {
	return nil
}
func (NoopService) SendCustom(context.Context, string, string, string) error { return nil }
