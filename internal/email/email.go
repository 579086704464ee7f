// Package email sends patient-facing notifications over SMTP.
package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/pkg/logger"
)

// Service delivers billing notifications. Implementations must be safe
// for concurrent use.
type Service interface {
	SendBillFinalized(ctx context.Context, to, patientName string, bill *model.Bill) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
	logger *logger.Logger
}

func NewService(cfg Config, l *logger.Logger) Service {
	if l == nil {
		l = logger.NewLogger(nil)
	}
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: l,
	}
}

func (s *smtpService) SendBillFinalized(ctx context.Context, to, patientName string, bill *model.Bill) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("Your hospital bill %s is ready", shortID(bill)))
	m.SetBody("text/html", renderBillFinalized(patientName, bill))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send bill notification: %w", err)
	}
	s.logger.Info("bill notification sent", "to", to, "bill_id", bill.ID.String())
	return nil
}

func shortID(bill *model.Bill) string {
	id := bill.ID.String()
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func renderBillFinalized(patientName string, bill *model.Bill) string {
	return fmt.Sprintf(`
		<h2>Hello %s,</h2>
		<p>Your hospital bill has been finalized and is ready for payment.</p>
		<ul>
			<li>Consultation fee: %.2f</li>
			<li>Hospital charges: %.2f</li>
			<li><strong>Grand total: %.2f</strong></li>
		</ul>
		<p>Please contact the billing desk with any questions.</p>
	`, patientName, bill.Totals.ConsultationFee, bill.Totals.HospitalChargesTotal, bill.Totals.GrandTotal)
}
