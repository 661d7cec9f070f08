package services

import (
	"bankledger/config"
	"fmt"
	"html"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"
)

// TransactionNotice - данные зафиксированной операции для уведомления
type TransactionNotice struct {
	AccountName  string
	Counterparty string
	Currency     string
	Action       string
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	OccurredOn   time.Time
	Description  string
}

// Notifier доставляет уведомления об операциях по счетам
type Notifier interface {
	NotifyTransaction(notice TransactionNotice) error
}

// mailSender реализуется *gomail.Dialer
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService предоставляет методы для отправки email
type EmailService struct {
	sender     mailSender
	from       string
	recipients []string
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return &EmailService{
		sender:     dialer,
		from:       cfg.SMTP.From,
		recipients: cfg.Notify.Recipients,
	}
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to []string, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.sender.DialAndSend(m); err != nil {
		return errors.Wrap(err, "failed to send email")
	}

	return nil
}

// NotifyTransaction отправляет уведомление об операции всем получателям.
// Без получателей ничего не делает.
func (s *EmailService) NotifyTransaction(notice TransactionNotice) error {
	if len(s.recipients) == 0 {
		return nil
	}
	return s.SendEmail(s.recipients, noticeSubject(notice), noticeBody(notice))
}

func noticeSubject(n TransactionNotice) string {
	return fmt.Sprintf("Ledger: %s %s %s on %s", n.Action, n.Amount.StringFixed(2), n.Currency, n.AccountName)
}

func noticeBody(n TransactionNotice) string {
	counterparty := ""
	if n.Counterparty != "" {
		counterparty = fmt.Sprintf("\n\t\t<p>Counterparty: %s</p>", html.EscapeString(n.Counterparty))
	}
	return fmt.Sprintf(`
		<h2>Transaction notice</h2>
		<p>Account: %s</p>%s
		<p>Operation: %s</p>
		<p>Amount: %s %s</p>
		<p>Balance after: %s %s</p>
		<p>Description: %s</p>
		<p>Date: %s</p>
	`,
		html.EscapeString(n.AccountName),
		counterparty,
		html.EscapeString(n.Action),
		n.Amount.StringFixed(2), n.Currency,
		n.BalanceAfter.StringFixed(2), n.Currency,
		html.EscapeString(n.Description),
		n.OccurredOn.Format("02.01.2006 15:04:05"),
	)
}
