package app

import (
	"fmt"

	"github.com/talkincode/packflow/config"
	"github.com/talkincode/packflow/internal/workflow"
	"gopkg.in/gomail.v2"
)

// Notifier mails the dispatch desk. It is a no-op until SMTP is configured.
type Notifier struct {
	cfg    config.MailConfig
	dialer *gomail.Dialer
	// send is swapped in tests
	send func(m *gomail.Message) error
}

func NewNotifier(cfg config.MailConfig) *Notifier {
	n := &Notifier{cfg: cfg}
	if cfg.Host != "" {
		n.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		n.send = func(m *gomail.Message) error { return n.dialer.DialAndSend(m) }
	}
	return n
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.send != nil && n.cfg.DispatchDesk != ""
}

// DispatchReady tells the dispatch desk an order is waiting
func (n *Notifier) DispatchReady(e workflow.Event) error {
	if !n.Enabled() {
		return nil
	}
	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", n.cfg.DispatchDesk)
	m.SetHeader("Subject", fmt.Sprintf("Order %s ready to dispatch", e.ShortID))
	m.SetBody("text/plain", fmt.Sprintf("Order %s is ready to dispatch.\nMarked by %s at %s.\n",
		e.ShortID, e.Operator, e.At.Format("2006-01-02 15:04")))
	return n.send(m)
}
