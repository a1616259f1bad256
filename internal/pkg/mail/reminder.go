package mail

import (
	"fmt"

	"github.com/subtrackd/subtrackd/app/models"
)

// ReminderMailer delivers renewal reminder emails via SMTP. It implements
// the scheduler's Notifier contract.
type ReminderMailer struct{}

// NewReminderMailer creates an SMTP-backed reminder notifier.
func NewReminderMailer() *ReminderMailer {
	return &ReminderMailer{}
}

// Send emails one reminder for a subscription. The label identifies the
// checkpoint (e.g. "7 days before reminder").
func (m *ReminderMailer) Send(to string, label string, sub *models.Subscription) error {
	subject := fmt.Sprintf("Upcoming renewal: %s", sub.Name)
	body := reminderBody(label, sub)
	return SendMail(to, subject, body)
}

func reminderBody(label string, sub *models.Subscription) string {
	return fmt.Sprintf(
		"<h2>Renewal reminder (%s)</h2>"+
			"<p>Your subscription <strong>%s</strong> renews on <strong>%s</strong>.</p>"+
			"<ul>"+
			"<li>Price: %.2f %s</li>"+
			"<li>Billing frequency: %s</li>"+
			"<li>Payment method: %s</li>"+
			"</ul>"+
			"<p>Cancel before the renewal date if you no longer need it.</p>",
		label,
		sub.Name,
		sub.RenewalDate.Format("02 Jan 2006"),
		sub.Price,
		sub.Currency,
		sub.Frequency,
		sub.PaymentMethod,
	)
}
