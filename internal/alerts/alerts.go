package alerts

import (
	"fmt"
	"os/exec"
	"strings"

	"hetzner-invoices/internal/invoice"
)

const AlertNewInvoice = "new_invoice"

// Runner executes an external command. Tests replace it.
type Runner func(name string, args ...string) error

func execRunner(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// AlertEngine handles sending macOS notifications
type AlertEngine struct {
	sound string
	run   Runner
}

// New creates a new AlertEngine
func New(sound string) *AlertEngine {
	return NewWithRunner(sound, execRunner)
}

// NewWithRunner creates an AlertEngine that runs commands through run
func NewWithRunner(sound string, run Runner) *AlertEngine {
	return &AlertEngine{
		sound: sound,
		run:   run,
	}
}

// SendNotification sends a macOS notification using osascript
func (a *AlertEngine) SendNotification(title, message, sound string) error {
	if sound == "" {
		sound = a.sound
	}
	if sound == "" {
		sound = "default"
	}

	// Escape quotes in message and title
	escapedTitle := strings.ReplaceAll(title, `"`, `\"`)
	escapedMessage := strings.ReplaceAll(message, `"`, `\"`)

	script := fmt.Sprintf(
		`display notification "%s" with title "%s" sound name "%s"`,
		escapedMessage,
		escapedTitle,
		sound,
	)

	if err := a.run("osascript", "-e", script); err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}

	return nil
}

// CheckNewInvoices notifies once per invoice. An invoice is recorded only
// after its notification went out, so a failed notification is retried on
// the next check. Returns how many notifications were sent.
func (a *AlertEngine) CheckNewInvoices(invoices []invoice.Invoice, alertAlreadySent func(string, string) (bool, error), recordAlert func(string, string) error) (int, error) {
	sent := 0
	for _, inv := range invoices {
		already, err := alertAlreadySent(AlertNewInvoice, inv.ID)
		if err != nil {
			return sent, fmt.Errorf("checking alert history: %w", err)
		}
		if already {
			continue
		}

		if err := a.SendNotification("New Hetzner invoice", describe(inv), ""); err != nil {
			return sent, err
		}

		if err := recordAlert(AlertNewInvoice, inv.ID); err != nil {
			return sent, fmt.Errorf("recording alert: %w", err)
		}
		sent++
	}
	return sent, nil
}

// CheckStatusChange notifies when a known invoice changes status, for
// example from open to paid.
func (a *AlertEngine) CheckStatusChange(inv invoice.Invoice, previousStatus string) error {
	if previousStatus == "" || inv.Status == "" || strings.EqualFold(previousStatus, inv.Status) {
		return nil
	}
	message := fmt.Sprintf("Invoice %s changed from %s to %s", inv.ID, previousStatus, inv.Status)
	return a.SendNotification("Hetzner invoice status", message, "")
}

func describe(inv invoice.Invoice) string {
	parts := []string{"Invoice " + inv.ID}
	if inv.Date != "" {
		parts = append(parts, "dated "+inv.Date)
	}
	if inv.Amount != "" {
		parts = append(parts, "amount "+inv.Amount)
	}
	msg := strings.Join(parts, ", ")
	if inv.Status != "" {
		msg += " (" + inv.Status + ")"
	}
	return msg
}
