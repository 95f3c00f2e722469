package alerts

import (
	"errors"
	"strings"
	"testing"

	"hetzner-invoices/internal/invoice"
)

type recordedCommand struct {
	name string
	args []string
}

func recordingRunner(calls *[]recordedCommand, err error) Runner {
	return func(name string, args ...string) error {
		*calls = append(*calls, recordedCommand{name: name, args: args})
		return err
	}
}

func TestSendNotification(t *testing.T) {
	var calls []recordedCommand
	engine := NewWithRunner("", recordingRunner(&calls, nil))

	if err := engine.SendNotification(`Say "hi"`, `Invoice "R1"`, ""); err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("Expected 1 command, got %d", len(calls))
	}
	if calls[0].name != "osascript" || calls[0].args[0] != "-e" {
		t.Errorf("Expected osascript -e, got %s %v", calls[0].name, calls[0].args)
	}

	script := calls[0].args[1]
	want := `display notification "Invoice \"R1\"" with title "Say \"hi\"" sound name "default"`
	if script != want {
		t.Errorf("Expected script %q, got %q", want, script)
	}
}

func TestSendNotificationFailure(t *testing.T) {
	var calls []recordedCommand
	engine := NewWithRunner("Basso", recordingRunner(&calls, errors.New("exit status 1")))

	err := engine.SendNotification("t", "m", "")
	if err == nil || !strings.Contains(err.Error(), "sending notification") {
		t.Errorf("Expected notification error, got %v", err)
	}
	if !strings.Contains(calls[0].args[1], `sound name "Basso"`) {
		t.Errorf("Expected engine sound to be used, got %q", calls[0].args[1])
	}
}

func TestCheckNewInvoices(t *testing.T) {
	invoices := []invoice.Invoice{
		{ID: "R1", Date: "01/03/2024", Amount: "€ 23.80", Status: "open"},
		{ID: "R2", Date: "01/02/2024", Amount: "€ 20.00"},
		{ID: "R3"},
	}

	tests := []struct {
		name         string
		alreadySent  map[string]bool
		runErr       error
		wantSent     int
		wantRecorded []string
		wantErr      bool
	}{
		{
			name:         "all new",
			alreadySent:  map[string]bool{},
			wantSent:     3,
			wantRecorded: []string{"R1", "R2", "R3"},
		},
		{
			name:         "some already sent",
			alreadySent:  map[string]bool{"R1": true, "R3": true},
			wantSent:     1,
			wantRecorded: []string{"R2"},
		},
		{
			name:        "nothing new",
			alreadySent: map[string]bool{"R1": true, "R2": true, "R3": true},
			wantSent:    0,
		},
		{
			name:        "failed notification is not recorded",
			alreadySent: map[string]bool{},
			runErr:      errors.New("osascript not found"),
			wantSent:    0,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []recordedCommand
			var recorded []string

			alertAlreadySent := func(alertType, invoiceID string) (bool, error) {
				if alertType != AlertNewInvoice {
					t.Errorf("Expected alert type %s, got %s", AlertNewInvoice, alertType)
				}
				return tt.alreadySent[invoiceID], nil
			}
			recordAlert := func(alertType, invoiceID string) error {
				recorded = append(recorded, invoiceID)
				return nil
			}

			engine := NewWithRunner("default", recordingRunner(&calls, tt.runErr))
			sent, err := engine.CheckNewInvoices(invoices, alertAlreadySent, recordAlert)

			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckNewInvoices() error = %v, wantErr %v", err, tt.wantErr)
			}
			if sent != tt.wantSent {
				t.Errorf("Expected %d notifications, got %d", tt.wantSent, sent)
			}
			if strings.Join(recorded, ",") != strings.Join(tt.wantRecorded, ",") {
				t.Errorf("Expected recorded %v, got %v", tt.wantRecorded, recorded)
			}
		})
	}
}

func TestCheckNewInvoicesMessage(t *testing.T) {
	var calls []recordedCommand
	engine := NewWithRunner("default", recordingRunner(&calls, nil))

	_, err := engine.CheckNewInvoices(
		[]invoice.Invoice{{ID: "R1", Date: "01/03/2024", Amount: "€ 23.80", Status: "open"}},
		func(string, string) (bool, error) { return false, nil },
		func(string, string) error { return nil },
	)
	if err != nil {
		t.Fatalf("CheckNewInvoices() error = %v", err)
	}

	want := `Invoice R1, dated 01/03/2024, amount € 23.80 (open)`
	if !strings.Contains(calls[0].args[1], want) {
		t.Errorf("Expected message %q in %q", want, calls[0].args[1])
	}
}

func TestCheckStatusChange(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		current  string
		expect   bool
	}{
		{"open to paid", "open", "paid", true},
		{"unchanged", "paid", "paid", false},
		{"case only", "Paid", "paid", false},
		{"first sighting", "", "open", false},
		{"status missing now", "open", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []recordedCommand
			engine := NewWithRunner("default", recordingRunner(&calls, nil))

			err := engine.CheckStatusChange(invoice.Invoice{ID: "R1", Status: tt.current}, tt.previous)
			if err != nil {
				t.Fatalf("CheckStatusChange() error = %v", err)
			}
			if (len(calls) == 1) != tt.expect {
				t.Errorf("Expected notification = %v, got %d calls", tt.expect, len(calls))
			}
		})
	}
}
