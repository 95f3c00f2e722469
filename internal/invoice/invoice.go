// Package invoice reads invoices from the Hetzner Accounts portal: the
// rendered invoice list, PDF downloads through the browser and usage CSVs
// through the cookie-bridged HTTP client.
package invoice

import (
	"errors"
)

var (
	// ErrNotFound reports a missing invoice, PDF link or usage link.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument reports a rejected id, page or page size.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Invoice is one entry of the portal's invoice list. Date and Amount are
// the rendered text, trimmed but otherwise untouched.
type Invoice struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	PDFPath  string `json:"pdf_path,omitempty"`
	UsageID  string `json:"usage_id,omitempty"`
}

// Pagination describes a ListPage.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// ListPage is one page of invoices.
type ListPage struct {
	Invoices   []Invoice  `json:"invoices"`
	Pagination Pagination `json:"pagination"`
}

// UsageDetails is a decoded usage CSV for one billing period.
type UsageDetails struct {
	UsageID        string              `json:"usage_id"`
	CustomerNumber string              `json:"customer_number"`
	RowCount       int                 `json:"row_count"`
	Data           []map[string]string `json:"data"`
	CSVRaw         string              `json:"csv_raw"`
}

// ParsedInvoice holds fields pulled from an invoice PDF. Fields the text
// does not contain are left empty.
type ParsedInvoice struct {
	InvoiceID      string `json:"invoice_id"`
	RawText        string `json:"raw_text"`
	InvoiceNumber  string `json:"invoice_number,omitempty"`
	Date           string `json:"date,omitempty"`
	Total          string `json:"total,omitempty"`
	NetAmount      string `json:"net_amount,omitempty"`
	VATAmount      string `json:"vat_amount,omitempty"`
	CustomerNumber string `json:"customer_number,omitempty"`
	Contract       string `json:"contract,omitempty"`

	// ExtractError is set when the PDF could not be read.
	ExtractError string `json:"extract_error,omitempty"`
}

// WithParsed is an invoice together with its parsed PDF.
type WithParsed struct {
	Invoice
	Parsed *ParsedInvoice `json:"parsed"`
}
