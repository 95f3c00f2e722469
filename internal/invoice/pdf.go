package invoice

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	reInvoiceNumber  = regexp.MustCompile(`(?i)Invoice\s*No[:.]?\s*(\d+)`)
	reDate           = regexp.MustCompile(`Date[:.]?\s*([A-Za-z]+\s+\d+,\s+\d{4})`)
	reTotal          = regexp.MustCompile(`(?i)Total[:.]?\s*€?\s*([\d,]+\.\d{2})`)
	reNetAmount      = regexp.MustCompile(`(?i)Net[:.]?\s*€?\s*([\d,]+\.\d{2})`)
	reVATAmount      = regexp.MustCompile(`(?i)VAT\s*\d+%\s*€?\s*([\d,]+\.\d{2})`)
	reCustomerNumber = regexp.MustCompile(`(?i)Customer\s*No[:.]?\s*([A-Z0-9]+)`)
	reContract       = regexp.MustCompile(`(?i)Contract[:.]?\s*(\d+)`)
)

// ParsePDF extracts the text of an invoice PDF and the fields found in it.
// It never fails: an unreadable PDF yields empty text and ExtractError.
func ParsePDF(data []byte, invoiceID string) *ParsedInvoice {
	text, err := ExtractText(data)
	if err != nil {
		return &ParsedInvoice{
			InvoiceID:    invoiceID,
			ExtractError: err.Error(),
		}
	}
	return ParseInvoiceText(text, invoiceID)
}

// ExtractText returns the plain text of every page, in page order, each
// page followed by a newline.
func ExtractText(data []byte) (text string, err error) {
	// The reader panics on some malformed documents
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("reading PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting text from page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	return b.String(), nil
}

// ParseInvoiceText pulls the known fields out of invoice text. Each field
// is matched on its own; a missing field does not affect the others.
func ParseInvoiceText(text, invoiceID string) *ParsedInvoice {
	return &ParsedInvoice{
		InvoiceID:      invoiceID,
		RawText:        text,
		InvoiceNumber:  firstGroup(reInvoiceNumber, text),
		Date:           firstGroup(reDate, text),
		Total:          firstGroup(reTotal, text),
		NetAmount:      firstGroup(reNetAmount, text),
		VATAmount:      firstGroup(reVATAmount, text),
		CustomerNumber: firstGroup(reCustomerNumber, text),
		Contract:       firstGroup(reContract, text),
	}
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
