package invoice

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	selectorList      = "ul.invoice-list"
	selectorListItems = "ul.invoice-list li"
	selectorDate      = ".invoice-date"
	selectorValue     = ".invoice-value"
	selectorStatus    = ".invoice-status"
	selectorUsageLink = `a.btn-detail[href*="usage.hetzner.com"]`

	currencyEUR = "EUR"
	currencyUSD = "USD"
)

// ParseInvoiceList extracts invoices from the rendered invoice page. Only
// the first limit list items are considered; items without an id are
// skipped, so fewer than limit invoices may come back.
func ParseInvoiceList(html string, limit int) ([]Invoice, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing invoice list: %w", err)
	}

	invoices := []Invoice{}
	if limit <= 0 {
		return invoices, nil
	}

	doc.Find(selectorListItems).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if i >= limit {
			return false
		}

		id, ok := item.Attr("id")
		if !ok || strings.TrimSpace(id) == "" {
			return true
		}

		amount := textOf(item, selectorValue)
		inv := Invoice{
			ID:       id,
			Date:     textOf(item, selectorDate),
			Amount:   amount,
			Currency: currencyFor(amount),
			Status:   textOf(item, selectorStatus),
		}

		if href, ok := item.Find(selectorUsageLink).First().Attr("href"); ok {
			inv.UsageID = lastPathSegment(href)
		}

		invoices = append(invoices, inv)
		return true
	})

	return invoices, nil
}

// HasPDFLink reports whether the rendered list offers a PDF for id.
func HasPDFLink(html, id string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("parsing invoice list: %w", err)
	}
	return doc.Find(pdfLinkSelector(id)).Length() > 0, nil
}

func pdfLinkSelector(id string) string {
	return fmt.Sprintf(`li[id="%s"] a[href*="/pdf"]`, cssString(id))
}

// cssString escapes s for use inside a double-quoted CSS string.
func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func textOf(item *goquery.Selection, selector string) string {
	return strings.TrimSpace(item.Find(selector).First().Text())
}

func currencyFor(amount string) string {
	switch {
	case strings.Contains(amount, "€"):
		return currencyEUR
	case strings.Contains(amount, "$"):
		return currencyUSD
	default:
		return currencyEUR
	}
}

func lastPathSegment(href string) string {
	href = strings.TrimRight(strings.TrimSpace(href), "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}
