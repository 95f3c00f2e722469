package invoice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PDFFileName is the name a downloaded invoice is saved under.
func PDFFileName(id string) string {
	return fmt.Sprintf("hetzner_invoice_%s.pdf", id)
}

// DownloadInvoicePDF saves the PDF of invoice id into dir and returns the
// file path. An empty dir means the client's download dir. An existing
// file of the same name is replaced.
func (c *Client) DownloadInvoicePDF(ctx context.Context, id, dir string) (string, error) {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: invoice id %q", ErrInvalidArgument, id)
	}

	if dir == "" {
		dir = c.downloadDir
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}

	page, err := c.ensureSession(ctx)
	if err != nil {
		return "", err
	}

	html, err := c.openInvoiceList(ctx, page)
	if err != nil {
		return "", err
	}

	found, err := HasPDFLink(html, id)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("PDF for invoice %s: %w", id, ErrNotFound)
	}

	dest := filepath.Join(dir, PDFFileName(id))
	if err := page.Download(ctx, pdfLinkSelector(id), dest, downloadTimeout); err != nil {
		return "", fmt.Errorf("downloading invoice %s: %w", id, err)
	}

	c.logger.Info().Str("invoice", id).Str("path", dest).Msg("Downloaded invoice PDF")
	return dest, nil
}

// GetInvoicePDF downloads the PDF for id and returns its bytes.
func (c *Client) GetInvoicePDF(ctx context.Context, id string) ([]byte, error) {
	path, err := c.DownloadInvoicePDF(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return readPDF(path)
}

func readPDF(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading downloaded PDF: %w", err)
	}
	return data, nil
}
