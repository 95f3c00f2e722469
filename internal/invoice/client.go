package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hetzner-invoices/internal/api"
	"hetzner-invoices/internal/auth"
	"hetzner-invoices/internal/browser"
	"hetzner-invoices/internal/config"
)

const (
	navigateTimeout = 30 * time.Second
	listTimeout     = 10 * time.Second
	downloadTimeout = 60 * time.Second

	// lookupWindow is how many list entries GetInvoice searches.
	lookupWindow = 100
	maxPerPage   = 50
)

// SessionFactory starts a browser session. The client calls it at most
// once, on the first operation that needs the portal.
type SessionFactory func(ctx context.Context) (browser.Session, error)

// UsageFetcher downloads usage CSVs with browser cookies. *api.Client
// implements it.
type UsageFetcher interface {
	FetchUsageCSV(ctx context.Context, usageID, customerNumber string, cookies []browser.Cookie) (string, error)
}

// Client is the entry point for every invoice operation. It owns one
// browser session, started and logged in lazily and reused until Close.
// A Client is not safe for concurrent use.
type Client struct {
	creds       config.Credentials
	newSession  SessionFactory
	usage       UsageFetcher
	baseURL     string
	downloadDir string
	authOpts    []auth.Option
	logger      zerolog.Logger

	session browser.Session
	page    browser.Page
}

// Option configures a Client.
type Option func(*Client)

// WithDownloadDir sets where PDFs are saved. Empty means os.TempDir().
func WithDownloadDir(dir string) Option {
	return func(c *Client) {
		c.downloadDir = dir
	}
}

func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAuthOptions passes options through to the authenticator.
func WithAuthOptions(opts ...auth.Option) Option {
	return func(c *Client) {
		c.authOpts = append(c.authOpts, opts...)
	}
}

// NewClient creates a client. Nothing is launched until the first call.
func NewClient(creds config.Credentials, newSession SessionFactory, usage UsageFetcher, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		newSession: newSession,
		usage:      usage,
		baseURL:    auth.DefaultBaseURL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRodSessionFactory launches a real browser with opts.
func NewRodSessionFactory(opts browser.Options, logger zerolog.Logger) SessionFactory {
	return func(ctx context.Context) (browser.Session, error) {
		return browser.Launch(ctx, opts, logger)
	}
}

// NewDefaultClient wires the rod browser and the usage HTTP client.
func NewDefaultClient(creds config.Credentials, browserOpts browser.Options, logger zerolog.Logger, opts ...Option) *Client {
	usage := api.NewClient(logger, api.WithUserAgent(browserOpts.UserAgent))
	return NewClient(creds, NewRodSessionFactory(browserOpts, logger), usage, logger, opts...)
}

func (c *Client) invoicesURL() string {
	return c.baseURL + "/invoice"
}

// ensureSession returns the authenticated page, starting and logging in on
// first use. A failed start or login leaves no session behind.
func (c *Client) ensureSession(ctx context.Context) (browser.Page, error) {
	if c.page != nil {
		return c.page, nil
	}

	if err := c.creds.Validate(); err != nil {
		return nil, err
	}

	session, err := c.newSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	opts := append([]auth.Option{auth.WithBaseURL(c.baseURL)}, c.authOpts...)
	authenticator := auth.NewAuthenticator(session.Page(), c.creds, c.logger, opts...)
	if err := authenticator.Login(ctx); err != nil {
		if closeErr := session.Close(); closeErr != nil {
			c.logger.Warn().Err(closeErr).Msg("Closing browser after failed login")
		}
		return nil, fmt.Errorf("logging in: %w", err)
	}

	c.session = session
	c.page = session.Page()
	return c.page, nil
}

// Close releases the browser. The next operation starts a new session.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.page = nil
	if err != nil {
		return fmt.Errorf("closing browser session: %w", err)
	}
	return nil
}

// openInvoiceList navigates to the invoice list and returns its HTML.
func (c *Client) openInvoiceList(ctx context.Context, page browser.Page) (string, error) {
	if err := page.Navigate(ctx, c.invoicesURL(), navigateTimeout); err != nil {
		return "", fmt.Errorf("opening invoice list: %w", err)
	}
	if err := page.WaitForSelector(ctx, selectorList, listTimeout); err != nil {
		return "", fmt.Errorf("waiting for invoice list: %w", err)
	}
	html, err := page.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("reading invoice list: %w", err)
	}
	return html, nil
}

// ListInvoices returns up to limit invoices in the order the portal shows
// them, newest first.
func (c *Client) ListInvoices(ctx context.Context, limit int) ([]Invoice, error) {
	page, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	html, err := c.openInvoiceList(ctx, page)
	if err != nil {
		return nil, err
	}

	invoices, err := ParseInvoiceList(html, limit)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Int("limit", limit).Int("count", len(invoices)).Msg("Listed invoices")
	return invoices, nil
}

// ListPage returns page number pageNum (1-based) of perPage invoices. The
// portal renders one list, so earlier pages are read and dropped. Pages
// end one page past the lookup window.
func (c *Client) ListPage(ctx context.Context, pageNum, perPage int) (*ListPage, error) {
	if perPage < 1 || perPage > maxPerPage {
		return nil, fmt.Errorf("%w: per_page must be between 1 and %d, got %d", ErrInvalidArgument, maxPerPage, perPage)
	}
	if maxPage := lookupWindow/perPage + 1; pageNum < 1 || pageNum > maxPage {
		return nil, fmt.Errorf("%w: page must be between 1 and %d, got %d", ErrInvalidArgument, maxPage, pageNum)
	}

	invoices, err := c.ListInvoices(ctx, pageNum*perPage)
	if err != nil {
		return nil, err
	}

	start := min(max((pageNum-1)*perPage, 0), len(invoices))
	end := min(start+perPage, len(invoices))
	invoices = invoices[start:end]

	return &ListPage{
		Invoices: invoices,
		Pagination: Pagination{
			Page:    pageNum,
			PerPage: perPage,
			Total:   len(invoices),
		},
	}, nil
}

// GetLatestInvoice returns the first invoice of the list.
func (c *Client) GetLatestInvoice(ctx context.Context) (*Invoice, error) {
	invoices, err := c.ListInvoices(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, fmt.Errorf("latest invoice: %w: no invoices listed", ErrNotFound)
	}
	return &invoices[0], nil
}

// GetInvoice finds an invoice by id among the newest 100.
func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty invoice id", ErrInvalidArgument)
	}

	invoices, err := c.ListInvoices(ctx, lookupWindow)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		if invoices[i].ID == id {
			return &invoices[i], nil
		}
	}
	return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
}

// GetInvoicePDFParsed downloads the PDF for id and parses it.
func (c *Client) GetInvoicePDFParsed(ctx context.Context, id string) (*ParsedInvoice, error) {
	data, err := c.GetInvoicePDF(ctx, id)
	if err != nil {
		return nil, err
	}
	return ParsePDF(data, id), nil
}

// GetLatestInvoiceParsed returns the newest invoice with its parsed PDF.
func (c *Client) GetLatestInvoiceParsed(ctx context.Context) (*WithParsed, error) {
	latest, err := c.GetLatestInvoice(ctx)
	if err != nil {
		return nil, err
	}

	path, err := c.DownloadInvoicePDF(ctx, latest.ID, "")
	if err != nil {
		return nil, err
	}
	data, err := readPDF(path)
	if err != nil {
		return nil, err
	}

	latest.PDFPath = path
	return &WithParsed{Invoice: *latest, Parsed: ParsePDF(data, latest.ID)}, nil
}

// GetInvoiceCSV fetches the raw usage CSV for usageID. A missing customer
// number fails before the browser is touched.
func (c *Client) GetInvoiceCSV(ctx context.Context, usageID string) (string, error) {
	if c.creds.CustomerNumber == "" {
		return "", fmt.Errorf("%w: HETZNER_CUSTOMER_NUMBER must be set to fetch usage data", config.ErrConfiguration)
	}
	if strings.TrimSpace(usageID) == "" {
		return "", fmt.Errorf("%w: empty usage id", ErrInvalidArgument)
	}

	page, err := c.ensureSession(ctx)
	if err != nil {
		return "", err
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return "", fmt.Errorf("reading browser cookies: %w", err)
	}

	return c.usage.FetchUsageCSV(ctx, usageID, c.creds.CustomerNumber, cookies)
}

// GetInvoiceDetails fetches and decodes the usage CSV for usageID.
func (c *Client) GetInvoiceDetails(ctx context.Context, usageID string) (*UsageDetails, error) {
	raw, err := c.GetInvoiceCSV(ctx, usageID)
	if err != nil {
		return nil, err
	}

	table, err := api.ParseUsageCSV(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding usage CSV: %w", err)
	}

	rows := table.Rows
	if rows == nil {
		rows = []map[string]string{}
	}
	return &UsageDetails{
		UsageID:        usageID,
		CustomerNumber: c.creds.CustomerNumber,
		RowCount:       len(rows),
		Data:           rows,
		CSVRaw:         raw,
	}, nil
}

// UsageIDFor returns the usage ID linked from invoice id.
func (c *Client) UsageIDFor(ctx context.Context, id string) (string, error) {
	inv, err := c.GetInvoice(ctx, id)
	if err != nil {
		return "", err
	}
	if inv.UsageID == "" {
		return "", fmt.Errorf("usage link for invoice %s: %w", id, ErrNotFound)
	}
	return inv.UsageID, nil
}
