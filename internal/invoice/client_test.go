package invoice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hetzner-invoices/internal/auth"
	"hetzner-invoices/internal/browser"
	"hetzner-invoices/internal/browser/browsertest"
	"hetzner-invoices/internal/config"
)

const (
	testLoginURL    = auth.DefaultBaseURL + "/login"
	testInvoicesURL = auth.DefaultBaseURL + "/invoice"

	testLoginHTML = `<html><body><form>
<input name="_username"><input name="_password" type="password">
<input type="submit" value="Log in">
</form></body></html>`
)

var testCreds = config.Credentials{
	Email:          "ops@example.com",
	Password:       "hunter2",
	CustomerNumber: "K0123456789",
}

// portal is a fake browser that accepts any credentials.
type portal struct {
	page        *browsertest.Page
	sessions    []*browsertest.Session
	launches    int
	rejectLogin bool
}

func newPortal(listing string) *portal {
	p := &portal{}
	p.page = browsertest.New(map[string]string{
		testLoginURL:    testLoginHTML,
		testInvoicesURL: listing,
	})
	p.page.OnClick = func(pg *browsertest.Page, selector string) error {
		if p.rejectLogin {
			return nil
		}
		pg.SetState(auth.DefaultBaseURL+"/overview", "<html><body>Overview</body></html>")
		return nil
	}
	p.page.CookieList = []browser.Cookie{{Name: "PHPSESSID", Value: "s1"}, {Name: "cf_clearance", Value: "c2"}}
	return p
}

func (p *portal) factory(ctx context.Context) (browser.Session, error) {
	p.launches++
	s := &browsertest.Session{P: p.page}
	p.sessions = append(p.sessions, s)
	return s, nil
}

type fakeUsage struct {
	body    string
	err     error
	usageID string
	cn      string
	cookies []browser.Cookie
}

func (f *fakeUsage) FetchUsageCSV(ctx context.Context, usageID, customerNumber string, cookies []browser.Cookie) (string, error) {
	f.usageID = usageID
	f.cn = customerNumber
	f.cookies = cookies
	return f.body, f.err
}

func newTestClient(p *portal, usage UsageFetcher, creds config.Credentials, opts ...Option) *Client {
	if usage == nil {
		usage = &fakeUsage{}
	}
	return NewClient(creds, p.factory, usage, zerolog.Nop(), opts...)
}

func TestListInvoicesLogsInOnce(t *testing.T) {
	p := newPortal(listHTML)
	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	invoices, err := c.ListInvoices(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, invoices, 3)

	_, err = c.ListInvoices(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, p.launches)
	logins := 0
	for _, call := range p.page.Calls {
		if call == "navigate "+testLoginURL {
			logins++
		}
	}
	assert.Equal(t, 1, logins, "session is reused")
}

func TestMissingCredentialsNeverLaunch(t *testing.T) {
	p := newPortal(listHTML)
	c := newTestClient(p, nil, config.Credentials{Email: "ops@example.com"})

	_, err := c.ListInvoices(context.Background(), 10)
	require.ErrorIs(t, err, config.ErrConfiguration)
	assert.Zero(t, p.launches)
	assert.Empty(t, p.page.Calls)
}

func TestFailedLoginClosesSession(t *testing.T) {
	p := newPortal(listHTML)
	p.rejectLogin = true
	c := newTestClient(p, nil, testCreds)

	_, err := c.ListInvoices(context.Background(), 10)
	require.ErrorIs(t, err, auth.ErrLoginFailed)
	require.Len(t, p.sessions, 1)
	assert.Equal(t, 1, p.sessions[0].Closed)

	// Close after a failed start has nothing left to release
	require.NoError(t, c.Close())
	assert.Equal(t, 1, p.sessions[0].Closed)
}

func TestLaunchFailure(t *testing.T) {
	launchErr := errors.New("chromium not found")
	c := NewClient(testCreds, func(ctx context.Context) (browser.Session, error) {
		return nil, launchErr
	}, &fakeUsage{}, zerolog.Nop())

	_, err := c.GetLatestInvoice(context.Background())
	require.ErrorIs(t, err, launchErr)
}

func TestListWithoutContainerFails(t *testing.T) {
	p := newPortal("<html><body>Maintenance</body></html>")
	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	_, err := c.ListInvoices(context.Background(), 10)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetLatestInvoice(t *testing.T) {
	p := newPortal(listHTML)
	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	inv, err := c.GetLatestInvoice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R0020123456", inv.ID)
}

func TestGetLatestInvoiceEmpty(t *testing.T) {
	p := newPortal(`<ul class="invoice-list"></ul>`)
	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	_, err := c.GetLatestInvoice(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetInvoice(t *testing.T) {
	p := newPortal(listHTML)
	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	inv, err := c.GetInvoice(context.Background(), "R0020099999")
	require.NoError(t, err)
	assert.Equal(t, "10.00", inv.Amount)

	_, err = c.GetInvoice(context.Background(), "R0000000000")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetInvoice(context.Background(), " ")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetInvoiceSearchesNewestHundred(t *testing.T) {
	var listing strings.Builder
	listing.WriteString(`<ul class="invoice-list">`)
	for i := 1; i <= 101; i++ {
		fmt.Fprintf(&listing, `<li id="RW%03d"><span class="invoice-value">€ %d.00</span></li>`, i, i)
	}
	listing.WriteString(`</ul>`)

	p := newPortal(listing.String())
	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	inv, err := c.GetInvoice(context.Background(), "RW100")
	require.NoError(t, err)
	assert.Equal(t, "RW100", inv.ID)

	_, err = c.GetInvoice(context.Background(), "RW101")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListPageLastPageOfWindow(t *testing.T) {
	p := newPortal(listHTML)
	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	_, err := c.ListPage(context.Background(), 27, 4)
	require.ErrorIs(t, err, ErrInvalidArgument)

	got, err := c.ListPage(context.Background(), 26, 4)
	require.NoError(t, err)
	assert.Empty(t, got.Invoices)
	assert.Equal(t, 26, got.Pagination.Page)
}

func TestListPage(t *testing.T) {
	var listing strings.Builder
	listing.WriteString(`<ul class="invoice-list">`)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&listing, `<li id="R%d"><span class="invoice-value">€ %d.00</span></li>`, i, i)
	}
	listing.WriteString(`</ul>`)

	p := newPortal(listing.String())
	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	tests := []struct {
		name    string
		page    int
		perPage int
		want    []string
	}{
		{"first page", 1, 2, []string{"R1", "R2"}},
		{"second page", 2, 2, []string{"R3", "R4"}},
		{"partial last page", 3, 2, []string{"R5"}},
		{"past the end", 4, 2, []string{}},
		{"everything", 1, 50, []string{"R1", "R2", "R3", "R4", "R5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ListPage(context.Background(), tt.page, tt.perPage)
			require.NoError(t, err)

			ids := []string{}
			for _, inv := range got.Invoices {
				ids = append(ids, inv.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, Pagination{Page: tt.page, PerPage: tt.perPage, Total: len(tt.want)}, got.Pagination)
		})
	}
}

func TestListPageValidation(t *testing.T) {
	p := newPortal(listHTML)
	c := newTestClient(p, nil, testCreds)

	for _, args := range [][2]int{{0, 10}, {1, 0}, {1, 51}, {1 << 62, 4}, {27, 4}, {-1 << 62, 4}} {
		_, err := c.ListPage(context.Background(), args[0], args[1])
		require.ErrorIs(t, err, ErrInvalidArgument, "page=%d per_page=%d", args[0], args[1])
	}
	assert.Zero(t, p.launches)
}

func TestDownloadInvoicePDF(t *testing.T) {
	p := newPortal(listHTML)
	p.page.DownloadData = []byte("%PDF-1.4 fake")
	dir := filepath.Join(t.TempDir(), "nested", "pdfs")

	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	path, err := c.DownloadInvoicePDF(context.Background(), "R0020123456", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "hetzner_invoice_R0020123456.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))
	assert.True(t, p.page.Called(`download li[id="R0020123456"] a[href*="/pdf"]`))
}

func TestDownloadInvoicePDFNotFound(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"unknown invoice", "R0000000000"},
		{"invoice without pdf link", "R0020111111"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPortal(listHTML)
			c := newTestClient(p, nil, testCreds, WithDownloadDir(t.TempDir()))
			defer c.Close()

			_, err := c.DownloadInvoicePDF(context.Background(), tt.id, "")
			require.ErrorIs(t, err, ErrNotFound)
			assert.False(t, p.page.Called("download"))
		})
	}
}

func TestDownloadRejectsPathLikeID(t *testing.T) {
	p := newPortal(listHTML)
	c := newTestClient(p, nil, testCreds)

	_, err := c.DownloadInvoicePDF(context.Background(), "../etc", t.TempDir())
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, p.launches)
}

func TestGetInvoicePDF(t *testing.T) {
	p := newPortal(listHTML)
	p.page.DownloadData = []byte("pdf-bytes")
	c := newTestClient(p, nil, testCreds, WithDownloadDir(t.TempDir()))
	defer c.Close()

	data, err := c.GetInvoicePDF(context.Background(), "R0020123456")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), data)

	parsed, err := c.GetInvoicePDFParsed(context.Background(), "R0020123456")
	require.NoError(t, err)
	assert.Equal(t, "R0020123456", parsed.InvoiceID)
	assert.NotEmpty(t, parsed.ExtractError, "fake bytes are not a PDF")
}

func TestGetLatestInvoiceParsed(t *testing.T) {
	p := newPortal(listHTML)
	p.page.DownloadData = buildPDF([]string{"Invoice No: 4711 ", "Total: 23.80 "})
	dir := t.TempDir()
	c := newTestClient(p, nil, testCreds, WithDownloadDir(dir))
	defer c.Close()

	got, err := c.GetLatestInvoiceParsed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R0020123456", got.ID)
	assert.Equal(t, filepath.Join(dir, "hetzner_invoice_R0020123456.pdf"), got.PDFPath)
	require.NotNil(t, got.Parsed)
	assert.Equal(t, "4711", got.Parsed.InvoiceNumber)
	assert.Equal(t, "23.80", got.Parsed.Total)
}

func TestGetInvoiceDetails(t *testing.T) {
	p := newPortal(listHTML)
	usage := &fakeUsage{body: "Type,Total\nServer,5.39\nVolume,0.44\n"}
	c := newTestClient(p, usage, testCreds)
	defer c.Close()

	details, err := c.GetInvoiceDetails(context.Background(), "7b65bc9a")
	require.NoError(t, err)

	assert.Equal(t, "7b65bc9a", details.UsageID)
	assert.Equal(t, "K0123456789", details.CustomerNumber)
	assert.Equal(t, 2, details.RowCount)
	assert.Equal(t, "Server", details.Data[0]["Type"])
	assert.Equal(t, usage.body, details.CSVRaw)

	assert.Equal(t, "7b65bc9a", usage.usageID)
	assert.Equal(t, "K0123456789", usage.cn)
	assert.Equal(t, "PHPSESSID=s1; cf_clearance=c2", browser.CookieHeader(usage.cookies))
}

func TestGetInvoiceCSVWithoutCustomerNumber(t *testing.T) {
	p := newPortal(listHTML)
	usage := &fakeUsage{}
	creds := testCreds
	creds.CustomerNumber = ""
	c := newTestClient(p, usage, creds)

	_, err := c.GetInvoiceDetails(context.Background(), "7b65bc9a")
	require.ErrorIs(t, err, config.ErrConfiguration)
	assert.Zero(t, p.launches)
	assert.Empty(t, usage.usageID)
}

func TestUsageIDFor(t *testing.T) {
	p := newPortal(listHTML)
	c := newTestClient(p, nil, testCreds)
	defer c.Close()

	id, err := c.UsageIDFor(context.Background(), "R0020123456")
	require.NoError(t, err)
	assert.Equal(t, "7b65bc9a-6229-4019-99f8-31ef3e0ec8c6", id)

	_, err = c.UsageIDFor(context.Background(), "R0020111111")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCloseReleasesSession(t *testing.T) {
	p := newPortal(listHTML)
	c := newTestClient(p, nil, testCreds)

	_, err := c.ListInvoices(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, p.sessions[0].Closed)

	// A new operation starts a fresh session
	_, err = c.ListInvoices(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.launches)
}
