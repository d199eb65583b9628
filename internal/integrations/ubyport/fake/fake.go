// Package fake is an in-memory registration service for local runs and
// tests. Its confirmation document is plain text laid out like the real
// one, so it must be read with confirmation.PlainText.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/models"
)

type Client struct {
	mu sync.Mutex

	// Unavailable makes Available report false.
	Unavailable bool
	MaxBatch    int
	// HeaderErrors is returned verbatim with every submission.
	HeaderErrors string
	// Rejections maps a SURNAME_FIRSTNAME key to the reason printed for it.
	Rejections map[string]string
	// SubmitErr fails every submission with a transport error.
	SubmitErr error

	submissions []ubyport.SubmitRequest
	now         func() time.Time
}

func New() *Client {
	return &Client{MaxBatch: 32, Rejections: map[string]string{}, now: time.Now}
}

// Reject makes the service refuse the named guest with reason.
func (c *Client) Reject(surname, firstName, reason string) *Client {
	c.mu.Lock()
	c.Rejections[models.CompositeKey(surname, firstName)] = reason
	c.mu.Unlock()
	return c
}

// Submissions returns the requests received so far.
func (c *Client) Submissions() []ubyport.SubmitRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ubyport.SubmitRequest(nil), c.submissions...)
}

func (c *Client) Available(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.Unavailable, nil
}

func (c *Client) MaxBatchSize(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.MaxBatch, nil
}

func (c *Client) CodeTable(ctx context.Context, kind ubyport.CodeTableKind) ([]ubyport.CodeEntry, error) {
	switch kind {
	case ubyport.CodeTableCountries:
		return []ubyport.CodeEntry{
			{ID: 1, Code2: "UA", Code3: "UKR", TextCZ: "Ukrajina", TextEN: "Ukraine"},
			{ID: 2, Code2: "SK", Code3: "SVK", TextCZ: "Slovensko", TextEN: "Slovakia"},
			{ID: 3, Code2: "DE", Code3: "DEU", TextCZ: "Německo", TextEN: "Germany"},
		}, nil
	case ubyport.CodeTablePurposes:
		return []ubyport.CodeEntry{
			{ID: 1, Code2: "01", TextCZ: "Zdravotní", TextEN: "Medical"},
			{ID: 99, Code2: "99", TextCZ: "Ostatní / jiné", TextEN: "Other"},
		}, nil
	case ubyport.CodeTableErrors:
		return []ubyport.CodeEntry{
			{ID: 105, Code2: "105", TextCZ: "Neplatné číslo cestovního dokladu"},
			{ID: 210, Code2: "210", TextCZ: "Duplicitní hlášení ubytování"},
		}, nil
	}
	return nil, fmt.Errorf("unknown code table %q", kind)
}

func (c *Client) Submit(ctx context.Context, req ubyport.SubmitRequest) (ubyport.SubmitResponse, error) {
	if err := ctx.Err(); err != nil {
		return ubyport.SubmitResponse{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.submissions = append(c.submissions, req)
	raw := []byte(fmt.Sprintf(`<ZapisUbytovanych guests="%d"/>`, len(req.Guests)))
	if c.SubmitErr != nil {
		return ubyport.SubmitResponse{}, &ubyport.TransportError{Op: "ZapisUbytovanych", Request: raw, Err: c.SubmitErr}
	}

	var accepted, rejected []models.GuestRecord
	for _, g := range req.Guests {
		if _, ok := c.Rejections[g.CompositeKey()]; ok {
			rejected = append(rejected, g)
			continue
		}
		accepted = append(accepted, g)
	}

	resp := ubyport.SubmitResponse{
		HeaderErrors: c.HeaderErrors,
		Stamp:        c.now().UTC().Format("20060102150405"),
		RawRequest:   raw,
		RawResponse:  []byte("<ZapisUbytovanychResult/>"),
	}
	for _, g := range rejected {
		resp.RecordErrors = append(resp.RecordErrors, c.Rejections[g.CompositeKey()])
	}
	if req.WantConfirmation {
		resp.Confirmation = []byte(c.render(accepted, rejected))
	}
	return resp, nil
}

func (c *Client) render(accepted, rejected []models.GuestRecord) string {
	var b strings.Builder
	b.WriteString("POLICIE ČESKÉ REPUBLIKY\n")
	b.WriteString("Potvrzení o převzetí hlášení ubytování cizinců\n")
	fmt.Fprintf(&b, "Celkový počet záznamů: %d\n", len(accepted)+len(rejected))
	fmt.Fprintf(&b, "Počet přijatých záznamů: %d\n", len(accepted))
	fmt.Fprintf(&b, "Seznam nepřijatých záznamů: %d\n", len(rejected))
	if len(rejected) > 0 {
		b.WriteString("SEZNAM NEPŘIJATÝCH ZÁZNAMŮ\n")
		for i, g := range rejected {
			fmt.Fprintf(&b, "%d ERR: ------------------------------\n", i+1)
			fmt.Fprintf(&b, " %s | %s | %s | %s\n", strings.ToUpper(g.Surname), strings.ToUpper(g.FirstName), g.BirthDate, g.PassportNumber)
			fmt.Fprintf(&b, " ERR: %s\n", c.Rejections[g.CompositeKey()])
		}
	}
	b.WriteString("SEZNAM PŘIJATÝCH ZÁZNAMŮ\n")
	for i, g := range accepted {
		fmt.Fprintf(&b, "%d %s | %s | %s | %s\n", i+1, strings.ToUpper(g.Surname), strings.ToUpper(g.FirstName), g.BirthDate, g.PassportNumber)
	}
	b.WriteString("KONEC\n")
	return b.String()
}
