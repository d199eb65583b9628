// Package soap talks to the registration web service over SOAP 1.1 with
// NTLM authentication.
package soap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Azure/go-ntlmssp"
	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/integrations/ubyport"
)

const (
	DefaultNamespace    = "http://tempuri.org/"
	DefaultActionPrefix = "http://tempuri.org/IWS_UBY/"

	opAvailable = "TestDostupnosti"
	opMaxBatch  = "MaximalniDelkaSeznamu"
	opCodeTable = "DejMiCiselnik"
	opSubmit    = "ZapisUbytovane"
)

type Config struct {
	URL      string
	Domain   string
	Username string
	Password string

	Namespace    string
	ActionPrefix string
	Timeout      time.Duration

	Accommodation ubyport.Accommodation
}

type Client struct {
	cfg   Config
	httpc *http.Client

	mu       sync.Mutex
	maxBatch int
}

var _ ubyport.Client = (*Client)(nil)

// New builds an NTLM-authenticating client. httpc may be nil.
func New(cfg Config, httpc *http.Client) *Client {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.ActionPrefix == "" {
		cfg.ActionPrefix = DefaultActionPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if httpc == nil {
		httpc = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: ntlmssp.Negotiator{RoundTripper: &http.Transport{}},
		}
	}
	return &Client{cfg: cfg, httpc: httpc}
}

func (c *Client) Available(ctx context.Context) (bool, error) {
	resp, _, err := call[scalarResponse](ctx, c, opAvailable, c.authOnly(opAvailable))
	if err != nil {
		return false, err
	}
	ok, err := strconv.ParseBool(strings.TrimSpace(resp.Result))
	if err != nil {
		return false, errors.Wrap(err, "parse availability")
	}
	return ok, nil
}

// MaxBatchSize is queried once per client; later calls reuse the answer.
func (c *Client) MaxBatchSize(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxBatch > 0 {
		return c.maxBatch, nil
	}

	resp, _, err := call[scalarResponse](ctx, c, opMaxBatch, c.authOnly(opMaxBatch))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(resp.Result))
	if err != nil {
		return 0, errors.Wrap(err, "parse max batch size")
	}
	if n <= 0 {
		return 0, fmt.Errorf("service advertised max batch size %d", n)
	}
	c.maxBatch = n
	return n, nil
}

func (c *Client) CodeTable(ctx context.Context, kind ubyport.CodeTableKind) ([]ubyport.CodeEntry, error) {
	body := codeTableRequest{
		XMLName:             xml.Name{Space: c.cfg.Namespace, Local: opCodeTable},
		AutentificationCode: authCode,
		CoChci:              string(kind),
	}
	resp, _, err := call[codeTableResponse](ctx, c, opCodeTable, body)
	if err != nil {
		return nil, err
	}
	entries := make([]ubyport.CodeEntry, 0, len(resp.Result.Items))
	for _, it := range resp.Result.Items {
		entries = append(entries, it.entry())
	}
	return entries, nil
}

func (c *Client) Submit(ctx context.Context, req ubyport.SubmitRequest) (ubyport.SubmitResponse, error) {
	body := submitRequest{
		XMLName:             xml.Name{Space: c.cfg.Namespace, Local: opSubmit},
		AutentificationCode: authCode,
		Seznam:              newGuestList(c.cfg.Accommodation, req.Guests, req.WantConfirmation),
	}

	resp, raw, err := call[submitResponse](ctx, c, opSubmit, body)
	if err != nil {
		return ubyport.SubmitResponse{}, err
	}

	out := ubyport.SubmitResponse{
		HeaderErrors: strings.TrimSpace(resp.Result.ChybyHlavicky),
		RecordErrors: resp.Result.ChybyZaznamu.strings(),
		Stamp:        strings.TrimSpace(resp.Result.PseudoRazitko),
		RawRequest:   raw.request,
		RawResponse:  raw.response,
	}
	if out.Confirmation, err = decodeDocument(resp.Result.DokumentPotvrzeni); err != nil {
		slog.Warn("confirmation document is not valid base64", "error", err.Error())
	}
	if out.ErrorConfirmation, err = decodeDocument(resp.Result.DokumentChybyPotvrzeni); err != nil {
		slog.Warn("error confirmation document is not valid base64", "error", err.Error())
	}
	return out, nil
}

func (c *Client) authOnly(op string) authOnly {
	return authOnly{
		XMLName:             xml.Name{Space: c.cfg.Namespace, Local: op},
		AutentificationCode: authCode,
	}
}

type exchange struct {
	request  []byte
	response []byte
}

// call posts one envelope and decodes the response element into T.
// Every failure comes back as *ubyport.TransportError.
func call[T any](ctx context.Context, c *Client, op string, body any) (*T, exchange, error) {
	var env requestEnvelope
	env.Body.Content = body

	payload, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, exchange{}, &ubyport.TransportError{Op: op, Err: errors.Wrap(err, "marshal envelope")}
	}
	payload = append([]byte(xml.Header), payload...)
	ex := exchange{request: payload}

	fail := func(err error) (*T, exchange, error) {
		return nil, ex, &ubyport.TransportError{Op: op, Request: payload, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fail(errors.Wrap(err, "new request"))
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", `"`+c.cfg.ActionPrefix+op+`"`)
	if c.cfg.Username != "" {
		user := c.cfg.Username
		if c.cfg.Domain != "" {
			user = c.cfg.Domain + `\` + user
		}
		httpReq.SetBasicAuth(user, c.cfg.Password)
	}

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return fail(errors.Wrap(err, "do request"))
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fail(errors.Wrap(err, "read response"))
	}
	ex.response = data

	var renv responseEnvelope[T]
	if err := xml.Unmarshal(data, &renv); err != nil {
		if httpResp.StatusCode/100 != 2 {
			return fail(fmt.Errorf("http %d", httpResp.StatusCode))
		}
		return fail(errors.Wrap(err, "decode response"))
	}
	if renv.Body.Fault != nil {
		return fail(renv.Body.Fault)
	}
	if httpResp.StatusCode/100 != 2 {
		return fail(fmt.Errorf("http %d", httpResp.StatusCode))
	}
	if renv.Body.Response == nil {
		return fail(errors.New("empty soap body"))
	}
	return renv.Body.Response, ex, nil
}

func decodeDocument(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
