package ubyport

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/models"
)

var ErrUnavailable = errors.New("registration service unavailable")

// CodeTableKind names a code table published by the service.
type CodeTableKind string

const (
	CodeTableCountries CodeTableKind = "Staty"
	CodeTablePurposes  CodeTableKind = "UcelyPobytu"
	CodeTableErrors    CodeTableKind = "Chyby"
)

var CodeTableKinds = []CodeTableKind{CodeTableCountries, CodeTablePurposes, CodeTableErrors}

type CodeEntry struct {
	ID         int        `json:"id"`
	Code2      string     `json:"code2,omitempty"`
	Code3      string     `json:"code3,omitempty"`
	TextCZ     string     `json:"textCz,omitempty"`
	ShortCZ    string     `json:"shortCz,omitempty"`
	TextEN     string     `json:"textEn,omitempty"`
	ShortEN    string     `json:"shortEn,omitempty"`
	ValidFrom  *time.Time `json:"validFrom,omitempty"`
	ValidUntil *time.Time `json:"validUntil,omitempty"`
}

// Accommodation identifies the reporting operator and the place of stay.
// It is sent with every submission.
type Accommodation struct {
	ID                string
	Mark              string
	Name              string
	Contact           string
	District          string
	Municipality      string
	MunicipalityPart  string
	Street            string
	HouseNumber       string
	OrientationNumber string
	PostalCode        string
}

type SubmitRequest struct {
	Guests           []models.GuestRecord
	WantConfirmation bool
}

type SubmitResponse struct {
	// HeaderErrors is the raw semicolon-delimited header error text.
	HeaderErrors string
	// RecordErrors holds one semicolon-delimited string per flagged record.
	RecordErrors      []string
	Confirmation      []byte
	ErrorConfirmation []byte
	Stamp             string

	RawRequest  []byte
	RawResponse []byte
}

// Client is the call contract of the registration service.
type Client interface {
	Available(ctx context.Context) (bool, error)
	MaxBatchSize(ctx context.Context) (int, error)
	CodeTable(ctx context.Context, kind CodeTableKind) ([]CodeEntry, error)
	Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error)
}

// TransportError is returned when a call did not produce a usable response
// (network failure, timeout, SOAP fault). Request holds the outgoing payload.
type TransportError struct {
	Op      string
	Request []byte
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ubyport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
