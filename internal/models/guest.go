package models

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// GuestStatus is the lifecycle state of a reported guest.
// NEW is the only non-terminal value.
type GuestStatus string

const (
	GuestStatusNew            GuestStatus = "NEW"
	GuestStatusRegistered     GuestStatus = "REGISTERED"
	GuestStatusError          GuestStatus = "ERROR"
	GuestStatusDuplicateError GuestStatus = "DUPLICATE_ERROR"
)

const DefaultPurposeCode = 99

const OperationRegister = "REGISTER"

func (s GuestStatus) Valid() bool {
	switch s {
	case GuestStatusNew, GuestStatusRegistered, GuestStatusError, GuestStatusDuplicateError:
		return true
	}
	return false
}

func (s GuestStatus) Terminal() bool {
	return s == GuestStatusRegistered || s == GuestStatusError || s == GuestStatusDuplicateError
}

// CanTransition allows only NEW -> terminal.
func (s GuestStatus) CanTransition(to GuestStatus) bool {
	return s == GuestStatusNew && to.Terminal()
}

// NaturalKey identifies a guest across submissions.
type NaturalKey struct {
	PassportNumber string
	BirthDate      string
}

func (k NaturalKey) String() string {
	return k.PassportNumber + "|" + k.BirthDate
}

type GuestRecord struct {
	ID             int64       `json:"id"`
	Surname        string      `json:"surname"`
	FirstName      string      `json:"firstName"`
	BirthDate      string      `json:"birthDate"` // DDMMYYYY, 00 allowed for unknown parts
	PassportNumber string      `json:"passportNumber"`
	Nationality    string      `json:"nationality"`
	ArrivalAt      time.Time   `json:"arrivalAt"`
	DepartureAt    time.Time   `json:"departureAt"`
	VisaNumber     *string     `json:"visaNumber,omitempty"`
	HomeAddress    *string     `json:"homeAddress,omitempty"`
	PurposeCode    int         `json:"purposeCode"`
	Note           *string     `json:"note,omitempty"`
	Status         GuestStatus `json:"status"`
	LastSyncAt     *time.Time  `json:"lastSyncAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`

	// SourceRow is the 1-indexed input row the record came from; not persisted.
	SourceRow int `json:"-"`
}

func (g *GuestRecord) NaturalKey() NaturalKey {
	return NaturalKey{PassportNumber: g.PassportNumber, BirthDate: g.BirthDate}
}

// CompositeKey is the key the confirmation document can be matched on: it
// lists guests by name only.
func (g *GuestRecord) CompositeKey() string {
	return CompositeKey(g.Surname, g.FirstName)
}

// CompositeKey builds the uppercase SURNAME_FIRSTNAME key. Input is NFC
// normalized because extracted document text may carry decomposed accents.
func CompositeKey(surname, firstName string) string {
	s := strings.ToUpper(norm.NFC.String(strings.TrimSpace(surname)))
	f := strings.ToUpper(norm.NFC.String(strings.TrimSpace(firstName)))
	return s + "_" + f
}

func (g *GuestRecord) FullName() string {
	return g.FirstName + " " + g.Surname
}

// SubmissionTransaction is an append-only log row, one per record per batch attempt.
type SubmissionTransaction struct {
	ID               int64     `json:"id"`
	GuestID          int64     `json:"guestId"`
	BatchID          string    `json:"batchId"`
	Operation        string    `json:"operation"`
	RequestPayload   *string   `json:"requestPayload,omitempty"`
	ResponsePayload  *string   `json:"responsePayload,omitempty"`
	Success          bool      `json:"success"`
	ErrorText        *string   `json:"errorText,omitempty"`
	ConfirmationPath *string   `json:"confirmationPath,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
