package validator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ubysync/ubysync/internal/models"
)

var nameRe = regexp.MustCompile(`^[\p{L}\s'\-]+$`)

const (
	passportMinLen = 4
	passportMaxLen = 30
)

// Row is one input table row keyed by canonical field.
type Row struct {
	// Number is the 1-indexed source row, header row included.
	Number int
	Values map[Field]any
}

type FieldError struct {
	Field   Field
	Value   string
	Message string
}

func (e FieldError) Error() string {
	if e.Value == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %q", e.Message, e.Value)
}

// RowError collects every field problem of one row.
type RowError struct {
	Row    int
	Name   string
	Errors []FieldError
}

func (e *RowError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("row %d (%s): %s", e.Row, e.Name, strings.Join(msgs, "; "))
}

type Result struct {
	Record *models.GuestRecord
	Err    *RowError
}

func (r Result) Valid() bool { return r.Err == nil }

type Options struct {
	// CountryAliases overrides DefaultCountryAliases; keys are folded names.
	CountryAliases map[string]string
	// HomeCountry overrides DefaultHomeCountry.
	HomeCountry []string
	Location    *time.Location
}

// Validator is stateless after construction and safe for concurrent use.
type Validator struct {
	countries map[string]string
	home      map[string]struct{}
	loc       *time.Location
}

func New(opts Options) *Validator {
	countries := opts.CountryAliases
	if countries == nil {
		countries = DefaultCountryAliases
	}
	homeList := opts.HomeCountry
	if homeList == nil {
		homeList = DefaultHomeCountry
	}

	v := &Validator{
		countries: make(map[string]string, len(countries)),
		home:      make(map[string]struct{}, len(homeList)),
		loc:       opts.Location,
	}
	for k, code := range countries {
		v.countries[fold(k)] = strings.ToUpper(code)
	}
	for _, h := range homeList {
		v.home[fold(h)] = struct{}{}
	}
	if v.loc == nil {
		v.loc = time.UTC
	}
	return v
}

func Default() *Validator {
	return New(Options{})
}

// Validate checks one row and, when every rule passes, returns the normalized
// record in status NEW.
func (v *Validator) Validate(row Row) Result {
	rec := &models.GuestRecord{
		Status:      models.GuestStatusNew,
		PurposeCode: models.DefaultPurposeCode,
		SourceRow:   row.Number,
	}
	var errs []FieldError
	fail := func(f Field, raw any, msg string) {
		errs = append(errs, FieldError{Field: f, Value: cellString(raw), Message: msg})
	}

	surname := strings.TrimSpace(cellString(row.Values[FieldSurname]))
	if !validName(surname) {
		fail(FieldSurname, row.Values[FieldSurname], "invalid surname")
	}
	rec.Surname = surname

	first := strings.TrimSpace(cellString(row.Values[FieldFirstName]))
	if !validName(first) {
		fail(FieldFirstName, row.Values[FieldFirstName], "invalid first name")
	}
	rec.FirstName = first

	if bd, ok := NormalizeBirthDate(row.Values[FieldBirthDate]); ok {
		rec.BirthDate = bd
	} else {
		fail(FieldBirthDate, row.Values[FieldBirthDate], "invalid birth date (DDMMYYYY, 0000YYYY or 00MMYYYY)")
	}

	passport := strings.ToUpper(strings.TrimSpace(cellString(row.Values[FieldPassport])))
	if n := utf8.RuneCountInString(passport); n < passportMinLen || n > passportMaxLen {
		fail(FieldPassport, row.Values[FieldPassport], fmt.Sprintf("invalid passport number (%d-%d characters)", passportMinLen, passportMaxLen))
	}
	rec.PassportNumber = passport

	if code, msg := v.normalizeNationality(cellString(row.Values[FieldNationality])); msg != "" {
		fail(FieldNationality, row.Values[FieldNationality], msg)
	} else {
		rec.Nationality = code
	}

	if t, ok := ParseStayDate(row.Values[FieldArrival], v.loc); ok {
		rec.ArrivalAt = t
	} else {
		fail(FieldArrival, row.Values[FieldArrival], "invalid arrival date")
	}
	if t, ok := ParseStayDate(row.Values[FieldDeparture], v.loc); ok {
		rec.DepartureAt = t
	} else {
		fail(FieldDeparture, row.Values[FieldDeparture], "invalid departure date")
	}

	rec.VisaNumber = optional(row.Values[FieldVisa])
	rec.HomeAddress = optional(row.Values[FieldHomeAddress])
	rec.Note = optional(row.Values[FieldNote])

	if raw, ok := row.Values[FieldPurpose]; ok && strings.TrimSpace(cellString(raw)) != "" {
		p, err := strconv.Atoi(strings.TrimSpace(cellString(raw)))
		if err != nil || p < 0 || p > 99 {
			fail(FieldPurpose, raw, "invalid purpose of stay code")
		} else {
			rec.PurposeCode = p
		}
	}

	if len(errs) > 0 {
		return Result{Err: &RowError{
			Row:    row.Number,
			Name:   strings.TrimSpace(first + " " + surname),
			Errors: errs,
		}}
	}
	return Result{Record: rec}
}

// ValidateAll runs Validate over rows, preserving order.
func (v *Validator) ValidateAll(rows []Row) ([]models.GuestRecord, []*RowError) {
	var (
		valid   []models.GuestRecord
		invalid []*RowError
	)
	for _, row := range rows {
		res := v.Validate(row)
		if res.Valid() {
			valid = append(valid, *res.Record)
			continue
		}
		invalid = append(invalid, res.Err)
	}
	return valid, invalid
}

func (v *Validator) normalizeNationality(raw string) (string, string) {
	key := fold(raw)
	if key == "" {
		return "", "missing nationality"
	}
	if _, home := v.home[key]; home {
		return "", "domestic citizens are not reported"
	}
	code := key
	if mapped, ok := v.countries[key]; ok {
		code = mapped
	}
	if _, home := v.home[code]; home {
		return "", "domestic citizens are not reported"
	}
	if !isAlpha3(code) {
		return "", "invalid nationality (expected 3-letter ISO code)"
	}
	return code, ""
}

func validName(s string) bool {
	return s != "" && nameRe.MatchString(s)
}

func optional(raw any) *string {
	s := strings.TrimSpace(cellString(raw))
	if s == "" {
		return nil
	}
	return &s
}

// cellString renders a cell value the way it appears in the sheet. Whole
// floats lose the ".0" a numeric cell would otherwise carry.
func cellString(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if !math.IsNaN(v) && v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format("02.01.2006")
	default:
		return fmt.Sprint(v)
	}
}
