// Package export writes ledger contents to XLSX workbooks for operators.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/storage/pgledger"
)

const (
	SheetGuests       = "People"
	SheetTransactions = "Transakce"
)

var guestHeader = []any{
	"ID", "Příjmení", "Jméno", "Datum narození", "Číslo pasu", "Státní občanství",
	"Datum příjezdu", "Datum odjezdu", "Číslo víza", "Bydliště", "Účel pobytu",
	"Poznámka", "Stav", "Poslední sync", "Vytvořeno", "Aktualizováno",
}

var transactionHeader = []any{"ID", "Datum", "Host", "Operace", "Úspěch", "Chyby", "PDF"}

var registeredHeader = []any{
	"ID", "Příjmení", "Jméno", "Datum narození", "Číslo pasu", "Státní občanství",
	"Datum příjezdu", "Datum odjezdu", "Číslo víza", "Bydliště", "Účel pobytu",
	"Poznámka", "Stav", "Datum zápisu u policie", "PDF potvrzení",
}

type Exporter struct {
	dir string
	now func() time.Time
}

func New(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

// Result describes one written workbook.
type Result struct {
	Path         string
	Guests       int
	Transactions int
}

// All writes every guest (oldest first) and every transaction (newest
// first) into one workbook.
func (e *Exporter) All(snap *pgledger.Snapshot) (Result, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetGuests); err != nil {
		return Result{}, errors.Wrap(err, "rename sheet")
	}
	if err := writeRow(f, SheetGuests, 1, guestHeader); err != nil {
		return Result{}, err
	}
	names := make(map[int64]string, len(snap.Guests))
	for i, g := range snap.Guests {
		names[g.ID] = g.Surname + " " + g.FirstName
		row := []any{
			g.ID, g.Surname, g.FirstName, g.BirthDate, g.PassportNumber, g.Nationality,
			day(g.ArrivalAt), day(g.DepartureAt), deref(g.VisaNumber), deref(g.HomeAddress), g.PurposeCode,
			deref(g.Note), string(g.Status), stamp(g.LastSyncAt), stamp(&g.CreatedAt), stamp(&g.UpdatedAt),
		}
		if err := writeRow(f, SheetGuests, i+2, row); err != nil {
			return Result{}, err
		}
	}

	res := Result{Guests: len(snap.Guests), Transactions: len(snap.Transactions)}
	if len(snap.Transactions) > 0 {
		if _, err := f.NewSheet(SheetTransactions); err != nil {
			return Result{}, errors.Wrap(err, "add sheet")
		}
		if err := writeRow(f, SheetTransactions, 1, transactionHeader); err != nil {
			return Result{}, err
		}
		for i := range snap.Transactions {
			t := snap.Transactions[len(snap.Transactions)-1-i]
			row := []any{
				t.ID, stamp(&t.CreatedAt), names[t.GuestID], t.Operation, yesNo(t.Success),
				deref(t.ErrorText), baseName(t.ConfirmationPath),
			}
			if err := writeRow(f, SheetTransactions, i+2, row); err != nil {
				return Result{}, err
			}
		}
	}

	path, err := e.save(f, "export_kompletni")
	if err != nil {
		return Result{}, err
	}
	res.Path = path
	return res, nil
}

// Registered writes only guests the service accepted. It writes nothing and
// returns an empty path when there are none.
func (e *Exporter) Registered(snap *pgledger.Snapshot) (Result, error) {
	confirmed := make(map[int64]*models.SubmissionTransaction)
	for _, t := range snap.Transactions {
		if t.Success {
			if _, ok := confirmed[t.GuestID]; !ok {
				confirmed[t.GuestID] = t
			}
		}
	}

	var rows [][]any
	for _, g := range snap.Guests {
		if g.Status != models.GuestStatusRegistered {
			continue
		}
		registeredAt := g.LastSyncAt
		pdf := ""
		if t, ok := confirmed[g.ID]; ok {
			registeredAt = &t.CreatedAt
			pdf = baseName(t.ConfirmationPath)
		}
		when := ""
		if registeredAt != nil {
			when = registeredAt.Format("02.01.2006 15:04")
		}
		rows = append(rows, []any{
			g.ID, g.Surname, g.FirstName, g.BirthDate, g.PassportNumber, g.Nationality,
			g.ArrivalAt.Format("02.01.2006"), g.DepartureAt.Format("02.01.2006"),
			deref(g.VisaNumber), deref(g.HomeAddress), g.PurposeCode, deref(g.Note),
			string(g.Status), when, pdf,
		})
	}
	if len(rows) == 0 {
		return Result{}, nil
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := writeRow(f, "Sheet1", 1, registeredHeader); err != nil {
		return Result{}, err
	}
	for i, r := range rows {
		if err := writeRow(f, "Sheet1", i+2, r); err != nil {
			return Result{}, err
		}
	}
	path, err := e.save(f, "potvrzeni_policie")
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Guests: len(rows)}, nil
}

func (e *Exporter) save(f *excelize.File, prefix string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create export dir")
	}
	path := filepath.Join(e.dir, fmt.Sprintf("%s_%s.xlsx", prefix, e.now().Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", errors.Wrap(err, "save workbook")
	}
	return path, nil
}

func writeRow(f *excelize.File, sheet string, n int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return errors.Wrap(err, "cell name")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "write %s row %d", sheet, n)
	}
	return nil
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func baseName(p *string) string {
	if p == nil || *p == "" {
		return ""
	}
	return filepath.Base(*p)
}

func yesNo(b bool) string {
	if b {
		return "Ano"
	}
	return "Ne"
}
