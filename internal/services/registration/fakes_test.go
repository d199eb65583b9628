package registration

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/ubysync/ubysync/internal/broker/messages"
	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/storage/pgledger"
	"github.com/ubysync/ubysync/internal/validator"
)

type memLedger struct {
	mu     sync.Mutex
	nextID int64
	guests map[models.NaturalKey]*models.GuestRecord
	txns   map[int64][]models.SubmissionTransaction
	fail   map[string]error
}

func newMemLedger() *memLedger {
	return &memLedger{
		guests: map[models.NaturalKey]*models.GuestRecord{},
		txns:   map[int64][]models.SubmissionTransaction{},
		fail:   map[string]error{},
	}
}

func (l *memLedger) FindGuest(ctx context.Context, key models.NaturalKey) (*models.GuestRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.guests[key]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (l *memLedger) RecordOutcome(ctx context.Context, g *models.GuestRecord, status models.GuestStatus, txn models.SubmissionTransaction) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail[g.PassportNumber]; err != nil {
		return 0, err
	}
	if _, ok := l.guests[g.NaturalKey()]; ok {
		return 0, pgledger.ErrDuplicateKey
	}
	if !models.GuestStatusNew.CanTransition(status) {
		return 0, fmt.Errorf("%w: NEW -> %s", pgledger.ErrTransition, status)
	}
	l.nextID++
	g.ID = l.nextID
	g.Status = status
	cp := *g
	l.guests[g.NaturalKey()] = &cp
	txn.GuestID = g.ID
	l.txns[g.ID] = append(l.txns[g.ID], txn)
	return g.ID, nil
}

func (l *memLedger) guest(passport, birth string) *models.GuestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.guests[models.NaturalKey{PassportNumber: passport, BirthDate: birth}]
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishStatusChanged(ctx context.Context, msg messages.GuestStatusChanged) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type fakeBackup struct {
	calls int
	err   error
	// onBackup runs inside Backup, e.g. to observe ordering.
	onBackup func()
}

func (b *fakeBackup) Backup(ctx context.Context) (string, error) {
	b.calls++
	if b.onBackup != nil {
		b.onBackup()
	}
	if b.err != nil {
		return "", b.err
	}
	return "/backups/ubysync_backup_test.json", nil
}

func row(n int, surname, first, birth, passport string) validator.Row {
	return validator.Row{Number: n, Values: map[validator.Field]any{
		validator.FieldSurname:     surname,
		validator.FieldFirstName:   first,
		validator.FieldBirthDate:   birth,
		validator.FieldPassport:    passport,
		validator.FieldNationality: "UKR",
		validator.FieldArrival:     "1.3.2025",
		validator.FieldDeparture:   "15.3.2025",
	}}
}

func record(surname, first, birth, passport string) models.GuestRecord {
	return models.GuestRecord{
		Surname: surname, FirstName: first, BirthDate: birth, PassportNumber: passport,
		Nationality: "UKR", PurposeCode: models.DefaultPurposeCode, Status: models.GuestStatusNew,
	}
}
