package pgledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/models"
)

const guestColumns = `
  id, surname, first_name, birth_date, passport_number, nationality,
  arrival_at, departure_at, visa_number, home_address, purpose_code, note,
  status, last_sync_at, created_at, updated_at`

type GuestFilter struct {
	Status models.GuestStatus
	Limit  int
	Offset int
}

// FindGuest returns nil without error when no guest has the key.
func (s *Storage) FindGuest(ctx context.Context, key models.NaturalKey) (*models.GuestRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT`+guestColumns+`
FROM guest_records
WHERE passport_number = $1 AND birth_date = $2
`, key.PassportNumber, key.BirthDate)

	g, err := scanGuest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select guest by key")
	}
	return g, nil
}

func (s *Storage) GetGuest(ctx context.Context, id int64) (*models.GuestRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT`+guestColumns+`
FROM guest_records
WHERE id = $1
`, id)

	g, err := scanGuest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select guest")
	}
	return g, nil
}

// ListGuests returns guests newest first.
func (s *Storage) ListGuests(ctx context.Context, f GuestFilter) ([]*models.GuestRecord, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	rows, err := s.db.Query(ctx, `SELECT`+guestColumns+`
FROM guest_records
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "select guests")
	}
	defer rows.Close()

	out := make([]*models.GuestRecord, 0, f.Limit)
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan guest")
		}
		out = append(out, g)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CountByStatus(ctx context.Context) (map[models.GuestStatus]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, count(*) FROM guest_records GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "count guests")
	}
	defer rows.Close()

	out := make(map[models.GuestStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		out[models.GuestStatus(status)] = n
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// RecordOutcome inserts a new guest, moves it from NEW to status and appends
// the transaction, all in one database transaction. It returns the guest id.
func (s *Storage) RecordOutcome(ctx context.Context, g *models.GuestRecord, status models.GuestStatus, txn models.SubmissionTransaction) (int64, error) {
	if !models.GuestStatusNew.CanTransition(status) {
		return 0, errors.Wrapf(ErrTransition, "NEW -> %s", status)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
INSERT INTO guest_records (
  surname, first_name, birth_date, passport_number, nationality,
  arrival_at, departure_at, visa_number, home_address, purpose_code, note,
  status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
RETURNING id
`, g.Surname, g.FirstName, g.BirthDate, g.PassportNumber, g.Nationality,
		g.ArrivalAt, g.DepartureAt, g.VisaNumber, g.HomeAddress, g.PurposeCode, g.Note,
		models.GuestStatusNew, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateKey
		}
		return 0, errors.Wrap(err, "insert guest")
	}

	tag, err := tx.Exec(ctx, `
UPDATE guest_records
SET status = $2, last_sync_at = $3, updated_at = $3
WHERE id = $1 AND status = $4
`, id, status, now, models.GuestStatusNew)
	if err != nil {
		return 0, errors.Wrap(err, "update guest status")
	}
	if tag.RowsAffected() != 1 {
		return 0, errors.Wrapf(ErrTransition, "guest %d", id)
	}

	txn.GuestID = id
	if err := insertTransaction(ctx, tx, &txn, now); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}

	g.ID = id
	g.Status = status
	g.LastSyncAt = &now
	g.CreatedAt = now
	g.UpdatedAt = now
	return id, nil
}

func scanGuest(row pgx.Row) (*models.GuestRecord, error) {
	var (
		g      models.GuestRecord
		status string
	)
	if err := row.Scan(
		&g.ID, &g.Surname, &g.FirstName, &g.BirthDate, &g.PassportNumber, &g.Nationality,
		&g.ArrivalAt, &g.DepartureAt, &g.VisaNumber, &g.HomeAddress, &g.PurposeCode, &g.Note,
		&status, &g.LastSyncAt, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	g.Status = models.GuestStatus(status)
	return &g, nil
}
