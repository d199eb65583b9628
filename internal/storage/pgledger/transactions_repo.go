package pgledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/models"
)

const transactionColumns = `
  id, guest_id, batch_id, operation, request_payload, response_payload,
  success, error_text, confirmation_path, created_at`

func insertTransaction(ctx context.Context, tx pgx.Tx, t *models.SubmissionTransaction, now time.Time) error {
	if t.Operation == "" {
		t.Operation = models.OperationRegister
	}
	err := tx.QueryRow(ctx, `
INSERT INTO submission_transactions (
  guest_id, batch_id, operation, request_payload, response_payload,
  success, error_text, confirmation_path, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id
`, t.GuestID, t.BatchID, t.Operation, t.RequestPayload, t.ResponsePayload,
		t.Success, t.ErrorText, t.ConfirmationPath, now).Scan(&t.ID)
	if err != nil {
		return errors.Wrap(err, "insert transaction")
	}
	t.CreatedAt = now
	return nil
}

// ListTransactions returns a guest's submission attempts, newest first.
func (s *Storage) ListTransactions(ctx context.Context, guestID int64) ([]*models.SubmissionTransaction, error) {
	rows, err := s.db.Query(ctx, `SELECT`+transactionColumns+`
FROM submission_transactions
WHERE guest_id = $1
ORDER BY created_at DESC, id DESC
`, guestID)
	if err != nil {
		return nil, errors.Wrap(err, "select transactions")
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*models.SubmissionTransaction, error) {
	var out []*models.SubmissionTransaction
	for rows.Next() {
		var t models.SubmissionTransaction
		if err := rows.Scan(
			&t.ID, &t.GuestID, &t.BatchID, &t.Operation, &t.RequestPayload, &t.ResponsePayload,
			&t.Success, &t.ErrorText, &t.ConfirmationPath, &t.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		out = append(out, &t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// Snapshot is a full copy of the ledger.
type Snapshot struct {
	TakenAt      time.Time                       `json:"takenAt"`
	Guests       []*models.GuestRecord           `json:"guests"`
	Transactions []*models.SubmissionTransaction `json:"transactions"`
}

// Snapshot reads both tables inside one repeatable-read transaction.
func (s *Storage) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap := &Snapshot{TakenAt: time.Now().UTC()}

	rows, err := tx.Query(ctx, `SELECT`+guestColumns+` FROM guest_records ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "select guests")
	}
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan guest")
		}
		snap.Guests = append(snap.Guests, g)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	rows, err = tx.Query(ctx, `SELECT`+transactionColumns+` FROM submission_transactions ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "select transactions")
	}
	defer rows.Close()
	if snap.Transactions, err = collectTransactions(rows); err != nil {
		return nil, err
	}
	return snap, nil
}
