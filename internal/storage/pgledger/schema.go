package pgledger

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS guest_records (
  id BIGSERIAL PRIMARY KEY,
  surname TEXT NOT NULL,
  first_name TEXT NOT NULL,
  birth_date CHAR(8) NOT NULL,
  passport_number TEXT NOT NULL,
  nationality CHAR(3) NOT NULL,
  arrival_at TIMESTAMPTZ NOT NULL,
  departure_at TIMESTAMPTZ NOT NULL,
  visa_number TEXT NULL,
  home_address TEXT NULL,
  purpose_code INT NOT NULL DEFAULT 99,
  note TEXT NULL,
  status TEXT NOT NULL DEFAULT 'NEW'
    CHECK (status IN ('NEW', 'REGISTERED', 'ERROR', 'DUPLICATE_ERROR')),
  last_sync_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (passport_number, birth_date)
)`,
		`CREATE INDEX IF NOT EXISTS idx_guest_records_status ON guest_records(status)`,
		`
CREATE TABLE IF NOT EXISTS submission_transactions (
  id BIGSERIAL PRIMARY KEY,
  guest_id BIGINT NOT NULL REFERENCES guest_records(id) ON DELETE CASCADE,
  batch_id TEXT NOT NULL,
  operation TEXT NOT NULL,
  request_payload TEXT NULL,
  response_payload TEXT NULL,
  success BOOLEAN NOT NULL,
  error_text TEXT NULL,
  confirmation_path TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_submission_transactions_guest_id ON submission_transactions(guest_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_submission_transactions_batch_id ON submission_transactions(batch_id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
