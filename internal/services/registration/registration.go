// Package registration runs the submission pipeline: it partitions
// validated records into new and known, submits the new ones in batches and
// reconciles every record against the service's answer.
package registration

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/broker/messages"
	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/storage/artifacts"
)

// ErrAborted is returned when the operator declines the submission.
var ErrAborted = errors.New("submission aborted by operator")

type Ledger interface {
	FindGuest(ctx context.Context, key models.NaturalKey) (*models.GuestRecord, error)
	RecordOutcome(ctx context.Context, g *models.GuestRecord, status models.GuestStatus, txn models.SubmissionTransaction) (int64, error)
}

type ArtifactStore interface {
	SaveConfirmation(kind artifacts.Kind, data []byte) (string, error)
	DumpRequest(payload []byte) (string, error)
}

type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, msg messages.GuestStatusChanged) error
}

type Backuper interface {
	Backup(ctx context.Context) (string, error)
}

// Confirmer asks the operator whether n new records should be submitted.
type Confirmer interface {
	Confirm(n int) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(n int) (bool, error)

func (f ConfirmFunc) Confirm(n int) (bool, error) { return f(n) }
