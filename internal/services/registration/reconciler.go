package registration

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/broker/messages"
	"github.com/ubysync/ubysync/internal/metrics"
	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/storage/pgledger"
)

// DefaultDuplicateMarkers identify a rejection for an already reported guest.
var DefaultDuplicateMarkers = []string{"duplicit"}

// RecordResult is the reconciled fate of one submitted record.
type RecordResult struct {
	Record    models.GuestRecord
	Status    models.GuestStatus
	Reason    *string
	Persisted bool
	Err       error
}

type Reconciler struct {
	ledger  Ledger
	events  EventPublisher
	markers []string
	metrics *metrics.Run
	now     func() time.Time
}

// NewReconciler accepts a nil events publisher.
func NewReconciler(ledger Ledger, events EventPublisher, m *metrics.Run) *Reconciler {
	if m == nil {
		m = metrics.NewRun()
	}
	return &Reconciler{
		ledger:  ledger,
		events:  events,
		markers: DefaultDuplicateMarkers,
		metrics: m,
		now:     time.Now,
	}
}

func (r *Reconciler) WithDuplicateMarkers(markers []string) *Reconciler {
	if len(markers) > 0 {
		r.markers = markers
	}
	return r
}

// Classify decides the terminal status of rec from the batch outcome.
func Classify(rec models.GuestRecord, out Outcome, duplicateMarkers []string) (models.GuestStatus, *string) {
	if entry, ok := out.Document.Lookup(rec.CompositeKey()); ok {
		reason := entry.Reason
		if containsAny(reason, duplicateMarkers) {
			return models.GuestStatusDuplicateError, &reason
		}
		return models.GuestStatusError, &reason
	}
	if !out.Success {
		reason := out.ErrorText()
		if reason == "" {
			return models.GuestStatusError, nil
		}
		return models.GuestStatusError, &reason
	}
	return models.GuestStatusRegistered, nil
}

func containsAny(s string, markers []string) bool {
	ls := strings.ToLower(s)
	for _, m := range markers {
		if m != "" && strings.Contains(ls, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Reconcile persists every record of the batch with its status and one
// transaction row. A record that fails to persist does not stop the others.
func (r *Reconciler) Reconcile(ctx context.Context, batchID string, batch []models.GuestRecord, out Outcome) []RecordResult {
	results := make([]RecordResult, 0, len(batch))
	for _, rec := range batch {
		status, reason := Classify(rec, out, r.markers)
		res := RecordResult{Record: rec, Status: status, Reason: reason}

		txn := models.SubmissionTransaction{
			BatchID:          batchID,
			Operation:        models.OperationRegister,
			RequestPayload:   out.RequestPayload,
			ResponsePayload:  out.ResponsePayload,
			Success:          status == models.GuestStatusRegistered,
			ErrorText:        reason,
			ConfirmationPath: out.ConfirmationPath,
		}

		g := rec
		_, err := r.ledger.RecordOutcome(ctx, &g, status, txn)
		switch {
		case errors.Is(err, pgledger.ErrDuplicateKey):
			slog.Warn("guest already stored, skipping", "row", rec.SourceRow, "passport", rec.PassportNumber)
			res.Err = err
		case err != nil:
			slog.Error("failed to persist outcome", "row", rec.SourceRow, "name", rec.FullName(), "error", err.Error())
			res.Err = err
		default:
			res.Record = g
			res.Persisted = true
			r.metrics.Outcome(string(status))
			r.logResult(res)
			r.publish(ctx, batchID, g, status, reason)
		}
		results = append(results, res)
	}
	return results
}

func (r *Reconciler) logResult(res RecordResult) {
	switch res.Status {
	case models.GuestStatusRegistered:
		slog.Info("guest registered", "name", res.Record.FullName(), "id", res.Record.ID)
	case models.GuestStatusDuplicateError:
		slog.Error("guest already registered with the service", "name", res.Record.FullName(), "id", res.Record.ID)
	default:
		reason := ""
		if res.Reason != nil {
			reason = *res.Reason
		}
		slog.Error("guest not accepted", "name", res.Record.FullName(), "id", res.Record.ID, "reason", reason)
	}
}

func (r *Reconciler) publish(ctx context.Context, batchID string, g models.GuestRecord, status models.GuestStatus, reason *string) {
	if r.events == nil {
		return
	}
	msg := messages.GuestStatusChanged{
		GuestID:   g.ID,
		Passport:  g.PassportNumber,
		BirthDate: g.BirthDate,
		Status:    string(status),
		Reason:    reason,
		BatchID:   batchID,
		ChangedAt: r.now().UTC(),
	}
	if err := r.events.PublishStatusChanged(ctx, msg); err != nil {
		slog.Warn("failed to publish status event", "guest_id", g.ID, "error", err.Error())
	}
}
