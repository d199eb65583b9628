package registration

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/models"
)

// Partition is the Detector's verdict over one input.
type Partition struct {
	New []models.GuestRecord
	// Known records already have a ledger row and are skipped.
	Known []models.GuestRecord
	// Repeated records share a natural key with an earlier row of the same input.
	Repeated []models.GuestRecord
}

// Detector splits records by whether their natural key is already stored.
// Stored records are never diffed field by field.
type Detector struct {
	ledger Ledger
}

func NewDetector(ledger Ledger) *Detector {
	return &Detector{ledger: ledger}
}

func (d *Detector) Detect(ctx context.Context, records []models.GuestRecord) (Partition, error) {
	var p Partition
	seen := make(map[models.NaturalKey]int, len(records))

	for _, rec := range records {
		key := rec.NaturalKey()
		if first, ok := seen[key]; ok {
			slog.Warn("duplicate natural key in input, skipping",
				"row", rec.SourceRow, "first_row", first, "passport", rec.PassportNumber)
			p.Repeated = append(p.Repeated, rec)
			continue
		}
		seen[key] = rec.SourceRow

		existing, err := d.ledger.FindGuest(ctx, key)
		if err != nil {
			return Partition{}, errors.Wrapf(err, "lookup %s", key)
		}
		if existing != nil {
			p.Known = append(p.Known, rec)
			continue
		}
		p.New = append(p.New, rec)
	}
	return p, nil
}
