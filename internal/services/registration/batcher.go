package registration

import (
	"context"
	"log/slog"

	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/models"
)

// DefaultFallbackBatchSize is used when the service does not tell its limit.
const DefaultFallbackBatchSize = 32

// BatchSize asks the service for its limit once and caps it by fallback.
func BatchSize(ctx context.Context, c ubyport.Client, fallback int) int {
	if fallback <= 0 {
		fallback = DefaultFallbackBatchSize
	}
	n, err := c.MaxBatchSize(ctx)
	if err != nil {
		slog.Warn("max batch size query failed, using fallback", "fallback", fallback, "error", err.Error())
		return fallback
	}
	if n <= 0 || n > fallback {
		return fallback
	}
	return n
}

// Split cuts records into order-preserving chunks of at most size.
func Split(records []models.GuestRecord, size int) [][]models.GuestRecord {
	if size <= 0 || len(records) == 0 {
		return nil
	}
	out := make([][]models.GuestRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end:end])
	}
	return out
}
