package changelog

import (
	"context"

	"medical-record-store/internal/domain/records"
)

// Repository es el substrato append-only del change log. Append debe ser
// durable antes de devolver éxito (write-ahead) y todo-o-nada: nunca queda
// una entry a medio escribir. Re-append de una entry ya presente es no-op.
type Repository interface {
	Append(ctx context.Context, e records.ChangeEntry) error
	ListByRecord(ctx context.Context, recordID string) ([]records.ChangeEntry, error)
	Clock(ctx context.Context, recordID string) (records.VectorClock, error)
	RecordIDs(ctx context.Context) ([]string, error)
}
