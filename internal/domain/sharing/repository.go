package sharing

import "context"

// Repository persiste el ledger. Create debe ser durable antes de devolver
// éxito; Update solo puede tocar Revoked/RevokedAt (el resto del grant es
// inmutable por contrato).
type Repository interface {
	Create(ctx context.Context, g Grant) error
	Update(ctx context.Context, g Grant) error
	GetByID(ctx context.Context, id string) (Grant, error)
	ListByGrantee(ctx context.Context, toID string) ([]Grant, error)
	ListByIssuer(ctx context.Context, fromID string) ([]Grant, error)
}
