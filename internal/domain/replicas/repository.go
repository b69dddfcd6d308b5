package replicas

import "context"

type Repository interface {
	Create(ctx context.Context, r Replica) error
	GetByID(ctx context.Context, id string) (Replica, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Replica, error)
}
