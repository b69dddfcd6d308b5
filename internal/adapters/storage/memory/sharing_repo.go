package memory

import (
	"context"
	"errors"
	"sync"

	"medical-record-store/internal/domain/sharing"
)

type sharingRepo struct {
	mu   sync.RWMutex
	byID map[string]sharing.Grant
}

func NewSharingRepo() sharing.Repository {
	return &sharingRepo{
		byID: make(map[string]sharing.Grant),
	}
}

func (r *sharingRepo) Create(ctx context.Context, g sharing.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g.ID == "" {
		return errors.New("grant id required")
	}
	if _, exists := r.byID[g.ID]; exists {
		return errors.New("grant already exists")
	}
	r.byID[g.ID] = g
	return nil
}

// Update solo persiste el flag de revocación; el resto del grant es
// inmutable y se preserva del original.
func (r *sharingRepo) Update(ctx context.Context, g sharing.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, exists := r.byID[g.ID]
	if !exists {
		return ErrNotFound
	}
	cur.Revoked = g.Revoked
	cur.RevokedAt = g.RevokedAt
	r.byID[g.ID] = cur
	return nil
}

func (r *sharingRepo) GetByID(ctx context.Context, id string) (sharing.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.byID[id]
	if !ok {
		return sharing.Grant{}, ErrNotFound
	}
	return g, nil
}

func (r *sharingRepo) ListByGrantee(ctx context.Context, toID string) ([]sharing.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]sharing.Grant, 0)
	for _, g := range r.byID {
		if g.ToID == toID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *sharingRepo) ListByIssuer(ctx context.Context, fromID string) ([]sharing.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]sharing.Grant, 0)
	for _, g := range r.byID {
		if g.FromID == fromID {
			out = append(out, g)
		}
	}
	return out, nil
}
