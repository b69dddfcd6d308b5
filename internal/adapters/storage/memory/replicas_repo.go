package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"medical-record-store/internal/domain/replicas"
)

type replicasRepo struct {
	mu   sync.RWMutex
	byID map[string]replicas.Replica
}

func NewReplicasRepo() replicas.Repository {
	return &replicasRepo{
		byID: make(map[string]replicas.Replica),
	}
}

func (r *replicasRepo) Create(ctx context.Context, rep replicas.Replica) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rep.ID == "" {
		return errors.New("replica id required")
	}
	if _, exists := r.byID[rep.ID]; exists {
		return errors.New("replica already exists")
	}
	r.byID[rep.ID] = rep
	return nil
}

func (r *replicasRepo) GetByID(ctx context.Context, id string) (replicas.Replica, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep, ok := r.byID[id]
	if !ok {
		return replicas.Replica{}, ErrNotFound
	}
	return rep, nil
}

func (r *replicasRepo) ListByOwner(ctx context.Context, ownerID string) ([]replicas.Replica, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]replicas.Replica, 0)
	for _, rep := range r.byID {
		if rep.OwnerID == ownerID {
			out = append(out, rep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}
