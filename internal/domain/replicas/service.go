package replicas

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("replica not found")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Register da de alta un device en el device set del owner. Lo invoca la
// capa de identidad al inicio de sesión en un device nuevo.
func (s *Service) Register(ctx context.Context, ownerID, name string) (Replica, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Replica{}, ErrInvalidInput
	}

	r := Replica{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Name:         strings.TrimSpace(name),
		RegisteredAt: s.now(),
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return Replica{}, err
	}
	return r, nil
}

// OwnerOf implementa records.ReplicaDirectory.
func (s *Service) OwnerOf(ctx context.Context, replicaID string) (string, error) {
	replicaID = strings.TrimSpace(replicaID)
	if replicaID == "" {
		return "", ErrInvalidInput
	}
	r, err := s.repo.GetByID(ctx, replicaID)
	if err != nil {
		return "", ErrNotFound
	}
	return r.OwnerID, nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Replica, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByOwner(ctx, ownerID)
}
