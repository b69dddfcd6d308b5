package sharing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"medical-record-store/internal/domain/records"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrSelfShare      = errors.New("cannot share with yourself")
	ErrRecordNotFound = errors.New("record not found")
)

// RecordLookup evita importar el document store completo (rompe ciclos):
// solo necesitamos owner y clock actual del record.
type RecordLookup interface {
	Get(ctx context.Context, recordID string) (*records.RecordState, error)
}

type Service struct {
	repo Repository
	recs RecordLookup
	now  func() time.Time
}

func NewService(repo Repository, recs RecordLookup) *Service {
	return &Service{
		repo: repo,
		recs: recs,
		now:  time.Now,
	}
}

// Grant crea una concesión pineada al clock actual del record. Cada grant
// es independiente: compartir de nuevo siempre crea uno nuevo con un
// snapshot fresco, nunca muta uno anterior.
func (s *Service) Grant(ctx context.Context, recordID, fromID, toID string) (Grant, error) {
	recordID = strings.TrimSpace(recordID)
	fromID = strings.TrimSpace(fromID)
	toID = strings.TrimSpace(toID)

	if recordID == "" || fromID == "" || toID == "" {
		return Grant{}, ErrInvalidInput
	}
	if fromID == toID {
		return Grant{}, ErrSelfShare
	}

	state, err := s.recs.Get(ctx, recordID)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}
	if state.OwnerID != fromID {
		return Grant{}, ErrForbidden
	}

	g := Grant{
		ID:              uuid.NewString(),
		RecordID:        recordID,
		FromID:          fromID,
		ToID:            toID,
		SnapshotVersion: state.Version.Clone(),
		GrantedAt:       s.now(),
	}

	if err := s.repo.Create(ctx, g); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// Revoke marca el grant como revocado. Monótono: una vez revocado no se
// des-revoca; re-compartir requiere un grant nuevo. Idempotente.
func (s *Service) Revoke(ctx context.Context, grantID, fromID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	fromID = strings.TrimSpace(fromID)
	if grantID == "" || fromID == "" {
		return Grant{}, ErrInvalidInput
	}

	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return Grant{}, ErrNotFound
	}
	if g.FromID != fromID {
		return Grant{}, ErrForbidden
	}

	if g.Revoked {
		return g, nil
	}

	now := s.now()
	g.Revoked = true
	g.RevokedAt = &now

	if err := s.repo.Update(ctx, g); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// GrantsFor lista lo compartido con un usuario, más reciente primero.
func (s *Service) GrantsFor(ctx context.Context, toID string) ([]Grant, error) {
	toID = strings.TrimSpace(toID)
	if toID == "" {
		return nil, ErrInvalidInput
	}
	items, err := s.repo.ListByGrantee(ctx, toID)
	if err != nil {
		return nil, err
	}
	sortGrants(items)
	return items, nil
}

// GrantsIssuedBy lista lo que un owner compartió, más reciente primero.
func (s *Service) GrantsIssuedBy(ctx context.Context, fromID string) ([]Grant, error) {
	fromID = strings.TrimSpace(fromID)
	if fromID == "" {
		return nil, ErrInvalidInput
	}
	items, err := s.repo.ListByIssuer(ctx, fromID)
	if err != nil {
		return nil, err
	}
	sortGrants(items)
	return items, nil
}

func (s *Service) GetByID(ctx context.Context, grantID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return Grant{}, ErrInvalidInput
	}
	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func sortGrants(items []Grant) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].GrantedAt.Equal(items[j].GrantedAt) {
			return items[i].GrantedAt.After(items[j].GrantedAt)
		}
		return items[i].ID < items[j].ID
	})
}
