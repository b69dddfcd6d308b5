package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/domain/sharing"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrAccessDenied cubre requester equivocado y grant revocado; no se
	// distingue hacia afuera para no filtrar existencia de grants ajenos.
	ErrAccessDenied = errors.New("access denied")
)

// GrantLookup y SnapshotSource son las dos dependencias del resolver,
// como interfaces chicas para no acoplar paquetes.
type GrantLookup interface {
	GetByID(ctx context.Context, grantID string) (sharing.Grant, error)
}

type SnapshotSource interface {
	Materialize(ctx context.Context, recordID string, upTo records.VectorClock) (*records.RecordState, error)
}

// Resolver decide si un requester puede leer via un grant, y qué snapshot
// recibe: siempre la versión pineada al momento del grant, nunca la viva.
type Resolver struct {
	grants GrantLookup
	source SnapshotSource
}

func NewResolver(grants GrantLookup, source SnapshotSource) *Resolver {
	return &Resolver{grants: grants, source: source}
}

func (r *Resolver) Resolve(ctx context.Context, requesterID, grantID string) (*records.RecordState, error) {
	requesterID = strings.TrimSpace(requesterID)
	grantID = strings.TrimSpace(grantID)
	if requesterID == "" || grantID == "" {
		return nil, ErrInvalidInput
	}

	g, err := r.grants.GetByID(ctx, grantID)
	if err != nil {
		return nil, ErrAccessDenied
	}
	if g.ToID != requesterID {
		return nil, ErrAccessDenied
	}
	if g.Revoked {
		return nil, ErrAccessDenied
	}

	snap, err := r.source.Materialize(ctx, g.RecordID, g.SnapshotVersion)
	if err != nil {
		return nil, fmt.Errorf("materialize granted snapshot: %w", err)
	}
	return snap, nil
}
