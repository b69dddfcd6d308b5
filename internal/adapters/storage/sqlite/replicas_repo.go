package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"medical-record-store/internal/domain/replicas"
)

type ReplicasRepo struct {
	store *Store
}

func NewReplicasRepo(store *Store) *ReplicasRepo {
	return &ReplicasRepo{store: store}
}

var _ replicas.Repository = (*ReplicasRepo)(nil)

func (r *ReplicasRepo) Create(ctx context.Context, rep replicas.Replica) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO device_replicas (id, owner_id, name, registered_at)
		VALUES (?, ?, ?, ?)
	`,
		rep.ID,
		rep.OwnerID,
		rep.Name,
		rep.RegisteredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create replica: %w", err)
	}
	return nil
}

func (r *ReplicasRepo) GetByID(ctx context.Context, id string) (replicas.Replica, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, registered_at
		FROM device_replicas
		WHERE id = ?
	`, id)

	var rep replicas.Replica
	var registeredAt string
	if err := row.Scan(&rep.ID, &rep.OwnerID, &rep.Name, &registeredAt); err != nil {
		if err == sql.ErrNoRows {
			return replicas.Replica{}, ErrNotFound
		}
		return replicas.Replica{}, fmt.Errorf("get replica: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, registeredAt)
	if err != nil {
		return replicas.Replica{}, fmt.Errorf("get replica: registered_at: %w", err)
	}
	rep.RegisteredAt = t
	return rep, nil
}

func (r *ReplicasRepo) ListByOwner(ctx context.Context, ownerID string) ([]replicas.Replica, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, owner_id, name, registered_at
		FROM device_replicas
		WHERE owner_id = ?
		ORDER BY registered_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list replicas: %w", err)
	}
	defer rows.Close()

	out := make([]replicas.Replica, 0)
	for rows.Next() {
		var rep replicas.Replica
		var registeredAt string
		if err := rows.Scan(&rep.ID, &rep.OwnerID, &rep.Name, &registeredAt); err != nil {
			return nil, fmt.Errorf("list replicas: scan: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, registeredAt)
		if err != nil {
			return nil, fmt.Errorf("list replicas: registered_at: %w", err)
		}
		rep.RegisteredAt = t
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list replicas: iterate: %w", err)
	}
	return out, nil
}
