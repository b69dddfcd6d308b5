package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"medical-record-store/internal/domain/replicas"
)

type ReplicasRepo struct {
	db *sql.DB
}

func NewReplicasRepo(db *sql.DB) *ReplicasRepo {
	return &ReplicasRepo{db: db}
}

var _ replicas.Repository = (*ReplicasRepo)(nil)

func (r *ReplicasRepo) Create(ctx context.Context, rep replicas.Replica) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_replicas (id, owner_id, name, registered_at)
		VALUES ($1,$2,$3,$4)
	`,
		rep.ID,
		rep.OwnerID,
		rep.Name,
		rep.RegisteredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create replica: %w", err)
	}
	return nil
}

func (r *ReplicasRepo) GetByID(ctx context.Context, id string) (replicas.Replica, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, registered_at
		FROM device_replicas
		WHERE id = $1
	`, id)

	var rep replicas.Replica
	if err := row.Scan(&rep.ID, &rep.OwnerID, &rep.Name, &rep.RegisteredAt); err != nil {
		if err == sql.ErrNoRows {
			return replicas.Replica{}, ErrNotFound
		}
		return replicas.Replica{}, fmt.Errorf("get replica: %w", err)
	}
	return rep, nil
}

func (r *ReplicasRepo) ListByOwner(ctx context.Context, ownerID string) ([]replicas.Replica, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, registered_at
		FROM device_replicas
		WHERE owner_id = $1
		ORDER BY registered_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list replicas: %w", err)
	}
	defer rows.Close()

	out := make([]replicas.Replica, 0)
	for rows.Next() {
		var rep replicas.Replica
		var registeredAt time.Time
		if err := rows.Scan(&rep.ID, &rep.OwnerID, &rep.Name, &registeredAt); err != nil {
			return nil, fmt.Errorf("list replicas: scan: %w", err)
		}
		rep.RegisteredAt = registeredAt
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list replicas: iterate: %w", err)
	}
	return out, nil
}
