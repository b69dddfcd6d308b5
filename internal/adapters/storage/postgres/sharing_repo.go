package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/domain/sharing"
)

type SharingRepo struct {
	db *sql.DB
}

func NewSharingRepo(db *sql.DB) *SharingRepo {
	return &SharingRepo{db: db}
}

var _ sharing.Repository = (*SharingRepo)(nil)

func (r *SharingRepo) Create(ctx context.Context, g sharing.Grant) error {
	clockJSON, err := json.Marshal(g.SnapshotVersion)
	if err != nil {
		return fmt.Errorf("create grant: marshal clock: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sharing_grants (
			id, record_id, from_id, to_id,
			snapshot_version, granted_at, revoked, revoked_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		g.ID,
		g.RecordID,
		g.FromID,
		g.ToID,
		clockJSON,
		g.GrantedAt.UTC(),
		g.Revoked,
		toNullTime(g.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

func (r *SharingRepo) Update(ctx context.Context, g sharing.Grant) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sharing_grants
		SET revoked = $2, revoked_at = $3
		WHERE id = $1
	`,
		g.ID,
		g.Revoked,
		toNullTime(g.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("update grant: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SharingRepo) GetByID(ctx context.Context, id string) (sharing.Grant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, record_id, from_id, to_id, snapshot_version, granted_at, revoked, revoked_at
		FROM sharing_grants
		WHERE id = $1
	`, id)

	g, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return sharing.Grant{}, ErrNotFound
	}
	return g, err
}

func (r *SharingRepo) ListByGrantee(ctx context.Context, toID string) ([]sharing.Grant, error) {
	return r.list(ctx, `
		SELECT id, record_id, from_id, to_id, snapshot_version, granted_at, revoked, revoked_at
		FROM sharing_grants
		WHERE to_id = $1
		ORDER BY granted_at DESC, id ASC
	`, toID)
}

func (r *SharingRepo) ListByIssuer(ctx context.Context, fromID string) ([]sharing.Grant, error) {
	return r.list(ctx, `
		SELECT id, record_id, from_id, to_id, snapshot_version, granted_at, revoked, revoked_at
		FROM sharing_grants
		WHERE from_id = $1
		ORDER BY granted_at DESC, id ASC
	`, fromID)
}

func (r *SharingRepo) list(ctx context.Context, query, arg string) ([]sharing.Grant, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	out := make([]sharing.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list grants: iterate: %w", err)
	}
	return out, nil
}

func scanGrant(row interface{ Scan(...any) error }) (sharing.Grant, error) {
	var g sharing.Grant
	var clockJSON []byte
	var revokedAt sql.NullTime

	if err := row.Scan(
		&g.ID,
		&g.RecordID,
		&g.FromID,
		&g.ToID,
		&clockJSON,
		&g.GrantedAt,
		&g.Revoked,
		&revokedAt,
	); err != nil {
		return sharing.Grant{}, err
	}

	g.SnapshotVersion = records.NewClock()
	if err := json.Unmarshal(clockJSON, &g.SnapshotVersion); err != nil {
		return sharing.Grant{}, fmt.Errorf("scan grant: clock: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		g.RevokedAt = &t
	}
	return g, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
