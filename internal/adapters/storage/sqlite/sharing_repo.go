package sqlite

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
	store *Store
}

func NewSharingRepo(store *Store) *SharingRepo {
	return &SharingRepo{store: store}
}

var _ sharing.Repository = (*SharingRepo)(nil)

func (r *SharingRepo) Create(ctx context.Context, g sharing.Grant) error {
	clockJSON, err := json.Marshal(g.SnapshotVersion)
	if err != nil {
		return fmt.Errorf("create grant: marshal clock: %w", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO sharing_grants
		(id, record_id, from_id, to_id, snapshot_version, granted_at, revoked, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.ID,
		g.RecordID,
		g.FromID,
		g.ToID,
		string(clockJSON),
		g.GrantedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(g.Revoked),
		timePtrToString(g.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

// Update solo toca revoked/revoked_at; el resto del grant es inmutable.
func (r *SharingRepo) Update(ctx context.Context, g sharing.Grant) error {
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE sharing_grants
		SET revoked = ?, revoked_at = ?
		WHERE id = ?
	`,
		boolToInt(g.Revoked),
		timePtrToString(g.RevokedAt),
		g.ID,
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
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, record_id, from_id, to_id, snapshot_version, granted_at, revoked, revoked_at
		FROM sharing_grants
		WHERE id = ?
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
		WHERE to_id = ?
		ORDER BY granted_at DESC, id ASC
	`, toID)
}

func (r *SharingRepo) ListByIssuer(ctx context.Context, fromID string) ([]sharing.Grant, error) {
	return r.list(ctx, `
		SELECT id, record_id, from_id, to_id, snapshot_version, granted_at, revoked, revoked_at
		FROM sharing_grants
		WHERE from_id = ?
		ORDER BY granted_at DESC, id ASC
	`, fromID)
}

func (r *SharingRepo) list(ctx context.Context, query, arg string) ([]sharing.Grant, error) {
	rows, err := r.store.db.QueryContext(ctx, query, arg)
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
	var clockJSON, grantedAt string
	var revoked int
	var revokedAt sql.NullString

	if err := row.Scan(
		&g.ID,
		&g.RecordID,
		&g.FromID,
		&g.ToID,
		&clockJSON,
		&grantedAt,
		&revoked,
		&revokedAt,
	); err != nil {
		return sharing.Grant{}, err
	}

	g.SnapshotVersion = records.NewClock()
	if err := json.Unmarshal([]byte(clockJSON), &g.SnapshotVersion); err != nil {
		return sharing.Grant{}, fmt.Errorf("scan grant: clock: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, grantedAt)
	if err != nil {
		return sharing.Grant{}, fmt.Errorf("scan grant: granted_at: %w", err)
	}
	g.GrantedAt = t
	g.Revoked = revoked != 0
	if revokedAt.Valid && revokedAt.String != "" {
		rt, err := time.Parse(time.RFC3339Nano, revokedAt.String)
		if err != nil {
			return sharing.Grant{}, fmt.Errorf("scan grant: revoked_at: %w", err)
		}
		g.RevokedAt = &rt
	}
	return g, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrToString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
