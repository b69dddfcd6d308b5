package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
)

type ChangeLogRepo struct {
	db *sql.DB
}

func NewChangeLogRepo(db *sql.DB) *ChangeLogRepo {
	return &ChangeLogRepo{db: db}
}

var _ changelog.Repository = (*ChangeLogRepo)(nil)

// Append es idempotente por (record_id, replica_id, seq): re-enviar una
// entry ya durable no es error.
func (r *ChangeLogRepo) Append(ctx context.Context, e records.ChangeEntry) error {
	patchesJSON, err := json.Marshal(e.Patches)
	if err != nil {
		return fmt.Errorf("append entry: marshal patches: %w", err)
	}
	depsJSON, err := json.Marshal(e.Deps)
	if err != nil {
		return fmt.Errorf("append entry: marshal deps: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO change_entries (
			id, record_id, replica_id, seq,
			kind, owner_id, patches, deps, ts
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (record_id, replica_id, seq) DO NOTHING
	`,
		e.ID,
		e.RecordID,
		e.ReplicaID,
		e.Sequence,
		string(e.Kind),
		e.OwnerID,
		patchesJSON,
		depsJSON,
		e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (r *ChangeLogRepo) ListByRecord(ctx context.Context, recordID string) ([]records.ChangeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, record_id, replica_id, seq, kind, owner_id, patches, deps, ts
		FROM change_entries
		WHERE record_id = $1
		ORDER BY seq ASC, replica_id ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := make([]records.ChangeEntry, 0)
	for rows.Next() {
		var e records.ChangeEntry
		var kind string
		var patchesJSON, depsJSON []byte

		if err := rows.Scan(
			&e.ID,
			&e.RecordID,
			&e.ReplicaID,
			&e.Sequence,
			&kind,
			&e.OwnerID,
			&patchesJSON,
			&depsJSON,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		e.Kind = records.Kind(kind)
		if err := json.Unmarshal(patchesJSON, &e.Patches); err != nil {
			return nil, fmt.Errorf("scan entry: patches: %w", err)
		}
		if err := json.Unmarshal(depsJSON, &e.Deps); err != nil {
			return nil, fmt.Errorf("scan entry: deps: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func (r *ChangeLogRepo) Clock(ctx context.Context, recordID string) (records.VectorClock, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT replica_id, MAX(seq)
		FROM change_entries
		WHERE record_id = $1
		GROUP BY replica_id
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}
	defer rows.Close()

	clock := records.NewClock()
	for rows.Next() {
		var replicaID string
		var seq uint64
		if err := rows.Scan(&replicaID, &seq); err != nil {
			return nil, fmt.Errorf("clock: scan: %w", err)
		}
		clock[replicaID] = seq
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clock: iterate: %w", err)
	}
	return clock, nil
}

func (r *ChangeLogRepo) RecordIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT record_id FROM change_entries ORDER BY record_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("record ids: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("record ids: scan: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record ids: iterate: %w", err)
	}
	return out, nil
}
