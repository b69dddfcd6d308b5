package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
)

type ChangeLogRepo struct {
	store *Store
}

func NewChangeLogRepo(store *Store) *ChangeLogRepo {
	return &ChangeLogRepo{store: store}
}

var _ changelog.Repository = (*ChangeLogRepo)(nil)

// Append inserta la entry con ON CONFLICT DO NOTHING: re-append de una
// entry ya durable es no-op (el sync debe poder repetirse). El INSERT es
// una transacción implícita: o queda la fila completa o no queda nada.
func (r *ChangeLogRepo) Append(ctx context.Context, e records.ChangeEntry) error {
	patchesJSON, err := json.Marshal(e.Patches)
	if err != nil {
		return fmt.Errorf("append entry: marshal patches: %w", err)
	}
	depsJSON, err := json.Marshal(e.Deps)
	if err != nil {
		return fmt.Errorf("append entry: marshal deps: %w", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO change_entries
		(id, record_id, replica_id, seq, kind, owner_id, patches, deps, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (record_id, replica_id, seq) DO NOTHING
	`,
		e.ID,
		e.RecordID,
		e.ReplicaID,
		e.Sequence,
		string(e.Kind),
		e.OwnerID,
		string(patchesJSON),
		string(depsJSON),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// ListByRecord lee en orden determinístico (seq, replica) — el orden causal
// final lo decide records.OrderCausal, esto solo fija la salida de la query.
func (r *ChangeLogRepo) ListByRecord(ctx context.Context, recordID string) ([]records.ChangeEntry, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, record_id, replica_id, seq, kind, owner_id, patches, deps, ts
		FROM change_entries
		WHERE record_id = ?
		ORDER BY seq ASC, replica_id ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := make([]records.ChangeEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func (r *ChangeLogRepo) Clock(ctx context.Context, recordID string) (records.VectorClock, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT replica_id, MAX(seq)
		FROM change_entries
		WHERE record_id = ?
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
	rows, err := r.store.db.QueryContext(ctx, `
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

func scanEntry(rows interface{ Scan(...any) error }) (records.ChangeEntry, error) {
	var e records.ChangeEntry
	var kind, patchesJSON, depsJSON, ts string

	if err := rows.Scan(
		&e.ID,
		&e.RecordID,
		&e.ReplicaID,
		&e.Sequence,
		&kind,
		&e.OwnerID,
		&patchesJSON,
		&depsJSON,
		&ts,
	); err != nil {
		return records.ChangeEntry{}, fmt.Errorf("scan entry: %w", err)
	}

	e.Kind = records.Kind(kind)
	if err := json.Unmarshal([]byte(patchesJSON), &e.Patches); err != nil {
		return records.ChangeEntry{}, fmt.Errorf("scan entry: patches: %w", err)
	}
	if err := json.Unmarshal([]byte(depsJSON), &e.Deps); err != nil {
		return records.ChangeEntry{}, fmt.Errorf("scan entry: deps: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return records.ChangeEntry{}, fmt.Errorf("scan entry: timestamp: %w", err)
	}
	e.Timestamp = parsed
	return e, nil
}
