package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
)

type entryKey struct {
	replicaID string
	sequence  uint64
}

type changelogRepo struct {
	mu       sync.RWMutex
	byRecord map[string][]records.ChangeEntry
	applied  map[string]map[entryKey]struct{}
}

func NewChangeLogRepo() changelog.Repository {
	return &changelogRepo{
		byRecord: make(map[string][]records.ChangeEntry),
		applied:  make(map[string]map[entryKey]struct{}),
	}
}

func (r *changelogRepo) Append(ctx context.Context, e records.ChangeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		return errors.New("entry id required")
	}

	key := entryKey{replicaID: e.ReplicaID, sequence: e.Sequence}
	seen, ok := r.applied[e.RecordID]
	if !ok {
		seen = make(map[entryKey]struct{})
		r.applied[e.RecordID] = seen
	}
	// Re-append idempotente: la entry es inmutable, ya está.
	if _, dup := seen[key]; dup {
		return nil
	}

	seen[key] = struct{}{}
	r.byRecord[e.RecordID] = append(r.byRecord[e.RecordID], e)
	return nil
}

func (r *changelogRepo) ListByRecord(ctx context.Context, recordID string) ([]records.ChangeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.byRecord[recordID]
	out := make([]records.ChangeEntry, len(src))
	copy(out, src)
	return out, nil
}

func (r *changelogRepo) Clock(ctx context.Context, recordID string) (records.VectorClock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clock := records.NewClock()
	for _, e := range r.byRecord[recordID] {
		if e.Sequence > clock[e.ReplicaID] {
			clock[e.ReplicaID] = e.Sequence
		}
	}
	return clock, nil
}

func (r *changelogRepo) RecordIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byRecord))
	for id := range r.byRecord {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
