package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/domain/replicas"
	"medical-record-store/internal/domain/sharing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChangeEntry(id string, seq uint64, deps records.VectorClock) records.ChangeEntry {
	e := records.ChangeEntry{
		ID:        id,
		RecordID:  "rec-1",
		ReplicaID: "phone",
		Sequence:  seq,
		Patches: map[string]records.FieldPatch{
			records.FieldName: {Op: records.OpSet, Value: records.StringValue("Ana")},
		},
		Deps:      deps,
		Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 123456789, time.UTC).Add(time.Duration(seq) * time.Second),
	}
	if seq == 1 {
		e.Kind = records.KindProfile
		e.OwnerID = "ana"
	}
	return e
}

func TestChangeLogRoundtrip(t *testing.T) {
	store := openTestStore(t)
	repo := NewChangeLogRepo(store)
	ctx := context.Background()

	e1 := testChangeEntry("e1", 1, records.NewClock())
	e2 := testChangeEntry("e2", 2, records.VectorClock{"phone": 1})

	require.NoError(t, repo.Append(ctx, e1))
	require.NoError(t, repo.Append(ctx, e2))

	got, err := repo.ListByRecord(ctx, "rec-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, e1.ID, got[0].ID)
	assert.Equal(t, e1.Kind, got[0].Kind)
	assert.Equal(t, e1.OwnerID, got[0].OwnerID)
	assert.Equal(t, e1.Patches, got[0].Patches)
	assert.True(t, got[0].Timestamp.Equal(e1.Timestamp), "timestamp con nanos debe sobrevivir el roundtrip")

	assert.Equal(t, e2.Sequence, got[1].Sequence)
	assert.True(t, got[1].Deps.Equal(records.VectorClock{"phone": 1}))
	assert.False(t, got[1].IsCreate())
}

func TestChangeLogAppendIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	repo := NewChangeLogRepo(store)
	ctx := context.Background()

	e := testChangeEntry("e1", 1, records.NewClock())
	require.NoError(t, repo.Append(ctx, e))
	// Mismo (record, replica, seq): la fila original no se toca.
	dup := e
	dup.ID = "otro-id"
	require.NoError(t, repo.Append(ctx, dup))

	got, err := repo.ListByRecord(ctx, "rec-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
}

func TestChangeLogClockAndRecordIDs(t *testing.T) {
	store := openTestStore(t)
	repo := NewChangeLogRepo(store)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, testChangeEntry("e1", 1, records.NewClock())))
	require.NoError(t, repo.Append(ctx, testChangeEntry("e2", 2, records.VectorClock{"phone": 1})))

	other := testChangeEntry("e3", 1, records.NewClock())
	other.RecordID = "rec-2"
	other.ReplicaID = "laptop"
	require.NoError(t, repo.Append(ctx, other))

	clock, err := repo.Clock(ctx, "rec-1")
	require.NoError(t, err)
	assert.True(t, clock.Equal(records.VectorClock{"phone": 2}), "clock = %v", clock)

	empty, err := repo.Clock(ctx, "rec-404")
	require.NoError(t, err)
	assert.Empty(t, empty)

	ids, err := repo.RecordIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1", "rec-2"}, ids)
}

func TestSharingGrantRoundtrip(t *testing.T) {
	store := openTestStore(t)
	repo := NewSharingRepo(store)
	ctx := context.Background()

	g := sharing.Grant{
		ID:              "g1",
		RecordID:        "rec-1",
		FromID:          "ana",
		ToID:            "bruno",
		SnapshotVersion: records.VectorClock{"phone": 3, "laptop": 1},
		GrantedAt:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, g))

	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)
	assert.True(t, got.SnapshotVersion.Equal(g.SnapshotVersion))
	assert.False(t, got.Revoked)
	assert.Nil(t, got.RevokedAt)

	// Revocación persistida.
	revokedAt := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	got.Revoked = true
	got.RevokedAt = &revokedAt
	require.NoError(t, repo.Update(ctx, got))

	after, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, after.Revoked)
	require.NotNil(t, after.RevokedAt)
	assert.True(t, after.RevokedAt.Equal(revokedAt))

	// El pin no se mueve con el update.
	assert.True(t, after.SnapshotVersion.Equal(g.SnapshotVersion))

	_, err = repo.GetByID(ctx, "g404")
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.Update(ctx, sharing.Grant{ID: "g404"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSharingListOrdering(t *testing.T) {
	store := openTestStore(t)
	repo := NewSharingRepo(store)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"g1", "g2", "g3"} {
		require.NoError(t, repo.Create(ctx, sharing.Grant{
			ID:              id,
			RecordID:        "rec-1",
			FromID:          "ana",
			ToID:            "bruno",
			SnapshotVersion: records.VectorClock{"phone": uint64(i + 1)},
			GrantedAt:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	mine, err := repo.ListByGrantee(ctx, "bruno")
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, "g3", mine[0].ID, "más reciente primero")

	issued, err := repo.ListByIssuer(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, issued, 3)

	none, err := repo.ListByGrantee(ctx, "carla")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReplicasRoundtrip(t *testing.T) {
	store := openTestStore(t)
	repo := NewReplicasRepo(store)
	ctx := context.Background()

	rep := replicas.Replica{
		ID:           "r1",
		OwnerID:      "ana",
		Name:         "pixel-de-ana",
		RegisteredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, rep))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rep.OwnerID, got.OwnerID)
	assert.Equal(t, rep.Name, got.Name)

	_, err = repo.GetByID(ctx, "r404")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := repo.ListByOwner(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := Open(path)
	require.NoError(t, err)
	repo := NewChangeLogRepo(first)
	require.NoError(t, repo.Append(context.Background(), testChangeEntry("e1", 1, records.NewClock())))
	require.NoError(t, first.Close())

	// Re-abrir el mismo archivo no pierde nada ni falla por el schema.
	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := NewChangeLogRepo(second).ListByRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
