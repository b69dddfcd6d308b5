package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeDirectory struct {
	owners map[string]string // replicaID -> ownerID
}

func (d *fakeDirectory) OwnerOf(ctx context.Context, replicaID string) (string, error) {
	owner, ok := d.owners[replicaID]
	if !ok {
		return "", errors.New("replica not registered")
	}
	return owner, nil
}

type fakeLog struct {
	entries map[string][]ChangeEntry
}

func (l *fakeLog) EntriesFor(ctx context.Context, recordID string) ([]ChangeEntry, error) {
	return l.entries[recordID], nil
}

var testBase = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testEntry(recordID, replicaID string, seq uint64, deps VectorClock, at time.Duration, patches map[string]FieldPatch) ChangeEntry {
	return ChangeEntry{
		ID:        fmt.Sprintf("%s-%s-%d", recordID, replicaID, seq),
		RecordID:  recordID,
		ReplicaID: replicaID,
		Sequence:  seq,
		Patches:   patches,
		Deps:      deps,
		Timestamp: testBase.Add(at),
	}
}

func createEntry(recordID, replicaID string, kind Kind, ownerID string, patches map[string]FieldPatch) ChangeEntry {
	e := testEntry(recordID, replicaID, 1, NewClock(), 0, patches)
	e.Kind = kind
	e.OwnerID = ownerID
	return e
}

func newTestStore() *Store {
	dir := &fakeDirectory{owners: map[string]string{
		"phone":  "ana",
		"laptop": "ana",
		"tablet": "bruno",
	}}
	return NewStore(dir, &fakeLog{entries: map[string][]ChangeEntry{}})
}

func set(v Value) FieldPatch { return FieldPatch{Op: OpSet, Value: v} }
func listAdd(items ...string) FieldPatch {
	return FieldPatch{Op: OpListAdd, Value: ListValue(items...)}
}
func listRemove(items ...string) FieldPatch {
	return FieldPatch{Op: OpListRemove, Value: ListValue(items...)}
}

func TestApplyCreateAndGet(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	e := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldName: set(StringValue("Ana")),
	})

	state, err := store.Apply(ctx, e)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if state.OwnerID != "ana" || state.Kind != KindProfile {
		t.Fatalf("estado inesperado: %+v", state)
	}
	if got, _ := state.Field(FieldName); got.Str != "Ana" {
		t.Fatalf("name = %q, quería Ana", got.Str)
	}
	if !state.Version.Equal(VectorClock{"phone": 1}) {
		t.Fatalf("version = %v", state.Version)
	}

	got, err := store.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(state, got); diff != "" {
		t.Fatalf("Get difiere de Apply (-want +got):\n%s", diff)
	}
}

func TestApplyDuplicateIsNoOp(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	e := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldName: set(StringValue("Ana")),
	})

	first, err := store.Apply(ctx, e)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	second, err := store.Apply(ctx, e)
	if err != nil {
		t.Fatalf("re-Apply devolvió error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("el duplicado cambió el estado (-first +second):\n%s", diff)
	}
}

func TestApplyCausalGap(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	create := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldName: set(StringValue("Ana")),
	})
	if _, err := store.Apply(ctx, create); err != nil {
		t.Fatalf("Apply create: %v", err)
	}

	// Secuencia salteada: llega phone/3 sin phone/2.
	skipped := testEntry("rec-1", "phone", 3, VectorClock{"phone": 2}, time.Second, map[string]FieldPatch{
		FieldEmail: set(StringValue("ana@example.com")),
	})
	if _, err := store.Apply(ctx, skipped); !errors.Is(err, ErrCausalGap) {
		t.Fatalf("quería ErrCausalGap, got %v", err)
	}

	// Dependencia de otra réplica que no llegó todavía.
	depGap := testEntry("rec-1", "laptop", 1, VectorClock{"phone": 2}, time.Second, map[string]FieldPatch{
		FieldEmail: set(StringValue("ana@example.com")),
	})
	if _, err := store.Apply(ctx, depGap); !errors.Is(err, ErrCausalGap) {
		t.Fatalf("quería ErrCausalGap por deps, got %v", err)
	}

	// Al llegar phone/2 la entry salteada ya puede aplicarse.
	second := testEntry("rec-1", "phone", 2, VectorClock{"phone": 1}, time.Second, map[string]FieldPatch{
		FieldBloodGroup: set(StringValue("0+")),
	})
	if _, err := store.Apply(ctx, second); err != nil {
		t.Fatalf("Apply phone/2: %v", err)
	}
	if _, err := store.Apply(ctx, skipped); err != nil {
		t.Fatalf("Apply phone/3 tras cerrar el gap: %v", err)
	}
	if _, err := store.Apply(ctx, depGap); err != nil {
		t.Fatalf("Apply laptop/1 tras cerrar el gap: %v", err)
	}
}

func TestApplyOwnershipViolation(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	create := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldName: set(StringValue("Ana")),
	})
	if _, err := store.Apply(ctx, create); err != nil {
		t.Fatalf("Apply create: %v", err)
	}

	// Réplica de otro owner intenta escribir el record de ana.
	intruder := testEntry("rec-1", "tablet", 1, VectorClock{"phone": 1}, time.Second, map[string]FieldPatch{
		FieldName: set(StringValue("Bruno")),
	})
	if _, err := store.Apply(ctx, intruder); !errors.Is(err, ErrOwnershipViolation) {
		t.Fatalf("quería ErrOwnershipViolation, got %v", err)
	}

	// Réplica no registrada.
	ghost := testEntry("rec-1", "ghost", 1, VectorClock{"phone": 1}, time.Second, map[string]FieldPatch{
		FieldName: set(StringValue("X")),
	})
	if _, err := store.Apply(ctx, ghost); !errors.Is(err, ErrOwnershipViolation) {
		t.Fatalf("quería ErrOwnershipViolation por réplica desconocida, got %v", err)
	}

	// Create cuyo owner declarado no coincide con el dueño de la réplica.
	forged := createEntry("rec-2", "phone", KindProfile, "bruno", map[string]FieldPatch{
		FieldName: set(StringValue("Bruno")),
	})
	if _, err := store.Apply(ctx, forged); !errors.Is(err, ErrOwnershipViolation) {
		t.Fatalf("quería ErrOwnershipViolation por owner declarado, got %v", err)
	}
}

func TestApplyRejectsUnknownField(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	e := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		"dosage": set(StringValue("5mg")),
	})
	if _, err := store.Apply(ctx, e); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("quería ErrInvalidInput por campo fuera de schema, got %v", err)
	}
}

// Dos réplicas editan el mismo campo escalar sin verse: gana el mayor
// (timestamp, replicaID) y el perdedor queda en el conflict history, en
// cualquier orden de aplicación.
func TestConcurrentScalarWritesConvergeInAnyOrder(t *testing.T) {
	create := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldBloodGroup: set(StringValue("0+")),
	})
	fromPhone := testEntry("rec-1", "phone", 2, VectorClock{"phone": 1}, 2*time.Second, map[string]FieldPatch{
		FieldBloodGroup: set(StringValue("A+")),
	})
	fromLaptop := testEntry("rec-1", "laptop", 1, VectorClock{"phone": 1}, time.Second, map[string]FieldPatch{
		FieldBloodGroup: set(StringValue("B-")),
	})

	orders := map[string][]ChangeEntry{
		"phone primero":  {create, fromPhone, fromLaptop},
		"laptop primero": {create, fromLaptop, fromPhone},
	}

	states := make(map[string]*RecordState, len(orders))
	for name, entries := range orders {
		store := newTestStore()
		var last *RecordState
		for _, e := range entries {
			var err error
			last, err = store.Apply(context.Background(), e)
			if err != nil {
				t.Fatalf("%s: Apply %s/%d: %v", name, e.ReplicaID, e.Sequence, err)
			}
		}
		states[name] = last
	}

	for name, state := range states {
		f := state.Fields[FieldBloodGroup]
		// fromPhone tiene el timestamp mayor: gana en ambos órdenes.
		if f.Value.Str != "A+" {
			t.Fatalf("%s: blood_group = %q, quería A+", name, f.Value.Str)
		}
		if f.WriterID != "phone" || f.WriterSeq != 2 {
			t.Fatalf("%s: writer = %s/%d", name, f.WriterID, f.WriterSeq)
		}
		if len(f.ConflictHistory) != 1 || f.ConflictHistory[0].Value.Str != "B-" {
			t.Fatalf("%s: conflict history inesperado: %+v", name, f.ConflictHistory)
		}
		if !state.Version.Equal(VectorClock{"phone": 2, "laptop": 1}) {
			t.Fatalf("%s: version = %v", name, state.Version)
		}
	}
}

// Altas concurrentes en un campo lista se unen: no se pierde lo agregado
// en otro device.
func TestConcurrentListWritesUnion(t *testing.T) {
	create := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldAllergies: set(ListValue("pollen")),
	})
	fromPhone := testEntry("rec-1", "phone", 2, VectorClock{"phone": 1}, time.Second, map[string]FieldPatch{
		FieldAllergies: set(ListValue("pollen", "penicillin")),
	})
	fromLaptop := testEntry("rec-1", "laptop", 1, VectorClock{"phone": 1}, 2*time.Second, map[string]FieldPatch{
		FieldAllergies: set(ListValue("pollen", "peanuts")),
	})

	orders := map[string][]ChangeEntry{
		"phone primero":  {create, fromPhone, fromLaptop},
		"laptop primero": {create, fromLaptop, fromPhone},
	}

	for name, entries := range orders {
		store := newTestStore()
		var last *RecordState
		for _, e := range entries {
			var err error
			last, err = store.Apply(context.Background(), e)
			if err != nil {
				t.Fatalf("%s: Apply %s/%d: %v", name, e.ReplicaID, e.Sequence, err)
			}
		}

		got := append([]string(nil), last.Fields[FieldAllergies].Value.List...)
		sort.Strings(got)
		want := []string{"peanuts", "penicillin", "pollen"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s: union (-want +got):\n%s", name, diff)
		}
	}
}

// Una baja concurrente con un alta no borra lo que nunca vio (add-wins).
func TestConcurrentListRemoveKeepsUnseenAdd(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	create := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldAllergies: set(ListValue("pollen")),
	})
	addPeanuts := testEntry("rec-1", "phone", 2, VectorClock{"phone": 1}, time.Second, map[string]FieldPatch{
		FieldAllergies: listAdd("peanuts"),
	})
	// laptop solo vio phone/1: su remove es concurrente con el alta.
	removeAll := testEntry("rec-1", "laptop", 1, VectorClock{"phone": 1}, 2*time.Second, map[string]FieldPatch{
		FieldAllergies: listRemove("pollen", "peanuts"),
	})

	for _, e := range []ChangeEntry{create, addPeanuts, removeAll} {
		if _, err := store.Apply(ctx, e); err != nil {
			t.Fatalf("Apply %s/%d: %v", e.ReplicaID, e.Sequence, err)
		}
	}

	state, err := store.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got := state.Fields[FieldAllergies].Value.List
	if diff := cmp.Diff([]string{"pollen", "peanuts"}, got); diff != "" {
		t.Fatalf("el remove concurrente no debía tocar nada (-want +got):\n%s", diff)
	}

	// Un remove que sí vio el alta la borra de verdad.
	removeSeen := testEntry("rec-1", "laptop", 2, VectorClock{"phone": 2, "laptop": 1}, 3*time.Second, map[string]FieldPatch{
		FieldAllergies: listRemove("peanuts"),
	})
	if _, err := store.Apply(ctx, removeSeen); err != nil {
		t.Fatalf("Apply remove causal: %v", err)
	}
	state, _ = store.Get(ctx, "rec-1")
	got = state.Fields[FieldAllergies].Value.List
	if diff := cmp.Diff([]string{"pollen"}, got); diff != "" {
		t.Fatalf("remove causal (-want +got):\n%s", diff)
	}
}

func TestTombstoneSurvivesConcurrentEdits(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	create := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldName: set(StringValue("Ana")),
	})
	tombstone := testEntry("rec-1", "phone", 2, VectorClock{"phone": 1}, time.Second, map[string]FieldPatch{
		FieldName: {Op: OpTombstone},
	})
	// Edición concurrente al borrado: no lo revive.
	concurrentEdit := testEntry("rec-1", "laptop", 1, VectorClock{"phone": 1}, 2*time.Second, map[string]FieldPatch{
		FieldEmail: set(StringValue("ana@example.com")),
	})

	for _, e := range []ChangeEntry{create, tombstone, concurrentEdit} {
		if _, err := store.Apply(ctx, e); err != nil {
			t.Fatalf("Apply %s/%d: %v", e.ReplicaID, e.Sequence, err)
		}
	}

	state, err := store.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !state.Tombstoned {
		t.Fatal("el tombstone no debe perderse por una edición concurrente")
	}
	// El contenido sigue legible para auditoría.
	if got, _ := state.Field(FieldEmail); got.Str != "ana@example.com" {
		t.Fatalf("email = %q", got.Str)
	}
}

func TestMaterializePinnedSnapshot(t *testing.T) {
	create := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldName: set(StringValue("Ana")),
	})
	second := testEntry("rec-1", "phone", 2, VectorClock{"phone": 1}, time.Second, map[string]FieldPatch{
		FieldName: set(StringValue("Ana María")),
	})
	third := testEntry("rec-1", "laptop", 1, VectorClock{"phone": 2}, 2*time.Second, map[string]FieldPatch{
		FieldEmail: set(StringValue("ana@example.com")),
	})

	dir := &fakeDirectory{owners: map[string]string{"phone": "ana", "laptop": "ana"}}
	log := &fakeLog{entries: map[string][]ChangeEntry{
		// Orden de llegada arbitrario: Replay ordena causalmente.
		"rec-1": {third, create, second},
	}}
	store := NewStore(dir, log)
	ctx := context.Background()

	pinned, err := store.Materialize(ctx, "rec-1", VectorClock{"phone": 2})
	if err != nil {
		t.Fatalf("Materialize pineado: %v", err)
	}
	if got, _ := pinned.Field(FieldName); got.Str != "Ana María" {
		t.Fatalf("name pineado = %q", got.Str)
	}
	if _, ok := pinned.Field(FieldEmail); ok {
		t.Fatal("el snapshot pineado no debe incluir laptop/1")
	}
	if !pinned.Version.Equal(VectorClock{"phone": 2}) {
		t.Fatalf("version pineada = %v", pinned.Version)
	}

	full, err := store.Materialize(ctx, "rec-1", nil)
	if err != nil {
		t.Fatalf("Materialize completo: %v", err)
	}
	if got, _ := full.Field(FieldEmail); got.Str != "ana@example.com" {
		t.Fatalf("email completo = %q", got.Str)
	}
}

func TestWarmRehydratesFromLog(t *testing.T) {
	create := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldName: set(StringValue("Ana")),
	})
	dir := &fakeDirectory{owners: map[string]string{"phone": "ana"}}
	log := &fakeLog{entries: map[string][]ChangeEntry{"rec-1": {create}}}
	store := NewStore(dir, log)
	ctx := context.Background()

	if _, err := store.Get(ctx, "rec-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("antes de Warm quería ErrNotFound, got %v", err)
	}
	if err := store.Warm(ctx, []string{"rec-1"}); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	state, err := store.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get tras Warm: %v", err)
	}
	if got, _ := state.Field(FieldName); got.Str != "Ana" {
		t.Fatalf("name = %q", got.Str)
	}
}
