package access

import (
	"context"
	"errors"
	"testing"

	"medical-record-store/internal/adapters/storage/memory"
	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/domain/sharing"
)

type staticDirectory map[string]string

func (d staticDirectory) OwnerOf(ctx context.Context, replicaID string) (string, error) {
	owner, ok := d[replicaID]
	if !ok {
		return "", errors.New("replica not registered")
	}
	return owner, nil
}

// fixture arma el camino completo: log + store + ledger + resolver, como
// en producción.
type fixture struct {
	log      *changelog.Service
	store    *records.Store
	sharing  *sharing.Service
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := staticDirectory{"phone": "ana"}
	log := changelog.NewService(memory.NewChangeLogRepo(), dir)
	store := records.NewStore(dir, log)
	sharingSvc := sharing.NewService(memory.NewSharingRepo(), store)
	return &fixture{
		log:      log,
		store:    store,
		sharing:  sharingSvc,
		resolver: NewResolver(sharingSvc, store),
	}
}

func (f *fixture) write(t *testing.T, in changelog.AppendInput) {
	t.Helper()
	ctx := context.Background()
	e, err := f.log.Append(ctx, in)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := f.store.Apply(ctx, e); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func setField(field, value string) map[string]records.FieldPatch {
	return map[string]records.FieldPatch{
		field: {Op: records.OpSet, Value: records.StringValue(value)},
	}
}

func TestResolveReturnsPinnedSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, changelog.AppendInput{
		RecordID: "rec-1", ReplicaID: "phone",
		Kind: records.KindProfile, OwnerID: "ana",
		Patches: setField(records.FieldName, "Ana"),
	})
	f.write(t, changelog.AppendInput{
		RecordID: "rec-1", ReplicaID: "phone",
		Patches: setField(records.FieldBloodGroup, "0+"),
	})

	g, err := f.sharing.Grant(ctx, "rec-1", "ana", "bruno")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	// El owner sigue editando después de compartir.
	f.write(t, changelog.AppendInput{
		RecordID: "rec-1", ReplicaID: "phone",
		Patches: setField(records.FieldName, "Ana María"),
	})
	f.write(t, changelog.AppendInput{
		RecordID: "rec-1", ReplicaID: "phone",
		Patches: setField(records.FieldEmail, "ana@example.com"),
	})

	snap, err := f.resolver.Resolve(ctx, "bruno", g.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// bruno ve exactamente la versión pineada, no la viva.
	if name, _ := snap.Field(records.FieldName); name.Str != "Ana" {
		t.Fatalf("name = %q, quería el valor al momento del grant", name.Str)
	}
	if _, ok := snap.Field(records.FieldEmail); ok {
		t.Fatal("el snapshot no debe incluir ediciones posteriores al grant")
	}
	if !snap.Version.Equal(records.VectorClock{"phone": 2}) {
		t.Fatalf("version = %v", snap.Version)
	}

	// El estado vivo del owner sí tiene todo.
	live, err := f.store.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if name, _ := live.Field(records.FieldName); name.Str != "Ana María" {
		t.Fatalf("estado vivo = %q", name.Str)
	}
}

func TestResolveDeniesWrongRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, changelog.AppendInput{
		RecordID: "rec-1", ReplicaID: "phone",
		Kind: records.KindProfile, OwnerID: "ana",
		Patches: setField(records.FieldName, "Ana"),
	})
	g, err := f.sharing.Grant(ctx, "rec-1", "ana", "bruno")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	if _, err := f.resolver.Resolve(ctx, "carla", g.ID); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("quería ErrAccessDenied, got %v", err)
	}
	if _, err := f.resolver.Resolve(ctx, "bruno", "no-such-grant"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("grant inexistente: quería ErrAccessDenied, got %v", err)
	}
	if _, err := f.resolver.Resolve(ctx, "", g.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("quería ErrInvalidInput, got %v", err)
	}
}

func TestResolveDeniesRevokedGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, changelog.AppendInput{
		RecordID: "rec-1", ReplicaID: "phone",
		Kind: records.KindProfile, OwnerID: "ana",
		Patches: setField(records.FieldName, "Ana"),
	})
	g, err := f.sharing.Grant(ctx, "rec-1", "ana", "bruno")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	if _, err := f.resolver.Resolve(ctx, "bruno", g.ID); err != nil {
		t.Fatalf("Resolve antes de revocar: %v", err)
	}

	if _, err := f.sharing.Revoke(ctx, g.ID, "ana"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := f.resolver.Resolve(ctx, "bruno", g.ID); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("tras revocar quería ErrAccessDenied, got %v", err)
	}

	// La revocación es por grant: uno nuevo vuelve a habilitar acceso.
	g2, err := f.sharing.Grant(ctx, "rec-1", "ana", "bruno")
	if err != nil {
		t.Fatalf("segundo Grant: %v", err)
	}
	if _, err := f.resolver.Resolve(ctx, "bruno", g2.ID); err != nil {
		t.Fatalf("Resolve con grant nuevo: %v", err)
	}
}
