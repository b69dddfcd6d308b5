package changelog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"medical-record-store/internal/domain/records"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

// Service es el change log: la única puerta de escritura del sistema.
// Cada mutación local se vuelve una ChangeEntry inmutable con sus
// dependencias causales selladas al momento del append.
type Service struct {
	repo Repository
	dir  records.ReplicaDirectory
	now  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo Repository, dir records.ReplicaDirectory) *Service {
	return &Service{
		repo:  repo,
		dir:   dir,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor devuelve el mutex de sellado del record. Leer el frontier,
// asignar la secuencia y persistir tiene que ser exclusivo por record:
// dos appends concurrentes de la misma réplica sellarían la misma
// secuencia y el dedup del repo descartaría uno en silencio.
func (s *Service) lockFor(recordID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[recordID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[recordID] = l
	}
	return l
}

type AppendInput struct {
	RecordID  string
	ReplicaID string

	// Kind y OwnerID solo para la entry de creación (record nuevo).
	Kind    records.Kind
	OwnerID string

	Patches map[string]records.FieldPatch
}

// Append sella una mutación local como ChangeEntry:
//   - Deps = frontier local del record al momento de la llamada.
//   - Sequence = componente local de la réplica + 1.
//
// Toda validación (schema, ownership) corre antes de persistir: una
// entry rechazada no deja rastro durable que un replay pueda revivir.
// La entry queda durable en el repo antes de devolver éxito.
func (s *Service) Append(ctx context.Context, in AppendInput) (records.ChangeEntry, error) {
	recordID := strings.TrimSpace(in.RecordID)
	replicaID := strings.TrimSpace(in.ReplicaID)
	if recordID == "" || replicaID == "" {
		return records.ChangeEntry{}, ErrInvalidInput
	}
	if len(in.Patches) == 0 {
		return records.ChangeEntry{}, fmt.Errorf("%w: empty patch set", ErrInvalidInput)
	}

	lock := s.lockFor(recordID)
	lock.Lock()
	defer lock.Unlock()

	owner, err := s.dir.OwnerOf(ctx, replicaID)
	if err != nil || strings.TrimSpace(owner) == "" {
		return records.ChangeEntry{}, fmt.Errorf("%w: replica %s is not registered",
			records.ErrOwnershipViolation, replicaID)
	}

	frontier, err := s.repo.Clock(ctx, recordID)
	if err != nil {
		return records.ChangeEntry{}, err
	}

	e := records.ChangeEntry{
		ID:        uuid.NewString(),
		RecordID:  recordID,
		ReplicaID: replicaID,
		Sequence:  frontier.Get(replicaID) + 1,
		Patches:   in.Patches,
		Deps:      frontier,
		Timestamp: s.now().UTC(),
	}

	creating := len(frontier) == 0
	kind := in.Kind
	if creating {
		if !records.ValidKind(in.Kind) {
			return records.ChangeEntry{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, in.Kind)
		}
		if strings.TrimSpace(in.OwnerID) == "" {
			return records.ChangeEntry{}, fmt.Errorf("%w: owner required on create", ErrInvalidInput)
		}
		e.Kind = in.Kind
		e.OwnerID = strings.TrimSpace(in.OwnerID)
		if e.OwnerID != owner {
			return records.ChangeEntry{}, fmt.Errorf("%w: replica %s belongs to %s, record claims %s",
				records.ErrOwnershipViolation, replicaID, owner, e.OwnerID)
		}
	} else {
		var recOwner string
		kind, recOwner, err = s.recordMeta(ctx, recordID)
		if err != nil {
			return records.ChangeEntry{}, err
		}
		if recOwner != owner {
			return records.ChangeEntry{}, fmt.Errorf("%w: replica %s belongs to %s, record owned by %s",
				records.ErrOwnershipViolation, replicaID, owner, recOwner)
		}
	}
	if err := records.ValidatePatches(kind, e.Patches); err != nil {
		return records.ChangeEntry{}, err
	}

	if err := s.repo.Append(ctx, e); err != nil {
		return records.ChangeEntry{}, fmt.Errorf("append change entry: %w", err)
	}
	return e, nil
}

// Ingest persiste una entry remota (recibida por sync) sin re-sellarla.
// La validación de ownership corre en el store antes de llegar acá.
// Idempotente por contrato del repo.
func (s *Service) Ingest(ctx context.Context, e records.ChangeEntry) error {
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.RecordID) == "" {
		return ErrInvalidInput
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("ingest change entry: %w", err)
	}
	return nil
}

// EntriesFor devuelve el DAG causal completo del record, en orden causal
// determinístico.
func (s *Service) EntriesFor(ctx context.Context, recordID string) ([]records.ChangeEntry, error) {
	entries, err := s.repo.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return records.OrderCausal(entries, nil)
}

// EntriesSince devuelve las entries que el clock dado aún no conoce, en
// orden topológico; empates por (timestamp, replicaID) ascendente.
func (s *Service) EntriesSince(ctx context.Context, recordID string, since records.VectorClock) ([]records.ChangeEntry, error) {
	entries, err := s.repo.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if since == nil {
		since = records.NewClock()
	}
	missing := make([]records.ChangeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Sequence > since.Get(e.ReplicaID) {
			missing = append(missing, e)
		}
	}
	return records.OrderCausal(missing, since)
}

// Clock devuelve el frontier local del record.
func (s *Service) Clock(ctx context.Context, recordID string) (records.VectorClock, error) {
	return s.repo.Clock(ctx, recordID)
}

// ClockSummary devuelve el vector clock por record, el resumen que se
// intercambia al inicio de una ronda de sync.
func (s *Service) ClockSummary(ctx context.Context) (map[string]records.VectorClock, error) {
	ids, err := s.repo.RecordIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]records.VectorClock, len(ids))
	for _, id := range ids {
		clock, err := s.repo.Clock(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = clock
	}
	return out, nil
}

// recordMeta saca kind y owner de la entry de creación del record.
func (s *Service) recordMeta(ctx context.Context, recordID string) (records.Kind, string, error) {
	entries, err := s.repo.ListByRecord(ctx, recordID)
	if err != nil {
		return "", "", err
	}
	for _, e := range entries {
		if e.IsCreate() {
			return e.Kind, e.OwnerID, nil
		}
	}
	return "", "", fmt.Errorf("%w: record %s has no create entry", records.ErrNotFound, recordID)
}
