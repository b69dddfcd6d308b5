package records

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ReplicaDirectory resuelve a qué owner pertenece una réplica.
// Evita importar el paquete replicas (rompe ciclos).
type ReplicaDirectory interface {
	OwnerOf(ctx context.Context, replicaID string) (string, error)
}

// LogReader da acceso de lectura al change log para materializar snapshots
// sin acoplar este paquete al servicio de log.
type LogReader interface {
	EntriesFor(ctx context.Context, recordID string) ([]ChangeEntry, error)
}

// Store es el document store: estado materializado derivado del change log,
// con merge por campo. El log sigue siendo la fuente de verdad; este estado
// es siempre re-derivable por replay.
type Store struct {
	dir ReplicaDirectory
	log LogReader

	mu     sync.RWMutex
	states map[string]*RecordState
	locks  map[string]*sync.Mutex
}

func NewStore(dir ReplicaDirectory, log LogReader) *Store {
	return &Store{
		dir:    dir,
		log:    log,
		states: make(map[string]*RecordState),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor devuelve el mutex exclusivo del record. Applies de records
// distintos corren en paralelo; para el mismo record se serializa la
// secuencia apply-y-avance-de-clock.
func (s *Store) lockFor(recordID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[recordID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[recordID] = l
	}
	return l
}

// Apply aplica una ChangeEntry al estado del record.
//   - Duplicada (replicaID, sequence ya aplicada): no-op, devuelve el
//     estado actual. El sync debe poder repetirse sin error.
//   - Dependencia faltante: ErrCausalGap; quien llama decide bufferear.
//   - Réplica fuera del device set del owner: ErrOwnershipViolation.
func (s *Store) Apply(ctx context.Context, e ChangeEntry) (*RecordState, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	lock := s.lockFor(e.RecordID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	state := s.states[e.RecordID]
	s.mu.RUnlock()

	// Idempotencia: (replicaID, sequence) ya presente => no-op.
	if state != nil && e.Sequence <= state.Version.Get(e.ReplicaID) {
		return state.Clone(), nil
	}

	applied := NewClock()
	if state != nil {
		applied = state.Version
	}
	if e.Sequence != applied.Get(e.ReplicaID)+1 {
		return nil, fmt.Errorf("%w: %s/%d arrives before %s/%d",
			ErrCausalGap, e.ReplicaID, e.Sequence, e.ReplicaID, applied.Get(e.ReplicaID)+1)
	}
	if !applied.Dominates(e.Deps) {
		return nil, fmt.Errorf("%w: entry %s/%d depends on unseen entries",
			ErrCausalGap, e.ReplicaID, e.Sequence)
	}

	owner, err := s.dir.OwnerOf(ctx, e.ReplicaID)
	if err != nil || strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("%w: replica %s is not registered", ErrOwnershipViolation, e.ReplicaID)
	}

	// Copy-on-write: el estado publicado en el map nunca se muta, así los
	// lectores pueden clonar sin tomar el lock del record.
	var work *RecordState
	if state == nil {
		if !e.IsCreate() {
			return nil, fmt.Errorf("%w: record %s has no create entry yet",
				ErrCausalGap, e.RecordID)
		}
		if e.OwnerID != owner {
			return nil, fmt.Errorf("%w: replica %s belongs to %s, record claims %s",
				ErrOwnershipViolation, e.ReplicaID, owner, e.OwnerID)
		}
		work = newRecordState(e.RecordID, e.OwnerID, e.Kind)
	} else {
		if state.OwnerID != owner {
			return nil, fmt.Errorf("%w: replica %s belongs to %s, record owned by %s",
				ErrOwnershipViolation, e.ReplicaID, owner, state.OwnerID)
		}
		work = state.Clone()
	}

	if err := ValidatePatches(work.Kind, e.Patches); err != nil {
		return nil, err
	}

	applyEntry(work, e)

	s.mu.Lock()
	s.states[e.RecordID] = work
	s.mu.Unlock()

	return work.Clone(), nil
}

// Get devuelve el estado actual del record (snapshot read-only).
func (s *Store) Get(ctx context.Context, recordID string) (*RecordState, error) {
	s.mu.RLock()
	state := s.states[recordID]
	s.mu.RUnlock()

	if state == nil {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

// Materialize reconstruye el snapshot del record al vector clock dado,
// re-jugando el log desde vacío. Con upTo nil devuelve el estado completo.
// Es el camino que usan los grants: siempre la versión pineada, nunca la
// viva.
func (s *Store) Materialize(ctx context.Context, recordID string, upTo VectorClock) (*RecordState, error) {
	entries, err := s.log.EntriesFor(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return Replay(entries, upTo)
}

// Clock devuelve el vector clock actual del record (vacío si no existe).
func (s *Store) Clock(ctx context.Context, recordID string) VectorClock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state := s.states[recordID]; state != nil {
		return state.Version.Clone()
	}
	return NewClock()
}

// Warm rehidrata el estado materializado desde el log durable (arranque
// de proceso). El log es la fuente de verdad; esto solo re-deriva.
func (s *Store) Warm(ctx context.Context, recordIDs []string) error {
	for _, id := range recordIDs {
		state, err := s.Materialize(ctx, id, nil)
		if err != nil {
			return fmt.Errorf("warm %s: %w", id, err)
		}
		s.mu.Lock()
		s.states[id] = state
		s.mu.Unlock()
	}
	return nil
}

// ListByOwner devuelve los records del owner, tombstoned incluidos,
// ordenados por recordID para salida estable.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) []*RecordState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*RecordState, 0)
	for _, state := range s.states {
		if state.OwnerID == ownerID {
			out = append(out, state.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out
}

func validateEntry(e ChangeEntry) error {
	if strings.TrimSpace(e.RecordID) == "" || strings.TrimSpace(e.ReplicaID) == "" {
		return fmt.Errorf("%w: record and replica ids required", ErrInvalidInput)
	}
	if e.Sequence == 0 {
		return fmt.Errorf("%w: sequence starts at 1", ErrInvalidInput)
	}
	if len(e.Patches) == 0 {
		return fmt.Errorf("%w: empty patch set", ErrInvalidInput)
	}
	if e.IsCreate() && !ValidKind(e.Kind) {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, e.Kind)
	}
	return nil
}
