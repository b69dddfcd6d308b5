package records

import "time"

// PatchOp define la operación de un FieldPatch.
type PatchOp string

const (
	// OpSet reemplaza el valor del campo (escalar o lista completa).
	OpSet PatchOp = "set"
	// OpListAdd agrega elementos a un campo lista.
	OpListAdd PatchOp = "list_add"
	// OpListRemove quita elementos de un campo lista.
	OpListRemove PatchOp = "list_remove"
	// OpTombstone marca el record como borrado (soft delete).
	OpTombstone PatchOp = "tombstone"
)

// FieldPatch es la mutación declarada para un campo dentro de un ChangeEntry.
type FieldPatch struct {
	Op    PatchOp `json:"op"`
	Value Value   `json:"value,omitempty"`
}

// ChangeEntry es un evento inmutable del change log. Una vez durable nunca
// se muta ni se borra; el conjunto de entries por record forma un DAG causal.
type ChangeEntry struct {
	ID       string `json:"id"`
	RecordID string `json:"record_id"`

	ReplicaID string `json:"replica_id"`
	// Sequence es el contador monótono de la réplica para este record.
	Sequence uint64 `json:"sequence"`

	// Kind y OwnerID solo vienen en la entry que crea el record (primera
	// sequence, deps vacías); en el resto quedan vacíos. OwnerID es el
	// owner declarado; apply valida que la réplica pertenezca a su
	// device set.
	Kind    Kind   `json:"kind,omitempty"`
	OwnerID string `json:"owner_id,omitempty"`

	Patches map[string]FieldPatch `json:"patches"`

	// Deps es el frontier local al momento del append: todo lo que esta
	// entry "vio". Cada dependencia debe estar aplicada antes que la entry.
	Deps VectorClock `json:"deps"`

	// Timestamp es wall-clock, solo para desempate de escrituras
	// concurrentes; nunca define el orden causal.
	Timestamp time.Time `json:"timestamp"`
}

// IsCreate indica si la entry crea el record (primera entry, sin deps).
func (e ChangeEntry) IsCreate() bool {
	return e.Kind != ""
}

// Tombstones indica si la entry marca el record como borrado.
func (e ChangeEntry) Tombstones() bool {
	for _, p := range e.Patches {
		if p.Op == OpTombstone {
			return true
		}
	}
	return false
}

// wins decide el ganador entre dos escrituras concurrentes del mismo campo:
// gana el (timestamp, replicaID) mayor, determinístico en ambos sentidos.
func wins(ts time.Time, replicaID string, otherTS time.Time, otherReplica string) bool {
	if !ts.Equal(otherTS) {
		return ts.After(otherTS)
	}
	return replicaID > otherReplica
}
