package records

import "time"

// Kind define los tipos de record soportados.
// @Enum profile, report
type Kind string

const (
	KindProfile Kind = "profile"
	KindReport  Kind = "report"
)

// ValueKind es la variante tipada de un campo.
type ValueKind string

const (
	ValueString ValueKind = "string"
	ValueNumber ValueKind = "number"
	ValueList   ValueKind = "list"
)

// Value es un valor de campo: escalar (string o number) o lista de strings.
// Los escalares resuelven conflictos por last-writer-wins; las listas por
// unión de conjuntos entre ramas concurrentes.
type Value struct {
	Kind ValueKind `json:"kind"`
	Str  string    `json:"str,omitempty"`
	Num  float64   `json:"num,omitempty"`
	List []string  `json:"list,omitempty"`
}

func StringValue(s string) Value  { return Value{Kind: ValueString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Num: n} }
func ListValue(items ...string) Value {
	return Value{Kind: ValueList, List: items}
}

// ConflictValue es un valor perdedor de un merge concurrente. Se conserva
// para auditoría; nunca se descarta silenciosamente.
type ConflictValue struct {
	Value     Value     `json:"value"`
	ReplicaID string    `json:"replica_id"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// FieldState es el estado materializado de un campo: valor actual, quién lo
// escribió y el historial de conflictos resueltos.
type FieldState struct {
	Value Value `json:"value"`

	// Último escritor del valor actual (para decidir causalidad en merges).
	WriterID  string    `json:"writer_id"`
	WriterSeq uint64    `json:"writer_seq"`
	WrittenAt time.Time `json:"written_at"`

	ConflictHistory []ConflictValue `json:"conflict_history,omitempty"`
}

// RecordState es el snapshot materializado de un record: el fold de todos
// los ChangeEntries aplicados, en orden causal.
type RecordState struct {
	RecordID string `json:"record_id"`
	OwnerID  string `json:"owner_id"`
	Kind     Kind   `json:"kind"`

	Fields map[string]FieldState `json:"fields"`

	Version    VectorClock `json:"version"`
	Tombstoned bool        `json:"tombstoned"`

	UpdatedAt time.Time `json:"updated_at"`
}

func newRecordState(recordID, ownerID string, kind Kind) *RecordState {
	return &RecordState{
		RecordID: recordID,
		OwnerID:  ownerID,
		Kind:     kind,
		Fields:   make(map[string]FieldState),
		Version:  NewClock(),
	}
}

// Clone devuelve una copia profunda; los handlers entregan snapshots
// read-only y no deben exponer el estado interno mutable.
func (s *RecordState) Clone() *RecordState {
	if s == nil {
		return nil
	}
	out := &RecordState{
		RecordID:   s.RecordID,
		OwnerID:    s.OwnerID,
		Kind:       s.Kind,
		Fields:     make(map[string]FieldState, len(s.Fields)),
		Version:    s.Version.Clone(),
		Tombstoned: s.Tombstoned,
		UpdatedAt:  s.UpdatedAt,
	}
	for name, f := range s.Fields {
		cf := f
		cf.Value = cloneValue(f.Value)
		if len(f.ConflictHistory) > 0 {
			cf.ConflictHistory = make([]ConflictValue, len(f.ConflictHistory))
			copy(cf.ConflictHistory, f.ConflictHistory)
		}
		out.Fields[name] = cf
	}
	return out
}

func cloneValue(v Value) Value {
	if v.Kind == ValueList && v.List != nil {
		list := make([]string, len(v.List))
		copy(list, v.List)
		v.List = list
	}
	return v
}

// Field devuelve el valor actual de un campo, si existe.
func (s *RecordState) Field(name string) (Value, bool) {
	f, ok := s.Fields[name]
	if !ok {
		return Value{}, false
	}
	return f.Value, true
}
