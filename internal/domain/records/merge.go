package records

// applyEntry hace el fold de una entry sobre el estado materializado.
// Asume que los chequeos de duplicado/gap/ownership ya pasaron; es la única
// pieza que define la semántica de merge por campo.
func applyEntry(state *RecordState, e ChangeEntry) {
	for name, p := range e.Patches {
		switch p.Op {
		case OpTombstone:
			state.Tombstoned = true
		case OpSet:
			applySet(state, name, p.Value, e)
		case OpListAdd:
			applyListAdd(state, name, p.Value.List, e)
		case OpListRemove:
			applyListRemove(state, name, p.Value.List, e)
		}
	}

	state.Version[e.ReplicaID] = e.Sequence
	if e.Timestamp.After(state.UpdatedAt) {
		state.UpdatedAt = e.Timestamp
	}
}

// sawWriter indica si la entry conocía causalmente al último escritor del
// campo. Si no, ambas escrituras son concurrentes.
func sawWriter(e ChangeEntry, f FieldState) bool {
	return e.Deps.Get(f.WriterID) >= f.WriterSeq
}

func applySet(state *RecordState, name string, v Value, e ChangeEntry) {
	f, exists := state.Fields[name]
	if !exists {
		state.Fields[name] = newFieldState(v, e)
		return
	}

	if sawWriter(e, f) {
		// Sobre-escritura causal: reemplazo limpio. El historial de
		// conflictos previos se conserva para auditoría.
		f.Value = cloneValue(v)
		f.WriterID = e.ReplicaID
		f.WriterSeq = e.Sequence
		f.WrittenAt = e.Timestamp
		state.Fields[name] = f
		return
	}

	// Escrituras concurrentes del mismo campo.
	if f.Value.Kind == ValueList && v.Kind == ValueList {
		// Las listas unen ramas concurrentes: no se pierden altas hechas
		// en otro device.
		f.Value.List = unionLists(f.Value.List, v.List)
		if wins(e.Timestamp, e.ReplicaID, f.WrittenAt, f.WriterID) {
			f.WriterID = e.ReplicaID
			f.WriterSeq = e.Sequence
			f.WrittenAt = e.Timestamp
		}
		state.Fields[name] = f
		return
	}

	// Escalares: last-writer-wins por (timestamp, replicaID); el perdedor
	// queda en el conflict history, nunca se descarta.
	if wins(e.Timestamp, e.ReplicaID, f.WrittenAt, f.WriterID) {
		f.ConflictHistory = append(f.ConflictHistory, ConflictValue{
			Value:     f.Value,
			ReplicaID: f.WriterID,
			Sequence:  f.WriterSeq,
			Timestamp: f.WrittenAt,
		})
		f.Value = cloneValue(v)
		f.WriterID = e.ReplicaID
		f.WriterSeq = e.Sequence
		f.WrittenAt = e.Timestamp
	} else {
		f.ConflictHistory = append(f.ConflictHistory, ConflictValue{
			Value:     cloneValue(v),
			ReplicaID: e.ReplicaID,
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	}
	state.Fields[name] = f
}

func applyListAdd(state *RecordState, name string, items []string, e ChangeEntry) {
	f, exists := state.Fields[name]
	if !exists {
		state.Fields[name] = newFieldState(ListValue(items...), e)
		return
	}
	f.Value.Kind = ValueList
	f.Value.List = unionLists(f.Value.List, items)
	if sawWriter(e, f) || wins(e.Timestamp, e.ReplicaID, f.WrittenAt, f.WriterID) {
		f.WriterID = e.ReplicaID
		f.WriterSeq = e.Sequence
		f.WrittenAt = e.Timestamp
	}
	state.Fields[name] = f
}

// applyListRemove quita elementos solo cuando la entry vio el estado que
// intenta modificar (add-wins): una baja concurrente con un alta no borra
// lo que nunca vio.
func applyListRemove(state *RecordState, name string, items []string, e ChangeEntry) {
	f, exists := state.Fields[name]
	if !exists {
		return
	}
	if !sawWriter(e, f) {
		return
	}
	drop := make(map[string]struct{}, len(items))
	for _, it := range items {
		drop[it] = struct{}{}
	}
	kept := make([]string, 0, len(f.Value.List))
	for _, it := range f.Value.List {
		if _, gone := drop[it]; !gone {
			kept = append(kept, it)
		}
	}
	f.Value.List = kept
	f.WriterID = e.ReplicaID
	f.WriterSeq = e.Sequence
	f.WrittenAt = e.Timestamp
	state.Fields[name] = f
}

func newFieldState(v Value, e ChangeEntry) FieldState {
	return FieldState{
		Value:     cloneValue(v),
		WriterID:  e.ReplicaID,
		WriterSeq: e.Sequence,
		WrittenAt: e.Timestamp,
	}
}

// unionLists une preservando el orden de aparición (primero lo existente).
func unionLists(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, it := range a {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	for _, it := range b {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
