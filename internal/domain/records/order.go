package records

import (
	"fmt"
	"sort"
)

// OrderCausal ordena entries en un orden topológico del DAG causal,
// partiendo del conocimiento en base. Cuando hay varios órdenes válidos
// (ramas concurrentes) desempata por (timestamp, replicaID) ascendente,
// así el replay es siempre reproducible.
//
// Devuelve ErrCausalGap si alguna entry declara dependencias que no están
// ni en base ni en el conjunto.
func OrderCausal(entries []ChangeEntry, base VectorClock) ([]ChangeEntry, error) {
	if base == nil {
		base = NewClock()
	}
	emitted := base.Clone()

	remaining := make([]ChangeEntry, len(entries))
	copy(remaining, entries)
	// Orden estable de partida para que la selección de "ready" sea
	// determinística independiente del orden de entrada.
	sort.Slice(remaining, func(i, j int) bool {
		a, b := remaining[i], remaining[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.ReplicaID != b.ReplicaID {
			return a.ReplicaID < b.ReplicaID
		}
		return a.Sequence < b.Sequence
	})

	out := make([]ChangeEntry, 0, len(remaining))
	for len(remaining) > 0 {
		picked := -1
		for i, e := range remaining {
			if e.Sequence != emitted.Get(e.ReplicaID)+1 {
				continue
			}
			if !emitted.Dominates(e.Deps) {
				continue
			}
			picked = i
			break
		}
		if picked < 0 {
			e := remaining[0]
			return nil, fmt.Errorf("%w: entry %s/%d has unmet dependencies",
				ErrCausalGap, e.ReplicaID, e.Sequence)
		}
		e := remaining[picked]
		remaining = append(remaining[:picked], remaining[picked+1:]...)
		emitted[e.ReplicaID] = e.Sequence
		out = append(out, e)
	}
	return out, nil
}

// Replay reconstruye el estado de un record desde cero a partir de sus
// entries, opcionalmente acotado a un vector clock (snapshot pineado).
// El log es la fuente de verdad: el estado siempre es re-derivable así.
func Replay(entries []ChangeEntry, upTo VectorClock) (*RecordState, error) {
	filtered := entries
	if upTo != nil {
		filtered = make([]ChangeEntry, 0, len(entries))
		for _, e := range entries {
			if e.Sequence <= upTo.Get(e.ReplicaID) {
				filtered = append(filtered, e)
			}
		}
	}
	if len(filtered) == 0 {
		return nil, ErrNotFound
	}

	ordered, err := OrderCausal(filtered, nil)
	if err != nil {
		return nil, err
	}

	first := ordered[0]
	if !first.IsCreate() {
		return nil, fmt.Errorf("%w: record %s has no create entry",
			ErrCausalGap, first.RecordID)
	}

	state := newRecordState(first.RecordID, first.OwnerID, first.Kind)
	for _, e := range ordered {
		applyEntry(state, e)
	}
	return state, nil
}
