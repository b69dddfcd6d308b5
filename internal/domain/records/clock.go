package records

import "sort"

// VectorClock mapea replicaID -> última secuencia conocida de esa réplica.
// Expresa el conocimiento causal de un estado.
type VectorClock map[string]uint64

// Ordering es el resultado de comparar dos clocks.
type Ordering int

const (
	OrderEqual Ordering = iota
	OrderBefore
	OrderAfter
	OrderConcurrent
)

func NewClock() VectorClock {
	return VectorClock{}
}

func (c VectorClock) Get(replicaID string) uint64 {
	if c == nil {
		return 0
	}
	return c[replicaID]
}

func (c VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// With devuelve una copia con el componente de replicaID en seq.
func (c VectorClock) With(replicaID string, seq uint64) VectorClock {
	out := c.Clone()
	out[replicaID] = seq
	return out
}

// Dominates indica si c conoce todo lo que conoce other (c >= other
// componente a componente).
func (c VectorClock) Dominates(other VectorClock) bool {
	for r, seq := range other {
		if seq == 0 {
			continue
		}
		if c.Get(r) < seq {
			return false
		}
	}
	return true
}

func (c VectorClock) Equal(other VectorClock) bool {
	return c.Dominates(other) && other.Dominates(c)
}

// Compare devuelve el orden causal entre dos clocks.
func (c VectorClock) Compare(other VectorClock) Ordering {
	le := other.Dominates(c)
	ge := c.Dominates(other)
	switch {
	case le && ge:
		return OrderEqual
	case le:
		return OrderBefore
	case ge:
		return OrderAfter
	default:
		return OrderConcurrent
	}
}

// Merge devuelve el máximo componente a componente (join del lattice).
func (c VectorClock) Merge(other VectorClock) VectorClock {
	out := c.Clone()
	for r, seq := range other {
		if seq > out[r] {
			out[r] = seq
		}
	}
	return out
}

// Replicas devuelve los replicaIDs presentes, ordenados (salida estable
// para logs y tests).
func (c VectorClock) Replicas() []string {
	out := make([]string, 0, len(c))
	for r, seq := range c {
		if seq == 0 {
			continue
		}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
