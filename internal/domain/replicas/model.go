package replicas

import "time"

// Replica es un device/sesión actuando por un owner. El device set del
// owner es la base del chequeo de ownership en el document store.
type Replica struct {
	ID      string
	OwnerID string

	Name string // ej. "pixel-de-ana", "tablet-consultorio"

	RegisteredAt time.Time
}
