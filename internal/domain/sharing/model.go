package sharing

import (
	"time"

	"medical-record-store/internal/domain/records"
)

// Grant es una concesión de lectura sobre un snapshot puntual de un record.
// Inmutable una vez creada, salvo el flag Revoked (monótono). Nunca se
// borra físicamente: trail de compliance.
type Grant struct {
	ID string

	RecordID string

	FromID string // quien comparte (owner del record)
	ToID   string // destinatario

	// SnapshotVersion pinea el vector clock del record al momento del
	// grant. Ediciones posteriores del owner nunca cambian lo que este
	// grant expone.
	SnapshotVersion records.VectorClock

	GrantedAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}
