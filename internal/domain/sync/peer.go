package sync

import (
	"context"

	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
)

// Peer es el otro lado de una ronda de sync: expone su resumen de clocks y
// el delta de entries que el clock recibido aún no conoce. La réplica local
// y un servidor HTTP remoto implementan la misma interfaz.
type Peer interface {
	ClockSummary(ctx context.Context) (map[string]records.VectorClock, error)
	EntriesSince(ctx context.Context, recordID string, since records.VectorClock) ([]records.ChangeEntry, error)
}

// LocalPeer adapta el change log local como Peer (sync entre dos réplicas
// en proceso, y tests).
type LocalPeer struct {
	log *changelog.Service
}

func NewLocalPeer(log *changelog.Service) *LocalPeer {
	return &LocalPeer{log: log}
}

func (p *LocalPeer) ClockSummary(ctx context.Context) (map[string]records.VectorClock, error) {
	return p.log.ClockSummary(ctx)
}

func (p *LocalPeer) EntriesSince(ctx context.Context, recordID string, since records.VectorClock) ([]records.ChangeEntry, error) {
	return p.log.EntriesSince(ctx, recordID, since)
}
