package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/platform/logger"
)

var (
	// ErrSyncStalled: la sesión no puede progresar (dependencias que nunca
	// llegan). Operacional; se reporta en vez de colgar.
	ErrSyncStalled = errors.New("sync stalled")
)

const (
	defaultMaxRounds   = 8
	defaultBackoffBase = 50 * time.Millisecond
)

// Stats resume una sesión de pull.
type Stats struct {
	Records    int
	Applied    int
	Duplicates int
	Buffered   int
	Rounds     int
}

// Engine reconcilia el change log local con un peer. Cada sesión es segura
// de repetir y de cancelar: el progreso parcial queda durable y el re-sync
// solo trae el delta pendiente.
type Engine struct {
	log   *changelog.Service
	store *records.Store
	logr  logger.Logger

	maxRounds   int
	backoffBase time.Duration
}

func NewEngine(log *changelog.Service, store *records.Store, logr logger.Logger) *Engine {
	if logr == nil {
		logr = logger.New(logger.Options{App: "sync"})
	}
	return &Engine{
		log:         log,
		store:       store,
		logr:        logr,
		maxRounds:   defaultMaxRounds,
		backoffBase: defaultBackoffBase,
	}
}

// Pull trae del peer todo lo que el log local no conoce y lo aplica en
// orden causal. Entries cuyo antecesor aún no llegó se buferean y se
// reintenta el buffer tras cada apply exitoso; si tras maxRounds el buffer
// no se vacía, la sesión termina con ErrSyncStalled.
func (e *Engine) Pull(ctx context.Context, peer Peer) (Stats, error) {
	var stats Stats

	summary, err := peer.ClockSummary(ctx)
	if err != nil {
		return stats, fmt.Errorf("peer clock summary: %w", err)
	}

	var pending []records.ChangeEntry
	for recordID, peerClock := range summary {
		local, err := e.log.Clock(ctx, recordID)
		if err != nil {
			return stats, err
		}
		if local.Dominates(peerClock) {
			continue
		}
		stats.Records++

		delta, err := peer.EntriesSince(ctx, recordID, local)
		if err != nil {
			return stats, fmt.Errorf("peer entries for %s: %w", recordID, err)
		}

		for _, entry := range delta {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			buffered, err := e.applyOne(ctx, entry, &stats)
			if err != nil {
				return stats, err
			}
			if buffered {
				pending = append(pending, entry)
				continue
			}
			pending, err = e.drainPending(ctx, pending, &stats)
			if err != nil {
				return stats, err
			}
		}
	}

	// Rondas de reintento sobre el buffer, con backoff exponencial.
	backoff := e.backoffBase
	for round := 0; len(pending) > 0; round++ {
		stats.Rounds = round + 1
		if round >= e.maxRounds {
			e.logr.Warn("sync stalled", map[string]any{
				"pending": len(pending),
				"rounds":  round,
			})
			return stats, fmt.Errorf("%w: %d entries with unmet dependencies", ErrSyncStalled, len(pending))
		}

		before := len(pending)
		var err error
		pending, err = e.drainPending(ctx, pending, &stats)
		if err != nil {
			return stats, err
		}
		if len(pending) == 0 {
			break
		}
		if len(pending) == before {
			// Sin progreso en esta ronda: esperar antes de reintentar.
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	e.logr.Debug("pull complete", map[string]any{
		"records": stats.Records,
		"applied": stats.Applied,
		"dups":    stats.Duplicates,
	})
	return stats, nil
}

// ApplyBatch aplica un lote de entries que puede venir desordenado (push
// remoto, transporte sin orden garantizado). Buferea gaps y reintenta con
// las mismas reglas que Pull.
func (e *Engine) ApplyBatch(ctx context.Context, entries []records.ChangeEntry) (Stats, error) {
	var stats Stats

	var pending []records.ChangeEntry
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		buffered, err := e.applyOne(ctx, entry, &stats)
		if err != nil {
			return stats, err
		}
		if buffered {
			pending = append(pending, entry)
		}
	}

	backoff := e.backoffBase
	for round := 0; len(pending) > 0; round++ {
		stats.Rounds = round + 1
		if round >= e.maxRounds {
			return stats, fmt.Errorf("%w: %d entries with unmet dependencies", ErrSyncStalled, len(pending))
		}
		before := len(pending)
		var err error
		pending, err = e.drainPending(ctx, pending, &stats)
		if err != nil {
			return stats, err
		}
		if len(pending) == before && len(pending) > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return stats, nil
}

// applyOne persiste y aplica una entry. Devuelve true si quedó bufereada
// por gap causal.
func (e *Engine) applyOne(ctx context.Context, entry records.ChangeEntry, stats *Stats) (bool, error) {
	local, err := e.log.Clock(ctx, entry.RecordID)
	if err != nil {
		return false, err
	}
	if entry.Sequence <= local.Get(entry.ReplicaID) {
		stats.Duplicates++
		return false, nil
	}

	_, err = e.store.Apply(ctx, entry)
	switch {
	case errors.Is(err, records.ErrCausalGap):
		stats.Buffered++
		return true, nil
	case err != nil:
		return false, err
	}

	// Write-ahead del lado receptor: la entry aplicada queda durable en el
	// log local antes de seguir; un corte a mitad de sesión deja estado
	// válido y re-sincronizable.
	if err := e.log.Ingest(ctx, entry); err != nil {
		return false, err
	}
	stats.Applied++
	return false, nil
}

func (e *Engine) drainPending(ctx context.Context, pending []records.ChangeEntry, stats *Stats) ([]records.ChangeEntry, error) {
	for {
		progressed := false
		next := pending[:0]
		for _, entry := range pending {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			buffered, err := e.applyOne(ctx, entry, stats)
			if err != nil {
				return nil, err
			}
			if buffered {
				next = append(next, entry)
			} else {
				progressed = true
			}
		}
		pending = next
		if !progressed || len(pending) == 0 {
			return pending, nil
		}
	}
}

// Converged indica si ambos lados conocen exactamente lo mismo para el
// conjunto de records: la garantía de consistencia eventual.
func (e *Engine) Converged(ctx context.Context, peer Peer) (bool, error) {
	theirs, err := peer.ClockSummary(ctx)
	if err != nil {
		return false, err
	}
	ours, err := e.log.ClockSummary(ctx)
	if err != nil {
		return false, err
	}
	for id, clock := range theirs {
		if !clock.Equal(ours[id]) {
			return false, nil
		}
	}
	for id, clock := range ours {
		if !clock.Equal(theirs[id]) {
			return false, nil
		}
	}
	return true, nil
}
