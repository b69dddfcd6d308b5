package sync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/middleware"
)

// RegisterRoutes publica el protocolo de sync: resumen de clocks, delta por
// record y push de entries. Solo réplicas autenticadas del owner.
func RegisterRoutes(r chi.Router, log *changelog.Service, engine *Engine, store *records.Store) {
	r.Route("/sync", func(sr chi.Router) {
		sr.Get("/clocks", clocksHandler(log, store))
		sr.Post("/entries", entriesHandler(log, store))
		sr.Post("/push", pushHandler(engine))
	})
}

func clocksHandler(log *changelog.Service, store *records.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		summary, err := log.ClockSummary(r.Context())
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		// Solo los records del owner autenticado.
		mine := make(map[string]records.VectorClock)
		for _, state := range store.ListByOwner(r.Context(), claims.UserID) {
			if clock, ok := summary[state.RecordID]; ok {
				mine[state.RecordID] = clock
			}
		}

		writeJSON(w, http.StatusOK, ClockSummaryResponse{Clocks: mine})
	}
}

func entriesHandler(log *changelog.Service, store *records.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req EntriesSinceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.RecordID) == "" {
			http.Error(w, "record_id required", http.StatusBadRequest)
			return
		}

		state, err := store.Get(r.Context(), req.RecordID)
		if err != nil || state.OwnerID != claims.UserID {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}

		entries, err := log.EntriesSince(r.Context(), req.RecordID, req.Since)
		if err != nil {
			if errors.Is(err, records.ErrCausalGap) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, EntriesSinceResponse{Entries: entries})
	}
}

func pushHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if len(req.Entries) == 0 {
			writeJSON(w, http.StatusOK, PushResponse{})
			return
		}

		stats, err := engine.ApplyBatch(r.Context(), req.Entries)
		if err != nil {
			switch {
			case errors.Is(err, ErrSyncStalled):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, records.ErrOwnershipViolation):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, PushResponse{
			Applied:    stats.Applied,
			Duplicates: stats.Duplicates,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
