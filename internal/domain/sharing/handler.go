package sharing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/middleware"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	// Owner actions scoped by record
	r.Route("/records/{recordID}/grants", func(gr chi.Router) {
		gr.Post("/", createGrantHandler(svc))
	})

	r.Route("/grants/{grantID}", func(gr chi.Router) {
		gr.Post("/revoke", revokeGrantHandler(svc))
	})

	// Ambas direcciones del sharing hub: recibido y emitido.
	r.Route("/me/grants", func(mr chi.Router) {
		mr.Get("/", listReceivedGrantsHandler(svc))
		mr.Get("/issued", listIssuedGrantsHandler(svc))
	})
}

type createGrantRequest struct {
	ToID string `json:"to_id"`
}

type grantResponse struct {
	ID              string              `json:"id"`
	RecordID        string              `json:"record_id"`
	FromID          string              `json:"from_id"`
	ToID            string              `json:"to_id"`
	SnapshotVersion records.VectorClock `json:"snapshot_version"`
	GrantedAt       time.Time           `json:"granted_at"`
	Revoked         bool                `json:"revoked"`
	RevokedAt       *time.Time          `json:"revoked_at,omitempty"`
}

func createGrantHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		recordID := chi.URLParam(r, "recordID")

		var req createGrantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.ToID) == "" {
			http.Error(w, "to_id required", http.StatusBadRequest)
			return
		}

		g, err := svc.Grant(r.Context(), recordID, claims.UserID, strings.TrimSpace(req.ToID))
		if err != nil {
			switch {
			case errors.Is(err, ErrSelfShare), errors.Is(err, ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, ErrRecordNotFound):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, ErrForbidden):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusCreated, toGrantResponse(g))
	}
}

func revokeGrantHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		grantID := chi.URLParam(r, "grantID")

		g, err := svc.Revoke(r.Context(), grantID, claims.UserID)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				http.Error(w, "grant not found", http.StatusNotFound)
			case errors.Is(err, ErrForbidden):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, toGrantResponse(g))
	}
}

func listReceivedGrantsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.GrantsFor(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]grantResponse, 0, len(items))
		for _, g := range items {
			out = append(out, toGrantResponse(g))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func listIssuedGrantsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.GrantsIssuedBy(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]grantResponse, 0, len(items))
		for _, g := range items {
			out = append(out, toGrantResponse(g))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func toGrantResponse(g Grant) grantResponse {
	return grantResponse{
		ID:              g.ID,
		RecordID:        g.RecordID,
		FromID:          g.FromID,
		ToID:            g.ToID,
		SnapshotVersion: g.SnapshotVersion,
		GrantedAt:       g.GrantedAt,
		Revoked:         g.Revoked,
		RevokedAt:       g.RevokedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
