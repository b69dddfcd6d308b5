package replicas

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medical-record-store/internal/middleware"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/me/replicas", func(mr chi.Router) {
		mr.Post("/", registerReplicaHandler(svc))
		mr.Get("/", listReplicasHandler(svc))
	})
}

type registerReplicaRequest struct {
	Name string `json:"name"`
}

type replicaResponse struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

func registerReplicaHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req registerReplicaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		rep, err := svc.Register(r.Context(), claims.UserID, req.Name)
		if err != nil {
			if errors.Is(err, ErrInvalidInput) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, toReplicaResponse(rep))
	}
}

func listReplicasHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListByOwner(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]replicaResponse, 0, len(items))
		for _, rep := range items {
			out = append(out, toReplicaResponse(rep))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func toReplicaResponse(r Replica) replicaResponse {
	return replicaResponse{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Name:         r.Name,
		RegisteredAt: r.RegisteredAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
