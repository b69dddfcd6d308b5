package changelog

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/middleware"
	"medical-record-store/internal/ports/analysis"
	"medical-record-store/internal/ports/auth"
)

// RegisterRoutes publica la superficie de edición/lectura de records que
// consume la capa de presentación: append de cambios, lectura del estado
// vivo, snapshots pineados, la vista de emergencia y el chat asistente.
func RegisterRoutes(r chi.Router, svc *Service, store *records.Store, analyzer analysis.Analyzer, chatter analysis.Chatter) {
	r.Route("/records", func(rr chi.Router) {
		rr.Post("/", createRecordHandler(svc, store))
		rr.Route("/{recordID}", func(ir chi.Router) {
			ir.Post("/changes", appendChangesHandler(svc, store))
			ir.Get("/", getRecordHandler(store))
			ir.Get("/snapshot", snapshotHandler(store))
			ir.Post("/analyze", analyzeHandler(svc, store, analyzer))
		})
	})

	r.Get("/me/records", listMyRecordsHandler(store))
	r.Get("/me/emergency", emergencyViewHandler(store))
	r.Post("/chat", chatHandler(chatter))
}

type createRecordRequest struct {
	Kind    records.Kind                  `json:"kind"`
	Patches map[string]records.FieldPatch `json:"patches"`
}

type appendChangesRequest struct {
	Patches map[string]records.FieldPatch `json:"patches"`
}

type changeResponse struct {
	Entry records.ChangeEntry  `json:"entry"`
	State *records.RecordState `json:"state"`
}

func createRecordHandler(svc *Service, store *records.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := sessionWithReplica(w, r)
		if !ok {
			return
		}

		var req createRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		entry, err := svc.Append(r.Context(), AppendInput{
			RecordID:  newRecordID(),
			ReplicaID: claims.ReplicaID,
			Kind:      req.Kind,
			OwnerID:   claims.UserID,
			Patches:   req.Patches,
		})
		if err != nil {
			writeAppendError(w, err)
			return
		}

		state, err := store.Apply(r.Context(), entry)
		if err != nil {
			writeAppendError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, changeResponse{Entry: entry, State: state})
	}
}

func appendChangesHandler(svc *Service, store *records.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := sessionWithReplica(w, r)
		if !ok {
			return
		}

		recordID := chi.URLParam(r, "recordID")

		state, err := store.Get(r.Context(), recordID)
		if err != nil || state.OwnerID != claims.UserID {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}

		var req appendChangesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		entry, err := svc.Append(r.Context(), AppendInput{
			RecordID:  recordID,
			ReplicaID: claims.ReplicaID,
			Patches:   req.Patches,
		})
		if err != nil {
			writeAppendError(w, err)
			return
		}

		newState, err := store.Apply(r.Context(), entry)
		if err != nil {
			writeAppendError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, changeResponse{Entry: entry, State: newState})
	}
}

func getRecordHandler(store *records.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		state, err := store.Get(r.Context(), chi.URLParam(r, "recordID"))
		if err != nil || state.OwnerID != claims.UserID {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// snapshotHandler materializa el record a un clock dado:
// GET /records/{id}/snapshot?at=replicaA:3,replicaB:1
// Sin ?at devuelve el replay completo (equivalente al estado vivo).
func snapshotHandler(store *records.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		recordID := chi.URLParam(r, "recordID")

		live, err := store.Get(r.Context(), recordID)
		if err != nil || live.OwnerID != claims.UserID {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}

		var upTo records.VectorClock
		if at := strings.TrimSpace(r.URL.Query().Get("at")); at != "" {
			upTo, err = parseClockParam(at)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		snap, err := store.Materialize(r.Context(), recordID, upTo)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				http.Error(w, "no entries at that clock", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func listMyRecordsHandler(store *records.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, store.ListByOwner(r.Context(), claims.UserID))
	}
}

type emergencyView struct {
	Profile *records.RecordState   `json:"profile,omitempty"`
	Reports []*records.RecordState `json:"reports"`
}

// emergencyViewHandler arma la tarjeta de emergencia: perfil del owner más
// los reportes marcados is_emergency.
func emergencyViewHandler(store *records.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		view := emergencyView{Reports: make([]*records.RecordState, 0)}
		for _, state := range store.ListByOwner(r.Context(), claims.UserID) {
			if state.Tombstoned {
				continue
			}
			switch state.Kind {
			case records.KindProfile:
				if view.Profile == nil {
					view.Profile = state
				}
			case records.KindReport:
				if v, ok := state.Field(records.FieldIsEmergency); ok && v.Str == "true" {
					view.Reports = append(view.Reports, state)
				}
			}
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// analyzeHandler corre el análisis externo sobre el contenido del reporte y
// escribe el resultado como un append normal: los campos derivados de IA
// siguen las mismas reglas de merge que cualquier edición.
func analyzeHandler(svc *Service, store *records.Store, analyzer analysis.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := sessionWithReplica(w, r)
		if !ok {
			return
		}
		if analyzer == nil {
			http.Error(w, "analysis not configured", http.StatusServiceUnavailable)
			return
		}

		recordID := chi.URLParam(r, "recordID")

		state, err := store.Get(r.Context(), recordID)
		if err != nil || state.OwnerID != claims.UserID {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		if state.Kind != records.KindReport {
			http.Error(w, "only reports can be analyzed", http.StatusBadRequest)
			return
		}

		content, ok := state.Field(records.FieldContent)
		if !ok || strings.TrimSpace(content.Str) == "" {
			http.Error(w, "report has no content", http.StatusBadRequest)
			return
		}
		mimeType := "text/plain"
		if ft, ok := state.Field(records.FieldFileType); ok && strings.TrimSpace(ft.Str) != "" {
			mimeType = ft.Str
		}

		docBytes, err := base64.StdEncoding.DecodeString(content.Str)
		if err != nil {
			// Contenido plano (no base64): se analiza tal cual.
			docBytes = []byte(content.Str)
		}

		result, err := analyzer.Analyze(r.Context(), docBytes, mimeType)
		if err != nil {
			http.Error(w, "analysis failed", http.StatusBadGateway)
			return
		}

		metrics := make([]string, 0, len(result.Metrics))
		for _, m := range result.Metrics {
			metrics = append(metrics, fmt.Sprintf("%s=%s %s", m.Name, m.Value, m.Unit))
		}

		patches := map[string]records.FieldPatch{
			records.FieldAnalysisSummary: {Op: records.OpSet, Value: records.StringValue(result.Summary)},
			records.FieldCriticalLevel:   {Op: records.OpSet, Value: records.StringValue(result.CriticalLevel)},
		}
		if len(metrics) > 0 {
			patches[records.FieldMetrics] = records.FieldPatch{Op: records.OpListAdd, Value: records.ListValue(metrics...)}
		}
		if len(result.Recommendations) > 0 {
			patches[records.FieldRecommendations] = records.FieldPatch{Op: records.OpListAdd, Value: records.ListValue(result.Recommendations...)}
		}

		entry, err := svc.Append(r.Context(), AppendInput{
			RecordID:  recordID,
			ReplicaID: claims.ReplicaID,
			Patches:   patches,
		})
		if err != nil {
			writeAppendError(w, err)
			return
		}

		newState, err := store.Apply(r.Context(), entry)
		if err != nil {
			writeAppendError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, changeResponse{Entry: entry, State: newState})
	}
}

type chatRequest struct {
	Message string                 `json:"message"`
	History []analysis.ChatMessage `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// chatHandler es el passthrough al asistente externo. La conversación
// vive en el cliente; acá no se persiste ni se loguea nada del
// contenido.
func chatHandler(chatter analysis.Chatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if chatter == nil {
			http.Error(w, "chat not configured", http.StatusServiceUnavailable)
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			http.Error(w, "message required", http.StatusBadRequest)
			return
		}

		reply, err := chatter.Chat(r.Context(), req.Message, req.History)
		if err != nil {
			http.Error(w, "chat failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
	}
}

// parseClockParam parsea "replicaA:3,replicaB:1" a VectorClock.
func parseClockParam(s string) (records.VectorClock, error) {
	clock := records.NewClock()
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid clock component %q", pair)
		}
		seq, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sequence in %q", pair)
		}
		clock[parts[0]] = seq
	}
	return clock, nil
}

// sessionWithReplica exige sesión completa (user + device) para los
// endpoints que escriben al log.
func sessionWithReplica(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	c, has := middleware.GetClaims(r.Context())
	if !has || strings.TrimSpace(c.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Claims{}, false
	}
	if strings.TrimSpace(c.ReplicaID) == "" {
		http.Error(w, "X-Replica-ID required", http.StatusBadRequest)
		return auth.Claims{}, false
	}
	return c, true
}

func newRecordID() string {
	return uuid.NewString()
}

func writeAppendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, records.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, records.ErrOwnershipViolation):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, records.ErrCausalGap):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, records.ErrNotFound):
		http.Error(w, "record not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
