package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/codehive/backend/internal/db"
	"github.com/codehive/backend/internal/room"
	"github.com/codehive/backend/internal/runner"
	"github.com/codehive/backend/internal/ws"
)

type API struct {
	hub      *ws.Hub
	store    *room.Store
	database *db.Database
	runner   *runner.Service
}

func New(hub *ws.Hub, store *room.Store, database *db.Database, run *runner.Service) *API {
	return &API{
		hub:      hub,
		store:    store,
		database: database,
		runner:   run,
	}
}

// Register mounts the REST routes on the router. The websocket endpoint is
// mounted separately in main.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", a.StatsHandler).Methods(http.MethodGet)
	r.HandleFunc("/session/{roomId}", a.GetSessionHandler).Methods(http.MethodGet)
	r.HandleFunc("/session/{roomId}", a.SaveSessionHandler).Methods(http.MethodPut)
	r.HandleFunc("/run/{language}", a.RunHandler).Methods(http.MethodPost)
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encoding JSON response")
	}
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err == nil {
			stats["total_sessions"] = dbStats["session_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Session handlers

type SaveSessionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (a *API) SaveSessionHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if err := room.ValidateRoomID(roomID); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]interface{}{
			"ok": false, "error": "invalid room id",
		})
		return
	}

	var req SaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Language == "" || req.Code == "" {
		jsonResponse(w, http.StatusBadRequest, map[string]interface{}{
			"ok": false, "error": "Missing code or language",
		})
		return
	}

	if !db.SupportedLanguage(req.Language) {
		jsonResponse(w, http.StatusBadRequest, map[string]interface{}{
			"ok": false, "error": "unsupported language",
		})
		return
	}

	if a.database == nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]interface{}{
			"ok": false, "error": "persistence unavailable",
		})
		return
	}

	if err := a.database.SaveCode(roomID, req.Language, req.Code); err != nil {
		log.Error().Err(err).Str("room", roomID).Str("language", req.Language).Msg("session save failed")
		jsonResponse(w, http.StatusInternalServerError, map[string]interface{}{
			"ok": false, "error": err.Error(),
		})
		return
	}

	// Keep the in-memory copy in lockstep with the record just written.
	a.store.SetSaved(roomID, req.Language, req.Code)

	jsonResponse(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (a *API) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if err := room.ValidateRoomID(roomID); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]interface{}{
			"ok": false, "error": "invalid room id",
		})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"roomId":      roomID,
		"code":        a.store.GetOrCreate(roomID),
		"activeUsers": a.hub.GetActiveUsers(roomID),
	})
}

// Run handler

type RunRequest struct {
	Code string `json:"code"`
}

func (a *API) RunHandler(w http.ResponseWriter, r *http.Request) {
	language := mux.Vars(r)["language"]

	if !runner.Supported(language) {
		jsonResponse(w, http.StatusBadRequest, map[string]interface{}{
			"output": []string{"Invalid language"},
		})
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]interface{}{
			"output": []string{"Invalid request body"},
		})
		return
	}

	output, err := a.runner.Run(r.Context(), language, req.Code)
	if err != nil {
		if errors.Is(err, runner.ErrUnsupportedLanguage) {
			jsonResponse(w, http.StatusBadRequest, map[string]interface{}{
				"output": []string{"Invalid language"},
			})
			return
		}
		log.Error().Err(err).Str("language", language).Msg("code execution failed")
		jsonResponse(w, http.StatusInternalServerError, map[string]interface{}{
			"output": output,
		})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{"output": output})
}
