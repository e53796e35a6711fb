package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/codehive/backend/internal/db"
	"github.com/codehive/backend/internal/room"
	"github.com/codehive/backend/internal/runner"
	"github.com/codehive/backend/internal/ws"
)

func setupTestAPI(t *testing.T, judge0URL string) (*mux.Router, *db.Database, *room.Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "codehive-api-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	database, err := db.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	store := room.NewStore(database)
	hub := ws.NewHub(store)
	go hub.Run()

	run := runner.New(judge0URL, "", "", time.Second)

	api := New(hub, store, database, run)
	router := mux.NewRouter()
	api.Register(router)

	cleanup := func() {
		database.Close()
		os.RemoveAll(tmpDir)
	}

	return router, database, store, cleanup
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return w, response
}

func TestHealthHandler(t *testing.T) {
	router, _, _, cleanup := setupTestAPI(t, "http://unused")
	defer cleanup()

	w, response := doJSON(t, router, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	router, database, _, cleanup := setupTestAPI(t, "http://unused")
	defer cleanup()

	database.CreateSession("stats-room")

	w, response := doJSON(t, router, "GET", "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if _, ok := response["active_rooms"]; !ok {
		t.Error("Response should contain 'active_rooms'")
	}
	if response["total_sessions"].(float64) != 1 {
		t.Errorf("Expected 1 total session, got %v", response["total_sessions"])
	}
}

func TestSaveSession(t *testing.T) {
	router, database, _, cleanup := setupTestAPI(t, "http://unused")
	defer cleanup()

	w, response := doJSON(t, router, "PUT", "/session/my-room", map[string]string{
		"language": "python",
		"code":     "x = 1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if response["ok"] != true {
		t.Errorf("Expected ok:true, got %v", response["ok"])
	}

	sess, err := database.GetSession("my-room")
	if err != nil {
		t.Fatalf("Failed to read session: %v", err)
	}
	if sess == nil || sess.Code["python"] != "x = 1" {
		t.Errorf("Save not persisted: %v", sess)
	}
}

func TestSaveSessionValidation(t *testing.T) {
	router, _, _, cleanup := setupTestAPI(t, "http://unused")
	defer cleanup()

	tests := []struct {
		name string
		path string
		body map[string]string
	}{
		{"missing language", "/session/my-room", map[string]string{"code": "x"}},
		{"missing code", "/session/my-room", map[string]string{"language": "python"}},
		{"unsupported language", "/session/my-room", map[string]string{"language": "cobol", "code": "x"}},
		{"invalid room id", "/session/bad%20room", map[string]string{"language": "python", "code": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := doJSON(t, router, "PUT", tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
			if response["ok"] != false {
				t.Errorf("Expected ok:false, got %v", response["ok"])
			}
		})
	}
}

func TestSaveThenReseedRoundTrip(t *testing.T) {
	router, database, _, cleanup := setupTestAPI(t, "http://unused")
	defer cleanup()

	doJSON(t, router, "PUT", "/session/rt-room", map[string]string{
		"language": "java",
		"code":     "class Saved {}",
	})

	// Fresh store over the same database simulates a process restart
	fresh := room.NewStore(database)
	snapshot := fresh.GetOrCreate("rt-room")
	if snapshot["java"] != "class Saved {}" {
		t.Errorf("Expected saved java code after reseed, got %q", snapshot["java"])
	}
	if snapshot["python"] != db.DefaultCode["python"] {
		t.Errorf("Other languages keep their values, got %q", snapshot["python"])
	}
}

func TestSaveSessionUpdatesStore(t *testing.T) {
	router, _, store, cleanup := setupTestAPI(t, "http://unused")
	defer cleanup()

	store.GetOrCreate("live-room")
	doJSON(t, router, "PUT", "/session/live-room", map[string]string{
		"language": "cpp",
		"code":     "int y;",
	})

	snapshot := store.Snapshot("live-room")
	if snapshot["cpp"] != "int y;" {
		t.Errorf("Explicit save should update the cache, got %q", snapshot["cpp"])
	}
}

func TestGetSession(t *testing.T) {
	router, database, _, cleanup := setupTestAPI(t, "http://unused")
	defer cleanup()

	database.SaveCode("read-room", "python", "y = 2")

	w, response := doJSON(t, router, "GET", "/session/read-room", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	code := response["code"].(map[string]interface{})
	if code["python"] != "y = 2" {
		t.Errorf("Expected saved python code, got %v", code["python"])
	}
	if code["java"] != db.DefaultCode["java"] {
		t.Errorf("Expected java default, got %v", code["java"])
	}
}

func TestRunHandler(t *testing.T) {
	judge0 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"stdout": "42"})
	}))
	defer judge0.Close()

	router, _, _, cleanup := setupTestAPI(t, judge0.URL)
	defer cleanup()

	w, response := doJSON(t, router, "POST", "/run/python", map[string]string{"code": "print(42)"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	output := response["output"].([]interface{})
	if len(output) != 1 || output[0] != "42" {
		t.Errorf("Unexpected output: %v", output)
	}
}

func TestRunHandlerInvalidLanguage(t *testing.T) {
	calls := 0
	judge0 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer judge0.Close()

	router, _, _, cleanup := setupTestAPI(t, judge0.URL)
	defer cleanup()

	w, response := doJSON(t, router, "POST", "/run/fortran", map[string]string{"code": "X"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	output := response["output"].([]interface{})
	if len(output) != 1 || output[0] != "Invalid language" {
		t.Errorf("Unexpected output: %v", output)
	}
	if calls != 0 {
		t.Errorf("No outbound call should happen for invalid language, got %d", calls)
	}
}

func TestRunHandlerServiceFailure(t *testing.T) {
	judge0 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer judge0.Close()

	router, _, _, cleanup := setupTestAPI(t, judge0.URL)
	defer cleanup()

	w, response := doJSON(t, router, "POST", "/run/python", map[string]string{"code": "x"})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}

	// Failure still produces at least one output line
	output := response["output"].([]interface{})
	if len(output) < 1 {
		t.Error("Service failure should surface as output lines")
	}
}
