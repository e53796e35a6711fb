package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Languages is the closed set of language slots every room carries.
var Languages = []string{"javascript", "cpp", "python", "java"}

// DefaultCode holds the placeholder text each slot starts with.
var DefaultCode = map[string]string{
	"javascript": "// Loading JavaScript...",
	"cpp":        "// Loading C++...",
	"python":     "# Loading Python...",
	"java":       "// Loading Java...",
}

// languageColumns maps language tags to their column names. SQL touching
// a language column must go through this map, never through the raw tag.
var languageColumns = map[string]string{
	"javascript": "javascript",
	"cpp":        "cpp",
	"python":     "python",
	"java":       "java",
}

// SupportedLanguage reports whether tag is one of the fixed language slots.
func SupportedLanguage(tag string) bool {
	_, ok := languageColumns[tag]
	return ok
}

type Database struct {
	db *sql.DB
}

// One persisted record per room: the last known code for every language slot.
type Session struct {
	RoomID    string
	Code      map[string]string
	UpdatedAt time.Time
}

func New(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps readers from blocking the autosave writer
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("database initialized")
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		room_id TEXT PRIMARY KEY,
		javascript TEXT NOT NULL DEFAULT '// Loading JavaScript...',
		cpp TEXT NOT NULL DEFAULT '// Loading C++...',
		python TEXT NOT NULL DEFAULT '# Loading Python...',
		java TEXT NOT NULL DEFAULT '// Loading Java...',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// GetSession returns the persisted record for a room, or nil if none exists.
func (d *Database) GetSession(roomID string) (*Session, error) {
	row := d.db.QueryRow(
		"SELECT room_id, javascript, cpp, python, java, updated_at FROM sessions WHERE room_id = ?",
		roomID,
	)

	var sess Session
	var js, cpp, py, java string
	err := row.Scan(&sess.RoomID, &js, &cpp, &py, &java, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess.Code = map[string]string{
		"javascript": js,
		"cpp":        cpp,
		"python":     py,
		"java":       java,
	}
	return &sess, nil
}

// CreateSession inserts a default record for the room. A concurrent create
// for the same room id is a no-op, so first joins racing each other still
// produce exactly one row.
func (d *Database) CreateSession(roomID string) error {
	_, err := d.db.Exec(
		"INSERT INTO sessions (room_id) VALUES (?) ON CONFLICT(room_id) DO NOTHING",
		roomID,
	)
	return err
}

// SaveCode upserts a single language slot for a room, leaving the other
// slots untouched.
func (d *Database) SaveCode(roomID, language, code string) error {
	col, ok := languageColumns[language]
	if !ok {
		return fmt.Errorf("unsupported language: %s", language)
	}

	query := fmt.Sprintf(`
		INSERT INTO sessions (room_id, %s, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(room_id) DO UPDATE SET
			%s = excluded.%s,
			updated_at = CURRENT_TIMESTAMP
	`, col, col, col)

	_, err := d.db.Exec(query, roomID, code)
	return err
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var sessionCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&sessionCount); err != nil {
		return nil, err
	}
	stats["session_count"] = sessionCount

	return stats, nil
}
