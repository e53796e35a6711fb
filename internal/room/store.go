package room

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codehive/backend/internal/db"
)

// ErrInvalidRoomID is returned for room ids that fail validation.
var ErrInvalidRoomID = errors.New("invalid room id")

const maxRoomIDLength = 64

// ValidateRoomID checks an externally supplied room id: non-empty, bounded
// length, and limited to [A-Za-z0-9_-].
func ValidateRoomID(id string) error {
	if id == "" || len(id) > maxRoomIDLength {
		return ErrInvalidRoomID
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return ErrInvalidRoomID
		}
	}
	return nil
}

// The in-memory code state for one room. Every language slot always holds
// a value; slots start out as the placeholder text.
type roomState struct {
	code  map[string]string
	dirty map[string]bool
	mu    sync.RWMutex
}

func newRoomState(seed map[string]string) *roomState {
	code := make(map[string]string, len(db.Languages))
	for _, lang := range db.Languages {
		if text, ok := seed[lang]; ok && text != "" {
			code[lang] = text
		} else {
			code[lang] = db.DefaultCode[lang]
		}
	}
	return &roomState{
		code:  code,
		dirty: make(map[string]bool),
	}
}

func (r *roomState) snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code := make(map[string]string, len(r.code))
	for lang, text := range r.code {
		code[lang] = text
	}
	return code
}

// Store is the authoritative in-memory cache of room code, backed by the
// database. It is constructed once at startup and handed to the hub and
// the API; a nil database means memory-only operation.
type Store struct {
	database *db.Database
	rooms    map[string]*roomState
	mu       sync.RWMutex
}

func NewStore(database *db.Database) *Store {
	return &Store{
		database: database,
		rooms:    make(map[string]*roomState),
	}
}

// GetOrCreate returns the room's current snapshot, seeding the cache from
// the database on first access. When no persistent record exists one is
// created with defaults; when the database is unavailable the room falls
// back to an all-default snapshot so a join never fails on persistence.
func (s *Store) GetOrCreate(roomID string) map[string]string {
	s.mu.RLock()
	state, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok {
		return state.snapshot()
	}

	seeded := s.seed(roomID)

	s.mu.Lock()
	if existing, ok := s.rooms[roomID]; ok {
		// Lost the race to another first join; their entry wins.
		state = existing
	} else {
		s.rooms[roomID] = seeded
		state = seeded
	}
	s.mu.Unlock()

	return state.snapshot()
}

func (s *Store) seed(roomID string) *roomState {
	if s.database == nil {
		return newRoomState(nil)
	}

	sess, err := s.database.GetSession(roomID)
	if err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("seed read failed, using defaults")
		return newRoomState(nil)
	}

	if sess == nil {
		// The row-level conflict clause makes racing creates converge on
		// a single record.
		if err := s.database.CreateSession(roomID); err != nil {
			log.Warn().Err(err).Str("room", roomID).Msg("session create failed, using defaults")
			return newRoomState(nil)
		}
		if sess, err = s.database.GetSession(roomID); err != nil || sess == nil {
			log.Warn().Err(err).Str("room", roomID).Msg("session re-read failed, using defaults")
			return newRoomState(nil)
		}
	}

	return newRoomState(sess.Code)
}

// ApplyEdit overwrites one language slot unconditionally (last write wins)
// and marks it dirty for the autosave flusher. Unknown language tags are
// ignored.
func (s *Store) ApplyEdit(roomID, language, text string) {
	if !db.SupportedLanguage(language) {
		return
	}

	s.mu.RLock()
	state, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		s.GetOrCreate(roomID)
		s.mu.RLock()
		state = s.rooms[roomID]
		s.mu.RUnlock()
	}

	state.mu.Lock()
	state.code[language] = text
	state.dirty[language] = true
	state.mu.Unlock()
}

// Snapshot returns the full per-language code map for a room. Rooms that
// were never joined resolve to all defaults without touching the cache.
func (s *Store) Snapshot(roomID string) map[string]string {
	s.mu.RLock()
	state, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return newRoomState(nil).snapshot()
	}
	return state.snapshot()
}

// SetSaved overwrites a slot without marking it dirty. Used by the explicit
// save path, which has already written the value to the database itself.
func (s *Store) SetSaved(roomID, language, text string) {
	if !db.SupportedLanguage(language) {
		return
	}

	s.mu.RLock()
	state, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	state.mu.Lock()
	state.code[language] = text
	delete(state.dirty, language)
	state.mu.Unlock()
}

// FlushDirty writes every dirty slot to the database. Slots that fail to
// write stay dirty and are retried on the next flush. Returns the number
// of slots written.
func (s *Store) FlushDirty() int {
	if s.database == nil {
		return 0
	}

	s.mu.RLock()
	rooms := make(map[string]*roomState, len(s.rooms))
	for id, state := range s.rooms {
		rooms[id] = state
	}
	s.mu.RUnlock()

	flushed := 0
	for roomID, state := range rooms {
		state.mu.Lock()
		pending := make(map[string]string, len(state.dirty))
		for lang := range state.dirty {
			pending[lang] = state.code[lang]
		}
		state.mu.Unlock()

		for lang, text := range pending {
			if err := s.database.SaveCode(roomID, lang, text); err != nil {
				log.Warn().Err(err).Str("room", roomID).Str("language", lang).Msg("autosave write failed")
				continue
			}
			flushed++

			state.mu.Lock()
			// Only clear if no newer edit landed while we were writing.
			if state.code[lang] == text {
				delete(state.dirty, lang)
			}
			state.mu.Unlock()
		}
	}
	return flushed
}

// RoomCount returns the number of cached rooms.
func (s *Store) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
