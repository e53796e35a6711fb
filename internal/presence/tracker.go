package presence

import (
	"sort"
	"sync"
)

// FallbackName is substituted when a participant joins with no display name.
const FallbackName = "Anonymous"

// User is one connected participant as seen by the rest of the room.
type User struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

// Departure records a connection leaving one room.
type Departure struct {
	RoomID string
	User   User
}

// Tracker maintains the per-room participant sets. Membership is keyed by
// connection id; display names are not unique and never used as keys.
type Tracker struct {
	rooms map[string]map[string]string // roomID -> connID -> name
	conns map[string]map[string]bool   // connID -> set of roomIDs
	mu    sync.RWMutex
}

func NewTracker() *Tracker {
	return &Tracker{
		rooms: make(map[string]map[string]string),
		conns: make(map[string]map[string]bool),
	}
}

// Join registers a connection in a room and returns the room's deduplicated
// participant list. Joining twice with the same connection id updates the
// name rather than adding a second entry.
func (t *Tracker) Join(roomID, connID, displayName string) []User {
	if displayName == "" {
		displayName = FallbackName
	}

	t.mu.Lock()
	if _, ok := t.rooms[roomID]; !ok {
		t.rooms[roomID] = make(map[string]string)
	}
	t.rooms[roomID][connID] = displayName

	if _, ok := t.conns[connID]; !ok {
		t.conns[connID] = make(map[string]bool)
	}
	t.conns[connID][roomID] = true
	t.mu.Unlock()

	return t.ListUsers(roomID)
}

// Leave removes the connection from every room it belongs to and reports
// each departure so callers can notify the affected rooms.
func (t *Tracker) Leave(connID string) []Departure {
	t.mu.Lock()
	defer t.mu.Unlock()

	var departures []Departure
	for roomID := range t.conns[connID] {
		members, ok := t.rooms[roomID]
		if !ok {
			continue
		}
		name, ok := members[connID]
		if !ok {
			continue
		}

		delete(members, connID)
		if len(members) == 0 {
			delete(t.rooms, roomID)
		}

		departures = append(departures, Departure{
			RoomID: roomID,
			User:   User{SocketID: connID, Username: name},
		})
	}
	delete(t.conns, connID)

	return departures
}

// ListUsers returns the deduplicated participant list for a room, in a
// stable order for callers that compare lists.
func (t *Tracker) ListUsers(roomID string) []User {
	t.mu.RLock()
	defer t.mu.RUnlock()

	members := t.rooms[roomID]
	users := make([]User, 0, len(members))
	for connID, name := range members {
		users = append(users, User{SocketID: connID, Username: name})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].SocketID < users[j].SocketID })
	return users
}

// Count returns the number of participants in a room.
func (t *Tracker) Count(roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms[roomID])
}
