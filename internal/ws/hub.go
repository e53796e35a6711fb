package ws

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codehive/backend/internal/db"
	"github.com/codehive/backend/internal/presence"
	"github.com/codehive/backend/internal/protocol"
	"github.com/codehive/backend/internal/room"
)

// Hub owns room membership and runs the single event loop. Every join,
// leave, and relayed event for a room passes through Run, so handlers for
// the same room never interleave mid-update.
type Hub struct {
	store    *room.Store
	presence *presence.Tracker

	// Connected clients by room
	rooms map[string]map[*Client]bool

	join       chan *joinRequest
	unregister chan *Client
	events     chan *clientEvent

	mu sync.RWMutex
}

type joinRequest struct {
	client   *Client
	roomID   string
	username string
}

type clientEvent struct {
	client *Client
	msg    *protocol.Message
}

func NewHub(store *room.Store) *Hub {
	if store == nil {
		store = room.NewStore(nil)
	}
	return &Hub{
		store:      store,
		presence:   presence.NewTracker(),
		rooms:      make(map[string]map[*Client]bool),
		join:       make(chan *joinRequest),
		unregister: make(chan *Client),
		events:     make(chan *clientEvent),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case req := <-h.join:
			h.handleJoin(req)

		case client := <-h.unregister:
			h.handleLeave(client)

		case event := <-h.events:
			switch event.msg.Event {
			case protocol.EventCodeChange:
				h.handleCodeChange(event)
			case protocol.EventRunCode:
				h.handleRunCode(event)
			}
		}
	}
}

func (h *Hub) handleJoin(req *joinRequest) {
	if err := room.ValidateRoomID(req.roomID); err != nil {
		h.send(req.client, protocol.EventError, protocol.ErrorPayload{
			Message: "invalid room id",
		})
		return
	}

	client := req.client
	client.roomID = req.roomID
	client.username = req.username

	h.mu.Lock()
	if _, ok := h.rooms[req.roomID]; !ok {
		h.rooms[req.roomID] = make(map[*Client]bool)
	}
	h.rooms[req.roomID][client] = true
	h.mu.Unlock()

	// The joiner gets the room's current snapshot before any later
	// code_change can be queued for it.
	snapshot := h.store.GetOrCreate(req.roomID)
	h.send(client, protocol.EventLoadCode, protocol.LoadCodePayload{Code: snapshot})

	users := h.presence.Join(req.roomID, client.id, req.username)
	h.broadcast(req.roomID, nil, protocol.EventRoomUsers, protocol.RoomUsersPayload{Users: users})

	log.Info().Str("room", req.roomID).Str("client", client.id).
		Int("participants", len(users)).Msg("client joined room")
}

func (h *Hub) handleLeave(client *Client) {
	departures := h.presence.Leave(client.id)

	h.mu.Lock()
	for _, departure := range departures {
		if clients, ok := h.rooms[departure.RoomID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, departure.RoomID)
			}
		}
	}
	h.closeSend(client)
	h.mu.Unlock()

	for _, departure := range departures {
		h.broadcast(departure.RoomID, nil, protocol.EventUserLeft, protocol.UserLeftPayload{
			SocketID: departure.User.SocketID,
			Username: departure.User.Username,
		})
		h.broadcast(departure.RoomID, nil, protocol.EventRoomUsers, protocol.RoomUsersPayload{
			Users: h.presence.ListUsers(departure.RoomID),
		})
		log.Info().Str("room", departure.RoomID).Str("client", client.id).Msg("client left room")
	}
}

func (h *Hub) handleCodeChange(event *clientEvent) {
	client := event.client
	if client.roomID == "" {
		return
	}

	var payload protocol.CodeChangePayload
	if err := protocol.DecodePayload(event.msg, &payload); err != nil {
		log.Warn().Err(err).Str("client", client.id).Msg("bad code_change payload")
		return
	}

	for language, text := range payload.Code {
		if !db.SupportedLanguage(language) {
			continue
		}
		h.store.ApplyEdit(client.roomID, language, text)
	}

	// Relay verbatim to everyone else; the sender never sees its own echo.
	h.broadcast(client.roomID, client, protocol.EventCodeChange, protocol.CodeChangePayload{
		Code:     payload.Code,
		Username: payload.Username,
		Changes:  payload.Changes,
	})
}

func (h *Hub) handleRunCode(event *clientEvent) {
	client := event.client
	if client.roomID == "" {
		return
	}

	var payload protocol.RunCodePayload
	if err := protocol.DecodePayload(event.msg, &payload); err != nil {
		log.Warn().Err(err).Str("client", client.id).Msg("bad run_code payload")
		return
	}

	h.broadcast(client.roomID, client, protocol.EventRunCodeOutput, protocol.RunCodePayload{
		Output: payload.Output,
	})
}

// send queues a frame for one client, dropping the client if its buffer
// is full.
func (h *Hub) send(client *Client, event string, payload interface{}) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode failed")
		return
	}

	if client.sendClosed {
		return
	}
	select {
	case client.send <- data:
	default:
		h.drop(client)
	}
}

// broadcast fans a frame out to every client in the room except the sender.
func (h *Hub) broadcast(roomID string, except *Client, event string, payload interface{}) {
	clients, ok := h.rooms[roomID]
	if !ok {
		return
	}

	data, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode failed")
		return
	}

	for client := range clients {
		if client == except || client.sendClosed {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.drop(client)
		}
	}
}

// drop removes a client whose send buffer is full. The transport-level
// disconnect that follows runs through handleLeave, which finds nothing
// left to clean up.
func (h *Hub) drop(client *Client) {
	for _, departure := range h.presence.Leave(client.id) {
		h.mu.Lock()
		if clients, ok := h.rooms[departure.RoomID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, departure.RoomID)
			}
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	h.closeSend(client)
	h.mu.Unlock()

	log.Warn().Str("client", client.id).Str("room", client.roomID).Msg("dropped slow client")
}

// closeSend closes the client's outbound channel once. Callers must hold mu.
func (h *Hub) closeSend(client *Client) {
	if !client.sendClosed {
		client.sendClosed = true
		close(client.send)
	}
}

// Stats accessors used by the API.

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, clients := range h.rooms {
		total += len(clients)
	}
	return total
}

func (h *Hub) GetActiveUsers(roomID string) int {
	return h.presence.Count(roomID)
}
