package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/codehive/backend/internal/protocol"
	"github.com/codehive/backend/internal/ratelimit"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 100
	messageBurst      = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *ratelimit.Limiter

	// Stable connection identity; the presence dedup key.
	id string

	// Set by the hub when the join is processed. Read only on the hub loop.
	roomID   string
	username string

	// Guarded by the hub; true once send has been closed.
	sendClosed bool
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 512),
		limiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
		id:      uuid.NewString(),
	}

	log.Info().Str("client", client.id).Str("remote", conn.RemoteAddr().String()).Msg("socket connected")

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("websocket read error")
			}
			break
		}

		if !c.limiter.Allow() {
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("client", c.id).Msg("invalid frame")
			continue
		}

		switch msg.Event {
		case protocol.EventJoinRoom:
			var payload protocol.JoinRoomPayload
			if err := protocol.DecodePayload(msg, &payload); err != nil {
				log.Warn().Err(err).Str("client", c.id).Msg("bad join_room payload")
				continue
			}
			c.hub.join <- &joinRequest{
				client:   c,
				roomID:   payload.RoomID,
				username: payload.Username,
			}

		case protocol.EventCodeChange, protocol.EventRunCode:
			c.hub.events <- &clientEvent{client: c, msg: msg}

		default:
			log.Debug().Str("client", c.id).Str("event", msg.Event).Msg("unknown event")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
