package live

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	maxTopicLength = 64
)

// Control message actions sent by clients.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// ControlMessage is what a client sends to join or leave a list's topic.
type ControlMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Reply acknowledges a control message.
type Reply struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Error string `json:"error,omitempty"`
}

// WSHandler serves the live channel over WebSocket.
type WSHandler struct {
	hub      *Hub
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a handler. allowedOrigin "*" accepts any origin.
func NewWSHandler(hub *Hub, logger *logrus.Logger, allowedOrigin string) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	sub := h.hub.NewSubscriber()
	replies := make(chan Reply, 8)
	done := make(chan struct{})

	go h.writeLoop(conn, sub, replies, done)

	h.readLoop(conn, sub, replies)

	// The read side ends on any disconnect: drop every membership so topics
	// never accumulate dead viewers.
	h.hub.UnsubscribeAll(sub)
	close(done)
}

func (h *WSHandler) readLoop(conn *websocket.Conn, sub *Subscriber, replies chan<- Reply) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ControlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Debug("websocket closed unexpectedly")
			}
			return
		}

		reply := h.apply(msg, sub)
		select {
		case replies <- reply:
		default:
		}
	}
}

func (h *WSHandler) apply(msg ControlMessage, sub *Subscriber) Reply {
	if msg.Topic == "" || len(msg.Topic) > maxTopicLength {
		return Reply{Type: "error", Error: "invalid topic"}
	}

	switch msg.Action {
	case ActionJoin:
		h.hub.Subscribe(msg.Topic, sub)
		return Reply{Type: "joined", Topic: msg.Topic}
	case ActionLeave:
		h.hub.Unsubscribe(msg.Topic, sub)
		return Reply{Type: "left", Topic: msg.Topic}
	default:
		return Reply{Type: "error", Topic: msg.Topic, Error: "unknown action"}
	}
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, sub *Subscriber, replies <-chan Reply, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		var payload any
		select {
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-sub.Events():
			payload = ev
		case reply := <-replies:
			payload = reply
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(payload); err != nil {
			h.logger.WithError(err).Debug("websocket write failed")
			return
		}
	}
}
