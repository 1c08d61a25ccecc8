package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is a request over the WebSocket.
type WSMessage struct {
	Type    string          `json:"type"` // "evaluate", "moves" or "ping"
	ID      string          `json:"id"`   // echoed in the response
	Payload json.RawMessage `json:"payload"`
}

// WSResponse answers one WSMessage.
type WSResponse struct {
	Type    string         `json:"type"` // "result", "error" or "pong"
	ID      string         `json:"id,omitempty"`
	Payload any            `json:"payload,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// wsClient is one WebSocket connection. Requests are served in order.
type wsClient struct {
	conn *websocket.Conn
	h    *Handlers
	send chan WSResponse
}

// WebSocket handles GET /api/ws
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	c := &wsClient{conn: conn, h: h, send: make(chan WSResponse, 256)}
	go c.writePump()
	c.readPump()
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *wsClient) readPump() {
	defer close(c.send)
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket read")
			}
			return
		}
		c.send <- c.handle(msg)
	}
}

func (c *wsClient) fail(id string, err *apiError) WSResponse {
	return WSResponse{Type: "error", ID: id, Error: err.response()}
}

func (c *wsClient) handle(msg WSMessage) WSResponse {
	var (
		result any
		aerr   *apiError
	)
	switch msg.Type {
	case "ping":
		return WSResponse{Type: "pong", ID: msg.ID}
	case "evaluate":
		var req EvaluateRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return c.fail(msg.ID, badRequest("INVALID_JSON", "invalid payload"))
		}
		result, aerr = c.h.evaluate(req)
	case "moves":
		var req MoveRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return c.fail(msg.ID, badRequest("INVALID_JSON", "invalid payload"))
		}
		result, aerr = c.h.moves(req)
	default:
		return c.fail(msg.ID, badRequest("UNKNOWN_TYPE", "unknown message type "+msg.Type))
	}
	if aerr != nil {
		return c.fail(msg.ID, aerr)
	}
	return WSResponse{Type: "result", ID: msg.ID, Payload: result}
}
