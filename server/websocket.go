package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mizuhq/konichiwa/auth"
	"github.com/mizuhq/konichiwa/chat"
	"github.com/mizuhq/konichiwa/inference"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and runs a chat session over
// it. Authentication uses the token query parameter.
func (s *Server) handleWebSocket(c *gin.Context) {
	token := bearerToken(c)
	identity, err := s.authn.Current(c.Request.Context(), token)
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctrl, err := s.controller(c, identity)
	if err != nil {
		s.logger.Printf("History bootstrap failed for %s: %v", identity.ID, err)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sock := newChatSocket(identity, ctrl, conn)
	sock.runLoop(c.Request.Context())
}

// socketWriter serializes concurrent writes to one WebSocket connection.
type socketWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *socketWriter) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *socketWriter) writeError(message string) error {
	return w.writeJSON(map[string]string{"type": "error", "error": message})
}

// chatSocket runs the conversation workflow over one WebSocket
// connection.
type chatSocket struct {
	identity auth.Identity
	ctrl     *chat.Controller
	writer   *socketWriter
	logger   *log.Logger
}

func newChatSocket(identity auth.Identity, ctrl *chat.Controller, conn *websocket.Conn) *chatSocket {
	return &chatSocket{
		identity: identity,
		ctrl:     ctrl,
		writer:   &socketWriter{conn: conn},
		logger:   log.New(os.Stdout, fmt.Sprintf("[ws %s] ", identity.ID), log.LstdFlags),
	}
}

type socketTurn struct {
	Type string `json:"type"`
	chat.Turn
}

// runLoop sends the current transcript, then processes one submission at
// a time until the client disconnects.
func (cs *chatSocket) runLoop(ctx context.Context) {
	defer cs.writer.conn.Close()

	if err := cs.writer.writeJSON(gin.H{
		"type":     "history",
		"messages": cs.ctrl.Transcript(),
	}); err != nil {
		cs.logger.Printf("Error sending history: %v", err)
		return
	}

	for {
		var req messageRequest
		if err := cs.writer.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cs.logger.Printf("WebSocket error: %v", err)
			}
			return
		}

		turn, err := cs.ctrl.Submit(ctx, req.Message)
		switch {
		case err == nil:
			if err := cs.writer.writeJSON(socketTurn{Type: "turn", Turn: turn}); err != nil {
				cs.logger.Printf("Error writing turn: %v", err)
				return
			}
		case errors.Is(err, chat.ErrEmptyMessage):
			cs.writer.writeError("message must not be empty")
		case errors.Is(err, chat.ErrTurnInFlight):
			cs.writer.writeError("a message is already being processed")
		default:
			var infErr *inference.InferenceError
			if errors.As(err, &infErr) {
				// The user message persisted; only the reply was lost.
				cs.writer.writeJSON(gin.H{
					"type":         "error",
					"error":        "failed to get AI response",
					"user_message": turn.UserMessage,
				})
				continue
			}
			cs.writer.writeError("failed to save message")
		}
	}
}
