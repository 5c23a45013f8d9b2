package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hyperjump/kotae/internal/session"
	"go.uber.org/zap"
)

// Frame types exchanged over /ws.
const (
	frameReady     = "ready"
	frameUserText  = "user_text"
	frameInterrupt = "interrupt"
	frameBotText   = "bot_text"
	frameError     = "error"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxFrameSize = 64 << 10
)

// serializationFailed is written verbatim when an outbound frame cannot be encoded.
var serializationFailed = []byte(`{"type":"error","message":"serialization_failed"}`)

type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type readyFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type textFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// wsConn serialises writes to one connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		data = serializationFailed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(wsMaxFrameSize)
	c := &wsConn{conn: conn}

	sess := s.sessions.Open(s.engine)
	logger := s.logger.With(zap.String("session_id", sess.ID()))
	ctx, cancel := context.WithCancel(r.Context())

	turns := make(chan queuedTurn, max(s.config.Session.QueueSize, 1))
	var worker sync.WaitGroup
	worker.Add(1)
	go func() {
		defer worker.Done()
		s.runTurns(ctx, sess, c, turns, logger)
	}()
	go func() {
		select {
		case <-sess.Done():
			_ = conn.Close()
		case <-ctx.Done():
		}
	}()
	defer func() {
		close(turns)
		cancel()
		s.sessions.Close(sess.ID())
		worker.Wait()
		_ = conn.Close()
		logger.Debug("websocket closed")
	}()

	if err := c.send(readyFrame{Type: frameReady, SessionID: sess.ID()}); err != nil {
		logger.Debug("failed to send ready frame", zap.Error(err))
		return
	}
	sess.MarkReady()
	logger.Debug("websocket session ready")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		var msg inboundFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.send(errorFrame{Type: frameError, Message: "malformed message"})
			continue
		}
		switch msg.Type {
		case frameUserText:
			t := queuedTurn{seq: sess.Accept(), text: msg.Text}
			select {
			case turns <- t:
			default:
				sess.Withdraw()
				_ = c.send(errorFrame{Type: frameError, Message: "too many pending turns"})
			}
		case frameInterrupt:
			sess.Interrupt()
			logger.Debug("turn interrupted")
		default:
			_ = c.send(errorFrame{Type: frameError, Message: "Unsupported message type: " + msg.Type})
		}
	}
}

// queuedTurn is a user turn numbered on receipt so a later interrupt covers it.
type queuedTurn struct {
	seq  uint64
	text string
}

// runTurns answers queued turns in order until turns is closed.
func (s *Server) runTurns(ctx context.Context, sess *session.Session, c *wsConn, turns <-chan queuedTurn, logger *zap.Logger) {
	for t := range turns {
		answer, err := sess.RunTurn(ctx, t.seq, t.text)
		switch {
		case err == nil:
			if err := c.send(textFrame{Type: frameBotText, Text: answer}); err != nil {
				logger.Debug("failed to deliver answer", zap.Error(err))
			}
		case errors.Is(err, session.ErrEmptyTurn), errors.Is(err, session.ErrInterrupted):
			logger.Debug("turn produced no answer", zap.Error(err))
		case errors.Is(err, session.ErrClosed):
			return
		default:
			logger.Warn("turn failed", zap.Error(err))
		}
	}
}
