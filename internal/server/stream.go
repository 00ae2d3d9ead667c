package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/studiowebux/perfwatch/internal/poller"
	"github.com/studiowebux/perfwatch/internal/session"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Stream message types
const (
	MessageSnapshot = "snapshot"
	MessageDone     = "done"
	MessageError    = "error"
)

// StreamMessage is pushed to websocket clients
type StreamMessage struct {
	Type     string            `json:"type"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ClientMessage is sent by websocket clients to switch tabs
type ClientMessage struct {
	Tab string `json:"tab"`
}

// stream follows one execution per connection. The session lives as long as the socket.
func (s *Server) stream(c *gin.Context) {
	id := c.Param("id")
	tab, err := poller.ParseTab(c.Query("tab"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.log.With(zap.String("execution", id), zap.String("remote", c.ClientIP()))
	log.Info("stream opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := session.New(s.src, s.opts.Session)
	defer sess.Close()
	sess.SetTab(tab)

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	outbox := make(chan StreamMessage, 4)
	go s.readLoop(ctx, cancel, conn, sess, outbox, log)

	if err := sess.Open(ctx, id); err != nil {
		s.write(conn, StreamMessage{Type: MessageError, Error: err.Error()}, log)
		return
	}

	done := sess.Done()
	for {
		select {
		case <-ctx.Done():
			log.Info("stream closed")
			return
		case msg := <-outbox:
			if !s.write(conn, msg, log) {
				return
			}
		case _, ok := <-updates:
			if !ok {
				return
			}
			if !s.write(conn, StreamMessage{Type: MessageSnapshot, Snapshot: sess.Snapshot()}, log) {
				return
			}
		case <-done:
			done = nil
			msg := StreamMessage{Type: MessageDone, Snapshot: sess.Snapshot()}
			if err := sess.Err(); err != nil {
				msg.Error = err.Error()
			}
			if !s.write(conn, msg, log) {
				return
			}
		}
	}
}

// readLoop applies tab switches until the client goes away
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session.Session, outbox chan<- StreamMessage, log *zap.Logger) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("stream read failed", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.enqueue(ctx, outbox, StreamMessage{Type: MessageError, Error: "invalid message: " + err.Error()})
			continue
		}
		tab, err := poller.ParseTab(msg.Tab)
		if err != nil {
			s.enqueue(ctx, outbox, StreamMessage{Type: MessageError, Error: err.Error()})
			continue
		}
		sess.SetTab(tab)
	}
}

func (s *Server) enqueue(ctx context.Context, outbox chan<- StreamMessage, msg StreamMessage) {
	select {
	case outbox <- msg:
	case <-ctx.Done():
	}
}

func (s *Server) write(conn *websocket.Conn, msg StreamMessage, log *zap.Logger) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Debug("stream write failed", zap.Error(err))
		return false
	}
	return true
}
