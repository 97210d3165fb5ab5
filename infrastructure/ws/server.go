package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"messenger-lab/auth"
	"messenger-lab/domain"
	"messenger-lab/domain/event"
	"messenger-lab/services"
)

var validate = validator.New()

type Server struct {
	log              *slog.Logger
	service          services.IChatService
	tokens           *auth.TokenService
	upgrader         websocket.Upgrader
	bufferSize       int
	maxContentLength int
	writeTimeout     time.Duration
}

func NewServer(log *slog.Logger, service services.IChatService, tokens *auth.TokenService,
	bufferSize, maxContentLength int, writeTimeout time.Duration) *Server {
	return &Server{
		log:     log,
		service: service,
		tokens:  tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		bufferSize:       bufferSize,
		maxContentLength: maxContentLength,
		writeTimeout:     writeTimeout,
	}
}

// HandleConnection upgrades the HTTP request, validates the identity
// token and binds the connection to a fresh session. The session lives
// exactly as long as the read pump: transport close, timeout or explicit
// disconnect all funnel into the same deferred Leave.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, err := s.tokens.Validate(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	sink := NewSink(s.bufferSize)
	sessionID, err := s.service.Join(userID, sink)
	if err != nil {
		s.log.Warn("Join refused", "user_id", userID, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(s.writeTimeout))
		_ = conn.Close()
		return
	}

	s.log.Info("Session joined", "user_id", userID, "session_id", string(sessionID))

	done := make(chan struct{})
	go s.writePump(conn, sink, done)
	s.readPump(conn, userID, sessionID, sink)

	close(done)
	s.service.Leave(sessionID)
	_ = conn.Close()
	s.log.Info("Session left", "user_id", userID, "session_id", string(sessionID))
}

// readPump decodes inbound frames until the connection dies. Malformed
// frames are skipped, not fatal; a chat client in the wild sends garbage
// more often than it reconnects.
func (s *Server) readPump(conn *websocket.Conn, userID string, sessionID domain.SessionID, sink *Sink) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case frameSubmitMessage:
			s.handleSubmit(frame.Payload, userID, sessionID, sink)
		case frameTypingStart:
			s.handleTyping(frame.Payload, userID, true)
		case frameTypingStop:
			s.handleTyping(frame.Payload, userID, false)
		default:
			s.log.Debug("Unknown frame type", "type", frame.Type)
		}
	}
}

func (s *Server) handleSubmit(raw json.RawMessage, userID string, sessionID domain.SessionID, sink *Sink) {
	var payload submitPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	reject := func(reason string) {
		// Route the rejection through the sink so the write pump stays
		// the single writer on this connection.
		_ = sink.Consume(context.Background(), event.MessageFailed{
			Chat:          payload.ChatID,
			CorrelationID: payload.CorrelationID,
			Reason:        reason,
		})
	}

	if err := validate.Struct(payload); err != nil {
		reject("invalid message submission")
		return
	}
	if s.maxContentLength > 0 && len(payload.Body) > s.maxContentLength {
		reject(fmt.Sprintf("body exceeds %d bytes", s.maxContentLength))
		return
	}
	kind, ok := domain.ParseKind(payload.Kind)
	if !ok {
		reject("unknown message kind")
		return
	}

	err := s.service.Submit(domain.SubmitMessage{
		ChatID:        payload.ChatID,
		SenderID:      userID,
		Body:          payload.Body,
		Kind:          kind,
		CorrelationID: payload.CorrelationID,
		Origin:        sessionID,
		SubmittedAt:   time.Now().UTC(),
	})
	if err != nil {
		reject(err.Error())
	}
}

func (s *Server) handleTyping(raw json.RawMessage, userID string, isTyping bool) {
	var payload typingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if err := validate.Struct(payload); err != nil {
		return
	}
	s.service.Typing(context.Background(), payload.ChatID, userID, isTyping)
}

// writePump is the only goroutine writing on the connection. It drains
// the session sink until the read pump signals shutdown.
func (s *Server) writePump(conn *websocket.Conn, sink *Sink, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case evt := <-sink.Events():
			frame, ok := toFrame(evt)
			if !ok {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				s.log.Warn("WebSocket write failed", "error", err)
				return
			}
		}
	}
}
