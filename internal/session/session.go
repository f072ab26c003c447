package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"draftproxy/internal/room"
	"draftproxy/pkg/types"
)

// Conn is the session's view of its downstream socket.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (int, []byte, error)
	CloseWithCode(code int, reason string)
	Close()
}

// RoomHandle is the subset of room operations a session drives.
type RoomHandle interface {
	SendToUpstream(data []byte)
	HandleClientReconnect(req *types.ReconnectRequest) error
	RemoveClient(c room.Client)
}

// Session wraps one accepted downstream WebSocket. It parses control
// messages off the socket and routes payloads to its room. A session belongs
// to exactly one room for its lifetime.
type Session struct {
	id             string
	draftPosition  int
	platformUserID string
	conn           Conn
	logger         *logrus.Entry

	mu   sync.Mutex
	room RoomHandle
}

// New creates a session around an accepted socket.
func New(id string, draftPosition int, platformUserID string, conn Conn, logger *logrus.Logger) *Session {
	return &Session{
		id:             id,
		draftPosition:  draftPosition,
		platformUserID: platformUserID,
		conn:           conn,
		logger:         logger.WithField("session", id),
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// DraftPosition returns the position this session connected with.
func (s *Session) DraftPosition() int { return s.draftPosition }

// PlatformUserID returns the platform user this session identified as.
func (s *Session) PlatformUserID() string { return s.platformUserID }

// AttachRoom binds the session to its room. Called once, before ReadLoop.
func (s *Session) AttachRoom(r RoomHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = r
}

// Send queues a frame for the downstream client.
func (s *Session) Send(v interface{}) error {
	return s.conn.WriteJSON(v)
}

// CloseWithCode disconnects the downstream client.
func (s *Session) CloseWithCode(code int, reason string) {
	s.conn.CloseWithCode(code, reason)
}

// ReadLoop pumps downstream frames until the socket dies, then detaches the
// session from its room. Blocks; run on the acceptor's handler goroutine.
func (s *Session) ReadLoop() {
	defer func() {
		s.mu.Lock()
		r := s.room
		s.mu.Unlock()
		if r != nil {
			r.RemoveClient(s)
		}
		s.conn.Close()
		s.logger.Info("Session closed")
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(data)
	}
}

// handleFrame interprets one downstream frame. JSON control messages are
// dispatched by tag; anything that is not a control message is forwarded to
// the upstream verbatim.
func (s *Session) handleFrame(data []byte) {
	s.mu.Lock()
	r := s.room
	s.mu.Unlock()
	if r == nil {
		s.logger.Warn("Frame received before room attachment, dropping")
		return
	}

	cmd, err := types.DecodeClientCommand(data)
	if err != nil {
		r.SendToUpstream(data)
		return
	}

	switch cmd.Type {
	case types.CommandTypeYahooMessage:
		payload, err := cmd.MessageData()
		if err != nil {
			s.logger.WithError(err).Debug("Malformed yahoo_message payload")
			return
		}
		r.SendToUpstream([]byte(payload))

	case types.CommandTypeYahooReconnect:
		req, err := cmd.ReconnectData()
		if err == nil {
			err = r.HandleClientReconnect(req)
		}
		if err != nil {
			s.logger.WithError(err).Warn("Reconnect request failed")
			if sendErr := s.Send(types.YahooError{
				Type:  types.MessageTypeYahooError,
				Error: "Failed to reconnect to Yahoo",
			}); sendErr != nil {
				s.logger.WithError(sendErr).Warn("Failed to send reconnect error")
			}
		}

	default:
		s.logger.WithField("type", cmd.Type).Debug("Ignoring unknown control message")
	}
}
