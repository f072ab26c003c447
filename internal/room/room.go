package room

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"draftproxy/internal/upstream"
	"draftproxy/pkg/types"
)

// retireGracePeriod is how long a room survives with no clients before it is
// torn down. Brief browser reloads reconnect well inside this window.
const retireGracePeriod = 2 * time.Second

// Client is the room's view of a downstream session.
type Client interface {
	ID() string
	PlatformUserID() string
	Send(v interface{}) error
	CloseWithCode(code int, reason string)
}

// EventRecorder journals lifecycle events for the diagnostics surface.
type EventRecorder interface {
	Record(event, leagueID, detail string)
}

// Options carries the immutable identity of a room plus tunables.
type Options struct {
	LeagueID             string
	DraftPosition        int
	UpstreamURL          string
	PlatformUserID       string
	HeartbeatInterval    time.Duration
	DialTimeout          time.Duration
	MaxReconnectAttempts int
}

type member struct {
	client        Client
	draftPosition int
}

// Room groups every downstream session for one league onto a single upstream
// link and enforces the lifecycle rules that make the fan-out correct. All
// mutations of room state are serialized behind one mutex: client arrival and
// departure, reconnect requests, upstream events, and the retirement timer
// never interleave.
type Room struct {
	leagueID    string
	upstreamURL string
	opts        Options
	onRetire    func(leagueID string)
	recorder    EventRecorder
	logger      *logrus.Entry

	mu                    sync.Mutex
	members               []*member
	link                  *upstream.Link
	primaryDraftPosition  int
	platformUserID        string
	hasSentJoin           bool
	lastHeartbeatAt       time.Time
	reconnectAttempts     int
	intentionalDisconnect bool
	retireTimer           *time.Timer
	heartbeatStop         chan struct{}
	retired               bool
}

// New creates a room for one league. onRetire is invoked (from the retirement
// timer goroutine) when the grace period expires with no clients; the registry
// uses it to drop the room.
func New(opts Options, onRetire func(leagueID string), recorder EventRecorder, logger *logrus.Logger) *Room {
	return &Room{
		leagueID:             opts.LeagueID,
		upstreamURL:          opts.UpstreamURL,
		opts:                 opts,
		onRetire:             onRetire,
		recorder:             recorder,
		logger:               logger.WithField("room", opts.LeagueID),
		primaryDraftPosition: opts.DraftPosition,
		platformUserID:       opts.PlatformUserID,
	}
}

// LeagueID returns the room's identity.
func (r *Room) LeagueID() string { return r.leagueID }

// UpstreamURL returns the address this room's links dial.
func (r *Room) UpstreamURL() string { return r.upstreamURL }

// ClientsCount returns the number of attached sessions.
func (r *Room) ClientsCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// AddClient attaches a session to the room with its draft position. Returns
// false if the room lost the race with its own retirement; the caller should
// fetch a fresh room from the registry and retry.
//
// The upstream emits a one-shot initialization burst on join, so when the
// room already has clients (or an open link), the existing link is closed and
// a fresh one dialed: every current client then observes a fresh
// initialization. The newest arrival also becomes the primary identity used
// when composing the join frame.
func (r *Room) AddClient(c Client, draftPosition int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.retired {
		return false
	}

	if r.retireTimer != nil {
		r.retireTimer.Stop()
		r.retireTimer = nil
		r.logger.Info("Retirement cancelled, client arrived within grace period")
	}

	if len(r.members) > 0 || (r.link != nil && r.link.IsOpen()) {
		r.logger.WithField("session", c.ID()).Info("Forcing upstream reconnection for new client")
		if r.link != nil {
			r.link.Close(1000, "New client joined — forcing reconnection", true)
			r.link = nil
		}
		r.hasSentJoin = false
		r.intentionalDisconnect = false
		r.record("forced_reinit", "new client joined")
	}

	r.members = append(r.members, &member{client: c, draftPosition: draftPosition})
	r.primaryDraftPosition = draftPosition
	r.platformUserID = c.PlatformUserID()

	r.connectLocked()

	joined := types.RoomJoined{
		Type:           types.MessageTypeRoomJoined,
		RoomID:         r.leagueID,
		YahooConnected: false,
		ClientsCount:   len(r.members),
		DraftPosition:  draftPosition,
	}
	if err := c.Send(joined); err != nil {
		r.logger.WithField("session", c.ID()).WithError(err).Warn("Failed to send room_joined")
	}

	r.record("client_joined", c.ID())
	r.logger.WithFields(logrus.Fields{
		"session":       c.ID(),
		"draftPosition": draftPosition,
		"clients":       len(r.members),
	}).Info("Client added to room")
	return true
}

// Retired reports whether the room has been torn down.
func (r *Room) Retired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retired
}

// RemoveClient detaches a session. When the last one leaves, retirement is
// scheduled after the grace period instead of tearing down immediately.
func (r *Room) RemoveClient(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.members {
		if m.client == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	r.record("client_left", c.ID())
	r.logger.WithFields(logrus.Fields{
		"session": c.ID(),
		"clients": len(r.members),
	}).Info("Client removed from room")

	if len(r.members) == 0 && !r.retired {
		if r.retireTimer != nil {
			r.retireTimer.Stop()
		}
		r.retireTimer = time.AfterFunc(retireGracePeriod, r.retire)
		r.logger.Info("Room empty, retirement scheduled")
	}
}

// SendToUpstream forwards a downstream payload to the upstream link. Frames
// that arrive while the link is not open are logged and dropped.
func (r *Room) SendToUpstream(data []byte) {
	r.mu.Lock()
	link := r.link
	r.mu.Unlock()

	if link == nil || !link.IsOpen() {
		r.logger.Warn("Dropping frame, upstream not open")
		return
	}
	if err := link.Send(data); err != nil {
		r.logger.WithError(err).Warn("Failed to forward frame upstream")
	}
}

// HandleClientReconnect tears down the current link and dials a fresh one at
// a client's request. A request naming a different league is rejected. A new
// draft position becomes the primary used in the next join frame.
func (r *Room) HandleClientReconnect(req *types.ReconnectRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.LeagueID != r.leagueID {
		return ErrLeagueMismatch
	}
	if req.DraftPosition != r.primaryDraftPosition && types.IsValidDraftPosition(req.DraftPosition) {
		r.primaryDraftPosition = req.DraftPosition
	}

	if r.link != nil {
		r.link.Close(1000, "Client-initiated reconnection", true)
		r.link = nil
	}
	r.hasSentJoin = false
	r.intentionalDisconnect = false

	r.connectLocked()
	r.record("client_reconnect", req.LeagueID)
	r.logger.WithField("draftPosition", r.primaryDraftPosition).Info("Client-initiated upstream reconnection")
	return nil
}

// Cleanup closes the upstream and cancels timers without touching sessions.
// Safe to call more than once; used on retirement, URL swap and shutdown.
func (r *Room) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked()
}

// CloseAllClients disconnects every attached session with the given close
// code, for force-retire and process shutdown.
func (r *Room) CloseAllClients(code int, reason string) {
	r.mu.Lock()
	members := make([]*member, len(r.members))
	copy(members, r.members)
	r.mu.Unlock()

	for _, m := range members {
		m.client.CloseWithCode(code, reason)
	}
}

// connectLocked instantiates a fresh link and kicks the dial. Caller holds mu.
func (r *Room) connectLocked() {
	if r.retired {
		return
	}
	if r.link != nil && (r.link.State() == upstream.StateConnecting || r.link.IsOpen()) {
		return
	}
	r.link = upstream.NewLink(upstream.Options{
		URL:         r.upstreamURL,
		UserAgent:   types.ProxyUserAgent(r.platformUserID),
		DialTimeout: r.opts.DialTimeout,
	}, r, r.logger)
	r.link.Connect()
}

// retire fires when the grace period expires with the room still empty.
func (r *Room) retire() {
	r.mu.Lock()
	if len(r.members) > 0 || r.retired {
		r.mu.Unlock()
		return
	}
	r.intentionalDisconnect = true
	r.cleanupLocked()
	r.mu.Unlock()

	r.record("room_retired", "grace period expired")
	r.logger.Info("Room retired after grace period")
	if r.onRetire != nil {
		r.onRetire(r.leagueID)
	}
}

// cleanupLocked stops timers and heartbeat, closes the link and marks the
// room dead so the registry never hands it out again. Caller holds mu.
func (r *Room) cleanupLocked() {
	if r.retireTimer != nil {
		r.retireTimer.Stop()
		r.retireTimer = nil
	}
	r.stopHeartbeatLocked()
	if r.link != nil {
		r.intentionalDisconnect = true
		r.link.Close(1000, "Room cleanup", true)
		r.link = nil
	}
	r.hasSentJoin = false
	r.retired = true
}

// broadcastLocked fans a frame out to every session in insertion order.
// Session sends enqueue onto buffered per-socket queues, so a slow client
// cannot stall the room. Caller holds mu.
func (r *Room) broadcastLocked(v interface{}) {
	for _, m := range r.members {
		if err := m.client.Send(v); err != nil {
			r.logger.WithField("session", m.client.ID()).WithError(err).Warn("Broadcast to session failed")
		}
	}
}

func (r *Room) record(event, detail string) {
	if r.recorder != nil {
		r.recorder.Record(event, r.leagueID, detail)
	}
}
