package registry

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"draftproxy/internal/room"
)

// Config carries the room tunables every new room inherits.
type Config struct {
	HeartbeatInterval    time.Duration
	DialTimeout          time.Duration
	MaxReconnectAttempts int
}

// RoomArgs is everything needed to instantiate a room for a league.
type RoomArgs struct {
	LeagueID       string
	DraftPosition  int
	UpstreamURL    string
	PlatformUserID string
}

// Registry is the process-wide mapping from league identifier to room. It
// serializes creation and retirement so no two rooms ever share a league.
// It is injected where needed rather than reached through a global.
type Registry struct {
	cfg      Config
	recorder room.EventRecorder
	logger   *logrus.Logger

	mu    sync.RWMutex
	rooms map[string]*room.Room
}

// New creates an empty registry.
func New(cfg Config, recorder room.EventRecorder, logger *logrus.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		rooms:    make(map[string]*room.Room),
	}
}

// GetOrCreate returns the room for a league, creating it on first arrival.
// The second return reports whether a new room was created. A room caught
// mid-retirement is replaced rather than handed out.
func (reg *Registry) GetOrCreate(args RoomArgs) (*room.Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[args.LeagueID]; ok && !r.Retired() {
		return r, false
	}

	r := reg.newRoomLocked(args)
	reg.rooms[args.LeagueID] = r
	return r, true
}

// SwapIfURLChanged replaces a league's room when an incoming client names a
// different upstream URL than the existing room dials. The old room is
// cleaned up (idempotent) and a replacement is created under the same league.
func (reg *Registry) SwapIfURLChanged(args RoomArgs) bool {
	reg.mu.Lock()
	existing, ok := reg.rooms[args.LeagueID]
	if !ok || existing.UpstreamURL() == args.UpstreamURL {
		reg.mu.Unlock()
		return false
	}

	replacement := reg.newRoomLocked(args)
	reg.rooms[args.LeagueID] = replacement
	reg.mu.Unlock()

	existing.Cleanup()
	reg.logger.WithFields(logrus.Fields{
		"room": args.LeagueID,
		"url":  args.UpstreamURL,
	}).Info("Replaced room for new upstream URL")
	return true
}

// Get returns the room for a league, if present.
func (reg *Registry) Get(leagueID string) (*room.Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[leagueID]
	return r, ok
}

// Remove drops a league's room unconditionally. Used by force-retire.
func (reg *Registry) Remove(leagueID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, leagueID)
}

// List snapshots the current rooms.
func (reg *Registry) List() []*room.Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rooms := make([]*room.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Count returns the number of active rooms.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// TotalClients sums downstream sessions across all rooms.
func (reg *Registry) TotalClients() int {
	total := 0
	for _, r := range reg.List() {
		total += r.ClientsCount()
	}
	return total
}

// Shutdown disconnects every session and upstream link. Downstream sockets
// close with 1001 so browsers know the server is going away.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	rooms := make([]*room.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.rooms = make(map[string]*room.Room)
	reg.mu.Unlock()

	for _, r := range rooms {
		r.CloseAllClients(1001, "Server shutdown")
		r.Cleanup()
	}
	reg.logger.WithField("rooms", len(rooms)).Info("Registry shut down")
}

// newRoomLocked builds a room whose retirement removes exactly itself: a
// replacement registered under the same league is never deleted by a stale
// retirement timer. Caller holds mu.
func (reg *Registry) newRoomLocked(args RoomArgs) *room.Room {
	var r *room.Room
	onRetire := func(leagueID string) {
		reg.mu.Lock()
		if reg.rooms[leagueID] == r {
			delete(reg.rooms, leagueID)
		}
		reg.mu.Unlock()
	}
	r = room.New(room.Options{
		LeagueID:             args.LeagueID,
		DraftPosition:        args.DraftPosition,
		UpstreamURL:          args.UpstreamURL,
		PlatformUserID:       args.PlatformUserID,
		HeartbeatInterval:    reg.cfg.HeartbeatInterval,
		DialTimeout:          reg.cfg.DialTimeout,
		MaxReconnectAttempts: reg.cfg.MaxReconnectAttempts,
	}, onRetire, reg.recorder, reg.logger)

	if reg.recorder != nil {
		reg.recorder.Record("room_created", args.LeagueID, args.UpstreamURL)
	}
	reg.logger.WithFields(logrus.Fields{
		"room": args.LeagueID,
		"url":  args.UpstreamURL,
	}).Info("Room created")
	return r
}
