package room

import "time"

// Status is a read-only snapshot of room state for the diagnostics surface.
type Status struct {
	RoomID                  string     `json:"roomId"`
	LeagueID                string     `json:"leagueId"`
	DraftPosition           int        `json:"draftPosition"`
	PlatformUserID          string     `json:"platformUserId"`
	ClientsCount            int        `json:"clientsCount"`
	ClientDraftPositions    []int      `json:"clientDraftPositions"`
	YahooConnected          bool       `json:"yahooConnected"`
	HasJoined               bool       `json:"hasJoined"`
	LastHeartbeat           *time.Time `json:"lastHeartbeat"`
	ReconnectAttempts       int        `json:"reconnectAttempts"`
	IsIntentionalDisconnect bool       `json:"isIntentionalDisconnect"`
}

// Status captures the room under its lock. Client draft positions come back
// in insertion order.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	positions := make([]int, 0, len(r.members))
	for _, m := range r.members {
		positions = append(positions, m.draftPosition)
	}

	var lastHeartbeat *time.Time
	if !r.lastHeartbeatAt.IsZero() {
		t := r.lastHeartbeatAt
		lastHeartbeat = &t
	}

	return Status{
		RoomID:                  r.leagueID,
		LeagueID:                r.leagueID,
		DraftPosition:           r.primaryDraftPosition,
		PlatformUserID:          r.platformUserID,
		ClientsCount:            len(r.members),
		ClientDraftPositions:    positions,
		YahooConnected:          r.link != nil && r.link.IsOpen(),
		HasJoined:               r.hasSentJoin,
		LastHeartbeat:           lastHeartbeat,
		ReconnectAttempts:       r.reconnectAttempts,
		IsIntentionalDisconnect: r.intentionalDisconnect,
	}
}
