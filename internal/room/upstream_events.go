package room

import (
	"time"

	"draftproxy/internal/upstream"
	"draftproxy/pkg/types"
)

// Room implements upstream.Events. Events arrive from each link's run
// goroutine; the room mutex serializes them against client operations.
// Messages from a replaced link are ignored and its late open is shut down;
// its errors and close are still broadcast, since clients need to observe
// them.

// OnOpen sends the join frame exactly once for this link, starts the
// heartbeat and tells every client the upstream is live.
func (r *Room) OnOpen(l *upstream.Link) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l != r.link {
		// Replaced while dialing; shut the straggler down.
		l.Close(1000, "Link superseded", true)
		return
	}

	r.reconnectAttempts = 0

	// hasSentJoin is cleared on every non-open transition, so a fresh open
	// sends the join exactly once.
	if !r.hasSentJoin {
		join := types.JoinFrame(r.leagueID, r.primaryDraftPosition, types.ProxyUserAgent(r.platformUserID))
		if err := l.Send(join); err != nil {
			r.logger.WithError(err).Error("Failed to send join frame")
		} else {
			r.hasSentJoin = true
		}
	}

	r.startHeartbeatLocked(l)
	r.record("upstream_open", r.upstreamURL)
	r.logger.Info("Upstream connection established")

	r.broadcastLocked(types.YahooConnected{
		Type:    types.MessageTypeYahooConnected,
		Message: "Connected to Yahoo WebSocket",
	})
}

// OnMessage relays one upstream frame to every client, in arrival order.
func (r *Room) OnMessage(l *upstream.Link, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l != r.link {
		return
	}
	r.broadcastLocked(types.YahooMessage{
		Type: types.MessageTypeYahooMessage,
		Data: string(data),
	})
}

// OnClose stops the heartbeat and tells clients the upstream is gone. No
// redial happens here: reconnection is only ever client-initiated or forced
// by a new arrival.
func (r *Room) OnClose(l *upstream.Link, code int, reason string) {
	r.mu.Lock()
	if l == r.link {
		r.stopHeartbeatLocked()
		r.hasSentJoin = false
		r.link = nil
	}
	r.broadcastLocked(types.YahooDisconnected{
		Type:   types.MessageTypeYahooDisconnected,
		Code:   code,
		Reason: reason,
	})
	r.mu.Unlock()

	r.record("upstream_closed", reason)
	r.logger.WithField("code", code).WithField("reason", reason).Info("Upstream connection closed")
}

// OnError surfaces an upstream failure to clients; the close follows on the
// same event stream.
func (r *Room) OnError(l *upstream.Link, err error) {
	r.mu.Lock()
	r.broadcastLocked(types.YahooError{
		Type:  types.MessageTypeYahooError,
		Error: err.Error(),
	})
	r.mu.Unlock()

	r.logger.WithError(err).Warn("Upstream error")
}

// startHeartbeatLocked begins the periodic heartbeat for one link instance.
// The ticker goroutine holds the link it was started for, so a stale ticker
// can never write into a newer link. Caller holds mu.
func (r *Room) startHeartbeatLocked(l *upstream.Link) {
	r.stopHeartbeatLocked()
	stop := make(chan struct{})
	r.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(r.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !l.IsOpen() {
					return
				}
				if err := l.Send(types.HeartbeatFrame); err != nil {
					r.logger.WithError(err).Warn("Heartbeat send failed")
					return
				}
				r.mu.Lock()
				r.lastHeartbeatAt = time.Now()
				r.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// stopHeartbeatLocked halts the heartbeat ticker if one is running. Caller
// holds mu.
func (r *Room) stopHeartbeatLocked() {
	if r.heartbeatStop != nil {
		close(r.heartbeatStop)
		r.heartbeatStop = nil
	}
}
