package websocket

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"draftproxy/internal/registry"
	"draftproxy/internal/session"
	"draftproxy/pkg/types"
)

const missingParamsReason = "Missing required parameters: leagueId, draftPosition, websocketUrl"

// The proxy accepts browsers from anywhere; removing origin restrictions is
// its reason to exist.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler accepts downstream WebSockets, validates their query parameters
// and attaches each to the right room via the registry.
type Handler struct {
	registry *registry.Registry
	logger   *logrus.Logger
}

// NewHandler creates the connection acceptor.
func NewHandler(reg *registry.Registry, logger *logrus.Logger) *Handler {
	return &Handler{registry: reg, logger: logger}
}

// HandleConnection upgrades a downstream request and runs the session until
// its socket closes. Invalid parameters close the fresh socket with 1008 so
// the browser sees a policy violation rather than a failed upgrade.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	leagueID := query.Get("leagueId")
	upstreamURL := query.Get("websocketUrl")
	draftPosition, _ := strconv.Atoi(query.Get("draftPosition"))
	platformUserID := query.Get("platformUserId")
	if platformUserID == "" {
		platformUserID = "unknown"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	wsConn := NewConnection(conn)

	if !types.IsValidLeagueID(leagueID) ||
		!types.IsValidDraftPosition(draftPosition) ||
		!types.IsValidUpstreamURL(upstreamURL) {
		h.logger.WithFields(logrus.Fields{
			"leagueId":      leagueID,
			"draftPosition": draftPosition,
		}).Warn("Rejecting handshake, missing required parameters")
		wsConn.CloseWithCode(websocket.ClosePolicyViolation, missingParamsReason)
		return
	}

	sessionID := uuid.New().String()
	sess := session.New(sessionID, draftPosition, platformUserID, wsConn, h.logger)

	args := registry.RoomArgs{
		LeagueID:       leagueID,
		DraftPosition:  draftPosition,
		UpstreamURL:    upstreamURL,
		PlatformUserID: platformUserID,
	}
	h.registry.SwapIfURLChanged(args)

	// A room can retire between lookup and attach; a second lookup then
	// yields a fresh replacement.
	for {
		rm, _ := h.registry.GetOrCreate(args)
		if rm.AddClient(sess, draftPosition) {
			sess.AttachRoom(rm)
			break
		}
	}

	h.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"room":    leagueID,
	}).Info("Downstream client connected")

	wsConn.StartKeepalive()
	sess.ReadLoop()
}
