package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"draftproxy/internal/eventlog"
	"draftproxy/internal/registry"
	"draftproxy/internal/room"
)

// WebSocketHandler is the acceptor mounted on the draft endpoint.
type WebSocketHandler interface {
	HandleConnection(w http.ResponseWriter, r *http.Request)
}

// Server is the read-mostly HTTP surface: the downstream WebSocket endpoint
// plus diagnostics for operators. No business logic lives here.
type Server struct {
	registry *registry.Registry
	journal  *eventlog.Journal
	ws       WebSocketHandler
	engine   *gin.Engine
	logger   *logrus.Logger
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status       string   `json:"status"`
	ActiveRooms  int      `json:"activeRooms"`
	TotalClients int      `json:"totalClients"`
	Rooms        []string `json:"rooms"`
}

// RoomsResponse is the GET /rooms body.
type RoomsResponse struct {
	TotalRooms int           `json:"totalRooms"`
	Rooms      []room.Status `json:"rooms"`
}

// NewServer wires the routes. gin's mode is set by the application from
// APP_ENV before this runs.
func NewServer(reg *registry.Registry, journal *eventlog.Journal, ws WebSocketHandler, logger *logrus.Logger) *Server {
	s := &Server{
		registry: reg,
		journal:  journal,
		ws:       ws,
		engine:   gin.New(),
		logger:   logger,
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// Engine exposes the router for the HTTP server.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/yahoo/websocket/connection", func(c *gin.Context) {
		s.ws.HandleConnection(c.Writer, c.Request)
	})

	s.engine.GET("/health", s.health)
	s.engine.GET("/rooms", s.listRooms)
	s.engine.GET("/rooms/:id/status", s.roomStatus)
	s.engine.DELETE("/rooms/:id", s.forceRetire)
	s.engine.GET("/events", s.listEvents)
}

func (s *Server) health(c *gin.Context) {
	rooms := s.registry.List()
	leagueIDs := make([]string, 0, len(rooms))
	totalClients := 0
	for _, r := range rooms {
		leagueIDs = append(leagueIDs, r.LeagueID())
		totalClients += r.ClientsCount()
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:       "ok",
		ActiveRooms:  len(rooms),
		TotalClients: totalClients,
		Rooms:        leagueIDs,
	})
}

func (s *Server) listRooms(c *gin.Context) {
	rooms := s.registry.List()
	statuses := make([]room.Status, 0, len(rooms))
	for _, r := range rooms {
		statuses = append(statuses, r.Status())
	}

	c.JSON(http.StatusOK, RoomsResponse{
		TotalRooms: len(rooms),
		Rooms:      statuses,
	})
}

func (s *Server) roomStatus(c *gin.Context) {
	r, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, r.Status())
}

// forceRetire disconnects every session in a room and removes it.
func (s *Server) forceRetire(c *gin.Context) {
	leagueID := c.Param("id")
	r, ok := s.registry.Get(leagueID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	r.CloseAllClients(1001, "Room force cleanup")
	r.Cleanup()
	s.registry.Remove(leagueID)
	if s.journal != nil {
		s.journal.Record("room_force_retired", leagueID, "operator request")
	}
	s.logger.WithField("room", leagueID).Info("Room force-retired")

	c.JSON(http.StatusOK, gin.H{"message": "room cleaned up"})
}

func (s *Server) listEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := s.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read event journal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
