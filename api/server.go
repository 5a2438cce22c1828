// Package api exposes the dispatch core over HTTP. Handlers translate
// between transport DTOs and core types; all domain rules live below this
// layer.
package api

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agrilink/fleetcore/core/dispatch"
	"github.com/agrilink/fleetcore/core/fleet"
	"github.com/agrilink/fleetcore/infra/logger"
	"github.com/agrilink/fleetcore/internal/eventbus"
)

// Server bundles the HTTP handlers and their dependencies.
type Server struct {
	coord    *dispatch.Coordinator
	fleet    *fleet.Aggregator
	bus      *eventbus.Broadcaster
	log      logger.Logger
	validate *validator.Validate
	// suggestionLimit caps candidates per matching round.
	suggestionLimit int
}

// NewServer wires the handlers.
func NewServer(coord *dispatch.Coordinator, fl *fleet.Aggregator, bus *eventbus.Broadcaster, suggestionLimit int) *Server {
	if suggestionLimit <= 0 {
		suggestionLimit = 5
	}
	return &Server{
		coord:           coord,
		fleet:           fl,
		bus:             bus,
		log:             logger.New("api"),
		validate:        validator.New(),
		suggestionLimit: suggestionLimit,
	}
}

// Echo builds the router with all routes registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/healthz", s.health)

	g := e.Group("/api")
	g.POST("/missions", s.createMission)
	g.GET("/missions", s.listMissions)
	g.GET("/missions/:id", s.getMission)
	g.GET("/missions/:id/suggestions", s.suggestions)
	g.POST("/missions/:id/assign", s.assign)
	g.POST("/missions/:id/status", s.updateStatus)
	g.GET("/fleet", s.fleetState)
	g.GET("/events", s.streamEvents)
	return e
}
