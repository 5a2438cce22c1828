package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agrilink/fleetcore/core/dispatch"
	"github.com/agrilink/fleetcore/core/model"
	"github.com/agrilink/fleetcore/core/store"
)

type locationDTO struct {
	Name string   `json:"name" validate:"required"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

func (l locationDTO) toModel() model.Location {
	loc := model.Location{Name: l.Name}
	if l.Lat != nil && l.Lon != nil {
		loc.Lat, loc.Lon, loc.HasCoords = *l.Lat, *l.Lon, true
	}
	return loc
}

type createMissionRequest struct {
	ShipperID    string      `json:"shipper_id" validate:"required"`
	ReceiverID   string      `json:"receiver_id" validate:"required"`
	Product      string      `json:"product" validate:"required"`
	Quantity     float64     `json:"quantity" validate:"gt=0"`
	Unit         string      `json:"unit"`
	Priority     string      `json:"priority"`
	Origin       locationDTO `json:"origin" validate:"required"`
	Destination  locationDTO `json:"destination" validate:"required"`
	RequiredTags []string    `json:"required_tags"`
}

type assignRequest struct {
	DriverID string `json:"driver_id" validate:"required"`
	TruckID  string `json:"truck_id" validate:"required"`
}

type statusRequest struct {
	Status   string `json:"status" validate:"required"`
	Actor    string `json:"actor" validate:"required"`
	Evidence string `json:"evidence"`
	Notes    string `json:"notes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createMission(c echo.Context) error {
	var req createMissionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	priority := model.PriorityNormal
	if req.Priority != "" {
		var err error
		if priority, err = model.ParsePriority(req.Priority); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
	}
	spec := dispatch.MissionSpec{
		ShipperID:    req.ShipperID,
		ReceiverID:   req.ReceiverID,
		Product:      req.Product,
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		Priority:     priority,
		Origin:       req.Origin.toModel(),
		Destination:  req.Destination.toModel(),
		RequiredTags: req.RequiredTags,
	}
	m, err := s.coord.CreateMission(c.Request().Context(), spec)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (s *Server) listMissions(c echo.Context) error {
	var f store.Filter
	if raw := c.QueryParam("status"); raw != "" {
		st, err := model.ParseStatus(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		f.Status = &st
	}
	f.Region = c.QueryParam("region")
	missions, err := s.coord.ListMissions(c.Request().Context(), f)
	if err != nil {
		return s.domainError(c, err)
	}
	if missions == nil {
		missions = []model.Mission{}
	}
	return c.JSON(http.StatusOK, missions)
}

func (s *Server) getMission(c echo.Context) error {
	m, err := s.coord.GetMission(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) suggestions(c echo.Context) error {
	k := s.suggestionLimit
	if raw := c.QueryParam("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "k must be a positive integer"})
		}
		if n < k {
			k = n
		}
	}
	res, err := s.coord.RequestAssignment(c.Request().Context(), c.Param("id"), k)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) assign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	m, err := s.coord.Assign(c.Request().Context(), c.Param("id"), req.DriverID, req.TruckID)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) updateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	target, err := model.ParseStatus(req.Status)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	m, err := s.coord.UpdateStatus(c.Request().Context(), c.Param("id"), target, req.Actor, req.Evidence, req.Notes)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) fleetState(c echo.Context) error {
	units, metrics := s.fleet.Snapshot(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{
		"units":   units,
		"metrics": metrics,
	})
}

// domainError maps the core error taxonomy to HTTP statuses. Internal
// failures stay opaque; everything actionable carries its message.
func (s *Server) domainError(c echo.Context, err error) error {
	var (
		vErr model.ValidationError
		tErr model.InvalidTransitionError
		sErr model.InvalidStateError
		eErr model.MissingEvidenceError
	)
	switch {
	case errors.As(err, &vErr), errors.As(err, &eErr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "mission not found"})
	case errors.As(err, &tErr), errors.As(err, &sErr):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: "matching timed out"})
	default:
		s.log.Errorf("unhandled error: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
