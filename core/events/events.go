// Package events defines the typed domain events published on the
// broadcaster. Every event exposes a topic so dashboard subscriptions can
// filter with exact names or a trailing "*" wildcard ("mission:*").
package events

import (
	"time"

	"github.com/agrilink/fleetcore/core/model"
)

// Event is anything that can be published on the broadcaster.
type Event interface {
	Topic() string
}

// MissionCreated is published once per accepted mission creation.
type MissionCreated struct {
	Mission model.Mission
	Time    time.Time
}

func (MissionCreated) Topic() string { return "mission:created" }

// MissionAssigned is published when a candidate is committed to a mission.
type MissionAssigned struct {
	MissionID string
	DriverID  string
	TruckID   string
	Time      time.Time
}

func (MissionAssigned) Topic() string { return "mission:assigned" }

// MissionStatusChanged is published once per accepted status transition.
type MissionStatusChanged struct {
	MissionID string
	From      model.Status
	To        model.Status
	Actor     string
	Evidence  string
	Notes     string
	Time      time.Time
}

func (MissionStatusChanged) Topic() string { return "mission:status_changed" }

// FleetMetricsUpdated carries the latest fleet metrics snapshot.
type FleetMetricsUpdated struct {
	Metrics FleetMetrics
	Time    time.Time
}

func (FleetMetricsUpdated) Topic() string { return "fleet:metrics_updated" }

// FleetIncident signals a vehicle needing operator attention. The region
// is part of the topic so dashboards can watch a single area
// ("fleet:incident:nord").
type FleetIncident struct {
	TruckID string
	Region  string
	Kind    string
	Detail  string
	Time    time.Time
}

func (e FleetIncident) Topic() string {
	if e.Region == "" {
		return "fleet:incident"
	}
	return "fleet:incident:" + e.Region
}

// Gap tells a subscriber that events were dropped from its queue and the
// authoritative state must be re-fetched from the mission store. It is
// delivered regardless of the subscription filter.
type Gap struct {
	Dropped int
	Time    time.Time
}

func (Gap) Topic() string { return "stream:gap" }

// FleetMetrics is the ephemeral point-in-time aggregate published to
// dashboards. It is recomputed on each tick and never persisted.
type FleetMetrics struct {
	ActiveMissions    int                `json:"active_missions"`
	PendingMissions   int                `json:"pending_missions"`
	CompletedMissions int                `json:"completed_missions"`
	AvailableUnits    int                `json:"available_units"`
	EnRouteUnits      int                `json:"en_route_units"`
	MeanSpeedKmh      float64            `json:"mean_speed_kmh"`
	FuelPctQuantiles  map[string]float64 `json:"fuel_pct_quantiles,omitempty"`
	Incidents         []FleetIncident    `json:"incidents,omitempty"`
	MeshHealthy       bool               `json:"mesh_healthy"`
	GeneratedAt       time.Time          `json:"generated_at"`
}
