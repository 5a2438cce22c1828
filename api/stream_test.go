package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/agrilink/fleetcore/core/dispatch"
	"github.com/agrilink/fleetcore/core/events"
	"github.com/agrilink/fleetcore/core/fleet"
	"github.com/agrilink/fleetcore/core/matching"
	"github.com/agrilink/fleetcore/core/mission"
	"github.com/agrilink/fleetcore/core/model"
	"github.com/agrilink/fleetcore/core/store"
	"github.com/agrilink/fleetcore/infra/logger"
	"github.com/agrilink/fleetcore/internal/eventbus"
)

func newStreamAPI(t *testing.T) (*httptest.Server, *eventbus.Broadcaster) {
	t.Helper()
	dispatch.ResetMetrics(nil)
	st := store.NewMemoryStore()
	agg := fleet.NewAggregator(fleet.Config{}, st, logger.NopLogger{})
	eng := matching.NewEngine(matching.Weights{}, logger.NopLogger{})
	bus := eventbus.New(64)
	t.Cleanup(bus.Close)
	coord, err := dispatch.NewCoordinator(st, mission.New(), eng, agg, bus, nil, logger.NopLogger{}, time.Second)
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(coord, agg, bus, 5).Echo())
	t.Cleanup(srv.Close)
	return srv, bus
}

func waitForSubscribers(t *testing.T, bus *eventbus.Broadcaster, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.SubscriberCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscriber count never reached %d, got %d", want, bus.SubscriberCount())
}

func TestEventStreamDeliversAndReleases(t *testing.T) {
	srv, bus := newStreamAPI(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?filter=mission:*", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	waitForSubscribers(t, bus, 1)

	// The fleet event does not match the filter; only the mission event
	// may come out of the stream.
	bus.Publish(events.FleetMetricsUpdated{Time: time.Now()})
	bus.Publish(events.MissionCreated{Mission: model.Mission{ID: "m-1"}, Time: time.Now()})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: mission:created\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), line)
	require.Contains(t, line, `"m-1"`)

	// Closing the request releases the subscription.
	cancel()
	waitForSubscribers(t, bus, 0)
}
