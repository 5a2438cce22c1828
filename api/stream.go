package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// streamEvents serves the live event feed as Server-Sent Events. The
// optional filter query narrows topics ("mission:*", "fleet:incident:nord").
// A "stream:gap" event tells the client its queue overflowed and it must
// re-fetch authoritative state from the REST endpoints.
func (s *Server) streamEvents(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sub := s.bus.Subscribe(c.QueryParam("filter"))
	defer s.bus.Unsubscribe(sub)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-sub.Events():
			if !open {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.log.Errorf("encode event %s: %v", ev.Topic(), err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic(), payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
