// README: WebSocket telemetry ingest: a persistent feed of location ticks per
// trip, for clients that outgrow the REST endpoint.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tripguard/internal/modules/session"
	"tripguard/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens via the bearer token before the upgrade; the origin header
	// carries no additional signal for native app clients.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsTick struct {
	Timestamp  time.Time `json:"ts"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Speed      float64   `json:"speed"`
	SpeedLimit *float64  `json:"speed_limit"`
}

// handleTelemetry upgrades the connection and pumps ticks into the trip's
// session until the client disconnects or the session ends.
func (s *Server) handleTelemetry(c *gin.Context) {
	tripID := types.ID(c.Param("id"))
	if !s.sessions.Active(tripID) {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrNoSession.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.log.WithField("trip_id", tripID)
	log.Info("telemetry stream opened")
	for {
		var msg wsTick
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("telemetry stream failed")
			}
			return
		}

		tick := session.Tick{
			Timestamp: msg.Timestamp,
			Location:  types.Point{Lat: msg.Lat, Lng: msg.Lng},
			Speed:     msg.Speed,
		}
		if tick.Timestamp.IsZero() {
			tick.Timestamp = time.Now()
		}
		if msg.SpeedLimit != nil {
			tick.SpeedLimit = *msg.SpeedLimit
			tick.LimitKnown = true
		} else if s.limits != nil {
			if limit, known, err := s.limits.Lookup(c.Request.Context(), tick.Location); err == nil {
				tick.SpeedLimit = limit
				tick.LimitKnown = known
			}
		}

		if err := s.sessions.Submit(tripID, tick); err != nil {
			// The trip ended mid-stream; tell the client and stop reading.
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "trip ended"), deadline)
			return
		}
	}
}
