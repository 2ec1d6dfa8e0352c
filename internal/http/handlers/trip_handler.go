// README: Trip-scoped safety endpoints: session start, telemetry, rider
// responses, SOS, completion, and rider reports.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tripguard/internal/http/middleware"
	"tripguard/internal/modules/deviation"
	"tripguard/internal/modules/earlycomp"
	"tripguard/internal/modules/emergency"
	"tripguard/internal/modules/session"
	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

// SpeedLimits resolves the posted limit at a coordinate. Optional; without it
// ticks rely on client-supplied limits.
type SpeedLimits interface {
	Lookup(ctx context.Context, p types.Point) (limit float64, ok bool, err error)
}

type TripHandler struct {
	sessions    *session.Registry
	completions *earlycomp.Service
	emergencies *emergency.Service
	violations  *violation.Service
	limits      SpeedLimits
}

func NewTripHandler(
	sessions *session.Registry,
	completions *earlycomp.Service,
	emergencies *emergency.Service,
	violations *violation.Service,
	limits SpeedLimits,
) *TripHandler {
	return &TripHandler{
		sessions:    sessions,
		completions: completions,
		emergencies: emergencies,
		violations:  violations,
		limits:      limits,
	}
}

type pointReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p pointReq) point() types.Point { return types.Point{Lat: p.Lat, Lng: p.Lng} }

type startTripReq struct {
	TripID      string     `json:"trip_id"`
	DriverID    string     `json:"driver_id"`
	RiderID     string     `json:"rider_id"`
	Route       []pointReq `json:"route"`
	Destination pointReq   `json:"destination"`
}

func (h *TripHandler) Start(c *gin.Context) {
	var req startTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.TripID == "" || req.DriverID == "" {
		writeError(c, http.StatusBadRequest, "trip_id and driver_id are required")
		return
	}
	route := make([]types.Point, len(req.Route))
	for i, p := range req.Route {
		route[i] = p.point()
	}
	_, err := h.sessions.Start(session.StartCommand{
		TripID:      types.ID(req.TripID),
		DriverID:    types.ID(req.DriverID),
		RiderID:     types.ID(req.RiderID),
		Route:       route,
		Destination: req.Destination.point(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"trip_id": req.TripID, "monitoring": true})
}

type tickReq struct {
	Timestamp  time.Time `json:"ts"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Speed      float64   `json:"speed"`
	SpeedLimit *float64  `json:"speed_limit"`
}

func (h *TripHandler) SubmitTick(c *gin.Context) {
	var req tickReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	tick, err := h.buildTick(c.Request.Context(), req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if err := h.sessions.Submit(types.ID(c.Param("id")), tick); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, gin.H{"accepted": true})
}

func (h *TripHandler) buildTick(ctx context.Context, req tickReq) (session.Tick, error) {
	tick := session.Tick{
		Timestamp: req.Timestamp,
		Location:  types.Point{Lat: req.Lat, Lng: req.Lng},
		Speed:     req.Speed,
	}
	if tick.Timestamp.IsZero() {
		tick.Timestamp = time.Now()
	}
	if req.SpeedLimit != nil {
		tick.SpeedLimit = *req.SpeedLimit
		tick.LimitKnown = true
		return tick, nil
	}
	if h.limits != nil {
		limit, known, err := h.limits.Lookup(ctx, tick.Location)
		if err != nil {
			// A limit outage degrades to limit-unknown ticks.
			return tick, nil
		}
		tick.SpeedLimit = limit
		tick.LimitKnown = known
	}
	return tick, nil
}

type deviationResponseReq struct {
	Response string `json:"response"`
}

func (h *TripHandler) RespondDeviation(c *gin.Context) {
	var req deviationResponseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	resp := deviation.RiderResponse(req.Response)
	if resp != deviation.ResponseOkay && resp != deviation.ResponseSOS {
		writeError(c, http.StatusBadRequest, "response must be okay or sos")
		return
	}
	if err := h.sessions.Respond(types.ID(c.Param("id")), resp, time.Now()); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"recorded": true})
}

type completeTripReq struct {
	Location pointReq `json:"location"`
}

// Complete ends the safety session. When the drop-off is away from the
// destination the response carries the held record the rider must answer.
func (h *TripHandler) Complete(c *gin.Context) {
	var req completeTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	held, err := h.sessions.End(types.ID(c.Param("id")), session.EndCommand{
		CompletionLocation: req.Location.point(),
		At:                 time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if held == nil {
		writeJSON(c, http.StatusOK, gin.H{"clean": true})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"clean":        false,
		"record_id":    held.ID,
		"distance_m":   held.DistanceFromDestination,
		"payment_held": held.PaymentHeld,
	})
}

type completionResponseReq struct {
	Response string `json:"response"`
}

// RespondCompletion applies the rider's answer to the "did you arrive?"
// prompt. An SOS additionally raises an emergency alert.
func (h *TripHandler) RespondCompletion(c *gin.Context) {
	var req completionResponseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	ec, err := h.completions.Respond(c.Request.Context(), earlycomp.RespondCommand{
		ID:       types.ID(c.Param("id")),
		Response: earlycomp.Response(req.Response),
		At:       time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	if ec.RiderResponse == earlycomp.ResponseSOS {
		_, err := h.emergencies.Raise(c.Request.Context(), emergency.RaiseCommand{
			TripID:   ec.TripID,
			UserID:   types.ID(middleware.CallerUID(c)),
			UserType: emergency.UserRider,
			Type:     emergency.TypeEarlyCompletionSOS,
			Location: ec.ActualLocation,
			Context: emergency.Snapshot{
				DeviationDistance: ec.DistanceFromDestination,
				DriverID:          ec.DriverID,
			},
			At: time.Now(),
		})
		if err != nil {
			writeDomainError(c, err)
			return
		}
	}
	writeJSON(c, http.StatusOK, gin.H{
		"response":     ec.RiderResponse,
		"payment_held": ec.PaymentHeld,
	})
}

type sosReq struct {
	UserType string   `json:"user_type"`
	Location pointReq `json:"location"`
}

// SOS is the explicit panic button for either party on the trip.
func (h *TripHandler) SOS(c *gin.Context) {
	var req sosReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	userType := emergency.UserType(req.UserType)
	if userType != emergency.UserRider && userType != emergency.UserDriver {
		writeError(c, http.StatusBadRequest, "user_type must be rider or driver")
		return
	}
	alert, err := h.emergencies.Raise(c.Request.Context(), emergency.RaiseCommand{
		TripID:   types.ID(c.Param("id")),
		UserID:   types.ID(middleware.CallerUID(c)),
		UserType: userType,
		Type:     emergency.TypeSOSPressed,
		Location: req.Location.point(),
		At:       time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"alert_id": alert.ID})
}

type reportReq struct {
	DriverID    string `json:"driver_id"`
	Description string `json:"description"`
}

// Report files a rider safety report against the trip's driver.
func (h *TripHandler) Report(c *gin.Context) {
	var req reportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	v, err := h.violations.SubmitRiderReport(c.Request.Context(), violation.ReportCommand{
		TripID:      types.ID(c.Param("id")),
		DriverID:    types.ID(req.DriverID),
		RiderID:     types.ID(middleware.CallerUID(c)),
		Description: req.Description,
		At:          time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"violation_id": v.ID, "status": v.Status})
}
