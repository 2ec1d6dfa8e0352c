// README: Driver-facing safety endpoints: profile, strikes, suspensions,
// appeals, and payment disputes.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tripguard/internal/http/middleware"
	"tripguard/internal/modules/appeal"
	"tripguard/internal/modules/dispute"
	"tripguard/internal/modules/profile"
	"tripguard/internal/modules/strike"
	"tripguard/internal/modules/suspension"
	"tripguard/internal/types"
)

type SafetyHandler struct {
	profiles    *profile.Service
	strikes     *strike.Service
	suspensions *suspension.Service
	appeals     *appeal.Service
	disputes    *dispute.Service
}

func NewSafetyHandler(
	profiles *profile.Service,
	strikes *strike.Service,
	suspensions *suspension.Service,
	appeals *appeal.Service,
	disputes *dispute.Service,
) *SafetyHandler {
	return &SafetyHandler{
		profiles:    profiles,
		strikes:     strikes,
		suspensions: suspensions,
		appeals:     appeals,
		disputes:    disputes,
	}
}

func (h *SafetyHandler) GetProfile(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"driver_id":         p.DriverID,
		"safety_rating":     p.SafetyRating,
		"total_ratings":     p.TotalSafetyRatings,
		"route_adherence":   p.RouteAdherenceScore,
		"speed_compliance":  p.SpeedComplianceScore,
		"active_strikes":    p.ActiveStrikes,
		"suspension_status": p.SuspensionStatus,
		"badges":            p.Badges,
		"safe_trips_streak": p.SafeTripsStreak,
		"last_violation":    p.LastViolation,
	})
}

type ratingReq struct {
	Stars int `json:"stars"`
}

func (h *SafetyHandler) RateDriver(c *gin.Context) {
	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.profiles.RecordRating(c.Request.Context(), types.ID(c.Param("id")), req.Stars)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"safety_rating": p.SafetyRating, "total_ratings": p.TotalSafetyRatings})
}

func (h *SafetyHandler) ListStrikes(c *gin.Context) {
	strikes, weighted, err := h.strikes.ActiveStrikes(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"strikes": strikes, "weighted_count": weighted})
}

func (h *SafetyHandler) ListSuspensions(c *gin.Context) {
	suspensions, err := h.suspensions.ListByDriver(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"suspensions": suspensions})
}

// Acknowledge records that the driver has seen their suspension; eligibility
// to drive again requires it.
func (h *SafetyHandler) Acknowledge(c *gin.Context) {
	if err := h.suspensions.Acknowledge(c.Request.Context(), types.ID(c.Param("id")), time.Now()); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"acknowledged": true})
}

type submitAppealReq struct {
	StrikeID     string `json:"strike_id"`
	SuspensionID string `json:"suspension_id"`
	Reason       string `json:"reason"`
}

// SubmitAppeal files an appeal against exactly one strike or suspension on
// behalf of the authenticated driver.
func (h *SafetyHandler) SubmitAppeal(c *gin.Context) {
	var req submitAppealReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := appeal.SubmitCommand{
		DriverID: types.ID(middleware.CallerUID(c)),
		Reason:   req.Reason,
		At:       time.Now(),
	}
	if req.StrikeID != "" {
		id := types.ID(req.StrikeID)
		cmd.StrikeID = &id
	}
	if req.SuspensionID != "" {
		id := types.ID(req.SuspensionID)
		cmd.SuspensionID = &id
	}
	a, err := h.appeals.Submit(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"appeal_id": a.ID, "status": a.Status})
}

func (h *SafetyHandler) ListAppeals(c *gin.Context) {
	appeals, err := h.appeals.ListByDriver(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"appeals": appeals})
}

type openDisputeReq struct {
	TripID   string `json:"trip_id"`
	DriverID string `json:"driver_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Reason   string `json:"reason"`
	AutoHold bool   `json:"auto_hold"`
}

// OpenDispute lets a rider contest a trip charge; the amount moves to escrow.
func (h *SafetyHandler) OpenDispute(c *gin.Context) {
	var req openDisputeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := h.disputes.Open(c.Request.Context(), dispute.OpenCommand{
		TripID:   types.ID(req.TripID),
		RiderID:  types.ID(middleware.CallerUID(c)),
		DriverID: types.ID(req.DriverID),
		Amount:   types.Money{Amount: req.Amount, Currency: req.Currency},
		Reason:   req.Reason,
		AutoHold: req.AutoHold,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"dispute_id": d.ID,
		"escrow_id":  d.EscrowID,
		"status":     d.Status,
	})
}
