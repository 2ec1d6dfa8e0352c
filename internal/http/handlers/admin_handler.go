// README: Admin review endpoints: violation investigations, appeals, payment
// disputes, suspensions, emergency alerts, and held completions.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tripguard/internal/http/middleware"
	"tripguard/internal/modules/appeal"
	"tripguard/internal/modules/dispute"
	"tripguard/internal/modules/earlycomp"
	"tripguard/internal/modules/emergency"
	"tripguard/internal/modules/suspension"
	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

type AdminHandler struct {
	violations  *violation.Service
	appeals     *appeal.Service
	disputes    *dispute.Service
	suspensions *suspension.Service
	alerts      *emergency.Service
	completions *earlycomp.Service
}

func NewAdminHandler(
	violations *violation.Service,
	appeals *appeal.Service,
	disputes *dispute.Service,
	suspensions *suspension.Service,
	alerts *emergency.Service,
	completions *earlycomp.Service,
) *AdminHandler {
	return &AdminHandler{
		violations:  violations,
		appeals:     appeals,
		disputes:    disputes,
		suspensions: suspensions,
		alerts:      alerts,
		completions: completions,
	}
}

func reviewerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func (h *AdminHandler) ListViolations(c *gin.Context) {
	status := violation.Status(c.DefaultQuery("status", string(violation.StatusPending)))
	violations, err := h.violations.ListByStatus(c.Request.Context(), status)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"violations": violations})
}

func (h *AdminHandler) GetViolation(c *gin.Context) {
	v, err := h.violations.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (h *AdminHandler) Investigate(c *gin.Context) {
	err := h.violations.StartInvestigation(c.Request.Context(), violation.InvestigateCommand{
		ID:         types.ID(c.Param("id")),
		ReviewerID: reviewerID(c),
		At:         time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": violation.StatusInvestigating})
}

type reviewViolationReq struct {
	Confirm    bool   `json:"confirm"`
	Resolution string `json:"resolution"`
}

func (h *AdminHandler) ReviewViolation(c *gin.Context) {
	var req reviewViolationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	v, err := h.violations.Review(c.Request.Context(), violation.ReviewCommand{
		ID:         types.ID(c.Param("id")),
		ReviewerID: reviewerID(c),
		Confirm:    req.Confirm,
		Resolution: req.Resolution,
		At:         time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"status":        v.Status,
		"strike_issued": v.StrikeIssued,
		"strike_id":     v.StrikeID,
	})
}

func (h *AdminHandler) ListAppeals(c *gin.Context) {
	status := appeal.Status(c.DefaultQuery("status", string(appeal.StatusPending)))
	appeals, err := h.appeals.ListByStatus(c.Request.Context(), status)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"appeals": appeals})
}

func (h *AdminHandler) ReviewAppeal(c *gin.Context) {
	err := h.appeals.StartReview(c.Request.Context(), appeal.ReviewCommand{
		ID:         types.ID(c.Param("id")),
		ReviewerID: reviewerID(c),
		At:         time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": appeal.StatusUnderReview})
}

type decideAppealReq struct {
	Approve    bool   `json:"approve"`
	Resolution string `json:"resolution"`
}

func (h *AdminHandler) DecideAppeal(c *gin.Context) {
	var req decideAppealReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	a, err := h.appeals.Decide(c.Request.Context(), appeal.DecideCommand{
		ID:         types.ID(c.Param("id")),
		ReviewerID: reviewerID(c),
		Approve:    req.Approve,
		Resolution: req.Resolution,
		At:         time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": a.Status})
}

func (h *AdminHandler) ListDisputes(c *gin.Context) {
	status := dispute.Status(c.DefaultQuery("status", string(dispute.StatusPending)))
	disputes, err := h.disputes.ListByStatus(c.Request.Context(), status)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"disputes": disputes})
}

func (h *AdminHandler) ReviewDispute(c *gin.Context) {
	err := h.disputes.StartReview(c.Request.Context(), dispute.ReviewCommand{
		ID:         types.ID(c.Param("id")),
		ReviewerID: reviewerID(c),
		At:         time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": dispute.StatusUnderReview})
}

func (h *AdminHandler) EscalateDispute(c *gin.Context) {
	err := h.disputes.Escalate(c.Request.Context(), dispute.ReviewCommand{
		ID:         types.ID(c.Param("id")),
		ReviewerID: reviewerID(c),
		At:         time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": dispute.StatusEscalated})
}

type resolveDisputeReq struct {
	RefundAmount int64  `json:"refund_amount"`
	Resolution   string `json:"resolution"`
	IssueStrike  bool   `json:"issue_strike"`
}

func (h *AdminHandler) ResolveDispute(c *gin.Context) {
	var req resolveDisputeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := h.disputes.Resolve(c.Request.Context(), dispute.ResolveCommand{
		ID:           types.ID(c.Param("id")),
		ReviewerID:   reviewerID(c),
		RefundAmount: req.RefundAmount,
		Resolution:   req.Resolution,
		IssueStrike:  req.IssueStrike,
		At:           time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"status":        d.Status,
		"refund_amount": d.RefundAmount,
		"strike_issued": d.StrikeIssued,
	})
}

type liftSuspensionReq struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) LiftSuspension(c *gin.Context) {
	var req liftSuspensionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.suspensions.Lift(c.Request.Context(), suspension.LiftCommand{
		SuspensionID: types.ID(c.Param("id")),
		Reason:       req.Reason,
		At:           time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"lifted": true})
}

func (h *AdminHandler) ListOpenAlerts(c *gin.Context) {
	alerts, err := h.alerts.ListOpen(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"alerts": alerts})
}

func (h *AdminHandler) MarkAuthoritiesContacted(c *gin.Context) {
	if err := h.alerts.MarkAuthoritiesContacted(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"authorities_contacted": true})
}

type resolveAlertReq struct {
	Resolution string `json:"resolution"`
}

func (h *AdminHandler) ResolveAlert(c *gin.Context) {
	var req resolveAlertReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.alerts.Resolve(c.Request.Context(), emergency.ResolveCommand{
		ID:         types.ID(c.Param("id")),
		Resolution: req.Resolution,
		At:         time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"resolved": true})
}

type resolveCompletionReq struct {
	ReleaseHold bool `json:"release_hold"`
}

// ResolveCompletion settles a held early-completion record from the manual
// review queue.
func (h *AdminHandler) ResolveCompletion(c *gin.Context) {
	var req resolveCompletionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.completions.ResolveManually(c.Request.Context(), earlycomp.ResolveCommand{
		ID:          types.ID(c.Param("id")),
		ReleaseHold: req.ReleaseHold,
		At:          time.Now(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"resolved": true})
}
