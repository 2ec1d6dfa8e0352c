// README: HTTP route registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"tripguard/internal/http/middleware"
	"tripguard/internal/metrics"
)

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.log))
	r.Use(middleware.Logging(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	if s.verifier != nil {
		api.Use(middleware.Auth(s.verifier))
	}

	trips := api.Group("/trips")
	trips.POST("", s.trips.Start)
	// Telemetry is chatty: one tick per few seconds per active trip.
	trips.POST("/:id/ticks", middleware.RateLimit(rate.Limit(5), 30), s.trips.SubmitTick)
	trips.GET("/:id/telemetry", s.handleTelemetry)
	trips.POST("/:id/deviation-response", s.trips.RespondDeviation)
	trips.POST("/:id/complete", s.trips.Complete)
	trips.POST("/:id/sos", s.trips.SOS)
	trips.POST("/:id/report", s.trips.Report)

	api.POST("/completions/:id/respond", s.trips.RespondCompletion)

	drivers := api.Group("/drivers")
	drivers.GET("/:id/safety-profile", s.safety.GetProfile)
	drivers.POST("/:id/safety-rating", s.safety.RateDriver)
	drivers.GET("/:id/strikes", s.safety.ListStrikes)
	drivers.GET("/:id/suspensions", s.safety.ListSuspensions)
	drivers.GET("/:id/appeals", s.safety.ListAppeals)

	api.POST("/suspensions/:id/acknowledge", s.safety.Acknowledge)
	api.POST("/appeals", s.safety.SubmitAppeal)
	api.POST("/disputes", s.safety.OpenDispute)

	admin := api.Group("/admin")
	if s.verifier != nil {
		admin.Use(middleware.RequireRole("admin"))
	}
	admin.GET("/violations", s.admin.ListViolations)
	admin.GET("/violations/:id", s.admin.GetViolation)
	admin.POST("/violations/:id/investigate", s.admin.Investigate)
	admin.POST("/violations/:id/review", s.admin.ReviewViolation)

	admin.GET("/appeals", s.admin.ListAppeals)
	admin.POST("/appeals/:id/review", s.admin.ReviewAppeal)
	admin.POST("/appeals/:id/decide", s.admin.DecideAppeal)

	admin.GET("/disputes", s.admin.ListDisputes)
	admin.POST("/disputes/:id/review", s.admin.ReviewDispute)
	admin.POST("/disputes/:id/escalate", s.admin.EscalateDispute)
	admin.POST("/disputes/:id/resolve", s.admin.ResolveDispute)

	admin.POST("/suspensions/:id/lift", s.admin.LiftSuspension)

	admin.GET("/alerts", s.admin.ListOpenAlerts)
	admin.POST("/alerts/:id/authorities-contacted", s.admin.MarkAuthoritiesContacted)
	admin.POST("/alerts/:id/resolve", s.admin.ResolveAlert)

	admin.POST("/completions/:id/resolve", s.admin.ResolveCompletion)

	return r
}
