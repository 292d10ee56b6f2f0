package api

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"

	"charterops/internal/config"
	h "charterops/internal/http/handlers"
	"charterops/internal/http/middleware"
	"charterops/internal/metrics"
	"charterops/internal/utils"
)

// Roles allowed to mutate bookings and dispatch state.
var (
	staffRoles  = []string{"owner", "admin", "dispatcher"}
	driverRoles = []string{"owner", "admin", "dispatcher", "driver"}
)

// NewRouter wires the API. With an empty JWT secret authentication and
// role checks are disabled, which is only meant for local runs.
func NewRouter(env config.Env, handler *h.Handler) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(),
		gin.Recovery(),
		middleware.CORS(env.CORSOrigins),
		middleware.Metrics(),
		middleware.RateLimit(env.RateLimitRPS),
	)

	if err := r.SetTrustedProxies(nil); err != nil {
		utils.Logger().WithError(err).Warn("failed to set trusted proxies")
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authEnabled := env.JWTSecret != ""
	if !authEnabled {
		utils.Logger().Warn("JWT_SECRET is empty; API runs without authentication")
	}
	guard := func(roles ...string) gin.HandlerFunc {
		if !authEnabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RequireRoles(roles...)
	}

	api := r.Group("/api")
	api.GET("/health", handler.Health)
	if authEnabled {
		api.Use(middleware.Auth(env.JWTSecret, false))
	}
	{
		api.POST("/quotes", handler.Quote)
		api.GET("/availability", handler.CheckAvailability)

		bookings := api.Group("/bookings")
		bookings.POST("", guard(staffRoles...), handler.CreateBooking)
		bookings.GET("/unstaffed", guard(staffRoles...), handler.ListUnstaffedBookings)
		bookings.GET("/:id", guard(staffRoles...), handler.GetBooking)
		bookings.POST("/:id/auto-assign", guard(staffRoles...), handler.AutoAssignBooking)
		bookings.POST("/:id/cancel", guard(staffRoles...), handler.CancelBooking)

		trips := api.Group("/trips")
		trips.GET("/:id", guard(driverRoles...), handler.GetTrip)
		trips.GET("/:id/history", guard(staffRoles...), handler.TripHistory)
		trips.POST("/:id/assign", guard(staffRoles...), handler.AssignTrip)
		trips.POST("/:id/reassign", guard(staffRoles...), handler.ReassignTrip)
		trips.POST("/:id/unassign", guard(staffRoles...), handler.UnassignTrip)
		trips.POST("/:id/cancel", guard(staffRoles...), handler.CancelTrip)
		trips.POST("/:id/accept", guard(driverRoles...), handler.AcceptTrip)
		trips.POST("/:id/start", guard(driverRoles...), handler.StartTrip)
		trips.POST("/:id/complete", guard(driverRoles...), handler.CompleteTrip)
	}

	return r
}
