package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	"github.com/smallbiznis/calendar-gateway/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/calendar-gateway/internal/http/middleware"
	"github.com/smallbiznis/calendar-gateway/internal/metrics"
	"github.com/smallbiznis/calendar-gateway/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, logger *zap.Logger, integrations *handler.IntegrationHandler, health *handler.HealthHandler, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(httpmiddleware.Metrics())
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/health", health.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	if rateLimiter != nil {
		api.Use(rateLimiter.Handler())
	}
	for _, p := range calendar.Providers {
		registerProvider(api.Group("/"+string(p)), p, integrations)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})
	return r
}

func registerProvider(g *gin.RouterGroup, p calendar.Provider, h *handler.IntegrationHandler) {
	g.POST("/connect", h.Connect(p))
	g.POST("/token", h.Token(p))
	g.POST("/refresh", h.Refresh(p))
	g.POST("/revoke", h.Revoke(p))

	g.GET("/calendars", h.Calendars(p))
	g.GET("/events", h.Events(p))
	g.POST("/events", h.CreateEvent(p))
	g.GET("/events/:eventId", h.GetEvent(p))
	g.PUT("/events/:eventId", h.UpdateEvent(p))
	g.DELETE("/events/:eventId", h.DeleteEvent(p))

	if p == calendar.Calendly {
		g.GET("/event_types", h.EventTypes(p))
		g.POST("/invitees", h.CreateInvitee(p))
	}

	accounts := g.Group("/accounts/:userId")
	{
		accounts.GET("", h.Account(p))
		accounts.DELETE("", h.Disconnect(p))
		accounts.GET("/calendars", h.AccountCalendars(p))
		accounts.GET("/events", h.AccountEvents(p))
		accounts.POST("/events", h.AccountCreateEvent(p))
	}
}
