// Package api hosts the HTTP and websocket surface. It contains no venue
// logic of its own; every handler delegates to the engine facade.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"venue-core/internal/engine"
	"venue-core/internal/gateway"
	"venue-core/internal/monitor"
	"venue-core/pkg/db"
)

// Server wires HTTP endpoints around the engine facade.
type Server struct {
	Router    *gin.Engine
	Svc       engine.Service
	Gateway   *gateway.Gateway
	DB        *db.Database
	Metrics   *monitor.SystemMetrics
	JWTSecret string
}

// NewServer builds the router with the full middleware stack.
func NewServer(svc engine.Service, gw *gateway.Gateway, database *db.Database, metrics *monitor.SystemMetrics, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Svc:       svc,
		Gateway:   gw,
		DB:        database,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/market", s.getAllMarketData)
			protected.GET("/market/:symbol", s.getMarketData)
			protected.GET("/market/:symbol/history", s.getPriceHistory)

			protected.POST("/orders/contract", s.placeContractOrder)
			protected.GET("/orders/contract", s.getContractOrders)
			protected.POST("/orders/contract/:id/close", s.closeContractPosition)

			protected.GET("/binary/strategies", s.getBinaryStrategies)
			protected.POST("/orders/binary", s.placeBinaryOrder)
			protected.GET("/orders/binary", s.getBinaryActiveOrders)

			protected.GET("/funds", s.getFunds)
			protected.POST("/funds/:id/subscribe", s.subscribeFund)
			protected.POST("/funds/:id/redeem", s.redeemFund)

			protected.GET("/balance", s.getBalance)
			protected.GET("/portfolio", s.getPortfolio)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
