package handlers

import (
	"github.com/gin-gonic/gin"

	"fairdice-backend/internal/config"
	"fairdice-backend/internal/middleware"
	"fairdice-backend/internal/services"
)

type Deps struct {
	Config     *config.Config
	Users      *services.UserService
	Seeds      *services.SeedManager
	Engine     *services.DiceEngine
	House      *services.HouseService
	JWT        *services.JWTService
	Limiter    services.RateLimiter
	WebSockets *WebSocketHandler
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), cors())

	userHandler := NewUserHandler(d.Users, d.Seeds, d.JWT)
	seedHandler := NewSeedHandler(d.Seeds)
	diceHandler := NewDiceHandler(d.Engine, d.Config.Game.MaxBet)
	publicHandler := NewPublicHandler(d.Engine, d.House)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.POST("/auth/register", userHandler.Register)
	router.POST("/verify", publicHandler.Verify)
	router.GET("/house/stats", publicHandler.HouseStats)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(d.JWT))
	if d.Limiter != nil {
		protected.Use(middleware.RateLimitMiddleware(d.Limiter, d.Config.RateLimit))
	}
	{
		protected.GET("/me", userHandler.GetCurrentUser)

		if d.WebSockets != nil {
			protected.GET("/ws", d.WebSockets.HandleWebSocket)
		}

		seeds := protected.Group("/seeds")
		{
			seeds.GET("/active", seedHandler.GetActive)
			seeds.POST("/rotate", seedHandler.Rotate)
			seeds.PUT("/active/client-seed", seedHandler.SetClientSeed)
			seeds.POST("/:id/reveal", seedHandler.Reveal)
		}

		dice := protected.Group("/dice")
		{
			dice.POST("/bet", diceHandler.PlaceBet)
			dice.GET("/bets", diceHandler.GetBetHistory)
			dice.GET("/bets/:id", diceHandler.GetBet)
		}
	}

	return router
}
