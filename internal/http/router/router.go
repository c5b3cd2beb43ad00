package router

import (
	"github.com/gin-gonic/gin"

	"github.com/taskfair/marketplace-backend/internal/config"
	"github.com/taskfair/marketplace-backend/internal/http/handlers"
	"github.com/taskfair/marketplace-backend/internal/http/middleware"
)

func SetupRouter(
	cfg *config.Config,
	taskHandler *handlers.TaskHandler,
	offerHandler *handlers.OfferHandler,
	checkoutHandler *handlers.CheckoutHandler,
	settlementHandler *handlers.SettlementHandler,
	webhookHandler *handlers.WebhookHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Processor callbacks authenticate with a shared secret, not a user token.
	api.POST("/webhooks/processor", webhookHandler.HandleProcessorEvent)

	// Public routes
	api.GET("/tasks", taskHandler.ListTasks)
	api.GET("/tasks/:id", middleware.UUIDValidator("id"), taskHandler.GetTask)

	writeRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		protected.POST("/tasks", taskHandler.CreateTask)
		protected.GET("/tasks/mine", taskHandler.ListMyTasks)
		protected.POST("/tasks/:id/cancel", middleware.UUIDValidator("id"), taskHandler.CancelTask)
		protected.PUT("/tasks/:id/prestataire-status", middleware.UUIDValidator("id"), taskHandler.UpdatePrestataireStatus)

		protected.POST("/offers", writeRateLimit, offerHandler.CreateOffer)
		protected.GET("/offers/mine", offerHandler.ListMyOffers)
		protected.POST("/offers/:id/withdraw", middleware.UUIDValidator("id"), offerHandler.WithdrawOffer)
		protected.GET("/tasks/:id/offers", middleware.UUIDValidator("id"), offerHandler.ListTaskOffers)

		protected.POST("/tasks/:id/accept", middleware.UUIDValidator("id"), writeRateLimit, checkoutHandler.AcceptOffer)

		protected.POST("/tasks/:id/release", middleware.UUIDValidator("id"), settlementHandler.ReleasePayment)
		protected.POST("/tasks/:id/cash/received", middleware.UUIDValidator("id"), settlementHandler.ConfirmCashReceived)
		protected.POST("/tasks/:id/cash/complete", middleware.UUIDValidator("id"), settlementHandler.ConfirmCashCompletion)
		protected.GET("/tasks/:id/payment", middleware.UUIDValidator("id"), settlementHandler.GetTaskPayment)
		protected.GET("/payments/mine", settlementHandler.ListMyPayments)
	}

	return r
}
