package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"settlementsam/internal/authz"
	"settlementsam/internal/handlers"
	"settlementsam/internal/middleware"
	"settlementsam/internal/realtime"
)

// Handlers groups everything SetupRoutes mounts. Hub may be nil.
type Handlers struct {
	Quiz    *handlers.QuizHandler
	OTP     *handlers.OTPHandler
	Leads   *handlers.LeadHandler
	Clients *handlers.ClientHandler
	Billing *handlers.BillingHandler
	Auth    *handlers.AuthHandler
	Reports *handlers.ReportHandler
	Hub     *realtime.Hub
}

func SetupRoutes(r *gin.Engine, h Handlers, tokens middleware.TokenParser, limiter *middleware.IPRateLimiter) *gin.Engine {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// ---- public widget API
	api := r.Group("/api")
	{
		api.POST("/quiz/score", h.Quiz.Score)
		otp := api.Group("/otp", limiter.Middleware())
		{
			otp.POST("/send", h.OTP.Send)
			otp.POST("/verify", h.OTP.Verify)
		}
		api.POST("/leads", middleware.SessionMiddleware(tokens), h.Leads.Create)
	}

	r.POST("/webhooks/stripe", h.Billing.StripeWebhook)
	r.POST("/admin/login", limiter.Middleware(), h.Auth.Login)

	// ---- admin
	admin := r.Group("/admin",
		middleware.AuthMiddleware(tokens),
		middleware.RequireRoles(authz.RoleAdmin, authz.RoleViewer),
		middleware.ReadOnlyGuard(),
	)
	{
		leads := admin.Group("/leads")
		{
			leads.GET("", h.Leads.List)
			leads.GET("/:id", h.Leads.GetByID)
			leads.PUT("/:id/tier", h.Leads.OverrideTier)
			leads.POST("/:id/dispute", h.Leads.Dispute)
			leads.POST("/:id/replace", h.Leads.Replace)
			leads.POST("/:id/deliver", h.Leads.Deliver)
		}

		clients := admin.Group("/clients")
		{
			clients.GET("", h.Clients.List)
			clients.POST("", h.Clients.Create)
			clients.GET("/:id", h.Clients.GetByID)
			clients.PUT("/:id", h.Clients.Update)
			clients.POST("/:id/packages", middleware.RequireRoles(authz.RoleAdmin), h.Clients.AddPackage)
			clients.GET("/:id/schedule", h.Clients.Schedule)
		}

		admin.GET("/reports/summary", h.Reports.GetSummary)

		if h.Hub != nil {
			admin.GET("/ws", func(c *gin.Context) { h.Hub.ServeWS(c.Writer, c.Request) })
		}
	}

	return r
}
