package routes

import (
	"storefront/controllers"
	"storefront/middleware"

	"github.com/gin-gonic/gin"
)

// Controllers bundles every handler set mounted under /api.
type Controllers struct {
	Auth     *controllers.AuthController
	Products *controllers.ProductController
	Cart     *controllers.CartController
	Payments *controllers.PaymentController
	Health   *controllers.HealthController
}

// Guards are the middleware shared by the route groups.
type Guards struct {
	Auth        gin.HandlerFunc
	AuthLimiter *middleware.RateLimiter
}

func RegisterRoutes(r *gin.Engine, ctl Controllers, g Guards) {
	api := r.Group("/api")

	api.GET("/health", ctl.Health.Health)

	registerAuthRoutes(api, ctl.Auth, g)
	registerProductRoutes(api, ctl.Products, g)
	registerCartRoutes(api, ctl.Cart, g)
	registerPaymentRoutes(api, ctl.Payments, g)
}

func registerAuthRoutes(api *gin.RouterGroup, ac *controllers.AuthController, g Guards) {
	auth := api.Group("/auth")
	{
		limited := auth.Group("", middleware.RateLimit(g.AuthLimiter))
		limited.POST("/register", ac.Register)
		limited.POST("/login", ac.Login)
		limited.GET("/check-username/:username", ac.CheckUsername)

		protected := auth.Group("", g.Auth)
		protected.GET("/profile", ac.Profile)
		protected.POST("/change-password", ac.ChangePassword)
		protected.POST("/logout", ac.Logout)
		protected.GET("/security-status", ac.SecurityStatus)
	}
}

func registerProductRoutes(api *gin.RouterGroup, pc *controllers.ProductController, g Guards) {
	products := api.Group("/products")
	{
		products.GET("", pc.GetProducts)
		products.GET("/search", pc.SearchProducts)
		products.GET("/categories", controllers.GetCategories)
		products.GET("/category/:category", pc.GetProductsByCategory)
		products.GET("/:id", pc.GetProductByID)

		admin := products.Group("", g.Auth, middleware.RequireAdmin())
		admin.POST("", pc.CreateProduct)
		admin.PUT("/:id", pc.UpdateProduct)
		admin.DELETE("/:id", middleware.RequireConfirmHeader("X-Confirm-Delete"), pc.DeleteProduct)
	}
}

func registerCartRoutes(api *gin.RouterGroup, cc *controllers.CartController, g Guards) {
	cart := api.Group("/cart", g.Auth)
	{
		cart.POST("", cc.CreateCart)
		cart.GET("", cc.GetCart)
		cart.DELETE("", middleware.RequireConfirmHeader("X-Confirm-Clear"), cc.ClearCart)
		cart.GET("/summary", cc.Summary)
		cart.GET("/validate", cc.Validate)
		cart.GET("/statistics", cc.Statistics)
		cart.GET("/backup", cc.Backup)

		cart.POST("/items", cc.AddItem)
		cart.PUT("/items/:itemId", cc.UpdateItem)
		cart.DELETE("/items/:itemId", cc.RemoveItem)
	}
}

func registerPaymentRoutes(api *gin.RouterGroup, pc *controllers.PaymentController, g Guards) {
	payments := api.Group("/payments")
	{
		// Stripe calls this directly; it authenticates by signature.
		payments.POST("/webhook", pc.StripeWebhook)

		protected := payments.Group("", g.Auth)
		protected.POST("/create-checkout-session", pc.CreateCheckoutSession)
		protected.POST("/buy-now", pc.BuyNow)
		protected.GET("/success", pc.PaymentSuccess)
		protected.POST("/success", pc.PaymentSuccess)
		protected.GET("/history", pc.History)
		protected.GET("/test-stripe", middleware.RequireAdmin(), pc.TestStripe)
	}
}
