// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/config"
	"github.com/your-org/bookstore-storefront/internal/interfaces/http/handlers"
	"github.com/your-org/bookstore-storefront/internal/interfaces/http/middleware"
)

// SetupAuthRoutes sets up the login round trip and protected pages
func SetupAuthRoutes(r gin.IRouter, cfg *config.Config, logger logrus.FieldLogger) {
	authHandler := handlers.NewAuthHandler(cfg, logger)

	r.GET("/login", authHandler.Login)
	r.GET("/callback", authHandler.Callback)
	r.POST("/logout", authHandler.Logout)

	protected := r.Group("")
	protected.Use(middleware.RequireLogin())
	{
		protected.GET("/order-confirmation", authHandler.OrderConfirmation)
	}
}

// SetupAPIRoutes sets up the JSON API used by the storefront pages
func SetupAPIRoutes(rg *gin.RouterGroup, cfg *config.Config, logger logrus.FieldLogger) {
	authHandler := handlers.NewAuthHandler(cfg, logger)
	catalogHandler := handlers.NewCatalogHandler()
	cartHandler := handlers.NewCartHandler()

	rg.GET("/session", authHandler.Session)

	books := rg.Group("/books")
	{
		books.GET("", catalogHandler.ListBooks)
		books.GET("/search", catalogHandler.SearchBooks)
		books.GET("/:id/stock", catalogHandler.GetStock)
	}

	cart := rg.Group("/cart")
	{
		cart.GET("", cartHandler.GetCart)
		cart.POST("/items", cartHandler.AddItem)
		cart.PATCH("/items/:id", cartHandler.UpdateItem)
		cart.GET("/badge", cartHandler.Badge)
	}

	rg.POST("/checkout", middleware.RequireSession(), cartHandler.Checkout)
}
