// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/your-org/vineyard-shop/internal/config"
	"github.com/your-org/vineyard-shop/internal/interfaces/http/handlers"
	"github.com/your-org/vineyard-shop/internal/interfaces/http/middleware"
)

// Handlers bundles the endpoint handlers mounted under /api/v1
type Handlers struct {
	Cart     *handlers.CartHandler
	Product  *handlers.ProductHandler
	VAT      *handlers.VATHandler
	Checkout *handlers.CheckoutHandler
}

// SetupRoutes mounts every API route on rg
func SetupRoutes(rg *gin.RouterGroup, h *Handlers, cfg *config.Config) {
	SetupProductRoutes(rg, h.Product)
	SetupCartRoutes(rg, h.Cart, cfg)
	SetupVATRoutes(rg, h.VAT)
	SetupCheckoutRoutes(rg, h.Checkout, cfg)
}

// SetupProductRoutes sets up product related routes
func SetupProductRoutes(rg *gin.RouterGroup, productHandler *handlers.ProductHandler) {
	products := rg.Group("/products")
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/:id", productHandler.GetProduct)
	}
}

// SetupCartRoutes sets up cart routes. They serve guest sessions and
// authenticated users alike; merging needs a user.
func SetupCartRoutes(rg *gin.RouterGroup, cartHandler *handlers.CartHandler, cfg *config.Config) {
	cart := rg.Group("/cart")
	cart.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		cart.GET("", cartHandler.GetCart)
		cart.DELETE("", cartHandler.ClearCart)
		cart.POST("/items", cartHandler.AddLine)
		cart.PATCH("/items", cartHandler.SetQuantities)
		cart.PUT("/items/:id", cartHandler.SetQuantity)
		cart.DELETE("/items/:id", cartHandler.RemoveLine)
	}

	merge := rg.Group("/cart")
	merge.Use(middleware.AuthMiddleware(cfg))
	{
		merge.POST("/merge", cartHandler.MergeGuestCart)
	}
}

// SetupVATRoutes sets up VAT engine routes
func SetupVATRoutes(rg *gin.RouterGroup, vatHandler *handlers.VATHandler) {
	vat := rg.Group("/vat")
	{
		vat.POST("/calculate", vatHandler.Calculate)
		vat.GET("/rates", vatHandler.GetRates)
	}
}

// SetupCheckoutRoutes sets up checkout routes
func SetupCheckoutRoutes(rg *gin.RouterGroup, checkoutHandler *handlers.CheckoutHandler, cfg *config.Config) {
	checkout := rg.Group("/checkout")
	checkout.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		checkout.GET("/shipping-methods", checkoutHandler.GetShippingMethods)
		checkout.POST("/quote", checkoutHandler.Quote)
	}
}
