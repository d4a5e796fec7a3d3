// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vineyard-shop/internal/domain/checkout"
	"github.com/your-org/vineyard-shop/internal/domain/vat"
)

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	checkoutService *checkout.Service
	carts           *CartHandler
}

// NewCheckoutHandler creates a new checkout handler. Cart ownership is
// resolved the same way as on the cart endpoints.
func NewCheckoutHandler(checkoutService *checkout.Service, carts *CartHandler) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		carts:           carts,
	}
}

// GetShippingMethods handles GET /checkout/shipping-methods?subtotal=
func (h *CheckoutHandler) GetShippingMethods(c *gin.Context) {
	var subtotal int64
	if raw := c.Query("subtotal"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid subtotal",
			})
			return
		}
		subtotal = parsed
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping methods retrieved successfully",
		"data":    h.checkoutService.GetShippingMethods(subtotal),
	})
}

// Quote handles POST /checkout/quote
func (h *CheckoutHandler) Quote(c *gin.Context) {
	var req checkout.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	owner := h.carts.ownerFor(c)
	quote, err := h.checkoutService.Quote(c.Request.Context(), owner, &req)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart),
			errors.Is(err, checkout.ErrUnknownShippingMethod),
			errors.Is(err, vat.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		default:
			h.carts.respondError(c, err, "Failed to calculate quote")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Quote calculated successfully",
		"data":    quote,
	})
}
