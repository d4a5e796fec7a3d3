// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/your-org/vineyard-shop/internal/domain/cart"
	"github.com/your-org/vineyard-shop/internal/domain/product"
	"github.com/your-org/vineyard-shop/internal/interfaces/http/middleware"
)

const (
	sessionCookieName = "session_id"
	sessionHeaderName = "X-Session-ID"
)

// CartService is the authoritative cart store behind the cart endpoints
type CartService interface {
	GetCart(ctx context.Context, owner cart.Owner) (*cart.CartResponse, error)
	AddLine(ctx context.Context, owner cart.Owner, req *cart.AddLineRequest) (*cart.LineResponse, error)
	SetLineQuantity(ctx context.Context, owner cart.Owner, lineID string, quantity int) (*cart.LineResponse, error)
	SetQuantities(ctx context.Context, owner cart.Owner, updates []cart.QuantityUpdate) ([]cart.LineResponse, error)
	RemoveLine(ctx context.Context, owner cart.Owner, lineID string) error
	ClearCart(ctx context.Context, owner cart.Owner) error
	MergeGuestCart(ctx context.Context, userID uint, sessionID string) error
}

// CartHandler handles cart endpoints
type CartHandler struct {
	cartService CartService
	sessionTTL  int // cookie max age in seconds
	logger      *logrus.Entry
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService CartService, sessionTTLSeconds int, logger *logrus.Logger) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		sessionTTL:  sessionTTLSeconds,
		logger:      logger.WithField("component", "cart_handler"),
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	owner := h.ownerFor(c)

	cartResponse, err := h.cartService.GetCart(c.Request.Context(), owner)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    cartResponse,
	})
}

// AddLine handles POST /cart/items
func (h *CartHandler) AddLine(c *gin.Context) {
	owner := h.ownerFor(c)

	var req cart.AddLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	line, err := h.cartService.AddLine(c.Request.Context(), owner, &req)
	if err != nil {
		h.respondError(c, err, "Failed to add item to cart")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Item added to cart successfully",
		"data":    line,
	})
}

// SetQuantity handles PUT /cart/items/:id. Quantity zero deletes the line
// and answers with null data.
func (h *CartHandler) SetQuantity(c *gin.Context) {
	owner := h.ownerFor(c)
	lineID := c.Param("id")

	var req cart.SetQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	line, err := h.cartService.SetLineQuantity(c.Request.Context(), owner, lineID, *req.Quantity)
	if err != nil {
		h.respondError(c, err, "Failed to update cart item")
		return
	}

	message := "Cart item updated successfully"
	if line == nil {
		message = "Item removed from cart successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"data":    line,
	})
}

// SetQuantities handles PATCH /cart/items
func (h *CartHandler) SetQuantities(c *gin.Context) {
	owner := h.ownerFor(c)

	var req cart.SetQuantitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	lines, err := h.cartService.SetQuantities(c.Request.Context(), owner, req.Updates)
	if err != nil {
		h.respondError(c, err, "Failed to update cart items")
		return
	}
	if lines == nil {
		lines = []cart.LineResponse{}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart items updated successfully",
		"data":    gin.H{"lines": lines},
	})
}

// RemoveLine handles DELETE /cart/items/:id
func (h *CartHandler) RemoveLine(c *gin.Context) {
	owner := h.ownerFor(c)

	if err := h.cartService.RemoveLine(c.Request.Context(), owner, c.Param("id")); err != nil {
		h.respondError(c, err, "Failed to remove cart item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item removed from cart successfully",
	})
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	owner := h.ownerFor(c)

	if err := h.cartService.ClearCart(c.Request.Context(), owner); err != nil {
		h.respondError(c, err, "Failed to clear cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart cleared successfully",
	})
}

// MergeGuestCart handles POST /cart/merge - called when user logs in
func (h *CartHandler) MergeGuestCart(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	sessionID := h.sessionIDFromRequest(c)
	if err := h.cartService.MergeGuestCart(c.Request.Context(), userID, sessionID); err != nil {
		h.respondError(c, err, "Failed to merge cart")
		return
	}

	// Return updated cart
	cartResponse, err := h.cartService.GetCart(c.Request.Context(), cart.Owner{UserID: &userID})
	if err != nil {
		h.respondError(c, err, "Failed to retrieve merged cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Guest cart merged successfully",
		"data":    cartResponse,
	})
}

// ownerFor resolves the cart owner: the authenticated user, else the guest
// session (created on first use).
func (h *CartHandler) ownerFor(c *gin.Context) cart.Owner {
	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		return cart.Owner{UserID: &userID}
	}
	return cart.Owner{SessionID: h.getOrCreateSessionID(c)}
}

// sessionIDFromRequest reads the guest session from the cookie, falling back
// to the session header for non-browser clients
func (h *CartHandler) sessionIDFromRequest(c *gin.Context) string {
	if sessionID, err := c.Cookie(sessionCookieName); err == nil && sessionID != "" {
		return sessionID
	}
	return c.GetHeader(sessionHeaderName)
}

// getOrCreateSessionID gets session ID from cookie or header or creates a new one
func (h *CartHandler) getOrCreateSessionID(c *gin.Context) string {
	sessionID := h.sessionIDFromRequest(c)
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = uuid.New().String()
		h.logger.WithField("session_id", sessionID).Debug("New guest session")
	}

	c.SetCookie(sessionCookieName, sessionID, h.sessionTTL, "/", "", false, true)
	c.Header(sessionHeaderName, sessionID)
	middleware.SetSessionID(c, sessionID)
	return sessionID
}

func (h *CartHandler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, cart.ErrLineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart item not found"})
	case errors.Is(err, product.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, cart.ErrInsufficientStock), errors.Is(err, cart.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrSessionRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request timeout"})
	default:
		h.logger.WithError(err).Error(fallback)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
