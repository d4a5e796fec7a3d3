// internal/interfaces/http/handlers/vat.go
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vineyard-shop/internal/domain/vat"
)

// VATHandler exposes the VAT engine
type VATHandler struct {
	calculator *vat.Calculator
}

// NewVATHandler creates a new VAT handler
func NewVATHandler(calculator *vat.Calculator) *VATHandler {
	return &VATHandler{calculator: calculator}
}

// Calculate handles POST /vat/calculate
func (h *VATHandler) Calculate(c *gin.Context) {
	var req vat.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.calculator.Calculate(req)
	if err != nil {
		if errors.Is(err, vat.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to calculate VAT",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "VAT calculated successfully",
		"data":    result,
	})
}

// GetRates handles GET /vat/rates. ?country=XX narrows the result to the
// rate in force today for one destination.
func (h *VATHandler) GetRates(c *gin.Context) {
	if country := c.Query("country"); country != "" {
		rate, ok := h.calculator.Table().Lookup(country, time.Now().UTC())
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No VAT rate for country",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "VAT rate retrieved successfully",
			"data":    rate,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "VAT rates retrieved successfully",
		"data": gin.H{
			"seller_country": h.calculator.SellerCountry(),
			"rates":          h.calculator.Table().Rates(),
		},
	})
}
