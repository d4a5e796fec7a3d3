// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/your-org/vineyard-shop/internal/domain/cart"
	"github.com/your-org/vineyard-shop/internal/domain/vat"
)

var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
)

// FreeShippingThreshold is the subtotal from which standard shipping is free
const FreeShippingThreshold int64 = 15000

// CartReader loads the authoritative cart
type CartReader interface {
	GetCart(ctx context.Context, owner cart.Owner) (*cart.CartResponse, error)
}

// Service turns a cart and a destination into a VAT-inclusive quote
type Service struct {
	carts      CartReader
	calculator *vat.Calculator
}

// NewService creates a new checkout service
func NewService(carts CartReader, calculator *vat.Calculator) *Service {
	return &Service{
		carts:      carts,
		calculator: calculator,
	}
}

// ShippingMethod represents a shipping option
type ShippingMethod struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         int64  `json:"price"` // Price in cents, VAT exclusive
	EstimatedDays string `json:"estimated_days"`
	Carrier       string `json:"carrier"`
}

// QuoteRequest represents a checkout quote request
type QuoteRequest struct {
	CountryCode              string           `json:"country_code" binding:"required"`
	CustomerType             vat.CustomerType `json:"customer_type"`
	BusinessVATNumber        string           `json:"business_vat_number"`
	ShippingMethodID         string           `json:"shipping_method_id"`
	ShippingAmountMinorUnits *int64           `json:"shipping_amount_minor_units"`
	TaxPoint                 *time.Time       `json:"tax_point,omitempty"`
}

// Quote is the priced cart for one destination
type Quote struct {
	Lines          []cart.LineResponse `json:"lines"`
	Summary        cart.CartTotals     `json:"summary"`
	ShippingMethod *ShippingMethod     `json:"shipping_method,omitempty"`
	Vat            vat.Result          `json:"vat"`
}

// GetShippingMethods returns the shipping options for a cart subtotal
func (s *Service) GetShippingMethods(subtotal int64) []ShippingMethod {
	methods := []ShippingMethod{
		{
			ID:            "standard",
			Name:          "Standard Shipping",
			Description:   "Insured delivery in 3-5 business days",
			Price:         695,
			EstimatedDays: "3-5 business days",
			Carrier:       "PostNL",
		},
		{
			ID:            "express",
			Name:          "Express Shipping",
			Description:   "Temperature-controlled delivery in 1-2 business days",
			Price:         1495,
			EstimatedDays: "1-2 business days",
			Carrier:       "DHL Express",
		},
	}

	// Free shipping for orders above threshold
	if subtotal >= FreeShippingThreshold {
		methods[0].Price = 0
		methods[0].Description = "Free standard shipping on orders over €150"
	}

	return methods
}

// Quote prices the owner's cart for a destination. Shipping comes from the
// named method, else from the explicit amount, else zero.
func (s *Service) Quote(ctx context.Context, owner cart.Owner, req *QuoteRequest) (*Quote, error) {
	cartResponse, err := s.carts.GetCart(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(cartResponse.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	quote := &Quote{
		Lines:   cartResponse.Lines,
		Summary: cartResponse.Summary,
	}

	var shipping int64
	switch {
	case req.ShippingMethodID != "":
		method, err := s.findShippingMethod(req.ShippingMethodID, cartResponse.Summary.SubtotalMinorUnits)
		if err != nil {
			return nil, err
		}
		quote.ShippingMethod = method
		shipping = method.Price
	case req.ShippingAmountMinorUnits != nil:
		shipping = *req.ShippingAmountMinorUnits
	}

	in := vat.Input{
		AmountMinorUnits:         cartResponse.Summary.SubtotalMinorUnits,
		ShippingAmountMinorUnits: shipping,
		CountryCode:              req.CountryCode,
		CustomerType:             req.CustomerType,
		BusinessVATNumber:        req.BusinessVATNumber,
	}
	if req.TaxPoint != nil {
		in.TaxPoint = *req.TaxPoint
	}

	result, err := s.calculator.Calculate(in)
	if err != nil {
		return nil, err
	}
	quote.Vat = result
	return quote, nil
}

func (s *Service) findShippingMethod(id string, subtotal int64) (*ShippingMethod, error) {
	for _, method := range s.GetShippingMethods(subtotal) {
		if method.ID == id {
			m := method
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownShippingMethod, id)
}
