// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/vineyard-shop/internal/config"
	"github.com/your-org/vineyard-shop/internal/domain/product"
)

// ProductLookup resolves active products for price snapshots and stock checks
type ProductLookup interface {
	GetActive(ctx context.Context, id uint) (*product.Product, error)
}

// Service handles cart business logic
type Service struct {
	users       lineStore
	guests      lineStore
	products    ProductLookup
	maxQuantity int
	logger      *logrus.Entry
}

// NewService creates a new cart service
func NewService(db *gorm.DB, redisClient *redis.Client, products ProductLookup, cfg *config.Config, logger *logrus.Logger) *Service {
	return newService(&gormLineStore{db: db}, newRedisLineStore(redisClient, cfg.Cart.GuestTTL), products, cfg.Cart.MaxQuantity, logger)
}

func newService(users, guests lineStore, products ProductLookup, maxQuantity int, logger *logrus.Logger) *Service {
	if maxQuantity <= 0 {
		maxQuantity = 120
	}
	return &Service{
		users:       users,
		guests:      guests,
		products:    products,
		maxQuantity: maxQuantity,
		logger:      logger.WithField("component", "cart"),
	}
}

// LineResponse represents a cart line as returned by the API
type LineResponse struct {
	ID                  string `json:"id"`
	ProductID           uint   `json:"product_id,string"`
	ProductName         string `json:"product_name,omitempty"`
	Quantity            int    `json:"quantity"`
	UnitPriceMinorUnits int64  `json:"unit_price_minor_units"`
	LineTotalMinorUnits int64  `json:"line_total_minor_units"`
}

// CartResponse represents a shopping cart with lines and summary
type CartResponse struct {
	SessionID string         `json:"session_id,omitempty"`
	UserID    *uint          `json:"user_id,omitempty"`
	Lines     []LineResponse `json:"lines"`
	Summary   CartTotals     `json:"summary"`
}

// AddLineRequest represents add to cart request
type AddLineRequest struct {
	ProductID uint `json:"product_id,string" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

// SetQuantityRequest represents update cart line request
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0"`
}

// QuantityUpdate is one entry of a batch request
type QuantityUpdate struct {
	LineID   string `json:"line_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"min=0"`
}

// SetQuantitiesRequest represents a batched quantity update
type SetQuantitiesRequest struct {
	Updates []QuantityUpdate `json:"updates" binding:"required,min=1,dive"`
}

// GetCart retrieves cart for user or session
func (s *Service) GetCart(ctx context.Context, owner Owner) (*CartResponse, error) {
	store, err := s.storeFor(owner)
	if err != nil {
		return nil, err
	}
	lines, err := store.load(ctx, owner)
	if err != nil {
		return nil, err
	}

	resp := &CartResponse{
		UserID: owner.UserID,
		Lines:  s.toResponses(ctx, lines),
	}
	if owner.IsGuest() {
		resp.SessionID = owner.SessionID
	}
	resp.Summary = calculateTotals(lines)
	return resp, nil
}

// AddLine adds a product to the cart, merging into an existing line of the
// same product
func (s *Service) AddLine(ctx context.Context, owner Owner, req *AddLineRequest) (*LineResponse, error) {
	if req.Quantity < 1 || req.Quantity > s.maxQuantity {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, s.maxQuantity)
	}
	store, err := s.storeFor(owner)
	if err != nil {
		return nil, err
	}

	// Validate product exists and is active
	prod, err := s.products.GetActive(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	var lineID string
	lines, err := store.update(ctx, owner, func(lines []Line) ([]Line, error) {
		if i := findProduct(lines, req.ProductID); i >= 0 {
			newQuantity := lines[i].Quantity + req.Quantity
			if err := s.checkQuantity(prod, newQuantity); err != nil {
				return nil, err
			}
			lines[i].Quantity = newQuantity
			lines[i].UnitPrice = prod.Price // Update price in case it changed
			lineID = lines[i].ID
			return lines, nil
		}

		if err := s.checkQuantity(prod, req.Quantity); err != nil {
			return nil, err
		}
		line := Line{
			ID:        uuid.New().String(),
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			UnitPrice: prod.Price,
			AddedAt:   time.Now().UTC(),
		}
		lineID = line.ID
		return append(lines, line), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"line_id": lineID, "product_id": req.ProductID}).Debug("Cart line added")
	resp := s.toResponse(lines[findLine(lines, lineID)], prod)
	return &resp, nil
}

// SetLineQuantity sets the quantity of one line. Zero deletes the line and
// returns nil.
func (s *Service) SetLineQuantity(ctx context.Context, owner Owner, lineID string, quantity int) (*LineResponse, error) {
	lines, err := s.SetQuantities(ctx, owner, []QuantityUpdate{{LineID: lineID, Quantity: quantity}})
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return &lines[0], nil
}

// SetQuantities applies several quantity updates atomically. A missing line
// fails the whole batch. Deleted lines are not part of the result.
func (s *Service) SetQuantities(ctx context.Context, owner Owner, updates []QuantityUpdate) ([]LineResponse, error) {
	for _, u := range updates {
		if u.Quantity < 0 || u.Quantity > s.maxQuantity {
			return nil, fmt.Errorf("%w: must be between 0 and %d", ErrInvalidQuantity, s.maxQuantity)
		}
	}
	store, err := s.storeFor(owner)
	if err != nil {
		return nil, err
	}

	// Load products for stock checks outside the atomic section
	current, err := store.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	products := make(map[uint]*product.Product)
	for _, u := range updates {
		i := findLine(current, u.LineID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrLineNotFound, u.LineID)
		}
		if u.Quantity == 0 {
			continue
		}
		pid := current[i].ProductID
		if _, ok := products[pid]; ok {
			continue
		}
		prod, err := s.products.GetActive(ctx, pid)
		if err != nil {
			return nil, err
		}
		products[pid] = prod
	}

	lines, err := store.update(ctx, owner, func(lines []Line) ([]Line, error) {
		for _, u := range updates {
			i := findLine(lines, u.LineID)
			if i < 0 {
				return nil, fmt.Errorf("%w: %s", ErrLineNotFound, u.LineID)
			}
			if u.Quantity == 0 {
				lines = append(lines[:i], lines[i+1:]...)
				continue
			}
			prod, ok := products[lines[i].ProductID]
			if !ok {
				// line was swapped for another product in between
				return nil, ErrConcurrentUpdate
			}
			if err := s.checkQuantity(prod, u.Quantity); err != nil {
				return nil, err
			}
			lines[i].Quantity = u.Quantity
		}
		return lines, nil
	})
	if err != nil {
		return nil, err
	}

	var out []LineResponse
	for _, u := range updates {
		i := findLine(lines, u.LineID)
		if i < 0 || findResponse(out, u.LineID) >= 0 {
			continue
		}
		out = append(out, s.toResponse(lines[i], products[lines[i].ProductID]))
	}
	return out, nil
}

// RemoveLine removes a line from the cart
func (s *Service) RemoveLine(ctx context.Context, owner Owner, lineID string) error {
	store, err := s.storeFor(owner)
	if err != nil {
		return err
	}
	_, err = store.update(ctx, owner, func(lines []Line) ([]Line, error) {
		i := findLine(lines, lineID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
		}
		return append(lines[:i], lines[i+1:]...), nil
	})
	return err
}

// ClearCart removes all lines from the cart
func (s *Service) ClearCart(ctx context.Context, owner Owner) error {
	store, err := s.storeFor(owner)
	if err != nil {
		return err
	}
	return store.clear(ctx, owner)
}

// MergeGuestCart folds a guest cart into the user's cart when the user logs in
func (s *Service) MergeGuestCart(ctx context.Context, userID uint, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	guest := Owner{SessionID: sessionID}
	guestLines, err := s.guests.load(ctx, guest)
	if err != nil {
		return err
	}
	if len(guestLines) == 0 {
		return nil // No guest cart to merge
	}

	user := Owner{UserID: &userID}
	_, err = s.users.update(ctx, user, func(lines []Line) ([]Line, error) {
		for _, g := range guestLines {
			if i := findProduct(lines, g.ProductID); i >= 0 {
				lines[i].Quantity = min(lines[i].Quantity+g.Quantity, s.maxQuantity)
				continue
			}
			lines = append(lines, g)
		}
		return lines, nil
	})
	if err != nil {
		return fmt.Errorf("failed to merge guest cart: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"user_id": userID, "lines": len(guestLines)}).Info("Guest cart merged")
	return s.guests.clear(ctx, guest)
}

func (s *Service) storeFor(owner Owner) (lineStore, error) {
	if !owner.IsGuest() {
		return s.users, nil
	}
	if owner.SessionID == "" {
		return nil, ErrSessionRequired
	}
	return s.guests, nil
}

func (s *Service) checkQuantity(prod *product.Product, quantity int) error {
	if quantity > s.maxQuantity {
		return fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, s.maxQuantity)
	}
	if !prod.Available(quantity) {
		return fmt.Errorf("%w. Available: %d", ErrInsufficientStock, prod.Quantity)
	}
	return nil
}

func (s *Service) toResponses(ctx context.Context, lines []Line) []LineResponse {
	out := make([]LineResponse, len(lines))
	for i, line := range lines {
		// Load product details; inactive products keep their line
		prod, err := s.products.GetActive(ctx, line.ProductID)
		if err != nil && !errors.Is(err, product.ErrProductNotFound) {
			s.logger.WithError(err).WithField("product_id", line.ProductID).Warn("Failed to load product for cart line")
		}
		out[i] = s.toResponse(line, prod)
	}
	return out
}

func (s *Service) toResponse(line Line, prod *product.Product) LineResponse {
	resp := LineResponse{
		ID:                  line.ID,
		ProductID:           line.ProductID,
		Quantity:            line.Quantity,
		UnitPriceMinorUnits: line.UnitPrice,
		LineTotalMinorUnits: line.UnitPrice * int64(line.Quantity),
	}
	if prod != nil {
		resp.ProductName = prod.Name
	}
	return resp
}

func findResponse(lines []LineResponse, lineID string) int {
	for i := range lines {
		if lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

func calculateTotals(lines []Line) CartTotals {
	var totals CartTotals
	totals.ItemCount = len(lines)
	for _, line := range lines {
		totals.TotalQuantity += line.Quantity
		totals.SubtotalMinorUnits += line.UnitPrice * int64(line.Quantity)
	}
	return totals
}
