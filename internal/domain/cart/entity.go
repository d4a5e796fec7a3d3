// internal/domain/cart/entity.go
package cart

import (
	"errors"
	"time"
)

var (
	ErrLineNotFound      = errors.New("cart line not found")
	ErrInsufficientStock = errors.New("insufficient inventory")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrSessionRequired   = errors.New("session ID required for guest cart")
	ErrConcurrentUpdate  = errors.New("cart was modified concurrently, retry")
)

// CartLine represents a cart line stored in database for authenticated users
type CartLine struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_cart_lines_user_product" json:"user_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_cart_lines_user_product" json:"product_id"`
	Quantity  int       `gorm:"not null;default:1" json:"quantity"`
	UnitPrice int64     `gorm:"not null" json:"unit_price"` // Price at time of adding
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (CartLine) TableName() string {
	return "cart_lines"
}

// SessionCart represents a cart for guest users (stored in Redis)
type SessionCart struct {
	SessionID string            `json:"session_id"`
	Lines     []SessionCartLine `json:"lines"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// SessionCartLine represents a cart line for guest users
type SessionCartLine struct {
	ID        string    `json:"id"`
	ProductID uint      `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	AddedAt   time.Time `json:"added_at"`
}

// Owner identifies whose cart is addressed: a user, or a guest session
type Owner struct {
	UserID    *uint
	SessionID string
}

// IsGuest reports whether the owner is an anonymous session
func (o Owner) IsGuest() bool {
	return o.UserID == nil
}

// Line is the storage-independent form of a cart line
type Line struct {
	ID        string
	ProductID uint
	Quantity  int
	UnitPrice int64
	AddedAt   time.Time
}

// CartTotals represents calculated cart totals
type CartTotals struct {
	ItemCount          int   `json:"item_count"`     // Number of lines
	TotalQuantity      int   `json:"total_quantity"` // Sum of all quantities
	SubtotalMinorUnits int64 `json:"subtotal_minor_units"`
}

func cloneLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

func findLine(lines []Line, lineID string) int {
	for i := range lines {
		if lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

func findProduct(lines []Line, productID uint) int {
	for i := range lines {
		if lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}
