// internal/domain/product/entity.go
package product

import (
	"time"

	"gorm.io/gorm"
)

// Product represents a wine in the catalog
type Product struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	SKU           string         `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name          string         `gorm:"not null;size:255" json:"name"`
	Slug          string         `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Producer      string         `gorm:"size:255" json:"producer"`
	Region        string         `gorm:"size:255;index" json:"region"`
	OriginCountry string         `gorm:"size:2" json:"origin_country"`
	Vintage       int            `json:"vintage"` // 0 for non-vintage
	Price         int64          `gorm:"not null" json:"price"` // Price in cents, VAT exclusive
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	TrackQuantity bool           `gorm:"default:true" json:"track_quantity"`
	Quantity      int            `gorm:"default:0" json:"quantity"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Product) TableName() string {
	return "products"
}

// Available reports whether quantity bottles can be sold
func (p *Product) Available(quantity int) bool {
	return !p.TrackQuantity || p.Quantity >= quantity
}
