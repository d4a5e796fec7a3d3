// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/vineyard-shop/internal/domain/cart"
	"github.com/your-org/vineyard-shop/internal/domain/product"
)

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger *logrus.Logger) *Migration {
	return &Migration{
		db:     db,
		logger: logger.WithField("component", "migration"),
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	models := []interface{}{
		&product.Product{},
		&cart.CartLine{},
	}

	for _, model := range models {
		m.logger.Debugf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_products_region_active ON products(region, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_price ON products(price)",
		"CREATE INDEX IF NOT EXISTS idx_cart_lines_user_created ON cart_lines(user_id, created_at)",
	}

	failed := 0
	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.logger.WithError(err).Warn("Failed to create index")
			failed++
		}
	}

	m.logger.WithFields(logrus.Fields{"created": len(indexes) - failed, "failed": failed}).Info("Indexes created")
	return nil
}

// SeedInitialData inserts a small wine catalog for development
func (m *Migration) SeedInitialData() error {
	var productCount int64
	if err := m.db.Model(&product.Product{}).Count(&productCount).Error; err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if productCount > 0 {
		m.logger.Debug("Catalog already seeded")
		return nil
	}

	wines := []product.Product{
		{SKU: "IT-PIE-BAR-2019", Name: "Barolo DOCG", Slug: "barolo-docg-2019", Producer: "Cantina Monfalletto", Region: "Piedmont", OriginCountry: "IT", Vintage: 2019, Price: 4500, IsActive: true, TrackQuantity: true, Quantity: 48},
		{SKU: "ES-RIO-CRI-2020", Name: "Rioja Crianza", Slug: "rioja-crianza-2020", Producer: "Bodegas Alavesas", Region: "Rioja", OriginCountry: "ES", Vintage: 2020, Price: 1250, IsActive: true, TrackQuantity: false},
		{SKU: "FR-CHA-BRU-NV", Name: "Champagne Brut", Slug: "champagne-brut-nv", Producer: "Maison Lefèvre", Region: "Champagne", OriginCountry: "FR", Price: 3900, IsActive: true, TrackQuantity: true, Quantity: 60},
		{SKU: "DE-MOS-RIE-2022", Name: "Riesling Kabinett", Slug: "riesling-kabinett-2022", Producer: "Weingut Sonnenhang", Region: "Mosel", OriginCountry: "DE", Vintage: 2022, Price: 1690, IsActive: true, TrackQuantity: true, Quantity: 120},
		{SKU: "PT-DOU-POR-10", Name: "Tawny Port 10 Years", Slug: "tawny-port-10-years", Producer: "Quinta do Vale", Region: "Douro", OriginCountry: "PT", Price: 2850, IsActive: true, TrackQuantity: true, Quantity: 24},
	}

	if err := m.db.Create(&wines).Error; err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	m.logger.WithField("products", len(wines)).Info("Catalog seeded")
	return nil
}

// GetTableInfo logs row counts for the public tables
func (m *Migration) GetTableInfo() error {
	var tables []string
	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		m.logger.WithFields(logrus.Fields{"table": table, "records": count}).Info("Table info")
	}
	return nil
}
