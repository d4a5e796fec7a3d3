// internal/domain/cart/store.go
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lineStore persists one kind of cart. update applies fn atomically to the
// owner's lines and stores what it returns.
type lineStore interface {
	load(ctx context.Context, owner Owner) ([]Line, error)
	update(ctx context.Context, owner Owner, fn func([]Line) ([]Line, error)) ([]Line, error)
	clear(ctx context.Context, owner Owner) error
}

// redisLineStore keeps guest carts as one JSON document per session
type redisLineStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
}

func newRedisLineStore(client *redis.Client, ttl time.Duration) *redisLineStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisLineStore{client: client, ttl: ttl, maxRetries: 5}
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:session:%s", sessionID)
}

func (s *redisLineStore) load(ctx context.Context, owner Owner) ([]Line, error) {
	cart, err := s.read(ctx, s.client, owner.SessionID)
	if err != nil {
		return nil, err
	}
	return fromSessionLines(cart.Lines), nil
}

func (s *redisLineStore) update(ctx context.Context, owner Owner, fn func([]Line) ([]Line, error)) ([]Line, error) {
	key := cartKey(owner.SessionID)
	var result []Line

	txf := func(tx *redis.Tx) error {
		cart, err := s.read(ctx, tx, owner.SessionID)
		if err != nil {
			return err
		}
		lines, err := fn(fromSessionLines(cart.Lines))
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		cart.Lines = toSessionLines(lines)
		cart.UpdatedAt = now
		cart.ExpiresAt = now.Add(s.ttl)
		data, err := json.Marshal(cart)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(lines) == 0 {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			result = lines
		}
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			// another request changed the cart; rerun on fresh data
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrConcurrentUpdate
}

func (s *redisLineStore) clear(ctx context.Context, owner Owner) error {
	return s.client.Del(ctx, cartKey(owner.SessionID)).Err()
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *redisLineStore) read(ctx context.Context, c stringGetter, sessionID string) (*SessionCart, error) {
	cartData, err := c.Get(ctx, cartKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		// Cart doesn't exist, return empty cart
		now := time.Now().UTC()
		return &SessionCart{
			SessionID: sessionID,
			Lines:     []SessionCartLine{},
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read guest cart: %w", err)
	}

	var cart SessionCart
	if err := json.Unmarshal([]byte(cartData), &cart); err != nil {
		return nil, fmt.Errorf("failed to decode guest cart: %w", err)
	}
	return &cart, nil
}

// gormLineStore keeps user carts in the cart_lines table
type gormLineStore struct {
	db *gorm.DB
}

func (s *gormLineStore) load(ctx context.Context, owner Owner) ([]Line, error) {
	var rows []CartLine
	err := s.db.WithContext(ctx).
		Where("user_id = ?", *owner.UserID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve user cart: %w", err)
	}
	return fromRows(rows), nil
}

func (s *gormLineStore) update(ctx context.Context, owner Owner, fn func([]Line) ([]Line, error)) ([]Line, error) {
	userID := *owner.UserID
	var result []Line

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []CartLine
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Order("created_at ASC, id ASC").
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to lock user cart: %w", err)
		}

		before := fromRows(rows)
		after, err := fn(cloneLines(before))
		if err != nil {
			return err
		}

		keep := make(map[string]bool, len(after))
		for _, line := range after {
			keep[line.ID] = true
			row := CartLine{
				ID:        line.ID,
				UserID:    userID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
				CreatedAt: line.AddedAt,
			}
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("failed to save cart line: %w", err)
			}
		}
		for _, line := range before {
			if keep[line.ID] {
				continue
			}
			if err := tx.Where("id = ?", line.ID).Delete(&CartLine{}).Error; err != nil {
				return fmt.Errorf("failed to delete cart line: %w", err)
			}
		}

		result = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *gormLineStore) clear(ctx context.Context, owner Owner) error {
	return s.db.WithContext(ctx).Where("user_id = ?", *owner.UserID).Delete(&CartLine{}).Error
}

func fromRows(rows []CartLine) []Line {
	lines := make([]Line, len(rows))
	for i, row := range rows {
		lines[i] = Line{
			ID:        row.ID,
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			UnitPrice: row.UnitPrice,
			AddedAt:   row.CreatedAt,
		}
	}
	return lines
}

func fromSessionLines(items []SessionCartLine) []Line {
	lines := make([]Line, len(items))
	for i, item := range items {
		lines[i] = Line{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt,
		}
	}
	return lines
}

func toSessionLines(lines []Line) []SessionCartLine {
	items := make([]SessionCartLine, len(lines))
	for i, line := range lines {
		items[i] = SessionCartLine{
			ID:        line.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			AddedAt:   line.AddedAt,
		}
	}
	return items
}
