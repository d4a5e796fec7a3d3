package cartsession

import (
	"context"
	"time"
)

// Store is the authoritative cart backend. Implementations report failures
// with *NetworkError or *NotFoundError where they can; anything else is
// treated as a network error.
type Store interface {
	// FetchCart returns the current cart. An unauthorized caller gets an
	// empty cart, not an error.
	FetchCart(ctx context.Context) (Snapshot, error)
	AddLine(ctx context.Context, productID string, quantity int) (CartLine, error)
	// SetQuantity returns the line as stored, or nil when the store deleted it
	SetQuantity(ctx context.Context, lineID string, quantity int) (*CartLine, error)
	DeleteLine(ctx context.Context, lineID string) error
}

// BatchStore is implemented by stores that can apply several quantity
// updates in one request.
type BatchStore interface {
	Store
	SetQuantities(ctx context.Context, updates []QuantityUpdate) ([]CartLine, error)
}

// Timer is a cancellable scheduled callback
type Timer interface {
	Stop() bool
}

// Scheduler schedules the debounce callback
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
