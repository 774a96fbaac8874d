// internal/stock/service.go
package stock

import (
	"context"
)

// Service defines the interface for the inventory service.
type Service interface {
	ListItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, id int64) (*Item, error)
	CreateItem(ctx context.Context, req CreateRequest) (*Item, error)
	UpdateItem(ctx context.Context, id int64, req UpdateRequest) (*Item, error)
	DeleteItem(ctx context.Context, id int64) error
}

// Store is the persistence capability behind the service. Implementations
// return ErrNotFound for unknown ids.
type Store interface {
	// List returns the stored items in the store's natural order.
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id int64) (*Item, error)
	// Create persists item under a freshly assigned id, strictly greater
	// than any id the store has handed out before.
	Create(ctx context.Context, item Item) (*Item, error)
	// Update applies patch atomically and returns the stored result.
	Update(ctx context.Context, id int64, patch Patch) (*Item, error)
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}
