package cart

import "context"

// Inventory is the remote catalog/stock service.
type Inventory interface {
	Stock(ctx context.Context, productID int) (Stock, error)
	Product(ctx context.Context, productID int) (Product, error)
}

// Storage is a durable string key-value store. A missing key reports ok=false.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
