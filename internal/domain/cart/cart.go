package cart

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"
)

var (
	ErrOutOfStock      = errors.New("cart: requested quantity is out of stock")
	ErrEntryNotFound   = errors.New("cart: product is not in the cart")
	ErrProductNotFound = errors.New("cart: product not found in catalog")
	ErrInventory       = errors.New("cart: inventory lookup failed")
	ErrPersistence     = errors.New("cart: persistence failure")
	ErrCorruptCart     = errors.New("cart: stored cart is malformed")
	ErrConflict        = errors.New("cart: concurrent modification")
	ErrInvalidAmount   = errors.New("cart: amount must be at least one")
)

// Product is a catalog record. Everything besides the id is kept verbatim.
type Product struct {
	ID     int
	Fields map[string]json.RawMessage
}

// Entry is one product line in the cart.
type Entry struct {
	Product
	Amount int
}

// Stock is the available quantity reported by the inventory at call time.
type Stock struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

// NewEntry builds a cart line for a product that is not in the cart yet.
func NewEntry(p Product, amount int) (Entry, error) {
	if amount < 1 {
		return Entry{}, ErrInvalidAmount
	}
	return Entry{Product: p.Clone(), Amount: amount}, nil
}

func (p Product) Clone() Product {
	return Product{ID: p.ID, Fields: maps.Clone(p.Fields)}
}

func (e Entry) Clone() Entry {
	return Entry{Product: e.Product.Clone(), Amount: e.Amount}
}

// Field returns the raw JSON value of a display field.
func (p Product) Field(name string) (json.RawMessage, bool) {
	v, ok := p.Fields[name]
	return v, ok
}

// Entries is the ordered cart list. Methods never modify the receiver.
type Entries []Entry

func (es Entries) Index(productID int) int {
	return slices.IndexFunc(es, func(e Entry) bool { return e.ID == productID })
}

func (es Entries) Find(productID int) (Entry, bool) {
	if i := es.Index(productID); i >= 0 {
		return es[i], true
	}
	return Entry{}, false
}

func (es Entries) Clone() Entries {
	if es == nil {
		return Entries{}
	}
	out := make(Entries, len(es))
	for i, e := range es {
		out[i] = e.Clone()
	}
	return out
}

// Append adds a new line at the end. The product must not be in the cart.
func (es Entries) Append(e Entry) (Entries, error) {
	if es.Index(e.ID) >= 0 {
		return nil, ErrConflict
	}
	out := es.Clone()
	return append(out, e.Clone()), nil
}

// WithAmount replaces the amount of an existing line, keeping its position.
func (es Entries) WithAmount(productID, amount int) (Entries, error) {
	if amount < 1 {
		return nil, ErrInvalidAmount
	}
	i := es.Index(productID)
	if i < 0 {
		return nil, ErrEntryNotFound
	}
	out := es.Clone()
	out[i].Amount = amount
	return out, nil
}

func (es Entries) Without(productID int) (Entries, error) {
	i := es.Index(productID)
	if i < 0 {
		return nil, ErrEntryNotFound
	}
	out := es.Clone()
	return slices.Delete(out, i, i+1), nil
}

// Units is the sum of all amounts.
func (es Entries) Units() int {
	n := 0
	for _, e := range es {
		n += e.Amount
	}
	return n
}
