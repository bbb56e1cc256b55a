package notice

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindOutOfStock   Kind = "out_of_stock"
	KindAddFailed    Kind = "add_failed"
	KindRemoveFailed Kind = "remove_failed"
	KindUpdateFailed Kind = "update_failed"
)

var messages = map[Kind]string{
	KindOutOfStock:   "Requested quantity is out of stock",
	KindAddFailed:    "Failed to add product",
	KindRemoveFailed: "Failed to remove product",
	KindUpdateFailed: "Failed to update product amount",
}

// Message returns the user-facing text for a kind.
func (k Kind) Message() string {
	if m, ok := messages[k]; ok {
		return m
	}
	return string(k)
}

// Notification is a fire-and-forget message for the user.
type Notification struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Message    string    `json:"message"`
	ProductID  int       `json:"product_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(kind Kind, productID int) Notification {
	return Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		Message:    kind.Message(),
		ProductID:  productID,
		OccurredAt: time.Now().UTC(),
	}
}

// Handler processes a published notification.
type Handler func(ctx context.Context, n Notification) error

// Publisher delivers notifications without waiting for them to be shown.
type Publisher interface {
	Publish(ctx context.Context, n Notification)
}

// Subscriber registers notification handlers.
type Subscriber interface {
	Subscribe(name string, h Handler)
}
