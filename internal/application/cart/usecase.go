package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/notice"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	useCaseAdd    = "cart.add_product"
	useCaseRemove = "cart.remove_product"
	useCaseUpdate = "cart.update_amount"
	spanPrefix    = "UC."

	statusOK   = "OK"
	statusNoop = "NOOP"
)

// UpdateAmountInput sets the quantity of a product already in the cart.
type UpdateAmountInput struct {
	ProductID int
	Amount    int
}

type operation struct {
	useCase   string
	spanName  string
	productID int
	failure   notice.Kind
	attrs     []attribute.KeyValue
}

// AddProduct puts one more unit of the product in the cart.
//
// A product already in the cart is checked against current stock first. A product not
// yet in the cart is fetched from the catalog and added with amount 1 without a stock
// check.
func (s *Store) AddProduct(ctx context.Context, productID int) error {
	op := operation{
		useCase:   useCaseAdd,
		spanName:  "AddProduct",
		productID: productID,
		failure:   notice.KindAddFailed,
	}
	err := s.run(ctx, op, func(ctx context.Context) (string, error) {
		return statusOK, s.apply(ctx, func(ctx context.Context, current domain.Entries) (domain.Entries, error) {
			if existing, ok := current.Find(productID); ok {
				stock, err := s.stock(ctx, productID)
				if err != nil {
					return nil, err
				}
				if stock.Amount <= existing.Amount {
					return nil, domain.ErrOutOfStock
				}
				return current.WithAmount(productID, existing.Amount+1)
			}

			product, err := s.product(ctx, productID)
			if err != nil {
				return nil, err
			}
			product.ID = productID
			entry, err := domain.NewEntry(product, 1)
			if err != nil {
				return nil, err
			}
			return current.Append(entry)
		})
	})
	if err != nil {
		return fmt.Errorf("cart: add product %d: %w", productID, err)
	}
	return nil
}

// RemoveProduct drops the product line from the cart. It never calls the inventory.
func (s *Store) RemoveProduct(ctx context.Context, productID int) error {
	op := operation{
		useCase:   useCaseRemove,
		spanName:  "RemoveProduct",
		productID: productID,
		failure:   notice.KindRemoveFailed,
	}
	err := s.run(ctx, op, func(ctx context.Context) (string, error) {
		return statusOK, s.apply(ctx, func(_ context.Context, current domain.Entries) (domain.Entries, error) {
			return current.Without(productID)
		})
	})
	if err != nil {
		return fmt.Errorf("cart: remove product %d: %w", productID, err)
	}
	return nil
}

// UpdateProductAmount sets the quantity of a product in the cart. Amounts below one are
// ignored without error or notification.
func (s *Store) UpdateProductAmount(ctx context.Context, in UpdateAmountInput) error {
	op := operation{
		useCase:   useCaseUpdate,
		spanName:  "UpdateProductAmount",
		productID: in.ProductID,
		failure:   notice.KindUpdateFailed,
		attrs:     []attribute.KeyValue{attribute.Int("cart.amount", in.Amount)},
	}
	err := s.run(ctx, op, func(ctx context.Context) (string, error) {
		if in.Amount < 1 {
			return statusNoop, nil
		}
		return statusOK, s.apply(ctx, func(ctx context.Context, current domain.Entries) (domain.Entries, error) {
			stock, err := s.stock(ctx, in.ProductID)
			if err != nil {
				return nil, err
			}
			if stock.Amount < in.Amount {
				return nil, domain.ErrOutOfStock
			}
			return current.WithAmount(in.ProductID, in.Amount)
		})
	})
	if err != nil {
		return fmt.Errorf("cart: update amount of product %d: %w", in.ProductID, err)
	}
	return nil
}

func (s *Store) stock(ctx context.Context, productID int) (domain.Stock, error) {
	stock, err := s.inventory.Stock(ctx, productID)
	if err != nil {
		return domain.Stock{}, inventoryError("stock", err)
	}
	return stock, nil
}

func (s *Store) product(ctx context.Context, productID int) (domain.Product, error) {
	product, err := s.inventory.Product(ctx, productID)
	if err != nil {
		return domain.Product{}, inventoryError("product", err)
	}
	return product, nil
}

func inventoryError(lookup string, err error) error {
	if errors.Is(err, domain.ErrInventory) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrInventory, lookup, err)
}

// run wraps one operation with a span, RED metrics, a single completion log and, on
// failure, a user notification.
func (s *Store) run(ctx context.Context, op operation, fn func(ctx context.Context) (string, error)) (err error) {
	ctx, logger := logctx.Extend(ctx, s.log,
		observability.F("use_case", op.useCase),
		observability.F("product_id", op.productID),
	)

	attrs := append([]attribute.KeyValue{
		attribute.String("use_case", op.useCase),
		attribute.Int("product.id", op.productID),
	}, op.attrs...)
	ctx, span := s.tracer.Start(ctx, spanPrefix+op.spanName, attrs...)
	start := time.Now()
	outcome, statusText := "success", statusOK
	var notified notice.Kind

	defer func() {
		lat := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", op.useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat,
			observability.L("use_case", op.useCase),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if notified != "" {
			fields = append(fields, observability.F("notification", string(notified)))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	statusText, err = fn(ctx)
	if err != nil {
		outcome, statusText = "error", statusFromError(err)
		notified = op.failure
		if errors.Is(err, domain.ErrOutOfStock) {
			notified = notice.KindOutOfStock
		}
		s.notify(ctx, notified, op.productID)
		return err
	}
	if statusText == statusNoop {
		outcome = "noop"
	}
	return nil
}

func (s *Store) notify(ctx context.Context, kind notice.Kind, productID int) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, notice.New(kind, productID))
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, domain.ErrOutOfStock):
		return "OUT_OF_STOCK"
	case errors.Is(err, domain.ErrEntryNotFound):
		return "ENTRY_NOT_FOUND"
	case errors.Is(err, domain.ErrProductNotFound):
		return "PRODUCT_NOT_FOUND"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CONTEXT_CANCELED"
	case errors.Is(err, domain.ErrInventory):
		return "INVENTORY_FAILED"
	case errors.Is(err, domain.ErrPersistence):
		return "PERSIST_FAILED"
	case errors.Is(err, domain.ErrConflict):
		return "CONFLICT"
	default:
		return "FAILED"
	}
}
