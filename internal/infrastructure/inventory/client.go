package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

const (
	peerInventory    = "inventory"
	endpointStock    = "stock"
	endpointProducts = "products"
	defaultTimeout   = 5 * time.Second
	maxBodyBytes     = 1 << 20
)

// Client reads stock and catalog data from the inventory HTTP API:
//
//	GET {base}/stock/{id}    -> {"id":1,"amount":3}
//	GET {base}/products/{id} -> {"id":1,"title":"...", ...}
type Client struct {
	baseURL string
	http    *http.Client

	log          observability.Logger
	tracer       observability.Tracer
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

// NewClient builds a client for baseURL. timeout <= 0 selects the default.
func NewClient(baseURL string, timeout time.Duration, tel observability.Observability) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("inventory: invalid base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tel = observability.Or(tel)
	metrics := tel.Metrics()
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: timeout},
		log:          tel.Logger().With(observability.F("component", "inventory_client")),
		tracer:       tel.Tracer(),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}, nil
}

func (c *Client) Stock(ctx context.Context, productID int) (cart.Stock, error) {
	var stock cart.Stock
	if err := c.get(ctx, endpointStock, productID, &stock); err != nil {
		return cart.Stock{}, err
	}
	return stock, nil
}

func (c *Client) Product(ctx context.Context, productID int) (cart.Product, error) {
	var p cart.Product
	if err := c.get(ctx, endpointProducts, productID, &p); err != nil {
		return cart.Product{}, err
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, endpoint string, productID int, dst any) (err error) {
	target := c.baseURL + "/" + endpoint + "/" + strconv.Itoa(productID)

	ctx, span := c.tracer.Start(ctx, "GET /"+endpoint+"/{id}",
		attribute.String("peer.service", peerInventory),
		attribute.String("http.method", http.MethodGet),
		attribute.String("http.url", target),
	)
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()

		c.extCounter.Add(1,
			observability.L("peer", peerInventory),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerInventory),
			observability.L("endpoint", endpoint),
		)
		if err != nil {
			logctx.FromOr(ctx, c.log).Warn("inventory_request_failed",
				observability.F("endpoint", endpoint),
				observability.F("product_id", productID),
				observability.F("error", err),
			)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("%w: build request: %w", cart.ErrInventory, err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		outcome = "error"
		if ctx.Err() != nil {
			outcome = "canceled"
		}
		return fmt.Errorf("%w: %s: %w", cart.ErrInventory, endpoint, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound && endpoint == endpointProducts {
		outcome = "not_found"
		return fmt.Errorf("%w: %w: %d", cart.ErrInventory, cart.ErrProductNotFound, productID)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "error"
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%w: %s: unexpected status %d", cart.ErrInventory, endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		outcome = "error"
		return fmt.Errorf("%w: %s: decode: %w", cart.ErrInventory, endpoint, err)
	}
	return nil
}
