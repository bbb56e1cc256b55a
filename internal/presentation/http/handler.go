package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	appCart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	domainCart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/notice"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	maxBodyBytes         = 1 << 16
)

// CartStore is the part of the cart store the HTTP surface drives.
type CartStore interface {
	AddProduct(ctx context.Context, productID int) error
	RemoveProduct(ctx context.Context, productID int) error
	UpdateProductAmount(ctx context.Context, in appCart.UpdateAmountInput) error
	Cart() domainCart.Entries
	Size() int
}

// Toasts hands out pending notifications.
type Toasts interface {
	Drain() []notice.Notification
}

type Handler struct {
	store       CartStore
	toasts      Toasts
	log         observability.Logger
	tel         observability.Observability
	corsOrigins []string
}

type Option func(*Handler)

// WithCORS lets browser views served from origins call the API.
func WithCORS(origins []string) Option {
	return func(h *Handler) { h.corsOrigins = origins }
}

func NewHandler(store CartStore, toasts Toasts, tel observability.Observability, opts ...Option) *Handler {
	tel = observability.Or(tel)
	h := &Handler{
		store:  store,
		toasts: toasts,
		log:    tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:    tel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router wires every route behind:
// Recoverer → CORS (optional) → ObservabilityMiddleware (span, request logger, metrics, access log) → Handler
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(h.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", headerRequestID},
			ExposedHeaders: []string{headerRequestID},
			MaxAge:         600,
		}))
	}
	r.Use(ObservabilityMiddleware(h.log, func(r *http.Request) string {
		return r.Header.Get(headerRequestID)
	}, h.tel))

	r.Get("/health", h.handleHealth)
	r.Get("/cart", h.handleGetCart)
	r.Post("/cart/products/{productId}", h.handleAddProduct)
	r.Delete("/cart/products/{productId}", h.handleRemoveProduct)
	r.Put("/cart/products/{productId}/amount", h.handleUpdateAmount)
	r.Get("/notifications", h.handleNotifications)

	return r
}

type cartResponse struct {
	Items domainCart.Entries `json:"items"`
	Size  int                `json:"size"`
	Units int                `json:"units"`
	Error string             `json:"error,omitempty"`
}

func (h *Handler) cartBody(err error) cartResponse {
	items := h.store.Cart()
	if items == nil {
		items = domainCart.Entries{}
	}
	resp := cartResponse{Items: items, Size: len(items), Units: items.Units()}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (h *Handler) handleGetCart(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cartBody(nil))
}

func (h *Handler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.respond(w, r, h.store.AddProduct(r.Context(), id))
}

func (h *Handler) handleRemoveProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.respond(w, r, h.store.RemoveProduct(r.Context(), id))
}

type updateAmountRequest struct {
	Amount *int `json:"amount"`
}

func (h *Handler) handleUpdateAmount(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	var req updateAmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	if req.Amount == nil {
		h.badRequest(w, errors.New("amount is required"))
		return
	}
	h.respond(w, r, h.store.UpdateProductAmount(r.Context(), appCart.UpdateAmountInput{
		ProductID: id,
		Amount:    *req.Amount,
	}))
}

type notificationsResponse struct {
	Notifications []notice.Notification `json:"notifications"`
}

func (h *Handler) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	items := h.toasts.Drain()
	if items == nil {
		items = []notice.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: items})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// respond writes the current cart, with the status derived from err.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("cart_operation_failed",
			observability.F("status", status),
			observability.F("error", err),
		)
	}
	writeJSON(w, status, h.cartBody(err))
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domainCart.ErrOutOfStock),
		errors.Is(err, domainCart.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domainCart.ErrEntryNotFound),
		errors.Is(err, domainCart.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainCart.ErrInventory):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func productID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "productId")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", raw)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, h.cartBody(err))
}
