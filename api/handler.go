// Package api exposes the paywall over HTTP: checkout creation, the
// confirmation routes each gateway calls back on, and read-only account
// views for the session layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/entitlement"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
	"github.com/xraph/paywall/types"
)

// AccountHeader carries the authenticated account id, set by the session
// layer in front of this handler.
const AccountHeader = "X-Account-ID"

// maxBodyBytes bounds request and webhook bodies.
const maxBodyBytes = 64 << 10

// Engine is the subset of *paywall.Paywall the handlers use.
type Engine interface {
	Checkout(ctx context.Context, accountID id.AccountID, gateway account.Gateway, product pricing.Product) (*provider.OutboundRequest, error)
	Confirm(ctx context.Context, event provider.Event) (*paywall.Result, error)
	Orders(ctx context.Context, accountID id.AccountID, opts account.ListOpts) ([]*account.OrderRecord, error)
	Entitlements(ctx context.Context, accountID id.AccountID) (*entitlement.Snapshot, error)
}

var _ Engine = (*paywall.Paywall)(nil)

// Handler serves the paywall routes.
type Handler struct {
	engine  Engine
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithTimeout bounds each request, provider calls included.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// NewHandler creates a Handler over engine.
func NewHandler(engine Engine, opts ...Option) *Handler {
	h := &Handler{
		engine:  engine,
		logger:  slog.Default(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the chi router with every paywall route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if h.timeout > 0 {
		r.Use(middleware.Timeout(h.timeout))
	}

	r.Post("/checkout/{gateway}", h.checkout)

	r.Route("/confirm", func(r chi.Router) {
		r.Get("/card", h.confirmCard)
		r.Post("/signed", h.confirmSigned)
		r.Get("/wallet", h.confirmWalletRedirect)
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/card", h.cardWebhook)
		r.Post("/wallet", h.walletWebhook)
	})

	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Get("/orders", h.orders)
		r.Get("/entitlements", h.entitlements)
	})

	return r
}

// ──────────────────────────────────────────────────
// Checkout
// ──────────────────────────────────────────────────

type checkoutRequest struct {
	Product pricing.Product `json:"product"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseAccountID(r.Header.Get(AccountHeader))
	if err != nil {
		h.writeError(w, r, paywall.ValidationError{Field: AccountHeader, Message: "missing or malformed account id"})
		return
	}

	var body checkoutRequest
	if err := decode(r, &body); err != nil || body.Product == "" {
		h.writeError(w, r, paywall.ValidationError{Field: "product", Message: "is required"})
		return
	}

	req, err := h.engine.Checkout(r.Context(), accountID, account.Gateway(chi.URLParam(r, "gateway")), body.Product)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ──────────────────────────────────────────────────
// Confirmations
// ──────────────────────────────────────────────────

func (h *Handler) confirmCard(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, provider.CardConfirmation{SessionID: r.URL.Query().Get("session_id")})
}

func (h *Handler) confirmSigned(w http.ResponseWriter, r *http.Request) {
	var ev provider.SignedConfirmation
	if err := decode(r, &ev); err != nil {
		h.writeConfirmation(w, r, nil, paywall.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	h.confirm(w, r, ev)
}

// confirmWalletRedirect handles the buyer's browser returning from the
// wallet. Its query parameters are hints only; the adapter corroborates them.
func (h *Handler) confirmWalletRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := make(map[string]string, len(q))
	for k := range q {
		fields[k] = q.Get(k)
	}

	amount, err := strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil {
		h.writeConfirmation(w, r, nil, paywall.ValidationError{Field: "amount", Message: "must be an integer in minor units"})
		return
	}

	h.confirm(w, r, provider.WalletConfirmation{
		Channel:       provider.ChannelRedirect,
		TransactionID: q.Get("transaction_id"),
		AccountID:     q.Get(provider.MetaAccountID),
		Status:        q.Get("status"),
		Amount:        types.New(amount, q.Get("currency")),
		Fields:        fields,
	})
}

type walletWebhookBody struct {
	TransactionID  string            `json:"transaction_id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	MerchantFields map[string]string `json:"merchant_fields"`
}

func (h *Handler) walletWebhook(w http.ResponseWriter, r *http.Request) {
	var body walletWebhookBody
	if err := decode(r, &body); err != nil {
		h.writeConfirmation(w, r, nil, paywall.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	h.confirm(w, r, provider.WalletConfirmation{
		Channel:       provider.ChannelWebhook,
		TransactionID: body.TransactionID,
		Status:        body.Status,
		Amount:        types.New(body.Amount, body.Currency),
		Fields:        body.MerchantFields,
	})
}

func (h *Handler) cardWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeConfirmation(w, r, nil, paywall.ValidationError{Field: "body", Message: "unreadable"})
		return
	}
	h.confirm(w, r, provider.CardWebhook{
		Payload:   payload,
		Signature: r.Header.Get("Stripe-Signature"),
	})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request, ev provider.Event) {
	res, err := h.engine.Confirm(r.Context(), ev)
	h.writeConfirmation(w, r, res, err)
}

type confirmationResponse struct {
	Status  string                `json:"status"`
	Account *entitlement.Snapshot `json:"account,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// writeConfirmation renders a reconcile result. A repeated confirmation
// renders exactly like a fresh one.
func (h *Handler) writeConfirmation(w http.ResponseWriter, r *http.Request, res *paywall.Result, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, confirmationResponse{Status: StatusConfirmed, Account: res.Snapshot})
	case errors.Is(err, paywall.ErrEventIgnored):
		writeJSON(w, http.StatusOK, confirmationResponse{Status: StatusIgnored})
	default:
		status := StatusFor(err)
		h.log(r, status, err)
		writeJSON(w, status, confirmationResponse{Status: StatusFailed, Error: MessageNotConfirmed})
	}
}

// ──────────────────────────────────────────────────
// Account views
// ──────────────────────────────────────────────────

func (h *Handler) orders(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, paywall.ValidationError{Field: "id", Message: "malformed account id"})
		return
	}

	q := r.URL.Query()
	opts := account.ListOpts{
		Gateway: account.Gateway(q.Get("gateway")),
		Limit:   intParam(q.Get("limit"), 50, 0, 500),
		Offset:  intParam(q.Get("offset"), 0, 0, 1<<20),
	}

	orders, err := h.engine.Orders(r.Context(), accountID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) entitlements(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, paywall.ValidationError{Field: "id", Message: "malformed account id"})
		return
	}

	snap, err := h.engine.Entitlements(r.Context(), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	h.log(r, status, err)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) log(r *http.Request, status int, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "paywall request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func intParam(raw string, def, lo, hi int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return max(lo, min(n, hi))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
