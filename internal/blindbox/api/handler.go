package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-blindbox/internal/blindbox"
	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/models"
	"ms-blindbox/internal/payments"
	"ms-blindbox/internal/utils"
)

type Handler struct {
	Service *blindbox.Service
	Logger  *logger.Logger
	// RateLimit, when set, wraps the mutating purchase-flow endpoints.
	// The webhook stays outside it so Stripe retries are never throttled.
	RateLimit func(http.Handler) http.Handler
}

func NewHandler(service *blindbox.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// Routes mounts the public purchase-flow endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(g chi.Router) {
		if h.RateLimit != nil {
			g.Use(h.RateLimit)
		}
		g.Post("/payments/intent", h.CreateIntent)
		g.Post("/sessions", h.CreateSession)
		g.Post("/sessions/{sessionId}/reveal-box", h.RevealBox)
		g.Post("/sessions/{sessionId}/reveal-item", h.RevealItem)
		g.Post("/sessions/{sessionId}/reroll", h.Reroll)
		g.Post("/sessions/{sessionId}/checkout", h.Checkout)
	})
	r.Get("/sessions/{sessionId}", h.GetSession)
	r.Post("/stripe/webhook", h.StripeWebhook)
	r.Get("/universes", h.ListUniverses)
}

func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Type != models.PurposeEntry && req.Type != models.PurposeReroll {
		h.writeError(w, "Validation failed", "type: must be \"entry\" or \"reroll\"", http.StatusBadRequest)
		return
	}
	if req.Type == models.PurposeReroll && req.SessionID == "" {
		h.writeError(w, "Validation failed", "sessionId: required for reroll payments", http.StatusBadRequest)
		return
	}

	resp, err := h.Service.CreateIntent(r.Context(), req.Type, req.SessionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateIntent: %v", err))
		h.writeError(w, "Failed to create payment intent", "payment provider error", http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.PaymentIntentID == "" {
		h.writeError(w, "Validation failed", "paymentIntentId: required", http.StatusBadRequest)
		return
	}

	snapshot, err := h.Service.CreateSession(r.Context(), req.PaymentIntentID)
	if err != nil {
		h.respondError(w, "CreateSession", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": snapshot.ID,
		"session":   snapshot,
	})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	snapshot, err := h.Service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, "GetSession", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"session": snapshot})
}

func (h *Handler) RevealBox(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req models.RevealBoxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.UniverseSlug == "" {
		h.writeError(w, "Validation failed", "universeSlug: required", http.StatusBadRequest)
		return
	}

	resp, err := h.Service.RevealBox(r.Context(), sessionID, req.UniverseSlug)
	if err != nil {
		h.respondError(w, "RevealBox", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RevealItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	resp, err := h.Service.RevealItem(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, "RevealItem", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Reroll(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req models.RerollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Type != models.RerollBox && req.Type != models.RerollItem {
		h.writeError(w, "Validation failed", "type: must be \"box\" or \"item\"", http.StatusBadRequest)
		return
	}
	if req.PaymentIntentID == "" {
		h.writeError(w, "Validation failed", "paymentIntentId: required", http.StatusBadRequest)
		return
	}

	resp, err := h.Service.Reroll(r.Context(), sessionID, req)
	if err != nil {
		h.respondError(w, "Reroll", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if msg := validateShipping(req); msg != "" {
		h.writeError(w, "Validation failed", msg, http.StatusBadRequest)
		return
	}

	resp, err := h.Service.Checkout(r.Context(), sessionID, req)
	if err != nil {
		h.respondError(w, "Checkout", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, "Invalid webhook payload", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Service.IngestWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			h.writeError(w, "Webhook signature verification failed", "invalid signature", http.StatusBadRequest)
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Ingest failed: %v", err))
		h.writeError(w, "Webhook handler failed", "internal error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"received":  true,
		"duplicate": result.Duplicate,
	})
}

func (h *Handler) ListUniverses(w http.ResponseWriter, r *http.Request) {
	universes, err := h.Service.ListUniverses(r.Context())
	if err != nil {
		h.respondError(w, "ListUniverses", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"universes": universes})
}

func validateShipping(req models.CheckoutRequest) string {
	var missing []string
	if req.CustomerName == "" {
		missing = append(missing, "customerName")
	}
	if req.StreetAddress == "" {
		missing = append(missing, "streetAddress")
	}
	if req.City == "" {
		missing = append(missing, "city")
	}
	if req.State == "" {
		missing = append(missing, "state")
	}
	if req.ZipCode == "" {
		missing = append(missing, "zipCode")
	}
	if len(missing) == 0 {
		return ""
	}
	return strings.Join(missing, ", ") + ": required"
}

// respondError maps domain failures onto the HTTP surface. Everything
// unexpected collapses to a generic 500 with the detail kept in logs.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		h.writeError(w, "Request failed", "internal error", status)
		return
	}
	h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	h.writeError(w, "Request failed", err.Error(), status)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, blindbox.ErrConfirmationAlreadyUsed),
		errors.Is(err, blindbox.ErrAmountMismatch):
		return http.StatusConflict
	case errors.Is(err, payments.ErrPaymentNotSucceeded),
		errors.Is(err, payments.ErrCurrencyMismatch),
		errors.Is(err, payments.ErrAmountMismatch),
		errors.Is(err, payments.ErrPurposeMismatch),
		errors.Is(err, payments.ErrSessionBindingMissing),
		errors.Is(err, payments.ErrSessionMismatch),
		errors.Is(err, blindbox.ErrIncompletePayment):
		return http.StatusPaymentRequired
	case errors.Is(err, blindbox.ErrSessionNotFound),
		errors.Is(err, blindbox.ErrUniverseNotFound),
		errors.Is(err, blindbox.ErrEmptyCatalog):
		return http.StatusNotFound
	case errors.Is(err, blindbox.ErrSessionNotActive),
		errors.Is(err, blindbox.ErrNoBoxSelected),
		errors.Is(err, blindbox.ErrNoUniverseBound),
		errors.Is(err, blindbox.ErrSessionNotReady),
		errors.Is(err, blindbox.ErrNoPayments):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message, detail string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(utils.ErrorResponse(message, detail)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode error response: %v", err))
	}
}
