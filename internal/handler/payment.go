package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/gateway"
	"storefront/internal/middleware"
	"storefront/internal/service"
)

// Webhook payloads are small JSON documents; anything bigger is garbage.
const maxWebhookBody = 1 << 16

// PaymentHandler handles HTTP requests for the payment flow.
type PaymentHandler struct {
	intents    *service.IntentService
	reconciler *service.WebhookReconciler
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(intents *service.IntentService, reconciler *service.WebhookReconciler) *PaymentHandler {
	return &PaymentHandler{
		intents:    intents,
		reconciler: reconciler,
	}
}

// CreateIntentRequest is the HTTP request body for creating a payment
// intent. Amount is deliberately absent: the charge amount only ever comes
// from the persisted order.
type CreateIntentRequest struct {
	OrderID  string `json:"order_id"`
	Currency string `json:"currency"`
}

// IntentResponse is the HTTP response for intent creation.
type IntentResponse struct {
	ClientSecret string `json:"client_secret"`
	IntentID     string `json:"intent_id"`
}

// CreateIntent handles POST /api/payments/create-payment-intent
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.OrderID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "order_id is required"})
		return
	}

	result, err := h.intents.CreateIntent(c.Request.Context(), service.CreateIntentRequest{
		RequesterID: c.GetString(middleware.ContextUserID),
		IsAdmin:     c.GetBool(middleware.ContextIsAdmin),
		OrderID:     req.OrderID,
		Currency:    req.Currency,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, IntentResponse{
		ClientSecret: result.ClientSecret,
		IntentID:     result.IntentID,
	})
}

// Webhook handles POST /api/payments/webhook
//
// The body is read raw, before any JSON handling, because the signature is
// computed over the exact bytes the processor sent. There is no auth on
// this route; trust comes from the signature alone.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "could not read request body"})
		return
	}

	sigHeader := c.GetHeader(gateway.SignatureHeader)
	if sigHeader == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing signature header"})
		return
	}

	if err := h.reconciler.Handle(c.Request.Context(), payload, sigHeader); err != nil {
		if errors.Is(err, service.ErrPersistence) {
			// The event was valid but did not durably apply; a 5xx makes
			// the processor redeliver it.
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to apply event"})
			return
		}
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"received": true})
}
