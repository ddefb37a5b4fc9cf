package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/checkout"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/pkg/response"
)

// Verifier fetches the authoritative payment state from the provider.
// Notification bodies only carry the payment id; the status is never
// trusted from the callback alone when a verifier is available.
type Verifier interface {
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentResult, error)
}

// WebhookHandler receives provider callbacks. It is mounted outside the
// JWT group: the provider authenticates nothing, so the handler verifies
// payment state against the provider API before acting.
type WebhookHandler struct {
	reconciler *Reconciler
	verifier   Verifier
	logger     *zap.Logger
}

// NewWebhookHandler creates the payment webhook handler. verifier may be
// nil in tests; then the callback fields are used as-is.
func NewWebhookHandler(reconciler *Reconciler, verifier Verifier, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, verifier: verifier, logger: logger}
}

type webhookBody struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	PaymentID         string `json:"payment_id"`
	Status            string `json:"status"`
	CollectionStatus  string `json:"collection_status"`
	ExternalReference string `json:"external_reference"`
}

// Handle processes POST /webhooks/payments. The provider sends both
// notification posts ({type, data.id}) and back-redirect style payloads
// ({payment_id, status/collection_status, external_reference}); both
// shapes resolve to one normalized result before reconciliation.
func (h *WebhookHandler) Handle(c *gin.Context) {
	var body webhookBody
	_ = c.ShouldBindJSON(&body)

	paymentID := firstNonEmpty(body.Data.ID, body.PaymentID, c.Query("payment_id"), c.Query("id"))
	if paymentID == "" {
		response.BadRequest(c, "missing payment id")
		return
	}

	result, err := h.resolve(c.Request.Context(), paymentID, &body, c)
	if err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			h.logger.Warn("unrecognized payment status rejected",
				zap.String("payment_id", paymentID), zap.Error(err))
			response.BadRequest(c, "unrecognized payment status")
			return
		}
		h.logger.Error("payment verification failed", zap.Error(err), zap.String("payment_id", paymentID))
		c.JSON(http.StatusBadGateway, response.Body{Success: false, Error: "payment verification failed"})
		return
	}

	outcome, err := h.reconciler.Reconcile(c.Request.Context(), result)
	if err != nil {
		if errors.Is(err, checkout.ErrOrderNotFound) {
			h.logger.Warn("callback for unknown order",
				zap.String("payment_id", result.PaymentID),
				zap.String("external_reference", result.ExternalReference.String()))
			response.NotFound(c, "order not found")
			return
		}
		h.logger.Error("reconciliation failed", zap.Error(err), zap.String("payment_id", result.PaymentID))
		// Non-2xx makes the provider retry the notification.
		response.Internal(c, "reconciliation failed")
		return
	}

	response.OK(c, gin.H{"outcome": string(outcome)})
}

// resolve produces the normalized result, preferring provider
// verification over callback fields.
func (h *WebhookHandler) resolve(ctx context.Context, paymentID string, body *webhookBody, c *gin.Context) (*models.PaymentResult, error) {
	if h.verifier != nil {
		return h.verifier.GetPayment(ctx, paymentID)
	}
	rawStatus := firstNonEmpty(body.CollectionStatus, body.Status, c.Query("collection_status"), c.Query("status"))
	ref := firstNonEmpty(body.ExternalReference, c.Query("external_reference"))
	return DecodeResult(paymentID, rawStatus, ref)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
