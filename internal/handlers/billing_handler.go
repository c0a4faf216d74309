package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"settlementsam/internal/logger"
	"settlementsam/internal/services"
)

const maxWebhookBody = 64 << 10

type BillingHandler struct {
	Service *services.BillingService
	log     *zap.Logger
}

func NewBillingHandler(service *services.BillingService, log *zap.Logger) *BillingHandler {
	return &BillingHandler{Service: service, log: logger.OrNop(log)}
}

// StripeWebhook
// @Summary      Stripe webhook
// @Description  Applies checkout.session.completed events. The session metadata carries client_id, quantity and optionally throttle_mode.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header  string  true  "signature"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}
// @Router       /webhooks/stripe [post]
func (h *BillingHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		bindError(c, err)
		return
	}
	res, err := h.Service.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "client_id": res.Client.ID, "schedule_id": res.Schedule.ID})
}
