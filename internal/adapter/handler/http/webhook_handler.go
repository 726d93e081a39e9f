package http

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	apperrors "github.com/wekeepgrowing/byway-payment/pkg/errors"
)

// Gateways send small JSON bodies; anything larger is not a webhook.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhooks WebhookProcessor
	logger   *zap.Logger
}

func NewWebhookHandler(webhooks WebhookProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhooks: webhooks,
		logger:   logger,
	}
}

// HandleWebhook passes the raw body and signature header to settlement. The
// body must reach signature verification byte for byte, so it is never bound.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	name := model.PaymentGateway(strings.ToUpper(c.Param("gateway")))
	gw, ok := h.webhooks.Gateway(name)
	if !ok {
		h.logger.Warn("Webhook for unknown gateway", zap.String("gateway", c.Param("gateway")))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Unknown payment gateway",
		})
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}

	sig := c.Request().Header.Get(gw.SignatureHeader())

	// settlement must finish even if the gateway hangs up
	ctx := context.WithoutCancel(c.Request().Context())

	result, err := h.webhooks.HandleWebhook(ctx, name, body, sig)
	if err != nil {
		apperrors.LogError(h.logger, err, "Webhook processing failed",
			zap.String("gateway", string(name)),
		)
		return apperrors.ToHTTPError(err)
	}

	h.logger.Info("Webhook handled",
		zap.String("gateway", string(name)),
		zap.String("event_id", result.EventID),
		zap.String("event_type", result.EventType),
		zap.String("outcome", string(result.Outcome)),
	)

	return c.JSON(http.StatusOK, result)
}

// RedriveOrder re-runs fulfillment for a paid order. Operators only.
func (h *WebhookHandler) RedriveOrder(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid order id"})
	}

	result, err := h.webhooks.RedriveOrder(context.WithoutCancel(c.Request().Context()), orderID)
	if err != nil {
		apperrors.LogError(h.logger, err, "Order re-drive failed", zap.String("order_id", orderID.String()))
		return apperrors.ToHTTPError(err)
	}

	return c.JSON(http.StatusOK, result)
}
