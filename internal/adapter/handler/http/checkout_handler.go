package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/middleware/auth"
	"github.com/wekeepgrowing/byway-payment/internal/usecase"
	apperrors "github.com/wekeepgrowing/byway-payment/pkg/errors"
)

type CheckoutHandler struct {
	payments CheckoutService
	wallets  WalletReader
	logger   *zap.Logger
}

func NewCheckoutHandler(payments CheckoutService, wallets WalletReader, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		payments: payments,
		wallets:  wallets,
		logger:   logger,
	}
}

// CreateCheckout buys the requested courses, from the wallet or through a gateway.
func (h *CheckoutHandler) CreateCheckout(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req usecase.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ToHTTPError(customErr.NewValidationError("invalid request body"))
	}
	req.UserID = user.UserID
	if req.Email == "" {
		req.Email = user.Email
	}
	if err := c.Validate(&req); err != nil {
		return apperrors.ToHTTPError(err)
	}

	result, err := h.payments.CreateCheckout(c.Request().Context(), &req)
	if err != nil {
		apperrors.LogError(h.logger, err, "Checkout failed", zap.String("user_id", user.UserID.String()))
		return apperrors.ToHTTPError(err)
	}

	return c.JSON(http.StatusCreated, result)
}

// CreateTopUp opens a gateway session that credits the wallet.
func (h *CheckoutHandler) CreateTopUp(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req usecase.TopUpRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ToHTTPError(customErr.NewValidationError("invalid request body"))
	}
	req.UserID = user.UserID
	if req.Email == "" {
		req.Email = user.Email
	}
	if err := c.Validate(&req); err != nil {
		return apperrors.ToHTTPError(err)
	}

	result, err := h.payments.CreateWalletTopUp(c.Request().Context(), &req)
	if err != nil {
		apperrors.LogError(h.logger, err, "Wallet top-up failed", zap.String("user_id", user.UserID.String()))
		return apperrors.ToHTTPError(err)
	}

	return c.JSON(http.StatusCreated, result)
}

func (h *CheckoutHandler) GetWallet(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	wallet, err := h.wallets.GetWallet(c.Request().Context(), user.UserID)
	if err != nil {
		apperrors.LogError(h.logger, err, "Failed to get wallet", zap.String("user_id", user.UserID.String()))
		return apperrors.ToHTTPError(err)
	}

	return c.JSON(http.StatusOK, wallet)
}

func (h *CheckoutHandler) ListTransactions(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	txs, err := h.payments.ListTransactions(c.Request().Context(), user.UserID, limit, offset)
	if err != nil {
		apperrors.LogError(h.logger, err, "Failed to list transactions", zap.String("user_id", user.UserID.String()))
		return apperrors.ToHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
