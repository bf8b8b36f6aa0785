package payment

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/olga-kim7/library-service/app/echoServer/jwtx"
	paymentsvc "github.com/olga-kim7/library-service/service/payment"
)

type Controller struct {
	Svc paymentsvc.Service
	Log *slog.Logger
}

// POST /v1/payments/stripe (public, signature-verified)
func (h *Controller) HandleStripe(c echo.Context) error {
	sig := c.Request().Header.Get("Stripe-Signature")
	raw, _ := io.ReadAll(c.Request().Body)

	if err := h.Svc.HandleWebhook(c.Request().Context(), sig, raw); err != nil {
		h.Log.Error("payment callback error", "err", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "payment rejected"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ok"})
}

// GET /v1/payments
func (h *Controller) List(c echo.Context) error {
	rows, err := h.Svc.List(c.Request().Context(), jwtx.UserID(c), jwtx.Role(c))
	if err != nil {
		h.Log.Error("payment list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/payments/:id
func (h *Controller) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	row, err := h.Svc.Get(c.Request().Context(), jwtx.UserID(c), jwtx.Role(c), id)
	if err != nil {
		return h.mapErr(c, err, "payment get")
	}
	return c.JSON(http.StatusOK, row)
}

// POST /v1/payments/:id/paid — manual completion signal, idempotent.
func (h *Controller) MarkPaid(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	row, err := h.Svc.MarkPaid(c.Request().Context(), jwtx.UserID(c), jwtx.Role(c), id)
	if err != nil {
		return h.mapErr(c, err, "payment mark paid")
	}
	return c.JSON(http.StatusOK, row)
}

// POST /v1/payments/:id/session — retry checkout session creation.
func (h *Controller) RetrySession(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	row, err := h.Svc.RetrySession(c.Request().Context(), jwtx.UserID(c), jwtx.Role(c), id)
	if err != nil {
		return h.mapErr(c, err, "payment retry session")
	}
	return c.JSON(http.StatusOK, row)
}

func (h *Controller) mapErr(c echo.Context, err error, op string) error {
	switch paymentsvc.Code(err) {
	case paymentsvc.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
	case paymentsvc.ErrForbidden:
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	case paymentsvc.ErrNotPending:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "payment is not pending"})
	case paymentsvc.ErrGateway:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "checkout session could not be created"})
	default:
		h.Log.Error(op, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
}
