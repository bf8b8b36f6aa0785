package borrowing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/olga-kim7/library-service/app/echoServer/jwtx"
	"github.com/olga-kim7/library-service/model"
	bs "github.com/olga-kim7/library-service/service/borrowing"
)

type Controller struct {
	Svc bs.Service
	V   *validator.Validate
	Log *slog.Logger
}

// POST /v1/borrowings
// @Summary      Create borrowing
// @Description  Reserves a copy, creates the priced PENDING payment and a checkout session
// @Tags         borrowings
// @Security     BearerAuth
// @Router       /v1/borrowings [post]
func (h *Controller) Create(c echo.Context) error {
	var req CreateBorrowingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}

	borrowDate, err := time.Parse(model.DateOnly, req.BorrowDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid borrow_date"})
	}
	expected, err := time.Parse(model.DateOnly, req.ExpectedReturnDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid expected_return_date"})
	}

	uid := jwtx.UserID(c)
	out, err := h.Svc.Create(c.Request().Context(), uid, bs.CreateInput{
		BookID:             req.BookID,
		BookTitle:          req.BookTitle,
		BorrowDate:         borrowDate,
		ExpectedReturnDate: expected,
	})
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrValidation:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "expected_return_date must be after borrow_date"})
		case bs.ErrOutOfStock:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "book is out of stock"})
		case bs.ErrMultipleBooks:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "multiple books found with the same title"})
		case bs.ErrBookNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case bs.ErrGateway:
			// Borrowing and payment are committed; only the checkout
			// session is missing. Clients retry via the payments API.
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "checkout session could not be created, retry via POST /v1/payments/:id/session"})
		default:
			h.Log.Error("borrowing create", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}

	return c.JSON(http.StatusCreated, out)
}

// GET /v1/borrowings?is_active=&user_id=
func (h *Controller) List(c echo.Context) error {
	var f bs.Filter
	if v := c.QueryParam("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid is_active"})
		}
		f.IsActive = &active
	}
	if v := c.QueryParam("user_id"); v != "" {
		uid, err := strconv.ParseInt(v, 10, 64)
		if err != nil || uid <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid user_id"})
		}
		f.UserID = &uid
	}

	rows, err := h.Svc.List(c.Request().Context(), jwtx.UserID(c), jwtx.Role(c), f)
	if err != nil {
		if bs.Code(err) == bs.ErrForbidden {
			return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		}
		h.Log.Error("borrowing list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/borrowings/:id
func (h *Controller) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	row, err := h.Svc.Get(c.Request().Context(), jwtx.UserID(c), jwtx.Role(c), id)
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		case bs.ErrForbidden:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		default:
			h.Log.Error("borrowing get", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, row)
}

// POST /v1/borrowings/:id/return
func (h *Controller) Return(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	out, err := h.Svc.Return(c.Request().Context(), jwtx.UserID(c), jwtx.Role(c), id, time.Now().UTC())
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrForbidden:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		case bs.ErrAlreadyReturned:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "borrowing already returned"})
		case bs.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		default:
			h.Log.Error("borrowing return", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, out)
}

// DELETE /v1/borrowings/:id  (admin)
func (h *Controller) Delete(c echo.Context) error {
	if !jwtx.IsAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	if err := h.Svc.Delete(c.Request().Context(), id); err != nil {
		if bs.Code(err) == bs.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		}
		h.Log.Error("borrowing delete", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "deleted"})
}
