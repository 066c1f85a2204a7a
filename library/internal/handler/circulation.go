package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/library-circulation/library/internal/model"
)

func (h *Handler) ListBooks(c echo.Context) error {
	var filter model.BookFilter
	if err := c.Bind(&filter); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "query is invalid")
	}
	if err := c.Validate(filter); err != nil {
		return err
	}
	books, err := h.librarySvc.ListBooks(c.Request().Context(), filter)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) GetBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := h.librarySvc.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) ListBorrowings(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	borrowings, err := h.librarySvc.ListBorrowings(c.Request().Context(), uid)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, borrowings)
}

func (h *Handler) Borrow(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	bookID, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := h.librarySvc.Borrow(c.Request().Context(), uid, bookID)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusAccepted, res)
}

func (h *Handler) Return(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	borrowingID, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := h.librarySvc.Return(c.Request().Context(), uid, borrowingID)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusAccepted, res)
}

func (h *Handler) Renew(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	borrowingID, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := h.librarySvc.Renew(c.Request().Context(), uid, borrowingID)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type verifyRequest struct {
	Code string `json:"verification_code" form:"verification_code"`
}

func (h *Handler) Verify(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body is invalid")
	}
	res, err := h.librarySvc.Verify(c.Request().Context(), uid, req.Code)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RecentVerifications(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	recent, err := h.librarySvc.RecentVerifications(c.Request().Context(), uid)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, recent)
}

func (h *Handler) Reserve(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	bookID, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := h.librarySvc.Reserve(c.Request().Context(), uid, bookID)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) CancelReservation(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	bookID, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.librarySvc.CancelReservation(c.Request().Context(), uid, bookID); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListReservations(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	list, err := h.librarySvc.ListReservations(c.Request().Context(), uid)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) Sweep(c echo.Context) error {
	report, err := h.librarySvc.Sweep(c.Request().Context())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}
