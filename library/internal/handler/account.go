package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func (h *Handler) ListNotifications(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	page, size, err := paging(c)
	if err != nil {
		return err
	}
	list, err := h.librarySvc.ListNotifications(c.Request().Context(), uid, page, size)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) MarkNotificationRead(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.librarySvc.MarkNotificationRead(c.Request().Context(), uid, id); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkAllNotificationsRead(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	n, err := h.librarySvc.MarkAllNotificationsRead(c.Request().Context(), uid)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) DeleteNotification(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.librarySvc.DeleteNotification(c.Request().Context(), uid, id); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Fines(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	summary, err := h.librarySvc.Fines(c.Request().Context(), uid)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) PayFine(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	borrowingID, err := pathID(c)
	if err != nil {
		return err
	}
	paid, err := h.librarySvc.PayFine(c.Request().Context(), uid, borrowingID)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, paid)
}

func (h *Handler) PayAllFines(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	total, err := h.librarySvc.PayAllFines(c.Request().Context(), uid)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]decimal.Decimal{"paid": total})
}
