package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/pkg/auth"
	md "github.com/Astemirdum/library-circulation/pkg/middleware"
	"github.com/Astemirdum/library-circulation/pkg/validate"
)

type Handler struct {
	librarySvc LibraryService
	log        *zap.Logger
}

func New(librarySvc LibraryService, log *zap.Logger) *Handler {
	return &Handler{
		librarySvc: librarySvc,
		log:        log.Named("handler"),
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderContentType, auth.XUserIDHeader, auth.XUserRoleHeader},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
		md.AuthContext,
	)

	api.GET("/books", h.ListBooks)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books/:id/borrow", h.Borrow)
	api.POST("/books/:id/reserve", h.Reserve)
	api.POST("/books/:id/cancel-reservation", h.CancelReservation)

	api.GET("/borrowings", h.ListBorrowings)
	api.POST("/borrowings/:id/return", h.Return)
	api.POST("/borrowings/:id/renew", h.Renew)

	api.GET("/verify-transaction", h.RecentVerifications)
	api.POST("/verify-transaction", h.Verify)

	api.GET("/reservations", h.ListReservations)

	api.GET("/notifications", h.ListNotifications)
	api.POST("/notifications/mark-all-read", h.MarkAllNotificationsRead)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)
	api.POST("/notifications/:id/delete", h.DeleteNotification)

	api.GET("/fines", h.Fines)
	api.POST("/fines/pay-all", h.PayAllFines)
	api.POST("/fines/:id/pay", h.PayFine)

	admin := api.Group("/admin", md.RequireRole(auth.RoleAdmin))
	admin.POST("/sweep", h.Sweep)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// conflicts are business rule rejections reported as 409.
var conflicts = []error{
	errs.ErrBookUnavailable,
	errs.ErrBorrowLimit,
	errs.ErrOutstandingFines,
	errs.ErrAlreadyBorrowed,
	errs.ErrRenewOverdue,
	errs.ErrRenewLimit,
	errs.ErrCodeAlreadyUsed,
	errs.ErrBookExhausted,
	errs.ErrTransactionStale,
	errs.ErrBorrowingChanged,
	errs.ErrBookAvailable,
	errs.ErrAlreadyReserved,
	errs.ErrNoFine,
}

var badRequests = []error{
	errs.ErrCodeRequired,
	errs.ErrCodeFormat,
	errs.ErrInvalidCode,
	errs.ErrCodeExpired,
}

func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrTooManyAttempts):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	}
	for _, target := range badRequests {
		if errors.Is(err, target) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	for _, target := range conflicts {
		if errors.Is(err, target) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
	}
	if errors.Is(err, errs.ErrFinalize) {
		return echo.NewHTTPError(http.StatusInternalServerError, errs.ErrFinalize.Error())
	}
	// storage and driver details stay in the log
	h.log.Error("internal error", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func userID(c echo.Context) (int, error) {
	id, err := auth.GetUserID(c.Request().Context())
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return id, nil
}

func pathID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id is invalid")
	}
	return id, nil
}

func paging(c echo.Context) (page, size int, err error) {
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if page, err = strconv.Atoi(pageParam); err != nil || page < 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "page is invalid")
		}
	}
	if sizeParam := c.QueryParam("size"); sizeParam != "" {
		if size, err = strconv.Atoi(sizeParam); err != nil || size < 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "size is invalid")
		}
	}
	return page, size, nil
}
