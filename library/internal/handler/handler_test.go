package handler_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/handler"
	"github.com/Astemirdum/library-circulation/library/internal/model"
	"github.com/Astemirdum/library-circulation/pkg/auth"
	md "github.com/Astemirdum/library-circulation/pkg/middleware"
	"github.com/Astemirdum/library-circulation/pkg/validate"

	service_mocks "github.com/Astemirdum/library-circulation/library/internal/handler/mocks"
)

const sicpJSON = `{"id":11,"title":"SICP","author":"Abelson","isbn":"222","description":"","totalCopies":3,"availableCopies":2,"category":"cs","department":"","isActive":true}`

var sicp = model.Book{ID: 11, Title: "SICP", Author: "Abelson", ISBN: "222", TotalCopies: 3, AvailableCopies: 2, Category: "cs", IsActive: true}

func newEcho(t *testing.T) (*echo.Echo, *handler.Handler, *service_mocks.MockLibraryService) {
	t.Helper()
	c := gomock.NewController(t)
	svc := service_mocks.NewMockLibraryService(c)
	h := handler.New(svc, zap.NewExample().Named("test"))
	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	return e, h, svc
}

func TestHandler_GetBook(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	var tests = []struct {
		name         string
		id           string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			id:   "11",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().GetBook(gomock.Any(), 11).Return(sicp, nil)
			},
			response: response{expectedCode: http.StatusOK, expectedBody: sicpJSON},
		},
		{
			name: "err. not found",
			id:   "99",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().GetBook(gomock.Any(), 99).Return(model.Book{}, errs.ErrNotFound)
			},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"not found"}`},
		},
		{
			name:         "err. bad id",
			id:           "abc",
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response:     response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"id is invalid"}`},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, h, svc := newEcho(t)
			e.GET("/books/:id", h.GetBook)

			r := httptest.NewRequest(http.MethodGet, "/books/"+tt.id, http.NoBody)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_ListBooks(t *testing.T) {
	t.Parallel()
	type mockBehavior func(r *service_mocks.MockLibraryService)

	var tests = []struct {
		name         string
		query        string
		mockBehavior mockBehavior
		expectedCode int
		expectedBody string
	}{
		{
			name:  "ok",
			query: "search=sicp&availability=available&page=1&size=10",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ListBooks(gomock.Any(), model.BookFilter{Search: "sicp", Availability: model.AvailabilityAvailable, Page: 1, Size: 10}).
					Return(model.ListBooks{Paging: model.Paging{Page: 1, PageSize: 10, TotalElements: 1}, Items: []model.Book{sicp}}, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"page":1,"pageSize":10,"totalElements":1,"items":[` + sicpJSON + `]}`,
		},
		{
			name:         "err. availability",
			query:        "availability=soon",
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "err. size",
			query:        "size=1000",
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:  "err. internal",
			query: "",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().ListBooks(gomock.Any(), model.BookFilter{}).Return(model.ListBooks{}, errors.New("db internal"))
			},
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"message":"Internal Server Error"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, h, svc := newEcho(t)
			e.GET("/books", h.ListBooks)

			r := httptest.NewRequest(http.MethodGet, "/books?"+tt.query, http.NoBody)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedBody != "" {
				require.Equal(t, tt.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_Borrow(t *testing.T) {
	t.Parallel()
	type mockBehavior func(r *service_mocks.MockLibraryService)

	var tests = []struct {
		name         string
		userID       string
		mockBehavior mockBehavior
		expectedCode int
		expectedBody string
	}{
		{
			name:   "ok",
			userID: "1",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Borrow(gomock.Any(), 1, 11).Return(model.TransactionResult{
					Borrowing:       model.Borrowing{ID: 5, UserID: 1, BookID: 11, Status: model.BorrowingPending},
					TransactionType: model.TransactionBorrow,
					Message:         "check your email",
				}, nil)
			},
			expectedCode: http.StatusAccepted,
		},
		{
			name:         "err. no identity",
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			expectedCode: http.StatusUnauthorized,
			expectedBody: `{"message":"user-id is empty"}`,
		},
		{
			name:   "err. unavailable",
			userID: "1",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Borrow(gomock.Any(), 1, 11).Return(model.TransactionResult{}, errs.ErrBookUnavailable)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"book is not available"}`,
		},
		{
			name:   "err. fines",
			userID: "1",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Borrow(gomock.Any(), 1, 11).Return(model.TransactionResult{}, errs.ErrOutstandingFines)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"outstanding fines must be paid before borrowing"}`,
		},
		{
			name:   "err. internal",
			userID: "1",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Borrow(gomock.Any(), 1, 11).Return(model.TransactionResult{}, errors.New("db internal"))
			},
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"message":"Internal Server Error"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, h, svc := newEcho(t)
			e.POST("/books/:id/borrow", h.Borrow, md.AuthContext)

			r := httptest.NewRequest(http.MethodPost, "/books/11/borrow", http.NoBody)
			if tt.userID != "" {
				r.Header.Set(auth.XUserIDHeader, tt.userID)
			}
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedBody != "" {
				require.Equal(t, tt.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_Verify(t *testing.T) {
	t.Parallel()
	type mockBehavior func(r *service_mocks.MockLibraryService)

	var tests = []struct {
		name         string
		contentType  string
		body         string
		mockBehavior mockBehavior
		expectedCode int
		expectedBody string
	}{
		{
			name:        "ok json",
			contentType: echo.MIMEApplicationJSON,
			body:        `{"verification_code":"ab12cd"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Verify(gomock.Any(), 1, "ab12cd").Return(model.VerifyResult{
					TransactionType: model.TransactionBorrow,
					Message:         "ok",
				}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:        "ok form",
			contentType: echo.MIMEApplicationForm,
			body:        url.Values{"verification_code": {"AB12CD"}}.Encode(),
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Verify(gomock.Any(), 1, "AB12CD").Return(model.VerifyResult{}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:        "err. expired",
			contentType: echo.MIMEApplicationJSON,
			body:        `{"verification_code":"AB12CD"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Verify(gomock.Any(), 1, "AB12CD").Return(model.VerifyResult{}, errs.ErrCodeExpired)
			},
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"message":"verification code has expired"}`,
		},
		{
			name:        "err. already used",
			contentType: echo.MIMEApplicationJSON,
			body:        `{"verification_code":"AB12CD"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Verify(gomock.Any(), 1, "AB12CD").Return(model.VerifyResult{}, errs.ErrCodeAlreadyUsed)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"verification code has already been used"}`,
		},
		{
			name:        "err. exhausted",
			contentType: echo.MIMEApplicationJSON,
			body:        `{"verification_code":"AB12CD"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Verify(gomock.Any(), 1, "AB12CD").Return(model.VerifyResult{}, errs.ErrBookExhausted)
			},
			expectedCode: http.StatusConflict,
			expectedBody: fmt.Sprintf(`{"message":%q}`, errs.ErrBookExhausted.Error()),
		},
		{
			name:        "err. too many attempts",
			contentType: echo.MIMEApplicationJSON,
			body:        `{"verification_code":"AB12CD"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Verify(gomock.Any(), 1, "AB12CD").Return(model.VerifyResult{}, errs.ErrTooManyAttempts)
			},
			expectedCode: http.StatusTooManyRequests,
		},
		{
			name:        "err. finalize",
			contentType: echo.MIMEApplicationJSON,
			body:        `{"verification_code":"AB12CD"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Verify(gomock.Any(), 1, "AB12CD").Return(model.VerifyResult{}, errs.ErrFinalize)
			},
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"message":"error processing transaction"}`,
		},
		{
			name:         "err. bad body",
			contentType:  echo.MIMEApplicationJSON,
			body:         `{"verification_code":`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"message":"body is invalid"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, h, svc := newEcho(t)
			e.POST("/verify-transaction", h.Verify, md.AuthContext)

			r := httptest.NewRequest(http.MethodPost, "/verify-transaction", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, tt.contentType)
			r.Header.Set(auth.XUserIDHeader, "1")
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedBody != "" {
				require.Equal(t, tt.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_Account(t *testing.T) {
	t.Parallel()
	type mockBehavior func(r *service_mocks.MockLibraryService)

	var tests = []struct {
		name         string
		method       string
		path         string
		route        string
		handler      func(h *handler.Handler) echo.HandlerFunc
		mockBehavior mockBehavior
		expectedCode int
		expectedBody string
	}{
		{
			name:   "notifications",
			method: http.MethodGet,
			path:   "/notifications?page=2&size=5",
			route:  "/notifications",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.ListNotifications
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().ListNotifications(gomock.Any(), 1, 2, 5).
					Return(model.ListNotifications{Paging: model.Paging{Page: 2, PageSize: 5}, Items: []model.Notification{}}, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"page":2,"pageSize":5,"totalElements":0,"unread":0,"items":[]}`,
		},
		{
			name:   "err. notifications page",
			method: http.MethodGet,
			path:   "/notifications?page=x",
			route:  "/notifications",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.ListNotifications
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"message":"page is invalid"}`,
		},
		{
			name:   "mark all read",
			method: http.MethodPost,
			path:   "/notifications/mark-all-read",
			route:  "/notifications/mark-all-read",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.MarkAllNotificationsRead
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().MarkAllNotificationsRead(gomock.Any(), 1).Return(3, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"updated":3}`,
		},
		{
			name:   "err. delete foreign notification",
			method: http.MethodPost,
			path:   "/notifications/8/delete",
			route:  "/notifications/:id/delete",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.DeleteNotification
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().DeleteNotification(gomock.Any(), 1, 8).Return(errs.ErrNotFound)
			},
			expectedCode: http.StatusNotFound,
			expectedBody: `{"message":"not found"}`,
		},
		{
			name:   "pay all fines",
			method: http.MethodPost,
			path:   "/fines/pay-all",
			route:  "/fines/pay-all",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.PayAllFines
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().PayAllFines(gomock.Any(), 1).Return(decimal.NewFromInt(15), nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"paid":"15"}`,
		},
		{
			name:   "err. no fine",
			method: http.MethodPost,
			path:   "/fines/4/pay",
			route:  "/fines/:id/pay",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.PayFine
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().PayFine(gomock.Any(), 1, 4).Return(model.Borrowing{}, errs.ErrNoFine)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"no outstanding fine"}`,
		},
		{
			name:   "cancel reservation",
			method: http.MethodPost,
			path:   "/books/12/cancel-reservation",
			route:  "/books/:id/cancel-reservation",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.CancelReservation
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().CancelReservation(gomock.Any(), 1, 12).Return(nil)
			},
			expectedCode: http.StatusNoContent,
		},
		{
			name:   "err. reserve available book",
			method: http.MethodPost,
			path:   "/books/11/reserve",
			route:  "/books/:id/reserve",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.Reserve
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Reserve(gomock.Any(), 1, 11).Return(model.Reservation{}, errs.ErrBookAvailable)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"book is available, borrow it instead"}`,
		},
		{
			name:   "err. renew limit",
			method: http.MethodPost,
			path:   "/borrowings/5/renew",
			route:  "/borrowings/:id/renew",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.Renew
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Renew(gomock.Any(), 1, 5).Return(model.TransactionResult{}, errs.ErrRenewLimit)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"maximum renewals reached"}`,
		},
		{
			name:   "err. renew raced",
			method: http.MethodPost,
			path:   "/borrowings/5/renew",
			route:  "/borrowings/:id/renew",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.Renew
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Renew(gomock.Any(), 1, 5).Return(model.TransactionResult{}, errs.ErrBorrowingChanged)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"borrowing was changed by another request, try again"}`,
		},
		{
			name:   "err. storage details hidden",
			method: http.MethodGet,
			path:   "/fines",
			route:  "/fines",
			handler: func(h *handler.Handler) echo.HandlerFunc {
				return h.Fines
			},
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().Fines(gomock.Any(), 1).Return(model.FineSummary{},
					errors.Wrap(errors.New(`ERROR: column "fine_paid_amount" does not exist (SQLSTATE 42703)`), "query"))
			},
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"message":"Internal Server Error"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, h, svc := newEcho(t)
			e.Add(tt.method, tt.route, tt.handler(h), md.AuthContext)

			r := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			r.Header.Set(auth.XUserIDHeader, "1")
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
			require.Equal(t, tt.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_Router(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	svc := service_mocks.NewMockLibraryService(c)
	e := handler.New(svc, zap.NewNop()).NewRouter()

	serve := func(method, path, userID, role string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(method, path, http.NoBody)
		if userID != "" {
			r.Header.Set(auth.XUserIDHeader, userID)
		}
		r.Header.Set(auth.XUserRoleHeader, role)
		w := httptest.NewRecorder()
		e.ServeHTTP(w, r)
		return w
	}

	w := serve(http.MethodGet, "/manage/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())

	w = serve(http.MethodGet, "/api/v1/books", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(http.MethodPost, "/api/v1/admin/sweep", "2", "student")
	require.Equal(t, http.StatusForbidden, w.Code)

	svc.EXPECT().Sweep(gomock.Any()).Return(model.SweepReport{CancelledBorrows: 1, ExpiredReservations: 2}, nil)
	w = serve(http.MethodPost, "/api/v1/admin/sweep", "2", auth.RoleAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t,
		`{"cancelledBorrows":1,"revertedReturns":0,"expiredReservations":2,"promotedReservations":0}`,
		strings.Trim(w.Body.String(), "\n"))

	svc.EXPECT().ListBorrowings(gomock.Any(), 2).Return([]model.Borrowing{}, nil)
	w = serve(http.MethodGet, "/api/v1/borrowings", "2", "student")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[]", strings.Trim(w.Body.String(), "\n"))
}
