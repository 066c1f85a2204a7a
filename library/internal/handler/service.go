package handler

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Astemirdum/library-circulation/library/internal/model"
	"github.com/Astemirdum/library-circulation/library/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LibraryService interface {
	ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error)
	GetBook(ctx context.Context, id int) (model.Book, error)
	ListBorrowings(ctx context.Context, userID int) ([]model.Borrowing, error)

	Borrow(ctx context.Context, userID, bookID int) (model.TransactionResult, error)
	Return(ctx context.Context, userID, borrowingID int) (model.TransactionResult, error)
	Renew(ctx context.Context, userID, borrowingID int) (model.TransactionResult, error)
	Verify(ctx context.Context, userID int, code string) (model.VerifyResult, error)
	RecentVerifications(ctx context.Context, userID int) ([]model.TransactionVerification, error)

	Reserve(ctx context.Context, userID, bookID int) (model.Reservation, error)
	CancelReservation(ctx context.Context, userID, bookID int) error
	ListReservations(ctx context.Context, userID int) ([]model.Reservation, error)

	ListNotifications(ctx context.Context, userID, page, size int) (model.ListNotifications, error)
	MarkNotificationRead(ctx context.Context, userID, id int) error
	MarkAllNotificationsRead(ctx context.Context, userID int) (int, error)
	DeleteNotification(ctx context.Context, userID, id int) error

	Fines(ctx context.Context, userID int) (model.FineSummary, error)
	PayFine(ctx context.Context, userID, borrowingID int) (model.Borrowing, error)
	PayAllFines(ctx context.Context, userID int) (decimal.Decimal, error)

	Sweep(ctx context.Context) (model.SweepReport, error)
	DeliverEmail(ctx context.Context, job model.EmailJob) error
}

var _ LibraryService = (*service.Service)(nil)
