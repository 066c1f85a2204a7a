package service

import (
	"context"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/model"
)

func (s *Service) ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error) {
	return s.repo.ListBooks(ctx, filter)
}

func (s *Service) GetBook(ctx context.Context, id int) (model.Book, error) {
	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return model.Book{}, err
	}
	if !book.IsActive {
		return model.Book{}, errs.ErrNotFound
	}
	return book, nil
}

func (s *Service) ListBorrowings(ctx context.Context, userID int) ([]model.Borrowing, error) {
	return s.repo.ListBorrowings(ctx, userID)
}

func (s *Service) ListNotifications(ctx context.Context, userID, page, size int) (model.ListNotifications, error) {
	return s.repo.ListNotifications(ctx, userID, page, size)
}

func (s *Service) MarkNotificationRead(ctx context.Context, userID, id int) error {
	return s.repo.MarkNotificationRead(ctx, userID, id)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID int) (int, error) {
	return s.repo.MarkAllNotificationsRead(ctx, userID)
}

func (s *Service) DeleteNotification(ctx context.Context, userID, id int) error {
	return s.repo.DeleteNotification(ctx, userID, id)
}
