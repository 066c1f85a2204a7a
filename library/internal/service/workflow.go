package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/model"
	libraryRepo "github.com/Astemirdum/library-circulation/library/internal/repository"
)

// Borrow opens a pending borrowing and emails a code to confirm it.
// The copy is taken only when the code is verified.
func (s *Service) Borrow(ctx context.Context, userID, bookID int) (model.TransactionResult, error) {
	var (
		res model.TransactionResult
		box outbox
	)
	err := s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		now := s.now()
		settings := s.settings(ctx, repo)

		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		book, err := repo.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if !book.IsAvailable() {
			return errs.ErrBookUnavailable
		}

		borrowings, err := repo.ListBorrowings(ctx, userID)
		if err != nil {
			return err
		}
		if totalOutstanding(borrowings, now, settings.FinePerDay).IsPositive() {
			return errs.ErrOutstandingFines
		}
		active := 0
		for _, b := range borrowings {
			if b.IsActive() {
				active++
			}
		}
		if active >= settings.MaxBooksPerUser {
			return errs.ErrBorrowLimit
		}
		for _, b := range borrowings {
			if b.IsActive() && b.BookID == bookID {
				return errs.ErrAlreadyBorrowed
			}
		}

		borrowing, err := repo.CreateBorrowing(ctx, model.Borrowing{
			UserID:     userID,
			BookID:     bookID,
			Status:     model.BorrowingPending,
			DueDate:    now.AddDate(0, 0, settings.MaxBorrowDays),
			FineAmount: decimal.Zero,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		v, err := s.issueCode(ctx, repo, &box, settings, user, book, borrowing, model.TransactionBorrow)
		if err != nil {
			return err
		}
		if err := s.notify(ctx, repo, userID, model.NotificationBorrow, borrowing.ID,
			"Borrow request received",
			fmt.Sprintf("Check your email for the code to confirm borrowing %q.", book.Title)); err != nil {
			return err
		}

		res = model.TransactionResult{
			Borrowing:       borrowing,
			TransactionType: model.TransactionBorrow,
			ExpiresAt:       v.ExpiresAt,
			Message:         "A verification code has been sent to your email. Enter it to complete borrowing.",
		}
		return nil
	})
	if err != nil {
		return model.TransactionResult{}, err
	}
	s.flush(ctx, &box)
	return res, nil
}

// Return moves a borrowed copy to pending_return and emails a code to confirm it.
func (s *Service) Return(ctx context.Context, userID, borrowingID int) (model.TransactionResult, error) {
	var (
		res model.TransactionResult
		box outbox
	)
	err := s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		settings := s.settings(ctx, repo)

		borrowing, err := repo.GetUserBorrowing(ctx, userID, borrowingID)
		if err != nil {
			return err
		}
		if borrowing.Status != model.BorrowingBorrowed {
			return errs.ErrNotFound
		}
		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		book, err := repo.GetBook(ctx, borrowing.BookID)
		if err != nil {
			return err
		}

		borrowing.Status = model.BorrowingPendingReturn
		if err := repo.UpdateBorrowing(ctx, borrowing, model.BorrowingBorrowed); err != nil {
			return err
		}
		v, err := s.issueCode(ctx, repo, &box, settings, user, book, borrowing, model.TransactionReturn)
		if err != nil {
			return err
		}

		res = model.TransactionResult{
			Borrowing:       borrowing,
			TransactionType: model.TransactionReturn,
			ExpiresAt:       v.ExpiresAt,
			Message:         "A verification code has been sent to your email. Enter it to complete the return.",
		}
		return nil
	})
	if err != nil {
		return model.TransactionResult{}, err
	}
	s.flush(ctx, &box)
	return res, nil
}

// Renew extends the due date right away. The emailed code only acknowledges it.
func (s *Service) Renew(ctx context.Context, userID, borrowingID int) (model.TransactionResult, error) {
	var (
		res model.TransactionResult
		box outbox
	)
	err := s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		now := s.now()
		settings := s.settings(ctx, repo)

		borrowing, err := repo.GetUserBorrowing(ctx, userID, borrowingID)
		if err != nil {
			return err
		}
		if borrowing.Status != model.BorrowingBorrowed {
			return errs.ErrNotFound
		}
		if borrowing.IsOverdue(now) {
			return errs.ErrRenewOverdue
		}
		if borrowing.RenewedCount >= settings.MaxRenewals {
			return errs.ErrRenewLimit
		}
		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		book, err := repo.GetBook(ctx, borrowing.BookID)
		if err != nil {
			return err
		}

		borrowing.Renew(settings.MaxBorrowDays)
		if err := repo.UpdateBorrowing(ctx, borrowing, model.BorrowingBorrowed); err != nil {
			return err
		}
		if err := s.notify(ctx, repo, userID, model.NotificationRenewal, borrowing.ID,
			"Book renewed",
			fmt.Sprintf("%q is now due on %s.", book.Title, borrowing.DueDate.Format(time.DateOnly))); err != nil {
			return err
		}
		v, err := s.issueCode(ctx, repo, &box, settings, user, book, borrowing, model.TransactionRenew)
		if err != nil {
			return err
		}
		box.events = append(box.events, s.event(model.EventRenewed, borrowing))

		res = model.TransactionResult{
			Borrowing:       borrowing,
			TransactionType: model.TransactionRenew,
			ExpiresAt:       v.ExpiresAt,
			Message:         fmt.Sprintf("Book renewed until %s.", borrowing.DueDate.Format(time.DateOnly)),
		}
		return nil
	})
	if err != nil {
		return model.TransactionResult{}, err
	}
	s.flush(ctx, &box)
	return res, nil
}

func (s *Service) issueCode(
	ctx context.Context,
	repo libraryRepo.Repository,
	box *outbox,
	settings model.Settings,
	user model.User,
	book model.Book,
	borrowing model.Borrowing,
	typ model.TransactionType,
) (model.TransactionVerification, error) {
	now := s.now()
	v, err := repo.CreateVerification(ctx, model.TransactionVerification{
		UserID:           user.ID,
		BorrowingID:      borrowing.ID,
		TransactionType:  typ,
		VerificationCode: s.newCode(),
		CreatedAt:        now,
		ExpiresAt:        now.Add(verificationTTL),
	})
	if err != nil {
		return model.TransactionVerification{}, err
	}
	s.log.Debug("verification issued",
		zap.Int("user_id", user.ID), zap.Int("borrowing_id", borrowing.ID), zap.String("type", string(typ)))

	e := verificationEmail(settings, user, book, v, s.cfg.BaseURL+"/api/v1/verify-transaction")
	if err := s.queueEmail(ctx, repo, box, user, e); err != nil {
		return model.TransactionVerification{}, err
	}
	return v, nil
}

func (s *Service) notify(ctx context.Context, repo libraryRepo.Repository, userID int, typ model.NotificationType, relatedID int, title, message string) error {
	_, err := repo.CreateNotification(ctx, model.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      typ,
		RelatedID: &relatedID,
		ActionURL: s.cfg.BaseURL + "/api/v1/borrowings",
		CreatedAt: s.now(),
	})
	return err
}

func (s *Service) event(typ model.CirculationEventType, b model.Borrowing) model.CirculationEvent {
	return model.CirculationEvent{
		Timestamp:   s.now(),
		Type:        typ,
		UserID:      b.UserID,
		BookID:      b.BookID,
		BorrowingID: b.ID,
		Fine:        b.FineAmount,
	}
}
