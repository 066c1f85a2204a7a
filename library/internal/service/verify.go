package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/model"
	libraryRepo "github.com/Astemirdum/library-circulation/library/internal/repository"
)

const recentVerificationsLimit = 5

// Verify redeems a code and finalizes the transaction it guards.
func (s *Service) Verify(ctx context.Context, userID int, code string) (model.VerifyResult, error) {
	code = normalizeCode(code)
	if code == "" {
		return model.VerifyResult{}, errs.ErrCodeRequired
	}
	if len(code) != codeLength {
		return model.VerifyResult{}, errs.ErrCodeFormat
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "verify:"+strconv.Itoa(userID))
		switch {
		case err != nil:
			s.log.Warn("verify limiter unavailable", zap.Error(err))
		case !ok:
			return model.VerifyResult{}, errs.ErrTooManyAttempts
		}
	}

	v, err := s.repo.GetVerificationByCode(ctx, userID, code)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.VerifyResult{}, errs.ErrInvalidCode
		}
		return model.VerifyResult{}, err
	}
	if v.IsVerified {
		return model.VerifyResult{}, errs.ErrCodeAlreadyUsed
	}
	if v.IsExpired(s.now()) {
		return model.VerifyResult{}, errs.ErrCodeExpired
	}

	var (
		out finalized
		box outbox
	)
	err = s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		now := s.now()
		ok, err := repo.MarkVerified(ctx, v.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrCodeAlreadyUsed
		}
		settings := s.settings(ctx, repo)

		borrowing, err := repo.GetBorrowing(ctx, v.BorrowingID)
		if err != nil {
			return err
		}
		book, err := repo.GetBook(ctx, borrowing.BookID)
		if err != nil {
			return err
		}

		switch v.TransactionType {
		case model.TransactionBorrow:
			out, err = s.finalizeBorrow(ctx, repo, &box, borrowing, book, now)
		case model.TransactionReturn:
			out, err = s.finalizeReturn(ctx, repo, &box, settings, borrowing, book, now)
		case model.TransactionRenew:
			out.result = model.VerifyResult{
				Borrowing: borrowing,
				Book:      book,
				Message:   fmt.Sprintf("Renewal confirmed. %q is due on %s.", book.Title, borrowing.DueDate.Format(time.DateOnly)),
			}
		default:
			err = errors.Errorf("unknown transaction type %q", v.TransactionType)
		}
		out.result.TransactionType = v.TransactionType
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrCodeAlreadyUsed) {
			return model.VerifyResult{}, err
		}
		s.log.Error("finalize transaction", zap.Error(err),
			zap.Int("verification_id", v.ID), zap.Int("borrowing_id", v.BorrowingID))
		return model.VerifyResult{}, errs.ErrFinalize
	}
	s.flush(ctx, &box)
	if out.rejected != nil {
		return model.VerifyResult{}, out.rejected
	}
	return out.result, nil
}

type finalized struct {
	result model.VerifyResult
	// rejected is reported once the transaction has committed, so the code stays consumed.
	rejected error
}

// finalizeBorrow takes a copy for a pending borrowing. When no copy is left the
// borrowing is cancelled instead.
func (s *Service) finalizeBorrow(
	ctx context.Context,
	repo libraryRepo.Repository,
	box *outbox,
	borrowing model.Borrowing,
	book model.Book,
	now time.Time,
) (finalized, error) {
	if borrowing.Status != model.BorrowingPending {
		return finalized{rejected: errs.ErrTransactionStale}, nil
	}
	taken, err := repo.DecrementAvailable(ctx, book.ID)
	if err != nil {
		return finalized{}, err
	}
	if !taken {
		borrowing.Status = model.BorrowingCancelled
		if err := repo.UpdateBorrowing(ctx, borrowing, model.BorrowingPending); err != nil {
			return finalized{}, err
		}
		if err := s.notify(ctx, repo, borrowing.UserID, model.NotificationBorrow, borrowing.ID,
			"Borrow request cancelled",
			fmt.Sprintf("All copies of %q were taken before your request was confirmed. Please contact an administrator.", book.Title)); err != nil {
			return finalized{}, err
		}
		box.events = append(box.events, s.event(model.EventCancelled, borrowing))
		return finalized{rejected: errs.ErrBookExhausted}, nil
	}

	borrowing.Status = model.BorrowingBorrowed
	borrowing.BorrowDate = &now
	if err := repo.UpdateBorrowing(ctx, borrowing, model.BorrowingPending); err != nil {
		return finalized{}, err
	}
	book.AvailableCopies--

	reservation, err := repo.GetPendingReservation(ctx, borrowing.UserID, book.ID)
	switch {
	case err == nil:
		reservation.Status = model.ReservationFulfilled
		if err := repo.UpdateReservation(ctx, reservation); err != nil {
			return finalized{}, err
		}
	case !errors.Is(err, errs.ErrNotFound):
		return finalized{}, err
	}

	if err := s.notify(ctx, repo, borrowing.UserID, model.NotificationBorrow, borrowing.ID,
		"Book borrowed",
		fmt.Sprintf("You borrowed %q. It is due on %s.", book.Title, borrowing.DueDate.Format(time.DateOnly))); err != nil {
		return finalized{}, err
	}
	box.events = append(box.events, s.event(model.EventBorrowed, borrowing))

	return finalized{result: model.VerifyResult{
		Borrowing: borrowing,
		Book:      book,
		Message:   fmt.Sprintf("Successfully borrowed %q. Due date: %s.", book.Title, borrowing.DueDate.Format(time.DateOnly)),
	}}, nil
}

func (s *Service) finalizeReturn(
	ctx context.Context,
	repo libraryRepo.Repository,
	box *outbox,
	settings model.Settings,
	borrowing model.Borrowing,
	book model.Book,
	now time.Time,
) (finalized, error) {
	if borrowing.Status != model.BorrowingPendingReturn {
		return finalized{rejected: errs.ErrTransactionStale}, nil
	}

	fine := borrowing.AccruedFine(now, settings.FinePerDay)
	borrowing.CloseFine(fine)
	borrowing.ReturnDate = &now
	borrowing.Status = model.BorrowingReturned
	if err := repo.UpdateBorrowing(ctx, borrowing, model.BorrowingPendingReturn); err != nil {
		return finalized{}, err
	}

	restored, err := repo.IncrementAvailable(ctx, book.ID)
	if err != nil {
		return finalized{}, err
	}
	if !restored {
		return finalized{}, errors.Errorf("book %d already has all %d copies", book.ID, book.TotalCopies)
	}
	book.AvailableCopies++

	message := fmt.Sprintf("Successfully returned %q.", book.Title)
	if owed := borrowing.OutstandingFine(now, settings.FinePerDay); owed.IsPositive() {
		message += fmt.Sprintf(" Fine due: %s.", owed.StringFixed(2))
	}
	if err := s.notify(ctx, repo, borrowing.UserID, model.NotificationReturn, borrowing.ID, "Book returned", message); err != nil {
		return finalized{}, err
	}
	if _, err := s.promoteNext(ctx, repo, box, settings, book, now); err != nil {
		return finalized{}, err
	}
	box.events = append(box.events, s.event(model.EventReturned, borrowing))

	return finalized{result: model.VerifyResult{Borrowing: borrowing, Book: book, Message: message}}, nil
}

// promoteNext notifies the longest-waiting reservation holder of book, if any.
func (s *Service) promoteNext(
	ctx context.Context,
	repo libraryRepo.Repository,
	box *outbox,
	settings model.Settings,
	book model.Book,
	now time.Time,
) (bool, error) {
	reservation, err := repo.OldestWaitingReservation(ctx, book.ID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	expiry := now.AddDate(0, 0, model.ReservationHoldDays)
	reservation.ExpiryDate = &expiry
	reservation.Notified = true
	if err := repo.UpdateReservation(ctx, reservation); err != nil {
		return false, err
	}

	holder, err := repo.GetUser(ctx, reservation.UserID)
	if err != nil {
		return false, err
	}
	if _, err := repo.CreateNotification(ctx, model.Notification{
		UserID:    reservation.UserID,
		Title:     "Book Available!",
		Message:   fmt.Sprintf("%q is now available. Borrow it before %s.", book.Title, expiry.Format(time.DateOnly)),
		Type:      model.NotificationReservation,
		RelatedID: &book.ID,
		ActionURL: fmt.Sprintf("%s/api/v1/books/%d", s.cfg.BaseURL, book.ID),
		CreatedAt: now,
	}); err != nil {
		return false, err
	}
	if err := s.queueEmail(ctx, repo, box, holder, reservationAvailableEmail(settings, holder, book, expiry)); err != nil {
		return false, err
	}
	box.events = append(box.events, model.CirculationEvent{
		Timestamp: now,
		Type:      model.EventReservationPromoted,
		UserID:    reservation.UserID,
		BookID:    book.ID,
	})
	return true, nil
}

func (s *Service) RecentVerifications(ctx context.Context, userID int) ([]model.TransactionVerification, error) {
	return s.repo.ListRecentVerifications(ctx, userID, recentVerificationsLimit)
}
