package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/model"
	libraryRepo "github.com/Astemirdum/library-circulation/library/internal/repository"
)

var errSweepSkip = errors.New("record changed since listing")

// Sweep reconciles requests whose codes lapsed and reservation holds that ran
// out. Each record is handled in its own transaction.
func (s *Service) Sweep(ctx context.Context) (model.SweepReport, error) {
	var report model.SweepReport
	now := s.now()

	abandoned, err := s.repo.ListAbandonedBorrowings(ctx, now)
	if err != nil {
		return report, errors.Wrap(err, "list abandoned borrowings")
	}
	for _, b := range abandoned {
		status, err := s.releaseBorrowing(ctx, b.ID, b.Status)
		switch {
		case errors.Is(err, errSweepSkip), errors.Is(err, errs.ErrBorrowingChanged):
			continue
		case err != nil:
			return report, err
		}
		if status == model.BorrowingCancelled {
			report.CancelledBorrows++
		} else {
			report.RevertedReturns++
		}
	}

	lapsed, err := s.repo.ListLapsedReservations(ctx, now)
	if err != nil {
		return report, errors.Wrap(err, "list lapsed reservations")
	}
	for _, r := range lapsed {
		promoted, err := s.expireReservation(ctx, r.ID, now)
		switch {
		case errors.Is(err, errSweepSkip):
			continue
		case err != nil:
			return report, err
		}
		report.ExpiredReservations++
		if promoted {
			report.PromotedReservations++
		}
	}

	if report != (model.SweepReport{}) {
		s.log.Info("sweep finished", zap.Any("report", report))
	}
	return report, nil
}

func (s *Service) releaseBorrowing(ctx context.Context, id int, listed model.BorrowingStatus) (model.BorrowingStatus, error) {
	var box outbox
	var next model.BorrowingStatus
	err := s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		b, err := repo.GetBorrowing(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != listed {
			return errSweepSkip
		}
		book, err := repo.GetBook(ctx, b.BookID)
		if err != nil {
			return err
		}

		switch b.Status {
		case model.BorrowingPending:
			b.Status = model.BorrowingCancelled
			if err := repo.UpdateBorrowing(ctx, b, listed); err != nil {
				return err
			}
			if err := s.notify(ctx, repo, b.UserID, model.NotificationBorrow, b.ID,
				"Borrow request expired",
				fmt.Sprintf("Your request to borrow %q was not confirmed in time and has been cancelled.", book.Title)); err != nil {
				return err
			}
			box.events = append(box.events, s.event(model.EventCancelled, b))
		case model.BorrowingPendingReturn:
			b.Status = model.BorrowingBorrowed
			if err := repo.UpdateBorrowing(ctx, b, listed); err != nil {
				return err
			}
			if err := s.notify(ctx, repo, b.UserID, model.NotificationReturn, b.ID,
				"Return request expired",
				fmt.Sprintf("Your return of %q was not confirmed in time. The book is still checked out to you.", book.Title)); err != nil {
				return err
			}
		default:
			return errSweepSkip
		}
		next = b.Status
		return nil
	})
	if err != nil {
		return "", err
	}
	s.flush(ctx, &box)
	return next, nil
}

func (s *Service) expireReservation(ctx context.Context, id int, now time.Time) (bool, error) {
	var (
		box      outbox
		promoted bool
	)
	err := s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		r, err := repo.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != model.ReservationPending || !r.Notified || r.ExpiryDate == nil || !r.ExpiryDate.Before(now) {
			return errSweepSkip
		}
		r.Status = model.ReservationExpired
		if err := repo.UpdateReservation(ctx, r); err != nil {
			return err
		}
		book, err := repo.GetBook(ctx, r.BookID)
		if err != nil {
			return err
		}
		if err := s.notify(ctx, repo, r.UserID, model.NotificationReservation, r.ID,
			"Reservation expired",
			fmt.Sprintf("Your hold on %q has expired.", book.Title)); err != nil {
			return err
		}
		box.events = append(box.events, model.CirculationEvent{
			Timestamp: now,
			Type:      model.EventReservationExpired,
			UserID:    r.UserID,
			BookID:    r.BookID,
		})
		if book.AvailableCopies > 0 {
			promoted, err = s.promoteNext(ctx, repo, &box, s.settings(ctx, repo), book, now)
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	s.flush(ctx, &box)
	return promoted, nil
}
