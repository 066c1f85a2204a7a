package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/model"
	libraryRepo "github.com/Astemirdum/library-circulation/library/internal/repository"
)

// Reserve queues the user for a book that has no copies on the shelf.
func (s *Service) Reserve(ctx context.Context, userID, bookID int) (model.Reservation, error) {
	var (
		res model.Reservation
		box outbox
	)
	err := s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		book, err := repo.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if !book.IsActive {
			return errs.ErrNotFound
		}
		if book.AvailableCopies > 0 {
			return errs.ErrBookAvailable
		}
		_, err = repo.GetPendingReservation(ctx, userID, bookID)
		switch {
		case err == nil:
			return errs.ErrAlreadyReserved
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}
		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		res, err = repo.CreateReservation(ctx, model.Reservation{
			UserID:    userID,
			BookID:    bookID,
			Status:    model.ReservationPending,
			CreatedAt: s.now(),
		})
		if err != nil {
			return err
		}
		if err := s.notify(ctx, repo, userID, model.NotificationReservation, res.ID,
			"Book reserved",
			fmt.Sprintf("You will be notified when %q becomes available.", book.Title)); err != nil {
			return err
		}
		return s.queueEmail(ctx, repo, &box, user, reservationConfirmedEmail(s.settings(ctx, repo), user, book))
	})
	if err != nil {
		return model.Reservation{}, err
	}
	s.flush(ctx, &box)
	return res, nil
}

// CancelReservation withdraws the user's pending reservation for the book.
func (s *Service) CancelReservation(ctx context.Context, userID, bookID int) error {
	return s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		res, err := repo.GetPendingReservation(ctx, userID, bookID)
		if err != nil {
			return err
		}
		res.Status = model.ReservationCancelled
		return repo.UpdateReservation(ctx, res)
	})
}

func (s *Service) ListReservations(ctx context.Context, userID int) ([]model.Reservation, error) {
	return s.repo.ListReservations(ctx, userID)
}
