package repository

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/model"
)

var reservationColumns = []string{
	"id", "user_id", "book_id", "status", "created_at", "expiry_date", "notified",
}

func (r *repository) CreateReservation(ctx context.Context, res model.Reservation) (model.Reservation, error) {
	query, args, err := qb.Insert(reservationsTableName).
		Columns("user_id", "book_id", "status", "created_at", "expiry_date", "notified").
		Values(res.UserID, res.BookID, res.Status, res.CreatedAt, res.ExpiryDate, res.Notified).
		Suffix("returning " + strings.Join(reservationColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	created, err := getOne[model.Reservation](ctx, r.db, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Reservation{}, errs.ErrAlreadyReserved
		}
		return model.Reservation{}, errors.Wrap(err, "CreateReservation")
	}
	return created, nil
}

func (r *repository) GetReservation(ctx context.Context, id int) (model.Reservation, error) {
	query, args, err := qb.Select(reservationColumns...).
		From(reservationsTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	return getOne[model.Reservation](ctx, r.db, query, args...)
}

func (r *repository) GetPendingReservation(ctx context.Context, userID, bookID int) (model.Reservation, error) {
	query, args, err := qb.Select(reservationColumns...).
		From(reservationsTableName).
		Where(sq.Eq{"user_id": userID, "book_id": bookID, "status": model.ReservationPending}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	return getOne[model.Reservation](ctx, r.db, query, args...)
}

// OldestWaitingReservation is the head of the book's queue among holders not yet notified.
func (r *repository) OldestWaitingReservation(ctx context.Context, bookID int) (model.Reservation, error) {
	query, args, err := qb.Select(reservationColumns...).
		From(reservationsTableName).
		Where(sq.Eq{"book_id": bookID, "status": model.ReservationPending, "notified": false}).
		OrderBy("created_at", "id").
		Limit(1).
		Suffix("for update skip locked").
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	return getOne[model.Reservation](ctx, r.db, query, args...)
}

func (r *repository) UpdateReservation(ctx context.Context, res model.Reservation) error {
	query, args, err := qb.Update(reservationsTableName).
		SetMap(map[string]any{
			"status":      res.Status,
			"expiry_date": res.ExpiryDate,
			"notified":    res.Notified,
		}).
		Where(sq.Eq{"id": res.ID}).
		ToSql()
	if err != nil {
		return err
	}
	return errors.Wrap(affectedOne(r.db.Exec(ctx, query, args...)), "UpdateReservation")
}

func (r *repository) ListReservations(ctx context.Context, userID int) ([]model.Reservation, error) {
	query, args, err := qb.Select(reservationColumns...).
		From(reservationsTableName).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at desc", "id desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	return getMany[model.Reservation](ctx, r.db, query, args...)
}

// ListLapsedReservations returns promoted reservations whose hold window has passed.
func (r *repository) ListLapsedReservations(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	query, args, err := qb.Select(reservationColumns...).
		From(reservationsTableName).
		Where(sq.Eq{"status": model.ReservationPending, "notified": true}).
		Where(sq.Lt{"expiry_date": now}).
		OrderBy("expiry_date", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	return getMany[model.Reservation](ctx, r.db, query, args...)
}
