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

var borrowingColumns = []string{
	"id", "user_id", "book_id", "status", "borrow_date", "due_date", "return_date",
	"renewed_count", "fine_amount", "fine_paid_amount", "fine_paid", "created_at",
}

func (r *repository) CreateBorrowing(ctx context.Context, b model.Borrowing) (model.Borrowing, error) {
	query, args, err := qb.Insert(borrowingsTableName).
		Columns("user_id", "book_id", "status", "borrow_date", "due_date", "renewed_count", "fine_amount", "fine_paid", "created_at").
		Values(b.UserID, b.BookID, b.Status, b.BorrowDate, b.DueDate, b.RenewedCount, b.FineAmount, b.FinePaid, b.CreatedAt).
		Suffix("returning " + strings.Join(borrowingColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Borrowing{}, err
	}
	created, err := getOne[model.Borrowing](ctx, r.db, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Borrowing{}, errs.ErrAlreadyBorrowed
		}
		return model.Borrowing{}, errors.Wrap(err, "CreateBorrowing")
	}
	return created, nil
}

// lockRow makes reads inside a transaction hold the selected rows until commit.
func (r *repository) lockRow(q sq.SelectBuilder) sq.SelectBuilder {
	if r.inTx {
		return q.Suffix("for update")
	}
	return q
}

func (r *repository) GetBorrowing(ctx context.Context, id int) (model.Borrowing, error) {
	query, args, err := r.lockRow(qb.Select(borrowingColumns...).
		From(borrowingsTableName).
		Where(sq.Eq{"id": id})).
		ToSql()
	if err != nil {
		return model.Borrowing{}, err
	}
	return getOne[model.Borrowing](ctx, r.db, query, args...)
}

func (r *repository) GetUserBorrowing(ctx context.Context, userID, id int) (model.Borrowing, error) {
	query, args, err := r.lockRow(qb.Select(borrowingColumns...).
		From(borrowingsTableName).
		Where(sq.Eq{"id": id, "user_id": userID})).
		ToSql()
	if err != nil {
		return model.Borrowing{}, err
	}
	return getOne[model.Borrowing](ctx, r.db, query, args...)
}

func (r *repository) ListBorrowings(ctx context.Context, userID int) ([]model.Borrowing, error) {
	query, args, err := r.lockRow(qb.Select(borrowingColumns...).
		From(borrowingsTableName).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at desc", "id desc")).
		ToSql()
	if err != nil {
		return nil, err
	}
	return getMany[model.Borrowing](ctx, r.db, query, args...)
}

func (r *repository) UpdateBorrowing(ctx context.Context, b model.Borrowing, from model.BorrowingStatus) error {
	query, args, err := qb.Update(borrowingsTableName).
		SetMap(map[string]any{
			"status":           b.Status,
			"borrow_date":      b.BorrowDate,
			"due_date":         b.DueDate,
			"return_date":      b.ReturnDate,
			"renewed_count":    b.RenewedCount,
			"fine_amount":      b.FineAmount,
			"fine_paid_amount": b.FinePaidAmount,
			"fine_paid":        b.FinePaid,
		}).
		Where(sq.Eq{"id": b.ID, "status": from}).
		ToSql()
	if err != nil {
		return err
	}
	err = affectedOne(r.db.Exec(ctx, query, args...))
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrBorrowingChanged
	}
	return errors.Wrap(err, "UpdateBorrowing")
}

// ListAbandonedBorrowings returns pending borrows and pending returns whose
// latest matching code expired without being redeemed.
func (r *repository) ListAbandonedBorrowings(ctx context.Context, now time.Time) ([]model.Borrowing, error) {
	q := `
select b.id, b.user_id, b.book_id, b.status, b.borrow_date, b.due_date, b.return_date,
       b.renewed_count, b.fine_amount, b.fine_paid_amount, b.fine_paid, b.created_at
from borrowings b
join lateral (
    select v.expires_at, v.is_verified
    from transaction_verifications v
    where v.borrowing_id = b.id
      and v.transaction_type = case b.status when 'pending' then 'borrow' else 'return' end
    order by v.created_at desc, v.id desc
    limit 1
) lv on true
where b.status in ('pending', 'pending_return')
  and not lv.is_verified
  and lv.expires_at < $1
order by b.id`
	return getMany[model.Borrowing](ctx, r.db, q, now)
}
