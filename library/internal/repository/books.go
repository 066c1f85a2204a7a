package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/model"
)

var bookColumns = []string{
	"id", "title", "author", "isbn", "description", "total_copies",
	"available_copies", "category", "department", "is_active",
}

func (r *repository) GetBook(ctx context.Context, id int) (model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	return getOne[model.Book](ctx, r.db, query, args...)
}

func (r *repository) ListBooks(ctx context.Context, f model.BookFilter) (model.ListBooks, error) {
	where := sq.And{sq.Eq{"is_active": true}}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + s + "%"
		where = append(where, sq.Or{
			sq.ILike{"title": like},
			sq.ILike{"author": like},
			sq.ILike{"isbn": like},
			sq.ILike{"description": like},
		})
	}
	if f.Category != "" {
		where = append(where, sq.Eq{"category": f.Category})
	}
	if f.Department != "" {
		where = append(where, sq.Eq{"department": f.Department})
	}
	switch f.Availability {
	case model.AvailabilityAvailable:
		where = append(where, sq.Gt{"available_copies": 0})
	case model.AvailabilityUnavailable:
		where = append(where, sq.Eq{"available_copies": 0})
	}

	countQuery, countArgs, err := qb.Select("count(*)").From(booksTableName).Where(where).ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return model.ListBooks{}, errors.Wrap(err, "ListBooks count")
	}

	q := qb.Select(bookColumns...).
		From(booksTableName).
		Where(where).
		OrderBy("title", "id")
	if f.Page != 0 && f.Size != 0 {
		q = q.Limit(uint64(f.Size)).Offset(uint64((f.Page - 1) * f.Size))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	books, err := getMany[model.Book](ctx, r.db, query, args...)
	if err != nil {
		return model.ListBooks{}, err
	}
	return model.ListBooks{
		Paging: model.Paging{
			Page:          f.Page,
			PageSize:      f.Size,
			TotalElements: total,
		},
		Items: books,
	}, nil
}

// DecrementAvailable takes one copy; false means none were left.
func (r *repository) DecrementAvailable(ctx context.Context, bookID int) (bool, error) {
	q := `
update books
    set available_copies = available_copies - 1
where id = @book_id and available_copies > 0`
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"book_id": bookID})
	if err != nil {
		return false, errors.Wrap(err, "DecrementAvailable")
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementAvailable puts one copy back; false means the book was already full.
func (r *repository) IncrementAvailable(ctx context.Context, bookID int) (bool, error) {
	q := `
update books
    set available_copies = available_copies + 1
where id = @book_id and available_copies < total_copies`
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"book_id": bookID})
	if err != nil {
		return false, errors.Wrap(err, "IncrementAvailable")
	}
	return tag.RowsAffected() == 1, nil
}
