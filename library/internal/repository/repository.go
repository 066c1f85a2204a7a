package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/model"
)

type Repository interface {
	// InTx runs fn against a repository bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(repo Repository) error) error

	GetUser(ctx context.Context, id int) (model.User, error)
	GetSettings(ctx context.Context) (map[string]string, error)

	ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error)
	GetBook(ctx context.Context, id int) (model.Book, error)
	DecrementAvailable(ctx context.Context, bookID int) (bool, error)
	IncrementAvailable(ctx context.Context, bookID int) (bool, error)

	CreateBorrowing(ctx context.Context, b model.Borrowing) (model.Borrowing, error)
	GetBorrowing(ctx context.Context, id int) (model.Borrowing, error)
	GetUserBorrowing(ctx context.Context, userID, id int) (model.Borrowing, error)
	ListBorrowings(ctx context.Context, userID int) ([]model.Borrowing, error)
	// UpdateBorrowing writes b only while the stored status is still from,
	// otherwise it returns errs.ErrBorrowingChanged.
	UpdateBorrowing(ctx context.Context, b model.Borrowing, from model.BorrowingStatus) error
	ListAbandonedBorrowings(ctx context.Context, now time.Time) ([]model.Borrowing, error)

	CreateVerification(ctx context.Context, v model.TransactionVerification) (model.TransactionVerification, error)
	GetVerificationByCode(ctx context.Context, userID int, code string) (model.TransactionVerification, error)
	MarkVerified(ctx context.Context, id int, at time.Time) (bool, error)
	ListRecentVerifications(ctx context.Context, userID, limit int) ([]model.TransactionVerification, error)

	CreateReservation(ctx context.Context, r model.Reservation) (model.Reservation, error)
	GetReservation(ctx context.Context, id int) (model.Reservation, error)
	GetPendingReservation(ctx context.Context, userID, bookID int) (model.Reservation, error)
	OldestWaitingReservation(ctx context.Context, bookID int) (model.Reservation, error)
	UpdateReservation(ctx context.Context, r model.Reservation) error
	ListReservations(ctx context.Context, userID int) ([]model.Reservation, error)
	ListLapsedReservations(ctx context.Context, now time.Time) ([]model.Reservation, error)

	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)
	ListNotifications(ctx context.Context, userID, page, size int) (model.ListNotifications, error)
	MarkNotificationRead(ctx context.Context, userID, id int) error
	MarkAllNotificationsRead(ctx context.Context, userID int) (int, error)
	DeleteNotification(ctx context.Context, userID, id int) error

	CreateEmailLog(ctx context.Context, l model.EmailLog) (model.EmailLog, error)
	UpdateEmailLog(ctx context.Context, l model.EmailLog) error
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
	db   dbtx
	inTx bool
	log  *zap.Logger
}

func NewRepository(db *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	if db == nil {
		return nil, errors.New("repository: nil pool")
	}
	return &repository{
		pool: db,
		db:   db,
		log:  log.Named("repo"),
	}, nil
}

const (
	usersTableName         = `users`
	booksTableName         = `books`
	borrowingsTableName    = `borrowings`
	reservationsTableName  = `reservations`
	verificationsTableName = `transaction_verifications`
	notificationsTableName = `notifications`
	emailLogsTableName     = `email_logs`
	settingsTableName      = `settings`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (r *repository) InTx(ctx context.Context, fn func(repo Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.log.Warn("rollback", zap.Error(err))
		}
	}()

	if err := fn(&repository{pool: r.pool, db: tx, inTx: true, log: r.log}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

func (r *repository) GetUser(ctx context.Context, id int) (model.User, error) {
	query, args, err := qb.Select("id", "email", "full_name", "role", "is_active").
		From(usersTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	return getOne[model.User](ctx, r.db, query, args...)
}

func (r *repository) GetSettings(ctx context.Context) (map[string]string, error) {
	query, args, err := qb.Select("key", "value").From(settingsTableName).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "GetSettings")
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "GetSettings scan")
		}
		kv[key] = value
	}
	return kv, errors.Wrap(rows.Err(), "GetSettings rows")
}

func getOne[T any](ctx context.Context, db dbtx, query string, args ...any) (T, error) {
	var zero T
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return zero, errors.Wrap(err, "query")
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, errs.ErrNotFound
		}
		return zero, errors.Wrap(err, "collect row")
	}
	return item, nil
}

func getMany[T any](ctx context.Context, db dbtx, query string, args ...any) ([]T, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, errors.Wrap(err, "collect rows")
	}
	return items, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func affectedOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
