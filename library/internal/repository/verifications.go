package repository

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/Astemirdum/library-circulation/library/internal/model"
)

var verificationColumns = []string{
	"id", "user_id", "borrowing_id", "transaction_type", "verification_code",
	"created_at", "expires_at", "is_verified", "verified_at",
}

func (r *repository) CreateVerification(ctx context.Context, v model.TransactionVerification) (model.TransactionVerification, error) {
	query, args, err := qb.Insert(verificationsTableName).
		Columns("user_id", "borrowing_id", "transaction_type", "verification_code", "created_at", "expires_at").
		Values(v.UserID, v.BorrowingID, v.TransactionType, v.VerificationCode, v.CreatedAt, v.ExpiresAt).
		Suffix("returning " + strings.Join(verificationColumns, ", ")).
		ToSql()
	if err != nil {
		return model.TransactionVerification{}, err
	}
	created, err := getOne[model.TransactionVerification](ctx, r.db, query, args...)
	return created, errors.Wrap(err, "CreateVerification")
}

// GetVerificationByCode picks the newest code of the user; codes are not
// unique across users or over time.
func (r *repository) GetVerificationByCode(ctx context.Context, userID int, code string) (model.TransactionVerification, error) {
	query, args, err := qb.Select(verificationColumns...).
		From(verificationsTableName).
		Where(sq.Eq{"user_id": userID, "verification_code": code}).
		OrderBy("created_at desc", "id desc").
		Limit(1).
		ToSql()
	if err != nil {
		return model.TransactionVerification{}, err
	}
	return getOne[model.TransactionVerification](ctx, r.db, query, args...)
}

// MarkVerified flips is_verified once; false means another request got there first.
func (r *repository) MarkVerified(ctx context.Context, id int, at time.Time) (bool, error) {
	q := `
update transaction_verifications
    set is_verified = true, verified_at = @at
where id = @id and not is_verified`
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "at": at})
	if err != nil {
		return false, errors.Wrap(err, "MarkVerified")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) ListRecentVerifications(ctx context.Context, userID, limit int) ([]model.TransactionVerification, error) {
	query, args, err := qb.Select(verificationColumns...).
		From(verificationsTableName).
		Where(sq.Eq{"user_id": userID, "is_verified": true}).
		OrderBy("verified_at desc", "id desc").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return getMany[model.TransactionVerification](ctx, r.db, query, args...)
}
