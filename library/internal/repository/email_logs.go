package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/Astemirdum/library-circulation/library/internal/model"
)

var emailLogColumns = []string{
	"id", "recipient", "subject", "status", "error_message", "attempts", "created_at", "sent_at",
}

func (r *repository) CreateEmailLog(ctx context.Context, l model.EmailLog) (model.EmailLog, error) {
	query, args, err := qb.Insert(emailLogsTableName).
		Columns("recipient", "subject", "status", "created_at").
		Values(l.Recipient, l.Subject, l.Status, l.CreatedAt).
		Suffix("returning " + strings.Join(emailLogColumns, ", ")).
		ToSql()
	if err != nil {
		return model.EmailLog{}, err
	}
	created, err := getOne[model.EmailLog](ctx, r.db, query, args...)
	return created, errors.Wrap(err, "CreateEmailLog")
}

func (r *repository) UpdateEmailLog(ctx context.Context, l model.EmailLog) error {
	query, args, err := qb.Update(emailLogsTableName).
		SetMap(map[string]any{
			"status":        l.Status,
			"error_message": l.ErrorMessage,
			"attempts":      l.Attempts,
			"sent_at":       l.SentAt,
		}).
		Where(sq.Eq{"id": l.ID}).
		ToSql()
	if err != nil {
		return err
	}
	return errors.Wrap(affectedOne(r.db.Exec(ctx, query, args...)), "UpdateEmailLog")
}
