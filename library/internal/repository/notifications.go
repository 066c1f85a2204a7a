package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/Astemirdum/library-circulation/library/internal/model"
)

var notificationColumns = []string{
	"id", "user_id", "title", "message", "notification_type", "related_id",
	"action_url", "is_read", "created_at",
}

func (r *repository) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	query, args, err := qb.Insert(notificationsTableName).
		Columns("user_id", "title", "message", "notification_type", "related_id", "action_url", "created_at").
		Values(n.UserID, n.Title, n.Message, n.Type, n.RelatedID, n.ActionURL, n.CreatedAt).
		Suffix("returning " + strings.Join(notificationColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Notification{}, err
	}
	created, err := getOne[model.Notification](ctx, r.db, query, args...)
	return created, errors.Wrap(err, "CreateNotification")
}

func (r *repository) ListNotifications(ctx context.Context, userID, page, size int) (model.ListNotifications, error) {
	var total, unread int
	countQuery, countArgs, err := qb.Select("count(*)", "count(*) filter (where not is_read)").
		From(notificationsTableName).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return model.ListNotifications{}, err
	}
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total, &unread); err != nil {
		return model.ListNotifications{}, errors.Wrap(err, "ListNotifications count")
	}

	q := qb.Select(notificationColumns...).
		From(notificationsTableName).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at desc", "id desc")
	if page != 0 && size != 0 {
		q = q.Limit(uint64(size)).Offset(uint64((page - 1) * size))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.ListNotifications{}, err
	}
	items, err := getMany[model.Notification](ctx, r.db, query, args...)
	if err != nil {
		return model.ListNotifications{}, err
	}
	return model.ListNotifications{
		Paging: model.Paging{
			Page:          page,
			PageSize:      size,
			TotalElements: total,
		},
		Unread: unread,
		Items:  items,
	}, nil
}

func (r *repository) MarkNotificationRead(ctx context.Context, userID, id int) error {
	query, args, err := qb.Update(notificationsTableName).
		Set("is_read", true).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	return affectedOne(r.db.Exec(ctx, query, args...))
}

func (r *repository) MarkAllNotificationsRead(ctx context.Context, userID int) (int, error) {
	query, args, err := qb.Update(notificationsTableName).
		Set("is_read", true).
		Where(sq.Eq{"user_id": userID, "is_read": false}).
		ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "MarkAllNotificationsRead")
	}
	return int(tag.RowsAffected()), nil
}

func (r *repository) DeleteNotification(ctx context.Context, userID, id int) error {
	query, args, err := qb.Delete(notificationsTableName).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	return affectedOne(r.db.Exec(ctx, query, args...))
}
