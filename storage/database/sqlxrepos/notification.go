package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/notification"
)

const notificationCols = `id, user_id, kind, title, message, read, created_at`

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) getExec(exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return repo.db
}

func scanNotification(s rowScanner) (notification.Notification, error) {
	var n notification.Notification
	err := s.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.Read, &n.CreatedAt)
	return n, err
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	q := `INSERT INTO notification (` + notificationCols + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		n.ID, n.UserID, n.Kind, n.Title, n.Message, n.Read, n.CreatedAt,
	)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo notificationRepository) QueryNotificationsByUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]notification.Notification, error) {
	q := `SELECT ` + notificationCols + ` FROM notification WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := repo.getExec(exec).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	defer func() { _ = rows.Close() }()

	var ns []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "querying notifications")
		}
		ns = append(ns, n)
	}
	return ns, errors.Wrap(rows.Err(), "querying notifications")
}

func (repo notificationRepository) MarkNotificationRead(ctx context.Context, id, userID string, exec ...core.DBExecutor) (notification.Notification, error) {
	q := `UPDATE notification SET read = TRUE WHERE id = $1 AND user_id = $2 RETURNING ` + notificationCols
	n, err := scanNotification(repo.getExec(exec).QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return notification.Notification{}, notification.ErrNotFound
	}
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "marking notification read")
	}
	return n, nil
}
