package dummy

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	repo.db.dataMu.Lock()
	defer repo.db.dataMu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	repo.db.notifications[n.ID] = n
	return n, nil
}

func (repo notificationRepository) QueryNotificationsByUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]notification.Notification, error) {
	repo.db.dataMu.RLock()
	defer repo.db.dataMu.RUnlock()

	var ns []notification.Notification
	for _, n := range repo.db.notifications {
		if n.UserID == userID {
			ns = append(ns, n)
		}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].CreatedAt.After(ns[j].CreatedAt) })
	return ns, nil
}

func (repo notificationRepository) MarkNotificationRead(ctx context.Context, id, userID string, exec ...core.DBExecutor) (notification.Notification, error) {
	repo.db.dataMu.Lock()
	defer repo.db.dataMu.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok || n.UserID != userID {
		return notification.Notification{}, notification.ErrNotFound
	}
	n.Read = true
	repo.db.notifications[id] = n
	return n, nil
}
