package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campushq/backend/core"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"` // e.g. "library", "attendance", "placement"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		QueryNotificationsByUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Notification, error)
		MarkNotificationRead(ctx context.Context, id, userID string, exec ...core.DBExecutor) (Notification, error)
	}

	// Service persists in-app notifications. Push transports (sockets, FCM)
	// plug in behind this as an injected capability rather than a global.
	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// NotifyUser records a notification for the user. Failures are logged, not
// surfaced: delivery is best-effort and must never fail the calling operation.
func (svc *Service) NotifyUser(ctx context.Context, userID, kind, title, message string) {
	n := Notification{
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := svc.repo.CreateNotification(ctx, n); err != nil {
		svc.logger.Error(fmt.Sprintf("recording %s notification for user %s", kind, userID), err)
	}
}

func (svc *Service) ListForUser(ctx context.Context, userID string) ([]Notification, error) {
	return svc.repo.QueryNotificationsByUser(ctx, userID)
}

func (svc *Service) MarkRead(ctx context.Context, id, userID string) (Notification, error) {
	return svc.repo.MarkNotificationRead(ctx, id, userID)
}
