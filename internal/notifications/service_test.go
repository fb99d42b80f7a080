package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func seedNotification(t *testing.T, repo Repository, userID uuid.UUID, read bool) *models.Notification {
	t.Helper()
	notification := &models.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    enums.NotificationTypeOrderStatus,
		Title:   "Order update",
		Message: "Your order is now shipped.",
	}
	if read {
		now := time.Now().UTC()
		notification.ReadAt = &now
	}
	require.NoError(t, repo.Create(context.Background(), notification))
	return notification
}

func TestListFiltersUnread(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()

	seedNotification(t, repo, userID, false)
	seedNotification(t, repo, userID, true)
	seedNotification(t, repo, uuid.New(), false)

	params := pagination.Params{Limit: 10}
	all, total, err := svc.List(ctx, userID, params, false)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, all, 2)

	unread, total, err := svc.List(ctx, userID, params, true)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, unread, 1)
	require.Nil(t, unread[0].ReadAt)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()
	notification := seedNotification(t, repo, userID, false)

	err = svc.MarkRead(ctx, uuid.New(), notification.ID)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	require.NoError(t, svc.MarkRead(ctx, userID, notification.ID))

	var row models.Notification
	require.NoError(t, db.First(&row, "id = ?", notification.ID).Error)
	require.NotNil(t, row.ReadAt)

	// Marking twice is not an error.
	require.NoError(t, svc.MarkRead(ctx, userID, notification.ID))
}

func TestMarkAllRead(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()

	seedNotification(t, repo, userID, false)
	seedNotification(t, repo, userID, false)
	seedNotification(t, repo, userID, true)

	count, err := svc.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	var unread int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&unread).Error)
	require.EqualValues(t, 0, unread)
}
