package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/meterkit/pkg/notifications"
	"github.com/dmitrymomot/meterkit/pkg/pg"
)

// NotificationStore is a notifications.Storage on PostgreSQL. Expired rows
// are hidden from reads; PurgeExpired deletes them.
type NotificationStore struct {
	db  DB
	now func() time.Time
}

var _ notifications.Storage = (*NotificationStore)(nil)

// NewNotificationStore creates a NotificationStore.
func NewNotificationStore(db DB) *NotificationStore {
	return &NotificationStore{db: db, now: time.Now}
}

const notificationColumns = `id, tenant_id, kind, type, priority, title, message, data, actions, read_at, created_at, expires_at`

func (s *NotificationStore) Create(ctx context.Context, n notifications.Notification) error {
	if n.ID == "" {
		return notifications.ErrMissingID
	}
	if n.TenantID == "" {
		return notifications.ErrMissingTenantID
	}
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	actions := n.Actions
	if actions == nil {
		actions = []notifications.Action{}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.TenantID, string(n.Kind), string(n.Type), int16(n.Priority), n.Title, n.Message,
		data, actions, n.ReadAt, n.CreatedAt, n.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) Get(ctx context.Context, tenantID, notifID string) (notifications.Notification, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE tenant_id = $1 AND id = $2 AND (expires_at IS NULL OR expires_at >= $3)`,
		tenantID, notifID, s.now(),
	)
	if err != nil {
		return notifications.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, scanNotification)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return notifications.Notification{}, notifications.ErrNotificationNotFound
		}
		return notifications.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) List(ctx context.Context, tenantID string, opts notifications.ListOptions) ([]notifications.Notification, error) {
	kinds := make([]string, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kinds = append(kinds, string(k))
	}
	var since any
	if opts.Since != nil {
		since = *opts.Since
	}
	var limit any
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE tenant_id = $1
		   AND (expires_at IS NULL OR expires_at >= $2)
		   AND (NOT $3 OR read_at IS NULL)
		   AND (cardinality($4::text[]) = 0 OR kind = ANY($4))
		   AND ($5::timestamptz IS NULL OR created_at >= $5)
		 ORDER BY created_at DESC
		 LIMIT $6 OFFSET $7`,
		tenantID, s.now(), opts.OnlyUnread, kinds, since, limit, max(opts.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanNotification)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, tenantID string, notifIDs ...string) error {
	if len(notifIDs) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE notifications SET read_at = $3
		 WHERE tenant_id = $1 AND id = ANY($2) AND read_at IS NULL`,
		tenantID, notifIDs, s.now(),
	)
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM notifications
		 WHERE tenant_id = $1 AND read_at IS NULL AND (expires_at IS NULL OR expires_at >= $2)`,
		tenantID, s.now(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes notifications that expired before now.
func (s *NotificationStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE expires_at < $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row pgx.CollectableRow) (notifications.Notification, error) {
	var (
		n        notifications.Notification
		kind     string
		typ      string
		priority int16
	)
	err := row.Scan(&n.ID, &n.TenantID, &kind, &typ, &priority, &n.Title, &n.Message,
		&n.Data, &n.Actions, &n.ReadAt, &n.CreatedAt, &n.ExpiresAt)
	if err != nil {
		return notifications.Notification{}, err
	}
	n.Kind = notifications.Kind(kind)
	n.Type = notifications.Type(typ)
	n.Priority = notifications.Priority(priority)
	n.Read = n.ReadAt != nil
	return n, nil
}
