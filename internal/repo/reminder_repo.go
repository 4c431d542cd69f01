// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers reminder, notification, audit, and
// evidence records plus the identity-directory user table. These are small
// supporting aggregates, grouped to keep the package flat.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/citizenlink/citizenlink-api/internal/domain"
)

// CreateReminder persists one reminder record.
func CreateReminder(ctx context.Context, db *gorm.DB, complaintID, reminderType string) (*domain.ComplaintReminder, error) {
	r := &domain.ComplaintReminder{
		ID:           uuid.NewString(),
		ComplaintID:  complaintID,
		ReminderType: reminderType,
		RemindedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// LatestReminder returns the most recent reminder of any type for a
// complaint, or ErrNotFound when none was ever sent.
func LatestReminder(ctx context.Context, db *gorm.DB, complaintID string) (*domain.ComplaintReminder, error) {
	var r domain.ComplaintReminder
	err := db.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("reminded_at desc").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRemindersOfTypes returns how many reminders of the given types exist
// for a complaint. The escalation sweep uses it to pick the next tier.
func CountRemindersOfTypes(ctx context.Context, db *gorm.DB, complaintID string, types []string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ComplaintReminder{}).
		Where("complaint_id = ? AND reminder_type IN ?", complaintID, types).
		Count(&total).Error
	return total, err
}

// CreateNotification persists a notification row for a user.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(n).Error
}

// ListNotificationsPage returns a page of a user's notifications, newest
// first, plus the unread count.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Notification, int64, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	var unread int64
	err = db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&unread).Error
	return out, unread, err
}

// MarkNotificationRead stamps read_at on a user's notification.
// Returns ErrNotFound when the row is missing or owned by someone else.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AppendAudit inserts one append-only audit entry.
func AppendAudit(ctx context.Context, db *gorm.DB, complaintID, action, actorID string, detail map[string]string) error {
	e := &domain.AuditEntry{
		ID:          uuid.NewString(),
		ComplaintID: complaintID,
		Action:      action,
		ActorID:     actorID,
		Detail:      detail,
		CreatedAt:   time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(e).Error
}

// ListAudit returns a complaint's audit trail, oldest first.
func ListAudit(ctx context.Context, db *gorm.DB, complaintID string) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := db.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CreateEvidence registers an evidence metadata row.
func CreateEvidence(ctx context.Context, db *gorm.DB, e *domain.Evidence) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(e).Error
}

// ListEvidence returns evidence rows attached to a complaint.
func ListEvidence(ctx context.Context, db *gorm.DB, complaintID string) ([]domain.Evidence, error) {
	var out []domain.Evidence
	err := db.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// GetUser fetches a directory user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListActiveUsers returns all active directory users ordered by ID, so
// deterministic pick-first policies stay stable across calls.
func ListActiveUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&out).Error
	return out, err
}
