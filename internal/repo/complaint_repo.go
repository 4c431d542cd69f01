// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Complaint
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a complaint is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/citizenlink/citizenlink-api/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ComplaintFilter composes optional predicates for list queries.
type ComplaintFilter struct {
	SubmittedBy    string
	WorkflowStatus domain.WorkflowStatus
	Category       string
	Department     string // array-contains over the routing list
	From, To       *time.Time
}

// CreateComplaint inserts a new complaint row. The caller provides a fully
// populated entity; ID and timestamps are filled here when zero.
func CreateComplaint(ctx context.Context, db *gorm.DB, c *domain.Complaint) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = now
	}
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = now
	}
	return db.WithContext(ctx).Create(c).Error
}

// GetComplaint fetches a complaint by ID with its assignment rows preloaded,
// or ErrNotFound if missing.
func GetComplaint(ctx context.Context, db *gorm.DB, id string) (*domain.Complaint, error) {
	var c domain.Complaint
	err := db.WithContext(ctx).
		Preload("Assignments").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateComplaintFields applies a partial update and bumps updated_at and
// last_activity_at. Returns ErrNotFound when no row matched.
func UpdateComplaintFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	now := time.Now().UTC()
	fields["updated_at"] = now
	fields["last_activity_at"] = now
	res := db.WithContext(ctx).
		Model(&domain.Complaint{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountComplaints returns the total rows matching the filter.
func CountComplaints(ctx context.Context, db *gorm.DB, f ComplaintFilter) (int64, error) {
	var total int64
	err := applyComplaintFilter(db.WithContext(ctx).Model(&domain.Complaint{}), f).
		Count(&total).Error
	return total, err
}

// ListComplaintsPage returns a page of complaints matching the filter,
// ordered by submission time descending.
func ListComplaintsPage(ctx context.Context, db *gorm.DB, f ComplaintFilter, offset, limit int) ([]domain.Complaint, error) {
	var out []domain.Complaint
	err := applyComplaintFilter(db.WithContext(ctx), f).
		Order("submitted_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListCandidatesByCategory returns complaints sharing a category submitted
// after the cutoff, excluding the subject, capped at limit. Used by the
// text and temporal duplicate-detection passes.
func ListCandidatesByCategory(ctx context.Context, db *gorm.DB, excludeID, category string, since time.Time, limit int) ([]domain.Complaint, error) {
	var out []domain.Complaint
	err := db.WithContext(ctx).
		Where("id != ? AND category = ? AND submitted_at >= ?", excludeID, category, since).
		Order("submitted_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListCandidatesWithCoords returns complaints with non-null coordinates
// submitted after the cutoff, excluding the subject, capped at limit. Used
// by the location pass and the review-neighborhood query; precise radius
// filtering happens in the caller.
func ListCandidatesWithCoords(ctx context.Context, db *gorm.DB, excludeID string, since time.Time, limit int) ([]domain.Complaint, error) {
	var out []domain.Complaint
	err := db.WithContext(ctx).
		Where("id != ? AND latitude IS NOT NULL AND longitude IS NOT NULL AND submitted_at >= ?", excludeID, since).
		Order("submitted_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListStaleComplaints returns non-terminal complaints whose last activity is
// older than the cutoff, for the reminder escalation sweep.
func ListStaleComplaints(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Complaint, error) {
	var out []domain.Complaint
	err := db.WithContext(ctx).
		Where("workflow_status IN ? AND last_activity_at < ?",
			[]domain.WorkflowStatus{domain.WorkflowNew, domain.WorkflowAssigned, domain.WorkflowInProgress},
			cutoff).
		Order("last_activity_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func applyComplaintFilter(q *gorm.DB, f ComplaintFilter) *gorm.DB {
	if f.SubmittedBy != "" {
		q = q.Where("submitted_by = ?", f.SubmittedBy)
	}
	if f.WorkflowStatus != "" {
		q = q.Where("workflow_status = ?", f.WorkflowStatus)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Department != "" {
		// Departments is stored as a JSON array; match the quoted code.
		q = q.Where("departments LIKE ?", "%\""+f.Department+"\"%")
	}
	if f.From != nil {
		q = q.Where("submitted_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("submitted_at <= ?", *f.To)
	}
	return q
}
