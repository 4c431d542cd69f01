// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ComplaintAssignment model. Rows are never deleted, only
// status-transitioned.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/citizenlink/citizenlink-api/internal/domain"
)

// ErrDuplicateAssignment indicates the partial unique index rejected a second
// active row for the same (complaint, officer) pair.
var ErrDuplicateAssignment = errors.New("active assignment already exists")

// CreateAssignment inserts a new assignment row. ID, group ID, and
// timestamps are filled when zero. A unique-constraint violation from the
// active-officer index maps to ErrDuplicateAssignment.
func CreateAssignment(ctx context.Context, db *gorm.DB, a *domain.ComplaintAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignmentGroupID == "" {
		a.AssignmentGroupID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicateAssignment
		}
		return err
	}
	return nil
}

// GetAssignment fetches an assignment by ID, or ErrNotFound.
func GetAssignment(ctx context.Context, db *gorm.DB, id string) (*domain.ComplaintAssignment, error) {
	var a domain.ComplaintAssignment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAssignmentForOfficer fetches an assignment by ID scoped to the owning
// officer. A row belonging to someone else surfaces as ErrNotFound so the
// caller does not leak existence.
func GetAssignmentForOfficer(ctx context.Context, db *gorm.DB, id, officerID string) (*domain.ComplaintAssignment, error) {
	var a domain.ComplaintAssignment
	err := db.WithContext(ctx).
		Where("id = ? AND assigned_to = ?", id, officerID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindActiveAssignment returns the non-cancelled assignment row for
// (complaintID, officerID), or ErrNotFound.
func FindActiveAssignment(ctx context.Context, db *gorm.DB, complaintID, officerID string) (*domain.ComplaintAssignment, error) {
	var a domain.ComplaintAssignment
	err := db.WithContext(ctx).
		Where("complaint_id = ? AND assigned_to = ? AND status != ?",
			complaintID, officerID, domain.AssignmentCancelled).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssignmentsByComplaint returns all assignment rows for a complaint,
// oldest first (stable officer_order within a group).
func ListAssignmentsByComplaint(ctx context.Context, db *gorm.DB, complaintID string) ([]domain.ComplaintAssignment, error) {
	var out []domain.ComplaintAssignment
	err := db.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("created_at asc, officer_order asc").
		Find(&out).Error
	return out, err
}

// ListAssignmentsByOfficer returns all rows ever assigned to an officer,
// newest first. Historical duplicates per complaint are preserved; stats
// callers de-duplicate to the most recent row.
func ListAssignmentsByOfficer(ctx context.Context, db *gorm.DB, officerID string) ([]domain.ComplaintAssignment, error) {
	var out []domain.ComplaintAssignment
	err := db.WithContext(ctx).
		Where("assigned_to = ?", officerID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// UpdateAssignment applies a partial update and bumps updated_at.
// Returns ErrNotFound when no row matched.
func UpdateAssignment(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.ComplaintAssignment{}).
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
