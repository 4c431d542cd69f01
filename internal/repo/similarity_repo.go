// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ComplaintSimilarity model (duplicate-detection output).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/citizenlink/citizenlink-api/internal/domain"
)

// UpsertSimilarity inserts or updates the directed edge keyed on
// (complaint_id, similar_complaint_id). Re-running detection refreshes
// scores without creating duplicate rows and leaves any recorded
// coordinator decision untouched.
func UpsertSimilarity(ctx context.Context, db *gorm.DB, s *domain.ComplaintSimilarity) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "complaint_id"}, {Name: "similar_complaint_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"similarity_score", "confidence", "factors", "updated_at",
			}),
		}).
		Create(s).Error
}

// ListSimilarities returns all similarity edges for a subject complaint,
// ordered descending by score.
func ListSimilarities(ctx context.Context, db *gorm.DB, complaintID string) ([]domain.ComplaintSimilarity, error) {
	var out []domain.ComplaintSimilarity
	err := db.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("similarity_score desc").
		Find(&out).Error
	return out, err
}

// CountSimilarities returns the number of stored edges for a subject.
func CountSimilarities(ctx context.Context, db *gorm.DB, complaintID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ComplaintSimilarity{}).
		Where("complaint_id = ?", complaintID).
		Count(&total).Error
	return total, err
}

// SetPendingDecisions stamps every not-yet-decided edge of a subject with
// the given coordinator decision. Returns the number of rows updated.
func SetPendingDecisions(ctx context.Context, db *gorm.DB, complaintID, decision string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ComplaintSimilarity{}).
		Where("complaint_id = ? AND (coordinator_decision IS NULL OR coordinator_decision = '')", complaintID).
		Updates(map[string]any{
			"coordinator_decision": decision,
			"updated_at":           time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// SetDecisionForPairs stamps specific (subject, candidate) edges with a
// decision, creating missing edges so a manual link survives without a
// prior detection run.
func SetDecisionForPairs(ctx context.Context, db *gorm.DB, complaintID string, similarIDs []string, decision string) error {
	now := time.Now().UTC()
	for _, sid := range similarIDs {
		edge := &domain.ComplaintSimilarity{
			ID:                  uuid.NewString(),
			ComplaintID:         complaintID,
			SimilarComplaintID:  sid,
			CoordinatorDecision: decision,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		err := db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "complaint_id"}, {Name: "similar_complaint_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"coordinator_decision", "updated_at",
				}),
			}).
			Create(edge).Error
		if err != nil {
			return err
		}
	}
	return nil
}
