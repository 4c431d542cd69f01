// Package services – DetectionService
//
// This file wires the pure dedupe engine to the store: it selects the three
// candidate pools for a subject complaint, scores them, and upserts the
// resulting similarity edges. Re-running detection refreshes scores without
// duplicating rows; coordinator decisions on existing edges survive.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/citizenlink/citizenlink-api/internal/dedupe"
	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
)

// Candidate-pool windows and caps, per detection pass.
const (
	textWindow   = 30 * 24 * time.Hour
	textCap      = 50
	geoWindow    = 90 * 24 * time.Hour
	geoCap       = 100
	tempWindow   = 7 * 24 * time.Hour
	tempCap      = 50
)

// DetectionService runs duplicate detection for a complaint and persists
// the scored edges.
type DetectionService struct {
	DB *gorm.DB
}

// NewDetectionService constructs a DetectionService.
func NewDetectionService(db *gorm.DB) *DetectionService {
	return &DetectionService{DB: db}
}

// Detect scores the subject against its candidate pools and upserts one
// directed similarity edge per merged candidate. Returns the freshly stored
// edges ordered descending by score.
func (s *DetectionService) Detect(ctx context.Context, complaintID string) ([]domain.ComplaintSimilarity, error) {
	tr := otel.Tracer("services/DetectionService")
	ctx, span := tr.Start(ctx, "Detect",
		trace.WithAttributes(attribute.String("complaint.id", complaintID)),
	)
	defer span.End()

	subjectRow, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	subject := toCandidate(*subjectRow)

	textRows, err := repo.ListCandidatesByCategory(ctx, s.DB, subjectRow.ID, subjectRow.Category,
		time.Now().UTC().Add(-textWindow), textCap)
	if err != nil {
		return nil, err
	}
	geoRows, err := repo.ListCandidatesWithCoords(ctx, s.DB, subjectRow.ID,
		time.Now().UTC().Add(-geoWindow), geoCap)
	if err != nil {
		return nil, err
	}
	// Temporal pool: same category within ±7 days of the subject. The lower
	// bound comes from the query; TemporalScore excludes the far side.
	tempRows, err := repo.ListCandidatesByCategory(ctx, s.DB, subjectRow.ID, subjectRow.Category,
		subjectRow.SubmittedAt.Add(-tempWindow), tempCap)
	if err != nil {
		return nil, err
	}

	matches := dedupe.Score(subject,
		toCandidates(textRows), toCandidates(geoRows), toCandidates(tempRows))

	span.SetAttributes(attribute.Int("dedupe.matches", len(matches)))

	out := make([]domain.ComplaintSimilarity, 0, len(matches))
	for _, m := range matches {
		edge := &domain.ComplaintSimilarity{
			ComplaintID:        complaintID,
			SimilarComplaintID: m.SimilarComplaintID,
			SimilarityScore:    m.Score,
			Confidence:         m.Confidence,
			Factors: domain.SimilarityFactors{
				TextScore:     m.TextScore,
				LocationScore: m.LocationScore,
				TemporalScore: m.TemporalScore,
				DistanceKM:    m.DistanceKM,
				SameStreet:    m.SameStreet,
				DaysApart:     m.DaysApart,
			},
		}
		if err := repo.UpsertSimilarity(ctx, s.DB, edge); err != nil {
			return nil, err
		}
		out = append(out, *edge)
	}
	return out, nil
}

// EnsureDetected lazily runs detection when no edges exist yet, then
// returns all stored edges for the subject.
func (s *DetectionService) EnsureDetected(ctx context.Context, complaintID string) ([]domain.ComplaintSimilarity, error) {
	n, err := repo.CountSimilarities(ctx, s.DB, complaintID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := s.Detect(ctx, complaintID); err != nil {
			return nil, err
		}
	}
	return repo.ListSimilarities(ctx, s.DB, complaintID)
}

func toCandidate(c domain.Complaint) dedupe.Candidate {
	return dedupe.Candidate{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		LocationText: c.LocationText,
		Latitude:     c.Latitude,
		Longitude:    c.Longitude,
		SubmittedAt:  c.SubmittedAt,
	}
}

func toCandidates(rows []domain.Complaint) []dedupe.Candidate {
	out := make([]dedupe.Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, toCandidate(r))
	}
	return out
}
