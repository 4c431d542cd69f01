package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
)

func TestDetect_ScoresAndPersistsEdges(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewDetectionService(db)

	lat, lon := 14.5995, 120.9842
	now := time.Now().UTC()
	subject := seedNewComplaint(t, db, func(c *domain.Complaint) {
		c.Latitude, c.Longitude = &lat, &lon
		c.SubmittedAt = now
	})
	tlat, tlon := lat, lon
	twin := seedNewComplaint(t, db, func(c *domain.Complaint) {
		c.SubmittedBy = "citizen-2"
		c.Latitude, c.Longitude = &tlat, &tlon
		c.SubmittedAt = now.Add(-3 * time.Hour)
	})
	seedNewComplaint(t, db, func(c *domain.Complaint) {
		c.SubmittedBy = "citizen-3"
		c.Title = "Uncollected garbage on Oak Street"
		c.Description = "Trash bags piling up since last week's missed collection"
		c.Category = "waste"
		c.SubmittedAt = now.Add(-50 * 24 * time.Hour)
	})

	edges, err := svc.Detect(ctx, subject.ID)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges: got %d want 1", len(edges))
	}
	e := edges[0]
	if e.SimilarComplaintID != twin.ID || e.Confidence != "very_high" {
		t.Fatalf("edge: %+v", e)
	}
	if e.Factors.TextScore == 0 || e.Factors.LocationScore == 0 || e.Factors.TemporalScore == 0 {
		t.Fatalf("factor breakdown missing: %+v", e.Factors)
	}

	// Re-running refreshes rather than duplicating.
	if _, err := svc.Detect(ctx, subject.ID); err != nil {
		t.Fatalf("re-run: %v", err)
	}
	n, err := repo.CountSimilarities(ctx, db, subject.ID)
	if err != nil || n != 1 {
		t.Fatalf("stored edges after re-run: %d err %v", n, err)
	}
}

func TestEnsureDetected_LazyAndIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewDetectionService(db)

	now := time.Now().UTC()
	subject := seedNewComplaint(t, db, func(c *domain.Complaint) { c.SubmittedAt = now })
	seedNewComplaint(t, db, func(c *domain.Complaint) {
		c.SubmittedBy = "citizen-2"
		c.SubmittedAt = now.Add(-time.Hour)
	})

	edges, err := svc.EnsureDetected(ctx, subject.ID)
	if err != nil {
		t.Fatalf("EnsureDetected: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges: got %d want 1", len(edges))
	}

	// A coordinator decision must survive the next EnsureDetected call.
	if err := repo.SetDecisionForPairs(ctx, db, subject.ID, []string{edges[0].SimilarComplaintID}, DecisionRelated); err != nil {
		t.Fatalf("decide: %v", err)
	}
	edges, err = svc.EnsureDetected(ctx, subject.ID)
	if err != nil {
		t.Fatalf("second EnsureDetected: %v", err)
	}
	if len(edges) != 1 || edges[0].CoordinatorDecision != DecisionRelated {
		t.Fatalf("decision lost: %+v", edges)
	}
}

func TestDetect_MissingComplaint(t *testing.T) {
	db := newTestDB(t)
	svc := NewDetectionService(db)
	if _, err := svc.Detect(context.Background(), "missing-id"); !errors.Is(err, ErrComplaintNotFound) {
		t.Fatalf("missing subject: %v", err)
	}
}
