// Package services – OfficerService
//
// This file implements the field-officer task surface: listing tasks,
// progressing a task through its states, resolving the parent complaint
// with mandatory notes, and per-officer workload statistics. Every task
// mutation is scoped to the owning officer; a foreign assignment id behaves
// as if it did not exist.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
)

// OfficerService owns assignment-level task operations for field officers.
type OfficerService struct {
	DB       *gorm.DB
	Notifier Notifier
}

// NewOfficerService constructs an OfficerService.
func NewOfficerService(db *gorm.DB, n Notifier) *OfficerService {
	return &OfficerService{DB: db, Notifier: n}
}

// TaskView pairs an assignment with its parent complaint for list display.
type TaskView struct {
	Assignment domain.ComplaintAssignment `json:"assignment"`
	Complaint  *domain.Complaint          `json:"complaint,omitempty"`
}

// OfficerStats is the workload summary for one officer. Historical
// re-assignments of the same complaint count once, using the most recent
// row per complaint.
type OfficerStats struct {
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	InProgress     int     `json:"in_progress"`
	Completed      int     `json:"completed"`
	Overdue        int     `json:"overdue"`
	EfficiencyRate float64 `json:"efficiency_rate"`
}

// validTaskTransitions describes the officer-driven assignment state machine.
// Completion goes through MarkAsResolved, not through a raw transition.
var validTaskTransitions = map[domain.AssignmentStatus][]domain.AssignmentStatus{
	domain.AssignmentPending:    {domain.AssignmentAssigned, domain.AssignmentInProgress},
	domain.AssignmentAssigned:   {domain.AssignmentInProgress},
	domain.AssignmentInProgress: {domain.AssignmentCompleted},
}

func transitionAllowed(from, to domain.AssignmentStatus) bool {
	for _, t := range validTaskTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ListTasks returns every task ever assigned to the officer, newest first,
// with parent complaints attached. A missing parent leaves Complaint nil
// instead of dropping the row.
func (s *OfficerService) ListTasks(ctx context.Context, officerID string) ([]TaskView, error) {
	rows, err := repo.ListAssignmentsByOfficer(ctx, s.DB, officerID)
	if err != nil {
		return nil, err
	}
	out := make([]TaskView, 0, len(rows))
	for _, a := range rows {
		v := TaskView{Assignment: a}
		if c, err := repo.GetComplaint(ctx, s.DB, a.ComplaintID); err == nil {
			v.Complaint = c
		}
		out = append(out, v)
	}
	return out, nil
}

// GetTask returns one task scoped to the officer, with its parent complaint.
func (s *OfficerService) GetTask(ctx context.Context, assignmentID, officerID string) (*TaskView, error) {
	a, err := repo.GetAssignmentForOfficer(ctx, s.DB, assignmentID, officerID)
	if err != nil {
		return nil, ErrAssignmentNotFound
	}
	v := &TaskView{Assignment: *a}
	if c, err := repo.GetComplaint(ctx, s.DB, a.ComplaintID); err == nil {
		v.Complaint = c
	}
	return v, nil
}

// UpdateTaskStatus moves the officer's own task along the assignment state
// machine and keeps the parent complaint's workflow in step: the first task
// entering in_progress pulls the complaint into in_progress, and the last
// active task completing pulls it into pending_approval.
func (s *OfficerService) UpdateTaskStatus(ctx context.Context, assignmentID, officerID string, newStatus domain.AssignmentStatus, notes string) (*domain.ComplaintAssignment, error) {
	tr := otel.Tracer("services/OfficerService")
	ctx, span := tr.Start(ctx, "UpdateTaskStatus",
		trace.WithAttributes(
			attribute.String("assignment.id", assignmentID),
			attribute.String("assignment.status", string(newStatus)),
		),
	)
	defer span.End()

	a, err := repo.GetAssignmentForOfficer(ctx, s.DB, assignmentID, officerID)
	if err != nil {
		return nil, ErrAssignmentNotFound
	}
	if !transitionAllowed(a.Status, newStatus) {
		return nil, NewConflictError("task cannot move from %s to %s", a.Status, newStatus)
	}

	fields := map[string]any{"status": newStatus}
	if notes != "" {
		fields["notes"] = notes
	}
	if newStatus == domain.AssignmentCompleted {
		fields["completed_at"] = time.Now().UTC()
	}
	if err := repo.UpdateAssignment(ctx, s.DB, assignmentID, fields); err != nil {
		return nil, err
	}

	if err := s.syncParentComplaint(ctx, a.ComplaintID, officerID); err != nil {
		return nil, err
	}

	auditQuiet(ctx, s.DB, a.ComplaintID, "task_status_changed", officerID, map[string]string{
		"assignment_id": assignmentID,
		"old":           string(a.Status),
		"new":           string(newStatus),
	})
	if a.AssignedBy != "" && a.AssignedBy != officerID {
		notifyQuiet(ctx, s.Notifier, a.AssignedBy, "task_progress",
			"Task status updated",
			fmt.Sprintf("An officer moved a task on complaint %s to %s.", a.ComplaintID, newStatus),
			NotifyOptions{Link: "/complaints/" + a.ComplaintID})
	}

	return repo.GetAssignment(ctx, s.DB, assignmentID)
}

// MarkAsResolved completes the officer's own task and moves the parent
// complaint into pending_approval with resolution metadata, asking the
// citizen to confirm. Notes are mandatory.
func (s *OfficerService) MarkAsResolved(ctx context.Context, assignmentID, officerID, notes string) (*domain.Complaint, error) {
	tr := otel.Tracer("services/OfficerService")
	ctx, span := tr.Start(ctx, "MarkAsResolved",
		trace.WithAttributes(attribute.String("assignment.id", assignmentID)),
	)
	defer span.End()

	if strings.TrimSpace(notes) == "" {
		return nil, NewValidationError("resolution notes are required")
	}
	a, err := repo.GetAssignmentForOfficer(ctx, s.DB, assignmentID, officerID)
	if err != nil {
		return nil, ErrAssignmentNotFound
	}
	if a.Status == domain.AssignmentCompleted || a.Status == domain.AssignmentCancelled {
		return nil, NewConflictError("task is already %s", a.Status)
	}
	c, err := repo.GetComplaint(ctx, s.DB, a.ComplaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	if c.WorkflowStatus.IsTerminal() {
		return nil, NewConflictError("complaint in state %q can no longer be resolved", c.WorkflowStatus)
	}

	now := time.Now().UTC()
	if err := repo.UpdateAssignment(ctx, s.DB, assignmentID, map[string]any{
		"status":       domain.AssignmentCompleted,
		"notes":        notes,
		"completed_at": now,
	}); err != nil {
		return nil, err
	}
	if err := repo.UpdateComplaintFields(ctx, s.DB, a.ComplaintID, map[string]any{
		"workflow_status":  domain.WorkflowPendingApproval,
		"status":           domain.DeriveStatus(domain.WorkflowPendingApproval),
		"resolved_by":      officerID,
		"resolved_at":      now,
		"resolution_notes": notes,
	}); err != nil {
		return nil, err
	}

	auditQuiet(ctx, s.DB, a.ComplaintID, "resolved", officerID, map[string]string{
		"assignment_id": assignmentID,
	})
	notifyQuiet(ctx, s.Notifier, c.SubmittedBy, "resolution_pending",
		"Please confirm the resolution",
		fmt.Sprintf("An officer reports complaint %q as resolved: %s. Please confirm or reopen it.", c.Title, notes),
		NotifyOptions{Priority: PrioritySuccess, Link: "/complaints/" + c.ID + "/confirm"})
	if a.AssignedBy != "" && a.AssignedBy != officerID {
		notifyQuiet(ctx, s.Notifier, a.AssignedBy, "task_progress",
			"Task resolved",
			fmt.Sprintf("Complaint %q was marked resolved and awaits citizen confirmation.", c.Title),
			NotifyOptions{Link: "/complaints/" + c.ID})
	}

	return repo.GetComplaint(ctx, s.DB, a.ComplaintID)
}

// Stats summarizes the officer's workload. Only the most recent assignment
// row per complaint counts, so re-assignments do not inflate the totals.
// EfficiencyRate is completed over total, zero when the officer has no tasks.
func (s *OfficerService) Stats(ctx context.Context, officerID string) (*OfficerStats, error) {
	rows, err := repo.ListAssignmentsByOfficer(ctx, s.DB, officerID)
	if err != nil {
		return nil, err
	}

	// Rows arrive newest first; the first row seen per complaint wins.
	latest := make(map[string]domain.ComplaintAssignment, len(rows))
	for _, a := range rows {
		if _, seen := latest[a.ComplaintID]; !seen {
			latest[a.ComplaintID] = a
		}
	}

	st := &OfficerStats{}
	now := time.Now().UTC()
	for _, a := range latest {
		if a.Status == domain.AssignmentCancelled {
			continue
		}
		st.Total++
		switch a.Status {
		case domain.AssignmentPending, domain.AssignmentAssigned:
			st.Pending++
		case domain.AssignmentInProgress:
			st.InProgress++
		case domain.AssignmentCompleted:
			st.Completed++
		}
		if a.Deadline != nil && a.Status != domain.AssignmentCompleted && a.Deadline.Before(now) {
			st.Overdue++
		}
	}
	if st.Total > 0 {
		st.EfficiencyRate = float64(st.Completed) / float64(st.Total)
	}
	return st, nil
}

// syncParentComplaint recomputes the parent complaint's workflow from the
// live assignment rows after a task transition.
func (s *OfficerService) syncParentComplaint(ctx context.Context, complaintID, actorID string) error {
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return ErrComplaintNotFound
	}
	if c.WorkflowStatus.IsTerminal() {
		return nil
	}
	rows, err := repo.ListAssignmentsByComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return err
	}

	var anyInProgress, anyOpen, anyCompleted bool
	for _, a := range rows {
		switch a.Status {
		case domain.AssignmentInProgress:
			anyInProgress = true
			anyOpen = true
		case domain.AssignmentPending, domain.AssignmentAssigned:
			anyOpen = true
		case domain.AssignmentCompleted:
			anyCompleted = true
		}
	}

	var target domain.WorkflowStatus
	switch {
	case anyCompleted && !anyOpen:
		target = domain.WorkflowPendingApproval
	case anyInProgress:
		target = domain.WorkflowInProgress
	default:
		return nil
	}
	if target == c.WorkflowStatus {
		return nil
	}
	return repo.UpdateComplaintFields(ctx, s.DB, complaintID, map[string]any{
		"workflow_status": target,
		"status":          domain.DeriveStatus(target),
	})
}
