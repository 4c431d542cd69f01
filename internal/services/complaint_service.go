// Package services – ComplaintService
//
// This file implements the ComplaintService, which owns the complaint
// lifecycle: creation with its best-effort side-effect chain, status
// transitions, citizen cancellation, manual reminders with cool-down, the
// citizen confirm/reopen resolution loop, and false-complaint marking.
//
// Side-effect policy: the complaint row write is the primary operation and
// its failure propagates. Everything chained after it (assignments,
// notifications, evidence registration, audit, coordinator pick) runs as a
// post-commit hook wrapped in its own failure boundary; a hook failure is
// logged and the remaining hooks still run.
//
// Observability: key public methods are OpenTelemetry-instrumented; spans
// include complaint and actor identifiers.
package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
	"github.com/citizenlink/citizenlink-api/internal/suggest"
)

// Input length floors for complaint submission.
const (
	minTitleLen       = 5
	minDescriptionLen = 10
	minLocationLen    = 5

	// reminderCooldown gates citizen-triggered reminders.
	reminderCooldown = 24 * time.Hour
)

// CreateComplaintInput is the normalized submission payload. Departments
// accepts whatever shape the client sent (array, JSON string, scalar);
// normalization degrades garbage to an empty list.
type CreateComplaintInput struct {
	Title        string
	Description  string
	LocationText string
	Latitude     *float64
	Longitude    *float64
	Category     string
	Subcategory  string
	Departments  any
}

// EvidenceInput is attach-only metadata for one submitted file.
type EvidenceInput struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	StoragePath string
}

// FalseMarkResult is the non-throwing outcome of MarkAsFalseComplaint.
type FalseMarkResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ComplaintService coordinates the complaint lifecycle. It is safe for
// concurrent use; all state lives in the store.
type ComplaintService struct {
	DB       *gorm.DB
	Notifier Notifier
}

// NewComplaintService constructs a ComplaintService.
func NewComplaintService(db *gorm.DB, n Notifier) *ComplaintService {
	return &ComplaintService{DB: db, Notifier: n}
}

// postHook is one independently failable side effect run after the primary
// write. Failures are logged under the hook name and never propagate.
type postHook struct {
	name string
	fn   func(ctx context.Context) error
}

func runHooks(ctx context.Context, complaintID string, hooks []postHook) {
	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			log.Warn().Err(err).
				Str("complaint_id", complaintID).
				Str("hook", h.name).
				Msg("post-commit side effect failed")
		}
	}
}

// Create validates and persists a new complaint, then runs the side-effect
// chain: department-level pending assignments + admin notifications,
// routing supplement when the citizen chose no departments, coordinator
// pick, evidence registration, citizen notification, and the audit entry.
// The fully normalized complaint (re-fetched with assignments) is returned
// even if some side effects failed.
func (s *ComplaintService) Create(ctx context.Context, citizenID string, in CreateComplaintInput, evidence []EvidenceInput) (*domain.Complaint, error) {
	tr := otel.Tracer("services/ComplaintService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", citizenID)),
	)
	defer span.End()

	if err := validateSubmission(in); err != nil {
		return nil, err
	}

	c := &domain.Complaint{
		SubmittedBy:  citizenID,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		LocationText: strings.TrimSpace(in.LocationText),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Category:     strings.ToLower(strings.TrimSpace(in.Category)),
		Subcategory:  strings.ToLower(strings.TrimSpace(in.Subcategory)),
		Departments:  domain.NormalizeDepartments(in.Departments),
	}
	c.ApplyWorkflowStatus(domain.WorkflowNew)

	if err := repo.CreateComplaint(ctx, s.DB, c); err != nil {
		return nil, err
	}

	hooks := []postHook{
		{"supplement_routing", func(ctx context.Context) error {
			if len(c.Departments) > 0 {
				return nil
			}
			codes := suggest.TopCodes(c.Category, c.Title, c.Description, 2)
			valid, err := s.knownCodes(ctx, codes)
			if err != nil || len(valid) == 0 {
				return err
			}
			c.Departments = valid
			return repo.UpdateComplaintFields(ctx, s.DB, c.ID, map[string]any{
				"departments": valid.JSON(),
			})
		}},
		{"department_assignments", func(ctx context.Context) error {
			return s.fanOutDepartments(ctx, c, citizenID)
		}},
		{"assign_coordinator", func(ctx context.Context) error {
			return s.pickCoordinator(ctx, c)
		}},
		{"register_evidence", func(ctx context.Context) error {
			for _, ev := range evidence {
				e := &domain.Evidence{
					ComplaintID: c.ID,
					FileName:    ev.FileName,
					ContentType: ev.ContentType,
					SizeBytes:   ev.SizeBytes,
					StoragePath: ev.StoragePath,
					UploadedBy:  citizenID,
				}
				if err := repo.CreateEvidence(ctx, s.DB, e); err != nil {
					return err
				}
			}
			return nil
		}},
		{"notify_citizen", func(ctx context.Context) error {
			notifyQuiet(ctx, s.Notifier, citizenID, "complaint_submitted",
				"Complaint received",
				fmt.Sprintf("Your complaint %q was submitted and is pending review.", c.Title),
				NotifyOptions{Priority: PrioritySuccess, Link: "/complaints/" + c.ID})
			return nil
		}},
		{"audit_created", func(ctx context.Context) error {
			auditQuiet(ctx, s.DB, c.ID, "created", citizenID, map[string]string{
				"workflow_status": string(c.WorkflowStatus),
			})
			return nil
		}},
	}
	runHooks(ctx, c.ID, hooks)

	out, err := repo.GetComplaint(ctx, s.DB, c.ID)
	if err != nil {
		// The row exists; a read failure here should not fail the creation.
		log.Warn().Err(err).Str("complaint_id", c.ID).Msg("post-create refetch failed")
		return c, nil
	}
	return out, nil
}

// fanOutDepartments creates a pending department-level assignment per routed
// department and notifies that department's admins. Each department is its
// own failure boundary.
func (s *ComplaintService) fanOutDepartments(ctx context.Context, c *domain.Complaint, actorID string) error {
	var firstErr error
	for _, code := range c.Departments {
		a := &domain.ComplaintAssignment{
			ComplaintID:    c.ID,
			DepartmentID:   code,
			AssignedBy:     actorID,
			Status:         domain.AssignmentPending,
			AssignmentType: "single",
		}
		if err := repo.CreateAssignment(ctx, s.DB, a); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, admin := range s.usersByRole(ctx, domain.RoleAdmin, code) {
			notifyQuiet(ctx, s.Notifier, admin.ID, "complaint_routed",
				"New complaint for "+code,
				fmt.Sprintf("Complaint %q was routed to your department.", c.Title),
				NotifyOptions{Link: "/complaints/" + c.ID})
		}
	}
	return firstErr
}

// pickCoordinator deterministically selects the first active coordinator for
// the primary department (falling back to any active coordinator), records
// the pick, and notifies them.
func (s *ComplaintService) pickCoordinator(ctx context.Context, c *domain.Complaint) error {
	primary := c.Departments.Primary()
	pool := s.usersByRole(ctx, domain.RoleCoordinator, primary)
	if len(pool) == 0 && primary != "" {
		pool = s.usersByRole(ctx, domain.RoleCoordinator, "")
	}
	if len(pool) == 0 {
		return nil
	}
	coord := pool[0]
	if err := repo.UpdateComplaintFields(ctx, s.DB, c.ID, map[string]any{
		"coordinator_id": coord.ID,
	}); err != nil {
		return err
	}
	c.CoordinatorID = &coord.ID
	notifyQuiet(ctx, s.Notifier, coord.ID, "triage_requested",
		"Complaint awaiting triage",
		fmt.Sprintf("Complaint %q needs review.", c.Title),
		NotifyOptions{Link: "/coordinator/review/" + c.ID})
	return nil
}

// UpdateStatus persists a workflow transition with notes, writes the audit
// entry, and notifies the citizen only when the status actually changed.
func (s *ComplaintService) UpdateStatus(ctx context.Context, complaintID string, newStatus domain.WorkflowStatus, notes, actingUserID string) (*domain.Complaint, error) {
	if newStatus == domain.WorkflowNew || !domain.IsValidWorkflowStatus(newStatus) {
		return nil, NewValidationError(fmt.Sprintf("invalid workflow status %q", newStatus))
	}
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}

	old := c.WorkflowStatus
	fields := map[string]any{
		"workflow_status": newStatus,
		"status":          domain.DeriveStatus(newStatus),
	}
	if notes != "" {
		fields["resolution_notes"] = notes
	}
	if err := repo.UpdateComplaintFields(ctx, s.DB, complaintID, fields); err != nil {
		return nil, err
	}

	auditQuiet(ctx, s.DB, complaintID, "status_changed", actingUserID, map[string]string{
		"old": string(old),
		"new": string(newStatus),
	})
	if old != newStatus {
		notifyQuiet(ctx, s.Notifier, c.SubmittedBy, "status_update",
			"Complaint status updated",
			fmt.Sprintf("Your complaint %q is now %s.", c.Title, domain.DeriveStatus(newStatus)),
			NotifyOptions{Link: "/complaints/" + complaintID})
	}

	return repo.GetComplaint(ctx, s.DB, complaintID)
}

// Cancel lets the submitting citizen withdraw a complaint while it is still
// in new, assigned, or in_progress. The assigned coordinator and any
// department admins with assignments on the complaint are notified.
func (s *ComplaintService) Cancel(ctx context.Context, complaintID, citizenID, reason string) (*domain.Complaint, error) {
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	if c.SubmittedBy != citizenID {
		return nil, ErrForbidden
	}
	switch c.WorkflowStatus {
	case domain.WorkflowNew, domain.WorkflowAssigned, domain.WorkflowInProgress:
	default:
		return nil, NewConflictError("complaint in state %q can no longer be cancelled", c.WorkflowStatus)
	}

	now := time.Now().UTC()
	if err := repo.UpdateComplaintFields(ctx, s.DB, complaintID, map[string]any{
		"workflow_status":     domain.WorkflowCancelled,
		"status":              domain.DeriveStatus(domain.WorkflowCancelled),
		"cancelled_at":        now,
		"cancelled_by":        citizenID,
		"cancellation_reason": reason,
	}); err != nil {
		return nil, err
	}

	auditQuiet(ctx, s.DB, complaintID, "cancelled", citizenID, map[string]string{"reason": reason})

	if c.CoordinatorID != nil {
		notifyQuiet(ctx, s.Notifier, *c.CoordinatorID, "complaint_cancelled",
			"Complaint cancelled",
			fmt.Sprintf("The citizen withdrew complaint %q: %s", c.Title, reason),
			NotifyOptions{Priority: PriorityWarning})
	}
	for _, dept := range assignedDepartments(c.Assignments) {
		for _, admin := range s.usersByRole(ctx, domain.RoleAdmin, dept) {
			notifyQuiet(ctx, s.Notifier, admin.ID, "complaint_cancelled",
				"Complaint cancelled",
				fmt.Sprintf("Complaint %q routed to %s was withdrawn.", c.Title, dept),
				NotifyOptions{Priority: PriorityWarning})
		}
	}

	return repo.GetComplaint(ctx, s.DB, complaintID)
}

// SendReminder records a citizen-triggered reminder, enforcing the 24h
// cool-down against the most recent reminder of any type, then nudges every
// officer and assigning admin currently tied to the complaint.
func (s *ComplaintService) SendReminder(ctx context.Context, complaintID, citizenID string) (*domain.ComplaintReminder, error) {
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	if c.SubmittedBy != citizenID {
		return nil, ErrForbidden
	}
	switch c.WorkflowStatus {
	case domain.WorkflowCancelled, domain.WorkflowCompleted, domain.WorkflowRejectedFalse:
		return nil, NewConflictError("reminders are not available for %s complaints", domain.DeriveStatus(c.WorkflowStatus))
	}

	if last, err := repo.LatestReminder(ctx, s.DB, complaintID); err == nil {
		elapsed := time.Since(last.RemindedAt)
		if elapsed < reminderCooldown {
			waitHours := int(math.Ceil((reminderCooldown - elapsed).Hours()))
			return nil, NewConflictError("a reminder was sent recently; please wait %d more hour(s)", waitHours)
		}
	}

	rem, err := repo.CreateReminder(ctx, s.DB, complaintID, "manual")
	if err != nil {
		return nil, err
	}

	notified := map[string]struct{}{}
	for _, a := range c.Assignments {
		if a.Status == domain.AssignmentCancelled {
			continue
		}
		if a.AssignedTo != nil {
			if _, done := notified[*a.AssignedTo]; !done {
				notified[*a.AssignedTo] = struct{}{}
				notifyQuiet(ctx, s.Notifier, *a.AssignedTo, "reminder",
					"Citizen reminder",
					fmt.Sprintf("The citizen asked for an update on complaint %q.", c.Title),
					NotifyOptions{Priority: PriorityWarning, Link: "/tasks/" + a.ID})
			}
		}
		if _, done := notified[a.AssignedBy]; !done && a.AssignedBy != "" {
			notified[a.AssignedBy] = struct{}{}
			notifyQuiet(ctx, s.Notifier, a.AssignedBy, "reminder",
				"Citizen reminder",
				fmt.Sprintf("The citizen asked for an update on complaint %q.", c.Title),
				NotifyOptions{Priority: PriorityWarning, Link: "/complaints/" + c.ID})
		}
	}
	auditQuiet(ctx, s.DB, complaintID, "reminder_sent", citizenID, nil)
	return rem, nil
}

// ConfirmResolution closes or reopens a completed complaint based on the
// citizen's verdict. Rejection reverts the complaint to in_progress and
// clears the confirmation flags; the loop is repeatable.
func (s *ComplaintService) ConfirmResolution(ctx context.Context, complaintID, citizenID string, confirmed bool, feedback string) (*domain.Complaint, error) {
	tr := otel.Tracer("services/ComplaintService")
	ctx, span := tr.Start(ctx, "ConfirmResolution",
		trace.WithAttributes(
			attribute.String("complaint.id", complaintID),
			attribute.Bool("confirmed", confirmed),
		),
	)
	defer span.End()

	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	if c.SubmittedBy != citizenID {
		return nil, ErrForbidden
	}
	if c.WorkflowStatus != domain.WorkflowCompleted {
		return nil, NewConflictError("resolution can only be confirmed once an officer completes the complaint")
	}

	now := time.Now().UTC()
	if confirmed {
		if err := repo.UpdateComplaintFields(ctx, s.DB, complaintID, map[string]any{
			"confirmed_by_citizen":      true,
			"citizen_confirmation_date": now,
			"citizen_feedback":          feedback,
		}); err != nil {
			return nil, err
		}
		auditQuiet(ctx, s.DB, complaintID, "resolution_confirmed", citizenID, nil)
		if c.ResolvedBy != nil {
			notifyQuiet(ctx, s.Notifier, *c.ResolvedBy, "resolution_confirmed",
				"Resolution confirmed",
				fmt.Sprintf("The citizen confirmed the resolution of %q.", c.Title),
				NotifyOptions{Priority: PrioritySuccess})
		}
		for _, a := range c.Assignments {
			if a.AssignedBy != "" {
				notifyQuiet(ctx, s.Notifier, a.AssignedBy, "resolution_confirmed",
					"Resolution confirmed",
					fmt.Sprintf("Complaint %q is confirmed resolved.", c.Title),
					NotifyOptions{Priority: PrioritySuccess})
				break
			}
		}
	} else {
		if err := repo.UpdateComplaintFields(ctx, s.DB, complaintID, map[string]any{
			"workflow_status":           domain.WorkflowInProgress,
			"status":                    domain.DeriveStatus(domain.WorkflowInProgress),
			"confirmed_by_citizen":      false,
			"citizen_confirmation_date": nil,
			"citizen_feedback":          feedback,
		}); err != nil {
			return nil, err
		}
		// The resolving officer's task reopens with the complaint so a later
		// MarkAsResolved can complete it again.
		for _, a := range c.Assignments {
			if a.Status != domain.AssignmentCompleted || a.AssignedTo == nil {
				continue
			}
			if c.ResolvedBy != nil && *a.AssignedTo != *c.ResolvedBy {
				continue
			}
			if err := repo.UpdateAssignment(ctx, s.DB, a.ID, map[string]any{
				"status":       domain.AssignmentInProgress,
				"completed_at": nil,
			}); err != nil {
				return nil, err
			}
		}
		auditQuiet(ctx, s.DB, complaintID, "resolution_rejected", citizenID, map[string]string{"feedback": feedback})
		if c.ResolvedBy != nil {
			notifyQuiet(ctx, s.Notifier, *c.ResolvedBy, "resolution_rejected",
				"Resolution rejected",
				fmt.Sprintf("The citizen reopened %q: %s", c.Title, feedback),
				NotifyOptions{Priority: PriorityWarning})
		}
	}

	return repo.GetComplaint(ctx, s.DB, complaintID)
}

// MarkAsFalseComplaint flags a complaint as a false report. Calling it on an
// already flagged complaint returns a failure result without error and
// leaves the flag untouched.
func (s *ComplaintService) MarkAsFalseComplaint(ctx context.Context, complaintID, coordinatorID, reason string) (*FalseMarkResult, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, NewValidationError("a reason is required to mark a complaint as false")
	}
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	if c.IsFalseComplaint {
		return &FalseMarkResult{Success: false, Message: "complaint is already marked as false"}, nil
	}

	now := time.Now().UTC()
	if err := repo.UpdateComplaintFields(ctx, s.DB, complaintID, map[string]any{
		"is_false_complaint":     true,
		"false_complaint_reason": reason,
		"false_marked_by":        coordinatorID,
		"false_marked_at":        now,
		"workflow_status":        domain.WorkflowRejectedFalse,
		"status":                 domain.DeriveStatus(domain.WorkflowRejectedFalse),
	}); err != nil {
		return nil, err
	}
	auditQuiet(ctx, s.DB, complaintID, "marked_false", coordinatorID, map[string]string{"reason": reason})
	return &FalseMarkResult{Success: true, Message: "complaint marked as false"}, nil
}

// Get returns a complaint with assignments, or ErrComplaintNotFound.
func (s *ComplaintService) Get(ctx context.Context, complaintID string) (*domain.Complaint, error) {
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	return c, nil
}

// ListPage returns a filtered page of complaints and the total count.
func (s *ComplaintService) ListPage(ctx context.Context, f repo.ComplaintFilter, page, pageSize int) ([]domain.Complaint, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountComplaints(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Complaint{}, 0, nil
	}
	items, err := repo.ListComplaintsPage(ctx, s.DB, f, offset, pageSize)
	return items, total, err
}

// usersByRole filters the active directory by normalized role and, when
// deptCode is non-empty, by department affiliation. Lookup failures degrade
// to an empty slice since every caller treats the result as best-effort.
func (s *ComplaintService) usersByRole(ctx context.Context, role, deptCode string) []domain.User {
	return filterUsersByRole(ctx, s.DB, role, deptCode)
}

func filterUsersByRole(ctx context.Context, db *gorm.DB, role, deptCode string) []domain.User {
	users, err := repo.ListActiveUsers(ctx, db)
	if err != nil {
		log.Warn().Err(err).Msg("directory listing failed")
		return nil
	}
	var out []domain.User
	for i := range users {
		ac := domain.ResolveActorContext(&users[i])
		if ac.Role != role {
			continue
		}
		if deptCode != "" && ac.DepartmentCode != deptCode {
			continue
		}
		out = append(out, users[i])
	}
	return out
}

// knownCodes keeps only codes present in the department directory.
func (s *ComplaintService) knownCodes(ctx context.Context, codes []string) (domain.DepartmentList, error) {
	depts, err := repo.ListDepartmentsByCodes(ctx, s.DB, codes)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(depts))
	for _, d := range depts {
		known[d.Code] = struct{}{}
	}
	out := make(domain.DepartmentList, 0, len(codes))
	for _, c := range codes {
		if _, ok := known[strings.ToUpper(c)]; ok {
			out = append(out, strings.ToUpper(c))
		}
	}
	return out, nil
}

// assignedDepartments returns the distinct department codes present in a
// complaint's assignment rows.
func assignedDepartments(assignments []domain.ComplaintAssignment) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, a := range assignments {
		if a.Status == domain.AssignmentCancelled {
			continue
		}
		if _, ok := seen[a.DepartmentID]; !ok {
			seen[a.DepartmentID] = struct{}{}
			out = append(out, a.DepartmentID)
		}
	}
	return out
}

// validateSubmission collects every violated rule.
func validateSubmission(in CreateComplaintInput) error {
	var v []string
	if len(strings.TrimSpace(in.Title)) < minTitleLen {
		v = append(v, fmt.Sprintf("title must be at least %d characters", minTitleLen))
	}
	if len(strings.TrimSpace(in.Description)) < minDescriptionLen {
		v = append(v, fmt.Sprintf("description must be at least %d characters", minDescriptionLen))
	}
	if len(strings.TrimSpace(in.LocationText)) < minLocationLen {
		v = append(v, fmt.Sprintf("location must be at least %d characters", minLocationLen))
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		v = append(v, "latitude must be between -90 and 90")
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		v = append(v, "longitude must be between -180 and 180")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		v = append(v, "latitude and longitude must be provided together")
	}
	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}
