// Package services – CoordinatorService
//
// This file implements the coordinator decision state machine over a
// complaint once it reaches triage: approve, reject, mark duplicate, mark
// unique, mark false, department (re)assignment, officer fan-out, related
// linking, review enrichment, and bulk assignment.
//
// Department writes through this service are the authoritative post-creation
// path for the routing list; assignToDepartments validates every code
// against the live directory before any write and fails atomically on the
// first unknown code.
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

	"github.com/citizenlink/citizenlink-api/internal/dedupe"
	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
	"github.com/citizenlink/citizenlink-api/internal/suggest"
)

// reviewRadiusKM bounds the geographic neighborhood fetched for triage
// context (500m).
const reviewRadiusKM = 0.5

// Similarity coordinator decisions.
const (
	DecisionUnique    = "unique"
	DecisionRelated   = "related"
	DecisionDuplicate = "duplicate"
)

// CoordinatorService owns triage decisions. It builds on the complaint
// lifecycle service for shared transitions and on the detection service for
// duplicate-review enrichment.
type CoordinatorService struct {
	DB         *gorm.DB
	Notifier   Notifier
	Complaints *ComplaintService
	Detection  *DetectionService
}

// NewCoordinatorService constructs a CoordinatorService.
func NewCoordinatorService(db *gorm.DB, n Notifier, cs *ComplaintService, ds *DetectionService) *CoordinatorService {
	return &CoordinatorService{DB: db, Notifier: n, Complaints: cs, Detection: ds}
}

// SimilarityTiers buckets stored similarity edges for review display.
type SimilarityTiers struct {
	VeryHigh []domain.ComplaintSimilarity `json:"very_high"` // ≥0.85
	High     []domain.ComplaintSimilarity `json:"high"`      // 0.70–0.85
	Medium   []domain.ComplaintSimilarity `json:"medium"`    // 0.50–0.70
	Low      []domain.ComplaintSimilarity `json:"low"`       // <0.50
}

// ReviewBundle is the enriched view a coordinator sees for one complaint.
type ReviewBundle struct {
	Complaint      *domain.Complaint            `json:"complaint"`
	Similarities   SimilarityTiers              `json:"similarities"`
	Recommendation string                       `json:"recommendation"`
	Neighborhood   []domain.Complaint           `json:"neighborhood"`
	Suggestions    []suggest.Suggestion         `json:"suggestions"`
	Coordinators   []domain.User                `json:"suggested_coordinators"`
	Evidence       []domain.Evidence            `json:"evidence"`
}

// BulkResult reports the outcome of one complaint within a bulk operation.
type BulkResult struct {
	ComplaintID string `json:"complaint_id"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// Approve routes a new complaint to the given departments and moves it to
// assigned. The department list becomes the routing list verbatim (first
// element primary) after directory validation; per-department assignment
// rows are created and both the departments' admins and the citizen are
// notified.
func (s *CoordinatorService) Approve(ctx context.Context, complaintID, coordinatorID string, departments []string) (*domain.Complaint, error) {
	if len(domain.NormalizeDepartments(departments)) == 0 {
		return nil, NewValidationError("at least one department is required to approve a complaint")
	}
	c, err := s.AssignToDepartments(ctx, complaintID, departments, coordinatorID)
	if err != nil {
		return nil, err
	}
	auditQuiet(ctx, s.DB, complaintID, "approved", coordinatorID, map[string]string{
		"departments": strings.Join(c.Departments, ","),
	})
	notifyQuiet(ctx, s.Notifier, c.SubmittedBy, "complaint_approved",
		"Complaint approved",
		fmt.Sprintf("Your complaint %q was approved and assigned to %s.", c.Title, c.Departments.Primary()),
		NotifyOptions{Priority: PrioritySuccess, Link: "/complaints/" + complaintID})
	return c, nil
}

// Reject refuses a new complaint with a reason; the complaint terminates in
// cancelled with the rejection recorded.
func (s *CoordinatorService) Reject(ctx context.Context, complaintID, coordinatorID, reason string) (*domain.Complaint, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, NewValidationError("a reason is required to reject a complaint")
	}
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	now := time.Now().UTC()
	if err := repo.UpdateComplaintFields(ctx, s.DB, complaintID, map[string]any{
		"workflow_status":     domain.WorkflowCancelled,
		"status":              domain.DeriveStatus(domain.WorkflowCancelled),
		"cancelled_at":        now,
		"cancelled_by":        coordinatorID,
		"cancellation_reason": reason,
	}); err != nil {
		return nil, err
	}
	auditQuiet(ctx, s.DB, complaintID, "rejected", coordinatorID, map[string]string{"reason": reason})
	notifyQuiet(ctx, s.Notifier, c.SubmittedBy, "complaint_rejected",
		"Complaint rejected",
		fmt.Sprintf("Your complaint %q was rejected: %s", c.Title, reason),
		NotifyOptions{Priority: PriorityWarning})
	return repo.GetComplaint(ctx, s.DB, complaintID)
}

// MarkAsFalse flags a complaint as a false report (idempotent-guarded in
// the lifecycle service) and informs the citizen.
func (s *CoordinatorService) MarkAsFalse(ctx context.Context, complaintID, coordinatorID, reason string) (*FalseMarkResult, error) {
	res, err := s.Complaints.MarkAsFalseComplaint(ctx, complaintID, coordinatorID, reason)
	if err != nil || !res.Success {
		return res, err
	}
	if c, gerr := repo.GetComplaint(ctx, s.DB, complaintID); gerr == nil {
		notifyQuiet(ctx, s.Notifier, c.SubmittedBy, "complaint_rejected",
			"Complaint marked as false",
			fmt.Sprintf("Your complaint %q was reviewed and marked as a false report: %s", c.Title, reason),
			NotifyOptions{Priority: PriorityWarning})
	}
	return res, nil
}

// MarkAsDuplicate closes the subject complaint as a duplicate of master.
// Only the subject changes; the master is untouched. The pair's similarity
// edge records the decision and the citizen is pointed at the master.
func (s *CoordinatorService) MarkAsDuplicate(ctx context.Context, complaintID, masterID, coordinatorID, reason string) (*domain.Complaint, error) {
	if complaintID == masterID {
		return nil, NewValidationError("a complaint cannot be a duplicate of itself")
	}
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	if _, err := repo.GetComplaint(ctx, s.DB, masterID); err != nil {
		return nil, NewValidationError("master complaint does not exist")
	}
	switch c.WorkflowStatus {
	case domain.WorkflowNew, domain.WorkflowAssigned:
	default:
		return nil, NewConflictError("complaint in state %q can no longer be marked duplicate", c.WorkflowStatus)
	}

	now := time.Now().UTC()
	if err := repo.UpdateComplaintFields(ctx, s.DB, complaintID, map[string]any{
		"is_duplicate":        true,
		"master_complaint_id": masterID,
		"workflow_status":     domain.WorkflowCancelled,
		"status":              domain.DeriveStatus(domain.WorkflowCancelled),
		"cancelled_at":        now,
		"cancelled_by":        coordinatorID,
		"cancellation_reason": reason,
	}); err != nil {
		return nil, err
	}
	if err := repo.SetDecisionForPairs(ctx, s.DB, complaintID, []string{masterID}, DecisionDuplicate); err != nil {
		return nil, err
	}
	auditQuiet(ctx, s.DB, complaintID, "marked_duplicate", coordinatorID, map[string]string{
		"master_complaint_id": masterID,
		"reason":              reason,
	})
	notifyQuiet(ctx, s.Notifier, c.SubmittedBy, "complaint_duplicate",
		"Complaint closed as duplicate",
		fmt.Sprintf("Your complaint %q was identified as a duplicate of an existing report and merged into its tracking.", c.Title),
		NotifyOptions{Link: "/complaints/" + masterID, Metadata: map[string]string{"master_complaint_id": masterID}})
	return repo.GetComplaint(ctx, s.DB, complaintID)
}

// MarkAsUnique clears every pending similarity decision for the complaint
// to unique. The workflow status is untouched.
func (s *CoordinatorService) MarkAsUnique(ctx context.Context, complaintID, coordinatorID string) (int64, error) {
	if _, err := repo.GetComplaint(ctx, s.DB, complaintID); err != nil {
		return 0, ErrComplaintNotFound
	}
	n, err := repo.SetPendingDecisions(ctx, s.DB, complaintID, DecisionUnique)
	if err != nil {
		return 0, err
	}
	auditQuiet(ctx, s.DB, complaintID, "marked_unique", coordinatorID, nil)
	return n, nil
}

// LinkRelated stamps the given candidate complaints as related to the
// subject. Workflow state is untouched; missing edges are created.
func (s *CoordinatorService) LinkRelated(ctx context.Context, complaintID string, relatedIDs []string, coordinatorID string) error {
	if len(relatedIDs) == 0 {
		return NewValidationError("at least one related complaint is required")
	}
	if _, err := repo.GetComplaint(ctx, s.DB, complaintID); err != nil {
		return ErrComplaintNotFound
	}
	if err := repo.SetDecisionForPairs(ctx, s.DB, complaintID, relatedIDs, DecisionRelated); err != nil {
		return err
	}
	auditQuiet(ctx, s.DB, complaintID, "linked_related", coordinatorID, map[string]string{
		"related": strings.Join(relatedIDs, ","),
	})
	return nil
}

// AssignToDepartments is the authoritative routing write. Every code is
// validated against the live department directory before any write; one
// unknown code fails the whole operation with the invalid list and no
// partial assignment. The first valid code becomes primary.
func (s *CoordinatorService) AssignToDepartments(ctx context.Context, complaintID string, codes []string, actorID string) (*domain.Complaint, error) {
	tr := otel.Tracer("services/CoordinatorService")
	ctx, span := tr.Start(ctx, "AssignToDepartments",
		trace.WithAttributes(attribute.String("complaint.id", complaintID)),
	)
	defer span.End()

	wanted := domain.NormalizeDepartments(codes)
	if len(wanted) == 0 {
		return nil, NewValidationError("at least one department code is required")
	}
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	if c.WorkflowStatus.IsTerminal() {
		return nil, NewConflictError("complaint in state %q can no longer be assigned", c.WorkflowStatus)
	}

	depts, err := repo.ListDepartmentsByCodes(ctx, s.DB, wanted)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(depts))
	for _, d := range depts {
		if d.IsActive {
			known[d.Code] = struct{}{}
		}
	}
	var invalid []string
	for _, code := range wanted {
		if _, ok := known[code]; !ok {
			invalid = append(invalid, code)
		}
	}
	if len(invalid) > 0 {
		return nil, &InvalidDepartmentsError{Codes: invalid}
	}

	fields := map[string]any{"departments": wanted.JSON()}
	if c.WorkflowStatus == domain.WorkflowNew {
		fields["workflow_status"] = domain.WorkflowAssigned
		fields["status"] = domain.DeriveStatus(domain.WorkflowAssigned)
	}
	if err := repo.UpdateComplaintFields(ctx, s.DB, complaintID, fields); err != nil {
		return nil, err
	}

	existing := map[string]struct{}{}
	for _, dept := range assignedDepartments(c.Assignments) {
		existing[dept] = struct{}{}
	}
	for _, code := range wanted {
		if _, have := existing[code]; have {
			continue
		}
		a := &domain.ComplaintAssignment{
			ComplaintID:    complaintID,
			DepartmentID:   code,
			AssignedBy:     actorID,
			Status:         domain.AssignmentPending,
			AssignmentType: "single",
		}
		if err := repo.CreateAssignment(ctx, s.DB, a); err != nil {
			return nil, err
		}
		for _, admin := range filterUsersByRole(ctx, s.DB, domain.RoleAdmin, code) {
			notifyQuiet(ctx, s.Notifier, admin.ID, "complaint_routed",
				"Complaint assigned to "+code,
				fmt.Sprintf("Complaint %q was assigned to your department.", c.Title),
				NotifyOptions{Link: "/complaints/" + complaintID})
		}
	}

	auditQuiet(ctx, s.DB, complaintID, "departments_assigned", actorID, map[string]string{
		"departments": strings.Join(wanted, ","),
	})
	return repo.GetComplaint(ctx, s.DB, complaintID)
}

// AssignOfficers fans one complaint out to several officers within a
// department as a single batch sharing an assignment group. Per officer the
// write is check-then-update-else-insert; a concurrent double insert is
// stopped by the store's active-assignment unique index and reported as a
// per-officer "already assigned" outcome rather than failing the batch.
func (s *CoordinatorService) AssignOfficers(ctx context.Context, complaintID, departmentCode string, officerIDs []string, actorID, priority string, deadline *time.Time) ([]domain.ComplaintAssignment, error) {
	if len(officerIDs) == 0 {
		return nil, NewValidationError("at least one officer is required")
	}
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}
	if _, err := repo.GetDepartmentByCode(ctx, s.DB, departmentCode); err != nil {
		return nil, &InvalidDepartmentsError{Codes: []string{strings.ToUpper(departmentCode)}}
	}

	groupID := ""
	assignmentType := "single"
	if len(officerIDs) > 1 {
		assignmentType = "multi"
	}

	out := make([]domain.ComplaintAssignment, 0, len(officerIDs))
	for order, officerID := range officerIDs {
		if existing, err := repo.FindActiveAssignment(ctx, s.DB, complaintID, officerID); err == nil {
			// Refresh the live row instead of stacking a second active one.
			if uerr := repo.UpdateAssignment(ctx, s.DB, existing.ID, map[string]any{
				"status":   domain.AssignmentAssigned,
				"priority": priority,
				"deadline": deadline,
			}); uerr != nil {
				return nil, uerr
			}
			refreshed, _ := repo.GetAssignment(ctx, s.DB, existing.ID)
			if refreshed != nil {
				out = append(out, *refreshed)
			}
			continue
		}

		a := &domain.ComplaintAssignment{
			ComplaintID:       complaintID,
			DepartmentID:      strings.ToUpper(departmentCode),
			AssignedTo:        &officerIDs[order],
			AssignedBy:        actorID,
			Status:            domain.AssignmentAssigned,
			Priority:          priority,
			Deadline:          deadline,
			AssignmentType:    assignmentType,
			AssignmentGroupID: groupID,
			OfficerOrder:      order,
		}
		if err := repo.CreateAssignment(ctx, s.DB, a); err != nil {
			if err == repo.ErrDuplicateAssignment {
				continue
			}
			return nil, err
		}
		if groupID == "" {
			groupID = a.AssignmentGroupID
		}
		out = append(out, *a)
		notifyQuiet(ctx, s.Notifier, officerID, "task_assigned",
			"New task assigned",
			fmt.Sprintf("You were assigned complaint %q.", c.Title),
			NotifyOptions{Link: "/tasks/" + a.ID})
	}

	if c.WorkflowStatus == domain.WorkflowNew || c.WorkflowStatus == domain.WorkflowAssigned {
		if err := repo.UpdateComplaintFields(ctx, s.DB, complaintID, map[string]any{
			"workflow_status": domain.WorkflowInProgress,
			"status":          domain.DeriveStatus(domain.WorkflowInProgress),
		}); err != nil {
			return nil, err
		}
	}
	auditQuiet(ctx, s.DB, complaintID, "officers_assigned", actorID, map[string]string{
		"department": strings.ToUpper(departmentCode),
		"officers":   strings.Join(officerIDs, ","),
	})
	return out, nil
}

// GetComplaintForReview assembles the triage view: lazily detected
// similarity edges tiered by confidence, a textual recommendation from the
// highest populated tier, the 500m geographic neighborhood, advisory
// department suggestions, coordinator candidates, and evidence.
func (s *CoordinatorService) GetComplaintForReview(ctx context.Context, complaintID string) (*ReviewBundle, error) {
	c, err := repo.GetComplaint(ctx, s.DB, complaintID)
	if err != nil {
		return nil, ErrComplaintNotFound
	}

	edges, err := s.Detection.EnsureDetected(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	tiers := tierSimilarities(edges)

	bundle := &ReviewBundle{
		Complaint:      c,
		Similarities:   tiers,
		Recommendation: recommendFrom(tiers),
		Suggestions:    suggest.Departments(c.Category, c.Title, c.Description),
	}

	if c.Latitude != nil && c.Longitude != nil {
		rows, err := repo.ListCandidatesWithCoords(ctx, s.DB, complaintID,
			time.Now().UTC().Add(-geoWindow), geoCap)
		if err == nil {
			for _, r := range rows {
				if r.Latitude == nil || r.Longitude == nil {
					continue
				}
				if dedupe.HaversineKM(*c.Latitude, *c.Longitude, *r.Latitude, *r.Longitude) <= reviewRadiusKM {
					bundle.Neighborhood = append(bundle.Neighborhood, r)
				}
			}
		}
	}

	bundle.Coordinators = filterUsersByRole(ctx, s.DB, domain.RoleCoordinator, c.Departments.Primary())
	if ev, err := repo.ListEvidence(ctx, s.DB, complaintID); err == nil {
		bundle.Evidence = ev
	}
	return bundle, nil
}

// BulkAssign applies the same department routing to several complaints.
// Each complaint is processed in its own failure boundary; one failure does
// not stop the rest.
func (s *CoordinatorService) BulkAssign(ctx context.Context, complaintIDs []string, codes []string, actorID string) []BulkResult {
	out := make([]BulkResult, 0, len(complaintIDs))
	for _, id := range complaintIDs {
		if _, err := s.AssignToDepartments(ctx, id, codes, actorID); err != nil {
			out = append(out, BulkResult{ComplaintID: id, Success: false, Error: err.Error()})
			continue
		}
		out = append(out, BulkResult{ComplaintID: id, Success: true})
	}
	return out
}

// ReviewQueue lists complaints awaiting triage (workflow new), newest first.
func (s *CoordinatorService) ReviewQueue(ctx context.Context, page, pageSize int) ([]domain.Complaint, int64, error) {
	return s.Complaints.ListPage(ctx, repo.ComplaintFilter{WorkflowStatus: domain.WorkflowNew}, page, pageSize)
}

// Review tier thresholds: very_high ≥0.85, high ≥0.70, medium ≥0.50.
// They intentionally differ from the engine's stored confidence labels,
// which key the coarser 0.75/0.60 bands.
func tierSimilarities(edges []domain.ComplaintSimilarity) SimilarityTiers {
	var t SimilarityTiers
	for _, e := range edges {
		switch {
		case e.SimilarityScore >= 0.85:
			t.VeryHigh = append(t.VeryHigh, e)
		case e.SimilarityScore >= 0.70:
			t.High = append(t.High, e)
		case e.SimilarityScore >= 0.50:
			t.Medium = append(t.Medium, e)
		default:
			t.Low = append(t.Low, e)
		}
	}
	return t
}

func recommendFrom(t SimilarityTiers) string {
	switch {
	case len(t.VeryHigh) > 0:
		return fmt.Sprintf("%d near-certain duplicate(s) found - review before approving", len(t.VeryHigh))
	case len(t.High) > 0:
		return fmt.Sprintf("%d likely duplicate(s) found - comparison recommended", len(t.High))
	case len(t.Medium) > 0:
		return fmt.Sprintf("%d possibly related complaint(s) found", len(t.Medium))
	case len(t.Low) > 0:
		return "only weak matches found - likely unique"
	default:
		return "no similar complaints found"
	}
}
