// Coordinator HTTP handlers (triage surface).
//
// This file exposes REST endpoints for coordinator triage:
//   - GET    /coordinator/queue                       (review queue)
//   - GET    /coordinator/complaints/{id}/review      (enriched review view)
//   - POST   /coordinator/complaints/{id}/approve     (route + assign)
//   - POST   /coordinator/complaints/{id}/reject      (refuse with reason)
//   - POST   /coordinator/complaints/{id}/duplicate   (close as duplicate)
//   - POST   /coordinator/complaints/{id}/unique      (clear pending matches)
//   - POST   /coordinator/complaints/{id}/false       (flag false report)
//   - POST   /coordinator/complaints/{id}/departments (authoritative routing)
//   - POST   /coordinator/complaints/{id}/officers    (officer fan-out)
//   - POST   /coordinator/complaints/{id}/related     (link related)
//   - POST   /coordinator/bulk-assign                 (route many at once)
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/services"
)

// CoordinatorWorkflow defines triage operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CoordinatorWorkflow interface {
	Approve(ctx context.Context, complaintID, coordinatorID string, departments []string) (*domain.Complaint, error)
	Reject(ctx context.Context, complaintID, coordinatorID, reason string) (*domain.Complaint, error)
	MarkAsDuplicate(ctx context.Context, complaintID, masterID, coordinatorID, reason string) (*domain.Complaint, error)
	MarkAsUnique(ctx context.Context, complaintID, coordinatorID string) (int64, error)
	MarkAsFalse(ctx context.Context, complaintID, coordinatorID, reason string) (*services.FalseMarkResult, error)
	AssignToDepartments(ctx context.Context, complaintID string, codes []string, actorID string) (*domain.Complaint, error)
	AssignOfficers(ctx context.Context, complaintID, departmentCode string, officerIDs []string, actorID, priority string, deadline *time.Time) ([]domain.ComplaintAssignment, error)
	LinkRelated(ctx context.Context, complaintID string, relatedIDs []string, coordinatorID string) error
	GetComplaintForReview(ctx context.Context, complaintID string) (*services.ReviewBundle, error)
	BulkAssign(ctx context.Context, complaintIDs []string, codes []string, actorID string) []services.BulkResult
	ReviewQueue(ctx context.Context, page, pageSize int) ([]domain.Complaint, int64, error)
}

//
// DTOs
//

// ApproveRequest routes an approved complaint; first code is primary.
type ApproveRequest struct {
	Departments []string `json:"departments" binding:"required" example:"ENG,WST"`
}

// ReasonRequest carries a mandatory free-text reason.
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required" example:"outside city jurisdiction"`
}

// DuplicateRequest closes the subject as a duplicate of master.
type DuplicateRequest struct {
	MasterComplaintID string `json:"master_complaint_id" binding:"required" format:"uuid"`
	Reason            string `json:"reason,omitempty" example:"same streetlight, reported twice"`
}

// AssignOfficersRequest fans a complaint out to officers in one department.
type AssignOfficersRequest struct {
	DepartmentCode string     `json:"department_code" binding:"required" example:"ENG"`
	OfficerIDs     []string   `json:"officer_ids" binding:"required"`
	Priority       string     `json:"priority,omitempty" example:"high"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}

// LinkRelatedRequest marks candidate complaints as related to the subject.
type LinkRelatedRequest struct {
	RelatedIDs []string `json:"related_ids" binding:"required"`
}

// BulkAssignRequest applies one routing list to many complaints.
type BulkAssignRequest struct {
	ComplaintIDs []string `json:"complaint_ids" binding:"required"`
	Departments  []string `json:"departments" binding:"required" example:"WST"`
}

// MarkUniqueResponse reports how many pending matches were cleared.
type MarkUniqueResponse struct {
	Cleared int64 `json:"cleared"`
}

//
// Handlers
//

// ReviewQueue godoc
// @ID          reviewQueue
// @Summary     List complaints awaiting triage
// @Description Returns new complaints, newest first, paginated.
// @Tags        Coordinator
// @Produce     json
//
// @Param       page      query int false "Page number" minimum(1) default(1)
// @Param       page_size query int false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200 {object} handlers.ListComplaintsResponse
// @Failure     500 {object} handlers.ErrorResponse "Internal error"
// @Router      /coordinator/queue [get]
func (h *Handlers) ReviewQueue(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.coordinatorSvc.ReviewQueue(c.Request.Context(), page, pageSize)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListComplaintsResponse{
		Complaints: items,
		Pagination: paginate(page, pageSize, total),
	})
}

// ReviewComplaint godoc
// @ID          reviewComplaint
// @Summary     Get the enriched triage view
// @Description Returns the complaint with tiered similarity matches, a recommendation, the 500m neighborhood, advisory department suggestions, and evidence. Detection runs lazily on first review.
// @Tags        Coordinator
// @Produce     json
//
// @Param       id path string true "Complaint ID (UUID)" format(uuid)
//
// @Success     200 {object} services.ReviewBundle
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Router      /coordinator/complaints/{id}/review [get]
func (h *Handlers) ReviewComplaint(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	bundle, err := h.coordinatorSvc.GetComplaintForReview(c.Request.Context(), id)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, bundle)
}

// ApproveComplaint godoc
// @ID          approveComplaint
// @Summary     Approve and route a complaint
// @Description Validates the department list (first entry becomes primary), moves the complaint to assigned, creates per-department assignments, and notifies admins and the citizen.
// @Tags        Coordinator
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(coord1)
// @Param       id        path   string true  "Complaint ID (UUID)" format(uuid)
// @Param       body      body   handlers.ApproveRequest true "Routing list"
//
// @Success     200 {object} domain.Complaint
// @Failure     400 {object} handlers.ErrorResponse "Empty department list"
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Failure     409 {object} handlers.ErrorResponse "Unknown department codes"
// @Router      /coordinator/complaints/{id}/approve [post]
func (h *Handlers) ApproveComplaint(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.coordinatorSvc.Approve(c.Request.Context(), id, userID(c), req.Departments)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// RejectComplaint godoc
// @ID          rejectComplaint
// @Summary     Reject a complaint
// @Description Refuses a complaint with a mandatory reason; it terminates as cancelled.
// @Tags        Coordinator
// @Accept      json
// @Produce     json
//
// @Param       id   path string true "Complaint ID (UUID)" format(uuid)
// @Param       body body handlers.ReasonRequest true "Rejection reason"
//
// @Success     200 {object} domain.Complaint
// @Failure     400 {object} handlers.ErrorResponse "Missing reason"
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Router      /coordinator/complaints/{id}/reject [post]
func (h *Handlers) RejectComplaint(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reason is required")
		return
	}
	out, err := h.coordinatorSvc.Reject(c.Request.Context(), id, userID(c), req.Reason)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// MarkDuplicate godoc
// @ID          markDuplicate
// @Summary     Close a complaint as duplicate
// @Description Closes the subject complaint as a duplicate of the master; the master is untouched and the citizen is pointed at it.
// @Tags        Coordinator
// @Accept      json
// @Produce     json
//
// @Param       id   path string true "Complaint ID (UUID)" format(uuid)
// @Param       body body handlers.DuplicateRequest true "Master reference"
//
// @Success     200 {object} domain.Complaint
// @Failure     400 {object} handlers.ErrorResponse "Missing or self-referencing master"
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Failure     409 {object} handlers.ErrorResponse "Too late to mark duplicate"
// @Router      /coordinator/complaints/{id}/duplicate [post]
func (h *Handlers) MarkDuplicate(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req DuplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "master_complaint_id is required")
		return
	}
	out, err := h.coordinatorSvc.MarkAsDuplicate(c.Request.Context(), id, req.MasterComplaintID, userID(c), req.Reason)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// MarkUnique godoc
// @ID          markUnique
// @Summary     Mark a complaint as unique
// @Description Clears every pending similarity match to "unique" without touching workflow state.
// @Tags        Coordinator
// @Produce     json
//
// @Param       id path string true "Complaint ID (UUID)" format(uuid)
//
// @Success     200 {object} handlers.MarkUniqueResponse
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Router      /coordinator/complaints/{id}/unique [post]
func (h *Handlers) MarkUnique(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	n, err := h.coordinatorSvc.MarkAsUnique(c.Request.Context(), id, userID(c))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkUniqueResponse{Cleared: n})
}

// MarkFalse godoc
// @ID          markFalse
// @Summary     Flag a false report
// @Description Marks the complaint as a false report with a mandatory reason. Re-flagging an already flagged complaint returns success=false without error.
// @Tags        Coordinator
// @Accept      json
// @Produce     json
//
// @Param       id   path string true "Complaint ID (UUID)" format(uuid)
// @Param       body body handlers.ReasonRequest true "Flag reason"
//
// @Success     200 {object} services.FalseMarkResult
// @Failure     400 {object} handlers.ErrorResponse "Missing reason"
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Router      /coordinator/complaints/{id}/false [post]
func (h *Handlers) MarkFalse(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reason is required")
		return
	}
	res, err := h.coordinatorSvc.MarkAsFalse(c.Request.Context(), id, userID(c), req.Reason)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// AssignDepartments godoc
// @ID          assignDepartments
// @Summary     Re-route a complaint to departments
// @Description Replaces the routing list after validating every code; one unknown code fails the whole call with the invalid list.
// @Tags        Coordinator
// @Accept      json
// @Produce     json
//
// @Param       id   path string true "Complaint ID (UUID)" format(uuid)
// @Param       body body handlers.ApproveRequest true "Routing list"
//
// @Success     200 {object} domain.Complaint
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Failure     409 {object} handlers.ErrorResponse "Unknown department codes"
// @Router      /coordinator/complaints/{id}/departments [post]
func (h *Handlers) AssignDepartments(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.coordinatorSvc.AssignToDepartments(c.Request.Context(), id, req.Departments, userID(c))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// AssignOfficers godoc
// @ID          assignOfficers
// @Summary     Assign officers to a complaint
// @Description Fans the complaint out to officers in one department as a shared batch; officers already actively assigned keep their row refreshed instead of duplicated.
// @Tags        Coordinator
// @Accept      json
// @Produce     json
//
// @Param       id   path string true "Complaint ID (UUID)" format(uuid)
// @Param       body body handlers.AssignOfficersRequest true "Officer batch"
//
// @Success     200 {array}  domain.ComplaintAssignment
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Failure     409 {object} handlers.ErrorResponse "Unknown department code"
// @Router      /coordinator/complaints/{id}/officers [post]
func (h *Handlers) AssignOfficers(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req AssignOfficersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rows, err := h.coordinatorSvc.AssignOfficers(c.Request.Context(), id,
		req.DepartmentCode, req.OfficerIDs, userID(c), req.Priority, req.Deadline)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, rows)
}

// LinkRelated godoc
// @ID          linkRelated
// @Summary     Link related complaints
// @Description Stamps the given complaints as related to the subject without changing workflow state.
// @Tags        Coordinator
// @Accept      json
// @Produce     json
//
// @Param       id   path string true "Complaint ID (UUID)" format(uuid)
// @Param       body body handlers.LinkRelatedRequest true "Related complaint ids"
//
// @Success     204 {string} string "No Content"
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Router      /coordinator/complaints/{id}/related [post]
func (h *Handlers) LinkRelated(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req LinkRelatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "related_ids is required")
		return
	}
	if err := h.coordinatorSvc.LinkRelated(c.Request.Context(), id, req.RelatedIDs, userID(c)); err != nil {
		failFromErr(c, err)
		return
	}
	noContent(c)
}

// BulkAssign godoc
// @ID          bulkAssign
// @Summary     Route many complaints at once
// @Description Applies one validated department list to several complaints; each complaint succeeds or fails independently.
// @Tags        Coordinator
// @Accept      json
// @Produce     json
//
// @Param       body body handlers.BulkAssignRequest true "Bulk routing payload"
//
// @Success     200 {array}  services.BulkResult
// @Failure     400 {object} handlers.ErrorResponse "Invalid payload"
// @Router      /coordinator/bulk-assign [post]
func (h *Handlers) BulkAssign(c *gin.Context) {
	var req BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.ComplaintIDs) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "complaint_ids and departments are required")
		return
	}
	out := h.coordinatorSvc.BulkAssign(c.Request.Context(), req.ComplaintIDs, req.Departments, userID(c))
	ok(c, http.StatusOK, out)
}
