// Officer HTTP handlers (task surface).
//
// This file exposes REST endpoints for field-officer tasks:
//   - GET    /officer/tasks                 (own tasks)
//   - GET    /officer/tasks/{id}            (one task)
//   - PATCH  /officer/tasks/{id}/status     (task state machine)
//   - POST   /officer/tasks/{id}/resolve    (resolve with mandatory notes)
//   - GET    /officer/stats                 (workload summary)
//
// All task routes are scoped to the acting officer; a task belonging to
// someone else responds 404.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/services"
)

// OfficerWorkflow defines task operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type OfficerWorkflow interface {
	ListTasks(ctx context.Context, officerID string) ([]services.TaskView, error)
	GetTask(ctx context.Context, assignmentID, officerID string) (*services.TaskView, error)
	UpdateTaskStatus(ctx context.Context, assignmentID, officerID string, newStatus domain.AssignmentStatus, notes string) (*domain.ComplaintAssignment, error)
	MarkAsResolved(ctx context.Context, assignmentID, officerID, notes string) (*domain.Complaint, error)
	Stats(ctx context.Context, officerID string) (*services.OfficerStats, error)
}

//
// DTOs
//

// UpdateTaskStatusRequest moves a task along the assignment state machine.
type UpdateTaskStatusRequest struct {
	Status string `json:"status" binding:"required" example:"in_progress"`
	Notes  string `json:"notes,omitempty"`
}

// ResolveTaskRequest completes a task and proposes the parent complaint as
// resolved; notes are mandatory.
type ResolveTaskRequest struct {
	Notes string `json:"notes" binding:"required" example:"replaced the bulb and fuse"`
}

// taskID validates the :id path param as a UUID.
func taskID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "task id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// ListTasks godoc
// @ID          listTasks
// @Summary     List own tasks
// @Description Returns every task assigned to the current officer, newest first, with parent complaints attached.
// @Tags        Officer
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(officer1)
//
// @Success     200 {array}  services.TaskView
// @Failure     500 {object} handlers.ErrorResponse "Internal error"
// @Router      /officer/tasks [get]
func (h *Handlers) ListTasks(c *gin.Context) {
	out, err := h.officerSvc.ListTasks(c.Request.Context(), userID(c))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// GetTask godoc
// @ID          getTask
// @Summary     Get one task
// @Description Returns one of the officer's tasks with its parent complaint. Foreign tasks respond 404.
// @Tags        Officer
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(officer1)
// @Param       id        path   string true  "Assignment ID (UUID)" format(uuid)
//
// @Success     200 {object} services.TaskView
// @Failure     404 {object} handlers.ErrorResponse "Task not found"
// @Router      /officer/tasks/{id} [get]
func (h *Handlers) GetTask(c *gin.Context) {
	id, okID := taskID(c)
	if !okID {
		return
	}
	out, err := h.officerSvc.GetTask(c.Request.Context(), id, userID(c))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// UpdateTaskStatus godoc
// @ID          updateTaskStatus
// @Summary     Progress a task
// @Description Moves the officer's own task along pending → assigned → in_progress; completion goes through the resolve endpoint.
// @Tags        Officer
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(officer1)
// @Param       id        path   string true  "Assignment ID (UUID)" format(uuid)
// @Param       body      body   handlers.UpdateTaskStatusRequest true "Transition payload"
//
// @Success     200 {object} domain.ComplaintAssignment
// @Failure     404 {object} handlers.ErrorResponse "Task not found"
// @Failure     409 {object} handlers.ErrorResponse "Transition not allowed"
// @Router      /officer/tasks/{id}/status [patch]
func (h *Handlers) UpdateTaskStatus(c *gin.Context) {
	id, okID := taskID(c)
	if !okID {
		return
	}
	var req UpdateTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
		return
	}
	out, err := h.officerSvc.UpdateTaskStatus(c.Request.Context(), id, userID(c),
		domain.AssignmentStatus(req.Status), req.Notes)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// ResolveTask godoc
// @ID          resolveTask
// @Summary     Resolve a task
// @Description Completes the officer's task and moves the parent complaint into pending_approval with resolution metadata; the citizen is asked to confirm.
// @Tags        Officer
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(officer1)
// @Param       id        path   string true  "Assignment ID (UUID)" format(uuid)
// @Param       body      body   handlers.ResolveTaskRequest true "Resolution notes"
//
// @Success     200 {object} domain.Complaint
// @Failure     400 {object} handlers.ErrorResponse "Missing notes"
// @Failure     404 {object} handlers.ErrorResponse "Task not found"
// @Failure     409 {object} handlers.ErrorResponse "Task already finished"
// @Router      /officer/tasks/{id}/resolve [post]
func (h *Handlers) ResolveTask(c *gin.Context) {
	id, okID := taskID(c)
	if !okID {
		return
	}
	var req ResolveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "notes are required")
		return
	}
	out, err := h.officerSvc.MarkAsResolved(c.Request.Context(), id, userID(c), req.Notes)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// OfficerStats godoc
// @ID          officerStats
// @Summary     Workload statistics
// @Description Returns the officer's task counters and efficiency rate; re-assignments of one complaint count once.
// @Tags        Officer
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(officer1)
//
// @Success     200 {object} services.OfficerStats
// @Failure     500 {object} handlers.ErrorResponse "Internal error"
// @Router      /officer/stats [get]
func (h *Handlers) OfficerStats(c *gin.Context) {
	st, err := h.officerSvc.Stats(c.Request.Context(), userID(c))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}
