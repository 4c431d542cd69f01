// Directory and notification HTTP handlers.
//
//   - GET   /departments                  (active department directory)
//   - GET   /notifications                (own notifications, paginated)
//   - POST  /notifications/{id}/read      (mark one as read)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
)

// ListNotificationsResponse wraps a page of notifications with the user's
// unread count.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int64                 `json:"unread"`
	Pagination    Pagination            `json:"pagination"`
}

// ListDepartments godoc
// @ID          listDepartments
// @Summary     List active departments
// @Description Returns the active department directory ordered by code.
// @Tags        Directory
// @Produce     json
//
// @Success     200 {array}  domain.Department
// @Failure     500 {object} handlers.ErrorResponse "Internal error"
// @Router      /departments [get]
func (h *Handlers) ListDepartments(c *gin.Context) {
	depts, err := repo.ListActiveDepartments(c.Request.Context(), h.db)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, depts)
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List own notifications
// @Description Returns a page of the current user's notifications, newest first, plus the unread count.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(citizen1)
// @Param       page      query  int    false "Page number" minimum(1) default(1)
// @Param       page_size query  int    false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200 {object} handlers.ListNotificationsResponse
// @Failure     500 {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	page, pageSize := clampPagination(c)
	offset := (page - 1) * pageSize
	rows, unread, err := repo.ListNotificationsPage(c.Request.Context(), h.db, userID(c), offset, pageSize)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: rows,
		Unread:        unread,
		Pagination:    paginate(page, pageSize, int64(len(rows))),
	})
}

// ReadNotification godoc
// @ID          readNotification
// @Summary     Mark a notification as read
// @Description Stamps read_at on one of the current user's notifications.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(citizen1)
// @Param       id        path   string true  "Notification ID (UUID)" format(uuid)
//
// @Success     204 {string} string "No Content"
// @Failure     404 {object} handlers.ErrorResponse "Notification not found"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) ReadNotification(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "notification id must be a UUID")
		return
	}
	if err := repo.MarkNotificationRead(c.Request.Context(), h.db, id, userID(c)); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
		return
	}
	noContent(c)
}
