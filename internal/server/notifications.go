package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
)

func (s *Server) ListNotifications(c *gin.Context) {
	var query struct {
		UnreadOnly string `form:"unread_only"`
		PageToken  string `form:"page_token"`
		PageSize   int32  `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	unreadOnly, err := parseOptionalBool(query.UnreadOnly)
	if err != nil {
		AbortWithError(c, newValidationError("unread_only", "invalid_unread_only", "invalid unread_only"))
		return
	}

	resp, err := s.notificationSvc.List(c.Request.Context(), notificationdomain.ListNotificationsRequest{
		UnreadOnly: unreadOnly != nil && *unreadOnly,
		PageToken:  strings.TrimSpace(query.PageToken),
		PageSize:   query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Notifications, "next_page_token": resp.NextPageToken})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.notificationSvc.MarkRead(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	updated, err := s.notificationSvc.MarkAllRead(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": updated}})
}
