package notificationhandler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docshub/internal/services/notification"
)

type Handler struct {
	svc notification.INotificationService
}

func New(svc notification.INotificationService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/notifications", h.list)
	r.GET("/notifications/unread_count", h.unreadCount)
	r.POST("/notifications/:id/read", h.markRead)
}

// @Summary		List notifications
// @Tags			Notifications
// @Param			user_id	query	string	true	"Recipient user"
// @Param			limit	query	int		false	"Max results"	default(50)
// @Success		200	{array}	notification.NotificationDTO
// @Router			/notifications [get]
func (h *Handler) list(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	out, err := h.svc.List(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Unread notification count
// @Tags			Notifications
// @Param			user_id	query	string	true	"Recipient user"
// @Success		200	{object}	map[string]int
// @Router			/notifications/unread_count [get]
func (h *Handler) unreadCount(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	n, err := h.svc.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

// @Summary		Mark a notification read
// @Tags			Notifications
// @Param			id		path	int		true	"Notification ID"
// @Param			user_id	query	string	true	"Recipient user"
// @Success		200
// @Router			/notifications/{id}/read [post]
func (h *Handler) markRead(c *gin.Context) {
	userID := c.Query("user_id")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if userID == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and a numeric id are required"})
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), userID, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
