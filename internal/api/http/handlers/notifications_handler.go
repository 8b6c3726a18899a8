package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-core/internal/api/dto"
	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/internal/identity"
	"github.com/spec-kit/itsm-core/internal/service"
	"github.com/spec-kit/itsm-core/pkg/util"
)

// NotificationsHandler manages the per-recipient notification endpoints.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	principal := identity.PrincipalFromContext(c)
	if principal == nil {
		return util.NewUnauthorized("user required")
	}
	unreadOnly := c.QueryBool("unread_only", false)
	items, err := h.notifications.List(c.UserContext(), principal.UserID, unreadOnly)
	if err != nil {
		return err
	}
	responses := make([]dto.NotificationResponse, 0, len(items))
	for i := range items {
		responses = append(responses, notificationResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": responses})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.notifications.MarkRead(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkAllRead POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	principal := identity.PrincipalFromContext(c)
	if principal == nil {
		return util.NewUnauthorized("user required")
	}
	count, err := h.notifications.MarkAllRead(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkAllReadResponse{Updated: count}})
}

// Delete DELETE /notifications/:id.
func (h *NotificationsHandler) Delete(c *fiber.Ctx) error {
	if err := h.notifications.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func notificationResponse(n *domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Priority:  n.Priority,
		Message:   n.Message,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
