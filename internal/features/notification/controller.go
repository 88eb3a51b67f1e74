package notification

import (
	"go-mis/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type NotificationController struct {
	NotificationService NotificationService
}

func NewNotificationController(service NotificationService) *NotificationController {
	return &NotificationController{NotificationService: service}
}

// ListUnread godoc
// @Summary List unread notifications
// @Tags notifications
// @Produce json
// @Success 200 {array} Notification
// @Router /api/notifications/unread [get]
func (c *NotificationController) ListUnread(ctx *fiber.Ctx) error {
	claims := middleware.ClaimsFromCtx(ctx)
	if claims == nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	notifications, err := c.NotificationService.ListUnread(ctx.UserContext(), claims.UserID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"notifications": notifications})
}

// MarkAllRead godoc
// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/notifications/read [post]
func (c *NotificationController) MarkAllRead(ctx *fiber.Ctx) error {
	claims := middleware.ClaimsFromCtx(ctx)
	if claims == nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	count, err := c.NotificationService.MarkAllRead(ctx.UserContext(), claims.UserID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"marked_read": count})
}
