package notification

import (
	"go-mis/internal/config"
	"go-mis/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type NotificationApi struct {
	NotificationController *NotificationController
	Config                 *config.Config
}

func NewNotificationApi(controller *NotificationController, config *config.Config) *NotificationApi {
	return &NotificationApi{
		NotificationController: controller,
		Config:                 config,
	}
}

func (api *NotificationApi) Setup(app *fiber.App) {
	group := app.Group("/api/notifications", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Get("/unread", api.NotificationController.ListUnread)
	group.Post("/read", api.NotificationController.MarkAllRead)
}
