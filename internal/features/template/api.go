package template

import (
	"go-mis/internal/config"
	"go-mis/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type TemplateApi struct {
	TemplateController *TemplateController
	Config             *config.Config
}

func NewTemplateApi(controller *TemplateController, config *config.Config) *TemplateApi {
	return &TemplateApi{
		TemplateController: controller,
		Config:             config,
	}
}

func (api *TemplateApi) Setup(app *fiber.App) {
	group := app.Group("/api/templates", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Post("/", api.TemplateController.Create)
	group.Get("/", api.TemplateController.List)
	group.Get("/:id", api.TemplateController.Get)
	group.Put("/:id", api.TemplateController.Update)
	group.Delete("/:id", api.TemplateController.Delete)
	group.Get("/:id/mapping", api.TemplateController.GetMapping)
	group.Put("/:id/mapping", api.TemplateController.SetMapping)
	group.Post("/:id/suggest", api.TemplateController.SuggestMapping)
}
