package catalog

import (
	"go-mis/internal/config"
	"go-mis/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type CatalogApi struct {
	CatalogController *CatalogController
	Config            *config.Config
}

func NewCatalogApi(controller *CatalogController, config *config.Config) *CatalogApi {
	return &CatalogApi{
		CatalogController: controller,
		Config:            config,
	}
}

func (api *CatalogApi) Setup(app *fiber.App) {
	group := app.Group("/api/catalog", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Post("/connections", api.CatalogController.CreateConnection)
	group.Get("/connections", api.CatalogController.ListConnections)
	group.Get("/connections/:id/tables", api.CatalogController.ListTables)
	group.Get("/connections/:id/tables/:table", api.CatalogController.GetTableColumns)
}
