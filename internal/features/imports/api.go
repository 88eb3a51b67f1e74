package imports

import (
	"go-mis/internal/config"
	"go-mis/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ImportApi struct {
	ImportController *ImportController
	Config           *config.Config
}

func NewImportApi(controller *ImportController, config *config.Config) *ImportApi {
	return &ImportApi{
		ImportController: controller,
		Config:           config,
	}
}

func (api *ImportApi) Setup(app *fiber.App) {
	group := app.Group("/api/imports", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Post("/upload", api.ImportController.Upload)
	group.Get("/", api.ImportController.List)
	group.Get("/:id", api.ImportController.Get)
	group.Delete("/:id", api.ImportController.Delete)
	group.Get("/:id/status", api.ImportController.Status)
	group.Get("/:id/suggested-mapping", api.ImportController.SuggestedMapping)
	group.Put("/:id/template", api.ImportController.SetTemplate)
	group.Put("/:id/mapping", api.ImportController.SaveMapping)
	group.Post("/:id/reopen-mapping", api.ImportController.ReopenMapping)
	group.Post("/:id/validate", api.ImportController.Validate)
	group.Get("/:id/review", api.ImportController.FinalReview)
	group.Put("/:id/decisions", api.ImportController.SaveDecisions)
	group.Post("/:id/request-approval", api.ImportController.RequestApproval)
	group.Post("/:id/approve", api.ImportController.Approve)
	group.Post("/:id/execute", api.ImportController.Execute)
	group.Post("/:id/cancel", api.ImportController.Cancel)
	group.Post("/:id/restart", api.ImportController.Restart)
	group.Post("/:id/rollback", api.ImportController.Rollback)
	group.Get("/:id/audit", api.ImportController.AuditLog)
	group.Get("/:id/master-data", api.ImportController.MasterData)
	group.Post("/:id/master-data", api.ImportController.ReviewMasterData)
}
