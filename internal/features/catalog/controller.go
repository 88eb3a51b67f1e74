package catalog

import (
	"go-mis/internal/common/errs"

	"github.com/gofiber/fiber/v2"
)

type CatalogController struct {
	CatalogService CatalogService
}

func NewCatalogController(service CatalogService) *CatalogController {
	return &CatalogController{CatalogService: service}
}

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return fiber.StatusNotFound
	case errs.KindBadRequest:
		return fiber.StatusBadRequest
	case errs.KindCatalogUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// CreateConnection godoc
// @Summary Register a destination store connection
// @Tags catalog
// @Accept json
// @Produce json
// @Success 201 {object} Connection
// @Router /api/catalog/connections [post]
func (c *CatalogController) CreateConnection(ctx *fiber.Ctx) error {
	var conn Connection
	if err := ctx.BodyParser(&conn); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid connection payload"})
	}
	if err := c.CatalogService.CreateConnection(ctx.UserContext(), &conn); err != nil {
		return ctx.Status(statusForKind(errs.KindOf(err))).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(conn)
}

// ListConnections godoc
// @Summary List registered connections
// @Tags catalog
// @Produce json
// @Success 200 {array} Connection
// @Router /api/catalog/connections [get]
func (c *CatalogController) ListConnections(ctx *fiber.Ctx) error {
	conns, err := c.CatalogService.ListConnections(ctx.UserContext())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"connections": conns})
}

// ListTables godoc
// @Summary List destination tables
// @Tags catalog
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/catalog/connections/{id}/tables [get]
func (c *CatalogController) ListTables(ctx *fiber.Ctx) error {
	tables, err := c.CatalogService.ListTables(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(statusForKind(errs.KindOf(err))).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"tables": tables})
}

// GetTableColumns godoc
// @Summary Reflect one destination table
// @Tags catalog
// @Produce json
// @Success 200 {object} TableDefinition
// @Router /api/catalog/connections/{id}/tables/{table} [get]
func (c *CatalogController) GetTableColumns(ctx *fiber.Ctx) error {
	def, err := c.CatalogService.GetTableDefinition(ctx.UserContext(), ctx.Params("id"), ctx.Params("table"))
	if err != nil {
		return ctx.Status(statusForKind(errs.KindOf(err))).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(def)
}
