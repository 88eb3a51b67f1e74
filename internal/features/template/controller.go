package template

import (
	"go-mis/internal/common/errs"
	common_models "go-mis/internal/common/models"
	"go-mis/internal/features/role"
	"go-mis/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type TemplateController struct {
	TemplateService TemplateService
	RoleService     role.RoleService
}

func NewTemplateController(service TemplateService, roleService role.RoleService) *TemplateController {
	return &TemplateController{TemplateService: service, RoleService: roleService}
}

func (c *TemplateController) requireEditor(ctx *fiber.Ctx) error {
	claims := middleware.ClaimsFromCtx(ctx)
	if claims == nil || !c.RoleService.HasPermission(ctx.UserContext(), claims.Roles, role.PermTemplateEdit) {
		return errs.New(errs.KindForbidden, "template editing requires the Admin or Moderator role")
	}
	return nil
}

func errStatus(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return fiber.StatusNotFound
	case errs.KindNameConflict:
		return fiber.StatusConflict
	case errs.KindBadRequest:
		return fiber.StatusBadRequest
	case errs.KindForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func errJSON(err error) fiber.Map {
	body := fiber.Map{"error": err.Error()}
	if detail := errs.DetailOf(err); detail != nil {
		body["detail"] = detail
	}
	return body
}

// Create godoc
// @Summary Create a report template
// @Tags templates
// @Accept json
// @Produce json
// @Success 201 {object} ReportTemplate
// @Failure 409 {object} map[string]interface{}
// @Router /api/templates [post]
func (c *TemplateController) Create(ctx *fiber.Ctx) error {
	if err := c.requireEditor(ctx); err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	var tmpl ReportTemplate
	if err := ctx.BodyParser(&tmpl); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid template payload"})
	}
	created, err := c.TemplateService.Create(ctx.UserContext(), &tmpl)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.Status(fiber.StatusCreated).JSON(created)
}

// List godoc
// @Summary List report templates
// @Tags templates
// @Produce json
// @Success 200 {array} ReportTemplate
// @Router /api/templates [get]
func (c *TemplateController) List(ctx *fiber.Ctx) error {
	templates, err := c.TemplateService.List(ctx.UserContext())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"templates": templates})
}

// Get godoc
// @Summary Get one template
// @Tags templates
// @Produce json
// @Success 200 {object} ReportTemplate
// @Router /api/templates/{id} [get]
func (c *TemplateController) Get(ctx *fiber.Ctx) error {
	tmpl, err := c.TemplateService.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(tmpl)
}

// Update godoc
// @Summary Update template attributes
// @Tags templates
// @Accept json
// @Produce json
// @Success 200 {object} ReportTemplate
// @Router /api/templates/{id} [put]
func (c *TemplateController) Update(ctx *fiber.Ctx) error {
	if err := c.requireEditor(ctx); err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	var patch TemplateUpdate
	if err := ctx.BodyParser(&patch); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid template payload"})
	}
	updated, err := c.TemplateService.Update(ctx.UserContext(), ctx.Params("id"), &patch)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(updated)
}

// Delete godoc
// @Summary Delete a template
// @Tags templates
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/templates/{id} [delete]
func (c *TemplateController) Delete(ctx *fiber.Ctx) error {
	if err := c.requireEditor(ctx); err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	if err := c.TemplateService.Delete(ctx.UserContext(), ctx.Params("id")); err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"deleted": true})
}

// GetMapping godoc
// @Summary Get a template's persisted mapping and relationships
// @Tags templates
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/templates/{id}/mapping [get]
func (c *TemplateController) GetMapping(ctx *fiber.Ctx) error {
	mapping, relationships, err := c.TemplateService.GetMapping(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"mapping": mapping, "relationships": relationships})
}

type setMappingRequest struct {
	Mapping       map[string]common_models.ColumnMappingEntry `json:"mapping"`
	Relationships []common_models.RelationshipSpec            `json:"relationships"`
}

// SetMapping godoc
// @Summary Persist a template's mapping and relationships
// @Tags templates
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/templates/{id}/mapping [put]
func (c *TemplateController) SetMapping(ctx *fiber.Ctx) error {
	if err := c.requireEditor(ctx); err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	var req setMappingRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mapping payload"})
	}
	if err := c.TemplateService.SetMapping(ctx.UserContext(), ctx.Params("id"), req.Mapping, req.Relationships); err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"saved": true})
}

type suggestRequest struct {
	Headers []string                 `json:"headers"`
	Samples map[string][]interface{} `json:"samples"`
}

// SuggestMapping godoc
// @Summary Suggest a mapping for headers against a template's fields
// @Tags templates
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/templates/{id}/suggest [post]
func (c *TemplateController) SuggestMapping(ctx *fiber.Ctx) error {
	var req suggestRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid suggest payload"})
	}
	suggestions, err := c.TemplateService.SuggestMapping(ctx.UserContext(), ctx.Params("id"), req.Headers, req.Samples)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"suggestions": suggestions})
}
