package imports

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"go-mis/internal/common/errs"
	common_models "go-mis/internal/common/models"
	"go-mis/internal/features/commit"
	"go-mis/internal/middleware"
	"go-mis/pkg/utils"
)

type ImportController struct {
	ImportService ImportService
}

func NewImportController(service ImportService) *ImportController {
	return &ImportController{ImportService: service}
}

func errStatus(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return fiber.StatusNotFound
	case errs.KindDuplicateUpload, errs.KindInvalidState, errs.KindNameConflict:
		return fiber.StatusConflict
	case errs.KindBadRequest, errs.KindEmptyMapping, errs.KindUnresolvedReference, errs.KindCyclicRelationship:
		return fiber.StatusBadRequest
	case errs.KindForbidden:
		return fiber.StatusForbidden
	case errs.KindCatalogUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func errJSON(err error) fiber.Map {
	body := fiber.Map{"error": err.Error(), "kind": string(errs.KindOf(err))}
	if detail := errs.DetailOf(err); detail != nil {
		body["detail"] = detail
	}
	return body
}

func claims(ctx *fiber.Ctx) (*utils.UserClaims, error) {
	c := middleware.ClaimsFromCtx(ctx)
	if c == nil {
		return nil, errs.New(errs.KindForbidden, "missing authentication")
	}
	return c, nil
}

// Upload godoc
// @Summary Upload a CSV or Excel file and start an import session
// @Tags imports
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} ImportSession
// @Failure 409 {object} map[string]interface{}
// @Router /api/imports/upload [post]
func (c *ImportController) Upload(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file uploaded"})
	}
	connectionID := ctx.FormValue("connection_id")
	if connectionID == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "connection_id is required"})
	}
	f, err := fileHeader.Open()
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Could not read uploaded file"})
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Could not read uploaded file"})
	}

	session, err := c.ImportService.Upload(ctx.UserContext(), actor, content, fileHeader.Filename, connectionID)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.Status(fiber.StatusCreated).JSON(session)
}

// List godoc
// @Summary List import sessions visible to the caller
// @Tags imports
// @Produce json
// @Success 200 {array} SessionSummary
// @Router /api/imports [get]
func (c *ImportController) List(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	sessions, err := c.ImportService.ListSessions(ctx.UserContext(), actor)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"sessions": sessions})
}

// Get godoc
// @Summary Get one import session
// @Tags imports
// @Produce json
// @Success 200 {object} ImportSession
// @Router /api/imports/{id} [get]
func (c *ImportController) Get(ctx *fiber.Ctx) error {
	session, err := c.ImportService.GetSession(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(session)
}

// Status godoc
// @Summary Poll commit status and progress
// @Tags imports
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/imports/{id}/status [get]
func (c *ImportController) Status(ctx *fiber.Ctx) error {
	status, progress, err := c.ImportService.GetStatus(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"status": status, "progress": progress})
}

// SuggestedMapping godoc
// @Summary Get the suggested mapping for an analyzed upload
// @Tags imports
// @Produce json
// @Success 200 {object} SuggestedMappingView
// @Router /api/imports/{id}/suggested-mapping [get]
func (c *ImportController) SuggestedMapping(ctx *fiber.Ctx) error {
	view, err := c.ImportService.GetSuggestedMapping(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(view)
}

type setTemplateRequest struct {
	TemplateID  string `json:"template_id"`
	TargetTable string `json:"target_table"`
}

// SetTemplate godoc
// @Summary Select or clear the template for a session
// @Tags imports
// @Accept json
// @Produce json
// @Success 200 {object} ImportSession
// @Router /api/imports/{id}/template [put]
func (c *ImportController) SetTemplate(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	var req setTemplateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid template payload"})
	}
	session, err := c.ImportService.SetTemplate(ctx.UserContext(), actor, ctx.Params("id"), req.TemplateID, req.TargetTable)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(session)
}

type saveMappingRequest struct {
	Mapping       map[string]common_models.ColumnMappingEntry `json:"mapping"`
	Relationships []common_models.RelationshipSpec            `json:"relationships"`
	TargetTable   string                                      `json:"target_table"`
}

// SaveMapping godoc
// @Summary Save the column mapping and relationships for a session
// @Tags imports
// @Accept json
// @Produce json
// @Success 200 {object} ImportSession
// @Failure 400 {object} map[string]interface{}
// @Router /api/imports/{id}/mapping [put]
func (c *ImportController) SaveMapping(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	var req saveMappingRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mapping payload"})
	}
	session, err := c.ImportService.SaveMapping(ctx.UserContext(), actor, ctx.Params("id"), req.Mapping, req.Relationships, req.TargetTable)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(session)
}

// ReopenMapping godoc
// @Summary Reopen a validated session for mapping edits
// @Tags imports
// @Produce json
// @Success 200 {object} ImportSession
// @Router /api/imports/{id}/reopen-mapping [post]
func (c *ImportController) ReopenMapping(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	session, err := c.ImportService.ReopenMapping(ctx.UserContext(), actor, ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(session)
}

// Validate godoc
// @Summary Run validation and duplicate detection against the destination
// @Tags imports
// @Produce json
// @Success 200 {object} validation.ValidationOutcome
// @Router /api/imports/{id}/validate [post]
func (c *ImportController) Validate(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	outcome, err := c.ImportService.Validate(ctx.UserContext(), actor, ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(outcome)
}

// FinalReview godoc
// @Summary Final pre-commit review with per-table counts and samples
// @Tags imports
// @Produce json
// @Success 200 {object} FinalReview
// @Router /api/imports/{id}/review [get]
func (c *ImportController) FinalReview(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	review, err := c.ImportService.GetFinalReview(ctx.UserContext(), actor, ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(review)
}

type decisionsRequest struct {
	Decisions []commit.Decision `json:"decisions"`
}

// SaveDecisions godoc
// @Summary Save duplicate and conflict decisions
// @Tags imports
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/imports/{id}/decisions [put]
func (c *ImportController) SaveDecisions(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	var req decisionsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid decisions payload"})
	}
	saved, err := c.ImportService.SaveDecisions(ctx.UserContext(), actor, ctx.Params("id"), req.Decisions)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"saved": saved})
}

// RequestApproval godoc
// @Summary Submit a validated session for approval
// @Tags imports
// @Produce json
// @Success 200 {object} ImportSession
// @Router /api/imports/{id}/request-approval [post]
func (c *ImportController) RequestApproval(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	session, err := c.ImportService.RequestApproval(ctx.UserContext(), actor, ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(session)
}

// Approve godoc
// @Summary Approve a pending session's mapping
// @Tags imports
// @Produce json
// @Success 200 {object} ImportSession
// @Router /api/imports/{id}/approve [post]
func (c *ImportController) Approve(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	session, err := c.ImportService.Approve(ctx.UserContext(), actor, ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(session)
}

type executeRequest struct {
	Mode string `json:"mode"`
}

// Execute godoc
// @Summary Commit an approved session to the destination store
// @Tags imports
// @Accept json
// @Produce json
// @Success 200 {object} commit.Result
// @Router /api/imports/{id}/execute [post]
func (c *ImportController) Execute(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	var req executeRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid execute payload"})
		}
	}
	result, err := c.ImportService.Execute(ctx.UserContext(), actor, ctx.Params("id"), req.Mode)
	if err != nil {
		body := errJSON(err)
		if result != nil {
			body["result"] = result
		}
		return ctx.Status(errStatus(err)).JSON(body)
	}
	return ctx.JSON(result)
}

// Cancel godoc
// @Summary Cancel a session (idempotent)
// @Tags imports
// @Produce json
// @Success 200 {object} ImportSession
// @Router /api/imports/{id}/cancel [post]
func (c *ImportController) Cancel(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	session, err := c.ImportService.Cancel(ctx.UserContext(), actor, ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(session)
}

// Delete godoc
// @Summary Delete a session and its stored file
// @Tags imports
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/imports/{id} [delete]
func (c *ImportController) Delete(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	if err := c.ImportService.Delete(ctx.UserContext(), actor, ctx.Params("id")); err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"deleted": true})
}

// AuditLog godoc
// @Summary List commit-time audit records for a session
// @Tags imports
// @Produce json
// @Success 200 {array} AuditRecord
// @Router /api/imports/{id}/audit [get]
func (c *ImportController) AuditLog(ctx *fiber.Ctx) error {
	records, err := c.ImportService.GetAuditLog(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"records": records})
}

type rollbackRequest struct {
	Reason string `json:"reason"`
}

// Rollback godoc
// @Summary Undo a completed import by deleting the rows it inserted
// @Tags imports
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/imports/{id}/rollback [post]
func (c *ImportController) Rollback(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	var req rollbackRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid rollback payload"})
		}
	}
	session, deleted, err := c.ImportService.Rollback(ctx.UserContext(), actor, ctx.Params("id"), req.Reason)
	if err != nil {
		body := errJSON(err)
		if deleted > 0 {
			body["rows_rolled_back"] = deleted
		}
		return ctx.Status(errStatus(err)).JSON(body)
	}
	return ctx.JSON(fiber.Map{"session": session, "rows_rolled_back": deleted})
}

// MasterData godoc
// @Summary List pending master-data candidates for a session
// @Tags imports
// @Produce json
// @Success 200 {array} MasterDataCandidate
// @Router /api/imports/{id}/master-data [get]
func (c *ImportController) MasterData(ctx *fiber.Ctx) error {
	candidates, err := c.ImportService.ListMasterDataCandidates(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"candidates": candidates})
}

type reviewMasterDataRequest struct {
	Approved []string `json:"approved"`
	Rejected []string `json:"rejected"`
	Comments string   `json:"comments"`
}

// ReviewMasterData godoc
// @Summary Approve or reject pending master-data candidates
// @Tags imports
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/imports/{id}/master-data [post]
func (c *ImportController) ReviewMasterData(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	var req reviewMasterDataRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid review payload"})
	}
	reviewed, err := c.ImportService.ReviewMasterDataCandidates(ctx.UserContext(), actor, ctx.Params("id"), req.Approved, req.Rejected, req.Comments)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(fiber.Map{"reviewed": reviewed})
}

// Restart godoc
// @Summary Restart a failed or cancelled session
// @Tags imports
// @Produce json
// @Success 200 {object} ImportSession
// @Router /api/imports/{id}/restart [post]
func (c *ImportController) Restart(ctx *fiber.Ctx) error {
	actor, err := claims(ctx)
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	session, err := c.ImportService.Restart(ctx.UserContext(), actor, ctx.Params("id"))
	if err != nil {
		return ctx.Status(errStatus(err)).JSON(errJSON(err))
	}
	return ctx.JSON(session)
}
