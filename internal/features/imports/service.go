package imports

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"go-mis/internal/common/errs"
	common_models "go-mis/internal/common/models"
	"go-mis/internal/config"
	"go-mis/internal/features/catalog"
	"go-mis/internal/features/commit"
	"go-mis/internal/features/matcher"
	"go-mis/internal/features/notification"
	"go-mis/internal/features/resolver"
	"go-mis/internal/features/role"
	"go-mis/internal/features/template"
	"go-mis/internal/features/validation"
	"go-mis/pkg/utils"
)

const sampleRowCount = 5

// ImportService is the session state machine. Every operation re-checks the
// actor's role and the session's status before doing anything; transitions
// persist atomically with the payload they carry, guarded against concurrent
// operations on the same session.
type ImportService interface {
	Upload(ctx context.Context, actor *utils.UserClaims, content []byte, filename, connectionID string) (*ImportSession, error)
	GetSession(ctx context.Context, sessionID string) (*ImportSession, error)
	GetSuggestedMapping(ctx context.Context, sessionID string) (*SuggestedMappingView, error)
	SetTemplate(ctx context.Context, actor *utils.UserClaims, sessionID, templateID, targetTable string) (*ImportSession, error)
	SaveMapping(ctx context.Context, actor *utils.UserClaims, sessionID string, mapping map[string]common_models.ColumnMappingEntry, relationships []common_models.RelationshipSpec, targetTable string) (*ImportSession, error)
	ReopenMapping(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error)
	Validate(ctx context.Context, actor *utils.UserClaims, sessionID string) (*validation.ValidationOutcome, error)
	GetFinalReview(ctx context.Context, actor *utils.UserClaims, sessionID string) (*FinalReview, error)
	SaveDecisions(ctx context.Context, actor *utils.UserClaims, sessionID string, decisions []commit.Decision) (int, error)
	RequestApproval(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error)
	Approve(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error)
	Execute(ctx context.Context, actor *utils.UserClaims, sessionID, mode string) (*commit.Result, error)
	Cancel(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error)
	Delete(ctx context.Context, actor *utils.UserClaims, sessionID string) error
	Restart(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error)
	Rollback(ctx context.Context, actor *utils.UserClaims, sessionID, reason string) (*ImportSession, int64, error)
	ListSessions(ctx context.Context, actor *utils.UserClaims) ([]SessionSummary, error)
	GetStatus(ctx context.Context, sessionID string) (Status, int, error)
	GetAuditLog(ctx context.Context, sessionID string) ([]AuditRecord, error)
	ListMasterDataCandidates(ctx context.Context, sessionID string) ([]MasterDataCandidate, error)
	ReviewMasterDataCandidates(ctx context.Context, actor *utils.UserClaims, sessionID string, approved, rejected []string, comments string) (int64, error)
}

type ImportServiceImpl struct {
	SessionRepo     SessionRepository
	AuditRepo       AuditRepository
	LineageRepo     LineageRepository
	MasterDataRepo  MasterDataRepository
	TemplateService template.TemplateService
	CatalogService  catalog.CatalogService
	RoleService     role.RoleService
	Notifications   notification.NotificationService
	Executor        *commit.Executor
	Config          *config.Config
	Logger          *zap.Logger
}

func NewImportService(
	sessionRepo SessionRepository,
	auditRepo AuditRepository,
	lineageRepo LineageRepository,
	masterDataRepo MasterDataRepository,
	templateService template.TemplateService,
	catalogService catalog.CatalogService,
	roleService role.RoleService,
	notifications notification.NotificationService,
	executor *commit.Executor,
	cfg *config.Config,
	logger *zap.Logger,
) ImportService {
	return &ImportServiceImpl{
		SessionRepo:     sessionRepo,
		AuditRepo:       auditRepo,
		LineageRepo:     lineageRepo,
		MasterDataRepo:  masterDataRepo,
		TemplateService: templateService,
		CatalogService:  catalogService,
		RoleService:     roleService,
		Notifications:   notifications,
		Executor:        executor,
		Config:          cfg,
		Logger:          logger,
	}
}

func (s *ImportServiceImpl) Upload(ctx context.Context, actor *utils.UserClaims, content []byte, filename, connectionID string) (*ImportSession, error) {
	if !s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportUpload) {
		return nil, errs.New(errs.KindForbidden, "upload requires import permission")
	}
	if _, err := s.CatalogService.GetConnection(ctx, connectionID); err != nil {
		return nil, err
	}

	hash := CompositeFileHash(content, actor.UserID, connectionID)
	if existing, err := s.SessionRepo.FindActiveByHash(ctx, hash); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errs.New(errs.KindDuplicateUpload, "an identical file already has an active session").
			With("existing_session_id", existing.ID.Hex())
	}

	session := &ImportSession{
		UserID:       actor.UserID,
		ConnectionID: connectionID,
		Filename:     filename,
		FileHash:     hash,
		Status:       StatusFileUploaded,
	}
	session.AddNote(fmt.Sprintf("file %q uploaded (%d bytes)", filename, len(content)))
	if err := s.SessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.Config.FSPath, 0o755); err != nil {
		return nil, s.fail(ctx, session, err)
	}
	session.FilePath = filepath.Join(s.Config.FSPath, session.ID.Hex()+filepath.Ext(filename))
	if err := os.WriteFile(session.FilePath, content, 0o644); err != nil {
		return nil, s.fail(ctx, session, err)
	}

	// Analysis is synchronous: it completes or fails within this request.
	session.Status = StatusAnalyzing
	analysis, err := AnalyzeFile(bytes.NewReader(content), filename)
	if err != nil {
		return nil, s.fail(ctx, session, errs.Wrap(errs.KindBadRequest, err, "file analysis failed"))
	}
	session.Headers = analysis.Headers
	session.RowCount = len(analysis.Rows)
	session.SampleRows = analysis.Sample(sampleRowCount)
	session.AddNote(fmt.Sprintf("analyzed %d columns, %d rows", len(session.Headers), session.RowCount))

	s.suggest(ctx, session, analysis)

	session.Status = StatusTemplateSuggested
	if err := s.SessionRepo.Replace(ctx, session); err != nil {
		return nil, err
	}
	s.Notifications.Notify(ctx, actor.UserID, "Import ready for mapping",
		fmt.Sprintf("%s analyzed: %d rows", filename, session.RowCount), notification.NotificationTypeInfo)
	return session, nil
}

// suggest runs template detection and seeds the suggested mapping. Failures
// degrade to "no suggestions" with a note; they never fail the upload.
func (s *ImportServiceImpl) suggest(ctx context.Context, session *ImportSession, analysis *FileAnalysis) {
	det, err := s.TemplateService.Detect(ctx, session.Headers, session.Filename)
	if err != nil {
		session.AddNote("template detection unavailable: " + err.Error())
		return
	}
	if det == nil {
		session.AddNote("no template matched, mapping starts empty")
		return
	}
	tmpl, err := s.TemplateService.Get(ctx, det.TemplateID)
	if err != nil {
		session.AddNote("detected template could not be loaded: " + err.Error())
		return
	}

	session.DetectedTemplateID = &tmpl.ID
	session.DetectedReason = det.Reason
	session.DetectedScore = det.Score
	session.SelectedTemplateID = &tmpl.ID
	session.TargetTable = tmpl.TargetTable
	session.AddNote(fmt.Sprintf("template %q detected (%s)", tmpl.Name, det.Reason))

	samples := headerSamples(analysis, sampleRowCount)
	suggestions := matcher.Suggest(session.Headers, tmpl.Fields, samples)

	session.SuggestedMapping = map[string]common_models.ColumnMappingEntry{}
	session.Confidences = map[string]float64{}
	for _, h := range session.Headers {
		if entry, ok := tmpl.Mapping[h]; ok {
			session.SuggestedMapping[h] = entry
			session.Confidences[h] = 1.0
			continue
		}
		if sug, ok := suggestions[h]; ok {
			if entry, ok := tmpl.Mapping[sug.Field]; ok {
				session.SuggestedMapping[h] = entry
				session.Confidences[h] = sug.Confidence
			}
		}
	}
}

func (s *ImportServiceImpl) GetSession(ctx context.Context, sessionID string) (*ImportSession, error) {
	session, err := s.SessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.New(errs.KindNotFound, "session %s not found", sessionID)
	}
	return session, nil
}

func (s *ImportServiceImpl) GetSuggestedMapping(ctx context.Context, sessionID string) (*SuggestedMappingView, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view := &SuggestedMappingView{
		Mapping:            session.SuggestedMapping,
		Confidences:        session.Confidences,
		DetectedTemplateID: session.DetectedTemplateID,
		DetectedReason:     session.DetectedReason,
	}
	if session.TargetTable != "" {
		def, err := s.CatalogService.GetTableDefinition(ctx, session.ConnectionID, session.TargetTable)
		if err == nil {
			view.TargetColumns = def.ColumnNames()
		}
		// Catalog unavailability degrades to no target columns.
	}
	return view, nil
}

// requireMappingEdit enforces the mapping-edit guard: role first, then state,
// so a non-moderator always sees Forbidden regardless of session status.
func (s *ImportServiceImpl) requireMappingEdit(ctx context.Context, actor *utils.UserClaims, session *ImportSession) error {
	if !s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportMapping) {
		return errs.New(errs.KindForbidden, "mapping edits require the Admin or Moderator role")
	}
	if session.Status != StatusTemplateSuggested && session.Status != StatusMappingDefined {
		return errs.New(errs.KindInvalidState, "mapping cannot be edited while session is %s", session.Status).
			With("status", string(session.Status))
	}
	return nil
}

func (s *ImportServiceImpl) SetTemplate(ctx context.Context, actor *utils.UserClaims, sessionID, templateID, targetTable string) (*ImportSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMappingEdit(ctx, actor, session); err != nil {
		return nil, err
	}
	prev := session.Status

	if templateID == "" {
		session.SelectedTemplateID = nil
		session.TargetTable = targetTable
		session.SuggestedMapping = nil
		session.Confidences = nil
		if targetTable != "" {
			s.suggestFromCatalog(ctx, session, targetTable)
		}
		session.AddNote("template cleared")
	} else {
		tmpl, err := s.TemplateService.Get(ctx, templateID)
		if err != nil {
			return nil, err
		}
		session.SelectedTemplateID = &tmpl.ID
		session.TargetTable = tmpl.TargetTable
		if targetTable != "" {
			session.TargetTable = targetTable
		}
		session.SuggestedMapping = map[string]common_models.ColumnMappingEntry{}
		session.Confidences = map[string]float64{}
		for _, h := range session.Headers {
			if entry, ok := tmpl.Mapping[h]; ok {
				session.SuggestedMapping[h] = entry
				session.Confidences[h] = 1.0
			}
		}
		session.AddNote(fmt.Sprintf("template %q selected", tmpl.Name))
	}

	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, prev); err != nil {
		return nil, err
	} else if !ok {
		return nil, s.lostRace(session)
	}
	return session, nil
}

// suggestFromCatalog seeds a suggested mapping by fuzzy-matching headers
// against the live columns of the target table.
func (s *ImportServiceImpl) suggestFromCatalog(ctx context.Context, session *ImportSession, targetTable string) {
	def, err := s.CatalogService.GetTableDefinition(ctx, session.ConnectionID, targetTable)
	if err != nil {
		session.AddNote("no suggestions: " + err.Error())
		return
	}
	samples := map[string][]interface{}{}
	for _, row := range session.SampleRows {
		for h, v := range row {
			if v != "" {
				samples[h] = append(samples[h], v)
			}
		}
	}
	session.SuggestedMapping = map[string]common_models.ColumnMappingEntry{}
	session.Confidences = map[string]float64{}
	for h, sug := range matcher.Suggest(session.Headers, def.ColumnNames(), samples) {
		session.SuggestedMapping[h] = common_models.ColumnMappingEntry{
			Kind:         common_models.MappingExisting,
			TargetTable:  targetTable,
			TargetColumn: sug.Field,
		}
		session.Confidences[h] = sug.Confidence
	}
}

func (s *ImportServiceImpl) SaveMapping(ctx context.Context, actor *utils.UserClaims, sessionID string, mapping map[string]common_models.ColumnMappingEntry, relationships []common_models.RelationshipSpec, targetTable string) (*ImportSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMappingEdit(ctx, actor, session); err != nil {
		return nil, err
	}
	if len(mapping) == 0 {
		return nil, errs.New(errs.KindEmptyMapping, "mapping has no resolved entries")
	}
	prev := session.Status

	if targetTable != "" {
		session.TargetTable = targetTable
	}
	session.Mapping = mapping
	session.Relationships = relationships
	session.Validation = nil
	session.Decisions = nil

	// Resolve now so structural errors surface on save, not at validation.
	known, catalogErr := s.loadKnownSchema(ctx, session)
	if catalogErr != nil {
		session.Plan = nil
		session.AddNote("destination store unreachable, plan resolution deferred")
	} else {
		plan, err := resolver.Resolve(mapping, relationships, known)
		if err != nil {
			return nil, err
		}
		session.Plan = plan
	}
	session.Status = StatusMappingDefined
	session.AddNote(fmt.Sprintf("mapping saved (%d columns, %d relationships)", len(mapping), len(relationships)))

	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, prev); err != nil {
		return nil, err
	} else if !ok {
		return nil, s.lostRace(session)
	}
	return session, nil
}

// loadKnownSchema reflects every existing table the mapping or relationships
// reference. A NotFound table is simply left out so the resolver reports it
// as an unresolved reference; an unreachable store is returned as the error.
func (s *ImportServiceImpl) loadKnownSchema(ctx context.Context, session *ImportSession) (map[string]*catalog.TableDefinition, error) {
	names := map[string]bool{}
	for _, entry := range session.Mapping {
		if entry.TargetTable != "" {
			names[entry.TargetTable] = true
		}
		if entry.Table != "" {
			names[entry.Table] = true
		}
	}
	for _, rel := range session.Relationships {
		names[rel.ParentTable] = true
		names[rel.ChildTable] = true
	}
	known := map[string]*catalog.TableDefinition{}
	for name := range names {
		def, err := s.CatalogService.GetTableDefinition(ctx, session.ConnectionID, name)
		if err != nil {
			if errs.KindOf(err) == errs.KindNotFound {
				continue
			}
			return nil, err
		}
		known[name] = def
	}
	return known, nil
}

func (s *ImportServiceImpl) ReopenMapping(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportMapping) {
		return nil, errs.New(errs.KindForbidden, "reopening the mapping requires the Admin or Moderator role")
	}
	if session.Status != StatusDataValidated && session.Status != StatusPendingApproval {
		return nil, errs.New(errs.KindInvalidState, "cannot reopen mapping while session is %s", session.Status)
	}
	prev := session.Status
	session.Status = StatusMappingDefined
	session.Validation = nil
	session.Decisions = nil
	session.AddNote("mapping reopened")
	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, prev); err != nil {
		return nil, err
	} else if !ok {
		return nil, s.lostRace(session)
	}
	return session, nil
}

func (s *ImportServiceImpl) Validate(ctx context.Context, actor *utils.UserClaims, sessionID string) (*validation.ValidationOutcome, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != StatusMappingDefined && session.Status != StatusDataValidated {
		return nil, errs.New(errs.KindInvalidState, "cannot validate while session is %s", session.Status)
	}
	if len(session.Mapping) == 0 {
		return nil, errs.New(errs.KindEmptyMapping, "mapping has no resolved entries")
	}
	prev := session.Status

	known, catalogErr := s.loadKnownSchema(ctx, session)
	if catalogErr != nil {
		return nil, catalogErr
	}
	plan, err := resolver.Resolve(session.Mapping, session.Relationships, known)
	if err != nil {
		return nil, err
	}

	analysis, err := s.readFile(session)
	if err != nil {
		return nil, err
	}

	existing, err := s.fetchDestinationRows(ctx, session, plan, known)
	if err != nil {
		// Degrade: classify against the file only, with a warning note.
		session.AddNote("destination store unreachable, duplicates checked within the file only")
		existing = nil
	}

	outcome := validation.Validate(plan, analysis.Rows, known, existing, s.Config.PreviewSampleLimit)

	if len(outcome.MasterData) > 0 {
		candidates := make([]MasterDataCandidate, len(outcome.MasterData))
		for i, md := range outcome.MasterData {
			candidates[i] = MasterDataCandidate{
				SessionID:     session.ID,
				TargetTable:   md.Table,
				ProposedValue: md.Value,
			}
		}
		if err := s.MasterDataRepo.UpsertPending(ctx, candidates); err != nil {
			s.Logger.Warn("failed to record master-data candidates",
				zap.String("session", session.ID.Hex()), zap.Error(err))
		}
		session.AddNote(fmt.Sprintf("%d values need master-data approval", len(outcome.MasterData)))
	}

	session.Plan = plan
	session.Validation = outcome
	if !outcome.HasBlockingErrors() {
		session.Status = StatusDataValidated
	}
	session.AddNote(fmt.Sprintf("validation ran: %d errors, %d warnings", len(outcome.Errors), len(outcome.Warnings)))

	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, prev); err != nil {
		return nil, err
	} else if !ok {
		return nil, s.lostRace(session)
	}
	return outcome, nil
}

// fetchDestinationRows reads current rows for every pre-existing plan table.
func (s *ImportServiceImpl) fetchDestinationRows(ctx context.Context, session *ImportSession, plan *resolver.ExecutionPlan, known map[string]*catalog.TableDefinition) (map[string][]map[string]interface{}, error) {
	db, conn, err := s.CatalogService.DB(ctx, session.ConnectionID)
	if err != nil {
		return nil, err
	}
	existing := map[string][]map[string]interface{}{}
	for i := range plan.Tables {
		tp := &plan.Tables[i]
		if tp.IsNew {
			continue
		}
		def := known[tp.Table]
		pkCol := "id"
		if def != nil && len(def.PrimaryKey) == 1 {
			pkCol = def.PrimaryKey[0]
		}
		schema, bare := catalog.SplitTableName(tp.Table, conn.Schema)
		qualified := catalog.QualifyTable(conn.Driver, schema, bare)
		rows, err := commit.FetchExisting(ctx, db, conn.Driver, qualified, tp, pkCol)
		if err != nil {
			return nil, errs.Wrap(errs.KindCatalogUnavailable, err, "failed to read destination rows").
				With("table", tp.Table)
		}
		existing[tp.Table] = rows
	}
	return existing, nil
}

func (s *ImportServiceImpl) readFile(session *ImportSession) (*FileAnalysis, error) {
	f, err := os.Open(session.FilePath)
	if err != nil {
		return nil, errs.Wrap(errs.KindImportError, err, "uploaded file is no longer available")
	}
	defer f.Close()
	return AnalyzeFile(f, session.Filename)
}

func (s *ImportServiceImpl) GetFinalReview(ctx context.Context, actor *utils.UserClaims, sessionID string) (*FinalReview, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case StatusDataValidated, StatusPendingApproval, StatusMappingApproved:
	default:
		return nil, errs.New(errs.KindInvalidState, "no review available while session is %s", session.Status)
	}
	if session.Validation == nil || session.Plan == nil {
		return nil, errs.New(errs.KindInvalidState, "session has no validation outcome yet")
	}

	review := &FinalReview{
		PerTablePlan:     session.Validation.Tables,
		SchemaChanges:    session.Plan.SchemaChanges,
		CanApprove:       s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportApprove),
		AwaitingApproval: session.Status == StatusPendingApproval,
	}
	var toInsert, duplicates, conflicts int
	for _, t := range session.Validation.Tables {
		toInsert += t.ToInsert
		duplicates += t.Duplicates
		conflicts += t.Conflicts
		review.Duplicates = append(review.Duplicates, t.DuplicateSamples...)
		review.Conflicts = append(review.Conflicts, t.ConflictSamples...)
	}
	review.Summary = map[string]interface{}{
		"row_count":      session.RowCount,
		"to_insert":      toInsert,
		"duplicates":     duplicates,
		"conflicts":      conflicts,
		"tables":         len(session.Validation.Tables),
		"schema_changes": len(session.Plan.SchemaChanges),
	}
	return review, nil
}

func (s *ImportServiceImpl) SaveDecisions(ctx context.Context, actor *utils.UserClaims, sessionID string, decisions []commit.Decision) (int, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportMapping) {
		return 0, errs.New(errs.KindForbidden, "saving decisions requires the Admin or Moderator role")
	}
	if session.Status != StatusDataValidated && session.Status != StatusPendingApproval {
		return 0, errs.New(errs.KindInvalidState, "cannot save decisions while session is %s", session.Status)
	}
	for _, d := range decisions {
		switch d.Action {
		case commit.ActionApprove, commit.ActionSkip, commit.ActionOverride:
		default:
			return 0, errs.New(errs.KindBadRequest, "unknown decision action %q", d.Action)
		}
	}
	prev := session.Status
	session.Decisions = decisions
	session.AddNote(fmt.Sprintf("%d duplicate decisions saved", len(decisions)))
	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, prev); err != nil {
		return 0, err
	} else if !ok {
		return 0, s.lostRace(session)
	}
	return len(decisions), nil
}

func (s *ImportServiceImpl) RequestApproval(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportMapping) {
		return nil, errs.New(errs.KindForbidden, "requesting approval requires the Admin or Moderator role")
	}
	if session.Status != StatusDataValidated {
		return nil, errs.New(errs.KindInvalidState, "cannot request approval while session is %s", session.Status)
	}
	session.Status = StatusPendingApproval
	session.AddNote("approval requested")
	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, StatusDataValidated); err != nil {
		return nil, err
	} else if !ok {
		return nil, s.lostRace(session)
	}
	s.Notifications.Notify(ctx, session.UserID, "Import awaiting approval",
		fmt.Sprintf("%s is ready for approval", session.Filename), notification.NotificationTypeInfo)
	return session, nil
}

func (s *ImportServiceImpl) Approve(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportApprove) {
		return nil, errs.New(errs.KindForbidden, "approval requires approve rights")
	}
	if session.Status != StatusPendingApproval {
		return nil, errs.New(errs.KindInvalidState, "cannot approve while session is %s", session.Status)
	}
	session.Status = StatusMappingApproved
	session.AddNote("mapping approved by " + actor.UserID)
	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, StatusPendingApproval); err != nil {
		return nil, err
	} else if !ok {
		return nil, s.lostRace(session)
	}
	s.Notifications.Notify(ctx, session.UserID, "Import approved",
		fmt.Sprintf("%s is approved and ready to commit", session.Filename), notification.NotificationTypeSuccess)
	return session, nil
}

func (s *ImportServiceImpl) Execute(ctx context.Context, actor *utils.UserClaims, sessionID, mode string) (*commit.Result, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Executing from pending_approval is an implicit approve and requires
	// approve rights; the transition happens first.
	if session.Status == StatusPendingApproval {
		if session, err = s.Approve(ctx, actor, sessionID); err != nil {
			return nil, err
		}
	}
	if session.Status != StatusMappingApproved {
		return nil, errs.New(errs.KindInvalidState, "cannot execute while session is %s", session.Status)
	}
	if !s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportMapping) {
		return nil, errs.New(errs.KindForbidden, "executing an import requires the Admin or Moderator role")
	}
	if session.Plan == nil {
		return nil, errs.New(errs.KindInvalidState, "session has no resolved plan")
	}

	analysis, err := s.readFile(session)
	if err != nil {
		return nil, err
	}

	if mode == "" {
		mode = commit.ModeAppend
	}
	session.ImportMode = mode
	session.Progress = 0
	session.AddNote(fmt.Sprintf("commit started (mode %s)", mode))
	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, StatusMappingApproved); err != nil {
		return nil, err
	} else if !ok {
		return nil, s.lostRace(session)
	}

	last := -1
	progress := func(pct int) {
		if pct == last {
			return
		}
		last = pct
		if err := s.SessionRepo.SetProgress(ctx, session.ID, pct); err != nil {
			s.Logger.Warn("failed to persist import progress",
				zap.String("session", session.ID.Hex()), zap.Error(err))
		}
	}

	started := time.Now()
	result, execErr := s.Executor.Execute(ctx, session.ConnectionID, session.Plan, analysis.Rows, session.Decisions, mode, progress)
	session.Result = result
	s.recordAudit(ctx, session, result, execErr == nil, time.Since(started))
	s.recordLineage(ctx, session, result)

	if execErr != nil {
		session.Status = StatusFailed
		session.LastError = execErr.Error()
		session.AddNote("commit failed: " + execErr.Error())
		if err := s.SessionRepo.Replace(ctx, session); err != nil {
			s.Logger.Error("failed to persist failed session", zap.Error(err))
		}
		s.Notifications.Notify(ctx, session.UserID, "Import failed",
			fmt.Sprintf("%s: %s", session.Filename, execErr.Error()), notification.NotificationTypeError)
		return result, execErr
	}

	session.Status = StatusCompleted
	session.Progress = 100
	completed := time.Now()
	session.CompletedAt = &completed
	session.AddNote(fmt.Sprintf("commit completed: %d rows imported", result.ImportedCount))
	if err := s.SessionRepo.Replace(ctx, session); err != nil {
		return result, err
	}
	s.Notifications.Notify(ctx, session.UserID, "Import completed",
		fmt.Sprintf("%s: %d rows imported", session.Filename, result.ImportedCount), notification.NotificationTypeSuccess)
	return result, nil
}

// recordLineage persists row references for the tables that committed, even
// when a later table's batch failed. Lineage failures are logged; they only
// cost the session its rollback option, never the import itself.
func (s *ImportServiceImpl) recordLineage(ctx context.Context, session *ImportSession, result *commit.Result) {
	if result == nil || len(result.Lineage) == 0 {
		return
	}
	records := make([]LineageRecord, len(result.Lineage))
	for i, ref := range result.Lineage {
		records[i] = LineageRecord{
			SessionID: session.ID,
			Table:     ref.Table,
			PKColumn:  ref.PKColumn,
			PKValue:   ref.PK,
		}
	}
	if err := s.LineageRepo.InsertBatch(ctx, records); err != nil {
		s.Logger.Warn("failed to record data lineage",
			zap.String("session", session.ID.Hex()), zap.Error(err))
	}
}

// Rollback undoes a completed import: the rows its commit inserted are
// deleted from the destination, children before parents, and the lineage
// records are marked rather than removed so the trail survives. Updated rows
// are not restored; only inserted rows are undone.
func (s *ImportServiceImpl) Rollback(ctx context.Context, actor *utils.UserClaims, sessionID, reason string) (*ImportSession, int64, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if !s.RoleService.IsInRole(actor.Roles, role.RoleAdmin) {
		return nil, 0, errs.New(errs.KindForbidden, "rollback requires the Admin role")
	}
	if session.Status != StatusCompleted {
		return nil, 0, errs.New(errs.KindInvalidState, "only completed sessions can be rolled back").
			With("status", string(session.Status))
	}
	records, err := s.LineageRepo.ListActiveBySession(ctx, session.ID)
	if err != nil {
		return nil, 0, err
	}
	if len(records) == 0 {
		return nil, 0, errs.New(errs.KindInvalidState, "session has no rows to roll back")
	}

	type tableRefs struct {
		pkCol string
		pks   []interface{}
	}
	byTable := map[string]*tableRefs{}
	for _, rec := range records {
		tr := byTable[rec.Table]
		if tr == nil {
			tr = &tableRefs{pkCol: rec.PKColumn}
			byTable[rec.Table] = tr
		}
		tr.pks = append(tr.pks, rec.PKValue)
	}

	// Children were written after their parents, so deleting in reverse
	// write order keeps fk constraints satisfied throughout.
	order := make([]string, 0, len(byTable))
	if session.Plan != nil {
		for i := len(session.Plan.Tables) - 1; i >= 0; i-- {
			name := session.Plan.Tables[i].Table
			if byTable[name] != nil {
				order = append(order, name)
			}
		}
	}
	for name := range byTable {
		found := false
		for _, o := range order {
			if o == name {
				found = true
				break
			}
		}
		if !found {
			order = append(order, name)
		}
	}

	var deleted int64
	for _, name := range order {
		tr := byTable[name]
		n, err := s.Executor.DeleteRows(ctx, session.ConnectionID, name, tr.pkCol, tr.pks)
		if err != nil {
			session.AddNote("rollback aborted at table " + name + ": " + err.Error())
			if rerr := s.SessionRepo.Replace(ctx, session); rerr != nil {
				s.Logger.Error("failed to persist rollback note", zap.Error(rerr))
			}
			return nil, deleted, err
		}
		deleted += n
	}

	if _, err := s.LineageRepo.MarkRolledBack(ctx, session.ID, actor.UserID); err != nil {
		s.Logger.Warn("failed to mark lineage rolled back",
			zap.String("session", session.ID.Hex()), zap.Error(err))
	}

	session.Status = StatusRolledBack
	if reason == "" {
		reason = "no reason given"
	}
	session.AddNote(fmt.Sprintf("import rolled back by %s (%d rows removed): %s", actor.UserID, deleted, reason))
	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, StatusCompleted); err != nil {
		return nil, deleted, err
	} else if !ok {
		return nil, deleted, s.lostRace(session)
	}
	s.Notifications.Notify(ctx, session.UserID, "Import rolled back",
		fmt.Sprintf("%s: %d rows removed", session.Filename, deleted), notification.NotificationTypeWarning)
	return session, deleted, nil
}

func (s *ImportServiceImpl) ListMasterDataCandidates(ctx context.Context, sessionID string) ([]MasterDataCandidate, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.MasterDataRepo.ListBySession(ctx, session.ID, CandidatePending)
}

func (s *ImportServiceImpl) ReviewMasterDataCandidates(ctx context.Context, actor *utils.UserClaims, sessionID string, approved, rejected []string, comments string) (int64, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportApprove) {
		return 0, errs.New(errs.KindForbidden, "reviewing master data requires approve rights")
	}
	approvedIDs, err := parseObjectIDs(approved)
	if err != nil {
		return 0, err
	}
	rejectedIDs, err := parseObjectIDs(rejected)
	if err != nil {
		return 0, err
	}
	if len(approvedIDs) == 0 && len(rejectedIDs) == 0 {
		return 0, errs.New(errs.KindBadRequest, "no candidate ids given")
	}

	var reviewed int64
	n, err := s.MasterDataRepo.Review(ctx, approvedIDs, CandidateApproved, actor.UserID, comments)
	if err != nil {
		return reviewed, err
	}
	reviewed += n
	n, err = s.MasterDataRepo.Review(ctx, rejectedIDs, CandidateRejected, actor.UserID, comments)
	if err != nil {
		return reviewed, err
	}
	reviewed += n

	if reviewed > 0 {
		session.AddNote(fmt.Sprintf("master data reviewed by %s: %d approved, %d rejected",
			actor.UserID, len(approvedIDs), len(rejectedIDs)))
		if err := s.SessionRepo.Replace(ctx, session); err != nil {
			s.Logger.Warn("failed to persist master-data review note",
				zap.String("session", session.ID.Hex()), zap.Error(err))
		}
	}
	return reviewed, nil
}

func parseObjectIDs(ids []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, errs.New(errs.KindBadRequest, "invalid candidate id %q", id)
		}
		out = append(out, oid)
	}
	return out, nil
}

func (s *ImportServiceImpl) Cancel(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusCancelled {
		// Idempotent: re-cancelling reports success.
		return session, nil
	}
	if session.Status == StatusCompleted || session.Status == StatusDeleted {
		return nil, errs.New(errs.KindInvalidState, "cannot cancel a %s session", session.Status)
	}
	prev := session.Status
	session.Status = StatusCancelled
	session.AddNote("session cancelled")
	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, prev); err != nil {
		return nil, err
	} else if !ok {
		return nil, s.lostRace(session)
	}
	return session, nil
}

func (s *ImportServiceImpl) Delete(ctx context.Context, actor *utils.UserClaims, sessionID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == StatusCompleted {
		return errs.New(errs.KindInvalidState, "completed sessions cannot be deleted")
	}
	if session.FilePath != "" {
		if err := os.Remove(session.FilePath); err != nil && !os.IsNotExist(err) {
			s.Logger.Warn("failed to remove uploaded file",
				zap.String("path", session.FilePath), zap.Error(err))
		}
	}
	if err := s.MasterDataRepo.DeleteBySession(ctx, session.ID); err != nil {
		s.Logger.Warn("failed to remove master-data candidates",
			zap.String("session", session.ID.Hex()), zap.Error(err))
	}
	return s.SessionRepo.Delete(ctx, session.ID)
}

func (s *ImportServiceImpl) Restart(ctx context.Context, actor *utils.UserClaims, sessionID string) (*ImportSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.RoleService.HasPermission(ctx, actor.Roles, role.PermImportMapping) {
		return nil, errs.New(errs.KindForbidden, "restarting requires the Admin or Moderator role")
	}
	if session.Status != StatusFailed && session.Status != StatusCancelled {
		return nil, errs.New(errs.KindInvalidState, "only failed or cancelled sessions can be restarted")
	}
	prev := session.Status
	if len(session.Mapping) > 0 {
		session.Status = StatusMappingDefined
	} else {
		session.Status = StatusTemplateSuggested
	}
	session.LastError = ""
	session.Progress = 0
	session.Result = nil
	session.Validation = nil
	session.AddNote("session restarted")
	if ok, err := s.SessionRepo.ReplaceGuarded(ctx, session, prev); err != nil {
		return nil, err
	} else if !ok {
		return nil, s.lostRace(session)
	}
	return session, nil
}

func (s *ImportServiceImpl) ListSessions(ctx context.Context, actor *utils.UserClaims) ([]SessionSummary, error) {
	var sessions []ImportSession
	var err error
	if s.RoleService.IsManager(actor.Roles) {
		sessions, err = s.SessionRepo.ListAll(ctx, 100)
	} else {
		sessions, err = s.SessionRepo.ListByUser(ctx, actor.UserID, 100)
	}
	if err != nil {
		return nil, err
	}
	summaries := make([]SessionSummary, len(sessions))
	for i := range sessions {
		summaries[i] = sessions[i].Summary()
	}
	return summaries, nil
}

// recordAudit writes one record per schema change and per table written.
// Audit failures are logged, never surfaced to the import flow.
func (s *ImportServiceImpl) recordAudit(ctx context.Context, session *ImportSession, result *commit.Result, success bool, elapsed time.Duration) {
	insert := func(rec *AuditRecord) {
		rec.SessionID = session.ID
		rec.Success = success
		rec.DurationMS = elapsed.Milliseconds()
		if err := s.AuditRepo.Insert(ctx, rec); err != nil {
			s.Logger.Warn("failed to write audit record",
				zap.String("session", session.ID.Hex()), zap.Error(err))
		}
	}
	for _, ch := range session.Plan.SchemaChanges {
		detail := string(ch.Kind)
		if ch.Column != "" {
			detail += " " + ch.Column
		}
		insert(&AuditRecord{Action: AuditActionSchemaChange, Table: ch.Table, Detail: detail})
	}
	if result == nil {
		return
	}
	for table, counts := range result.PerTable {
		insert(&AuditRecord{
			Action:       AuditActionDataWrite,
			Table:        table,
			Detail:       session.ImportMode,
			AffectedRows: counts.Inserted + counts.Updated,
		})
	}
}

func (s *ImportServiceImpl) GetAuditLog(ctx context.Context, sessionID string) ([]AuditRecord, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.AuditRepo.ListBySession(ctx, session.ID)
}

func (s *ImportServiceImpl) GetStatus(ctx context.Context, sessionID string) (Status, int, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return "", 0, err
	}
	return session.Status, session.Progress, nil
}

// fail moves a session to failed with the error attached, then returns the
// original error for the caller.
func (s *ImportServiceImpl) fail(ctx context.Context, session *ImportSession, cause error) error {
	session.Status = StatusFailed
	session.LastError = cause.Error()
	session.AddNote("failed: " + cause.Error())
	if err := s.SessionRepo.Replace(ctx, session); err != nil {
		s.Logger.Error("failed to persist failed session",
			zap.String("session", session.ID.Hex()), zap.Error(err))
	}
	return cause
}

func (s *ImportServiceImpl) lostRace(session *ImportSession) error {
	return errs.New(errs.KindInvalidState, "session was modified concurrently").
		With("session_id", session.ID.Hex())
}

func headerSamples(analysis *FileAnalysis, n int) map[string][]interface{} {
	samples := map[string][]interface{}{}
	for _, row := range analysis.Sample(n) {
		for h, v := range row {
			if strings.TrimSpace(v) != "" {
				samples[h] = append(samples[h], v)
			}
		}
	}
	return samples
}
