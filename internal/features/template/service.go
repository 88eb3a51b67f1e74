package template

import (
	"context"
	"path"
	"strings"

	"go-mis/internal/common/errs"
	common_models "go-mis/internal/common/models"
	"go-mis/internal/features/matcher"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Fraction of file headers that must appear among a template's declared
// fields before column-set similarity counts as a detection.
const columnSimilarityThreshold = 0.6

type TemplateService interface {
	Create(ctx context.Context, tmpl *ReportTemplate) (*ReportTemplate, error)
	Update(ctx context.Context, id string, patch *TemplateUpdate) (*ReportTemplate, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*ReportTemplate, error)
	List(ctx context.Context) ([]ReportTemplate, error)

	GetMapping(ctx context.Context, id string) (map[string]common_models.ColumnMappingEntry, []common_models.RelationshipSpec, error)
	SetMapping(ctx context.Context, id string, mapping map[string]common_models.ColumnMappingEntry, relationships []common_models.RelationshipSpec) error

	// Detect picks the best template for an upload, or returns nil.
	Detect(ctx context.Context, headers []string, filename string) (*Detection, error)

	// SuggestMapping runs the column matcher against a template's declared fields.
	SuggestMapping(ctx context.Context, id string, headers []string, samples map[string][]interface{}) (map[string]matcher.Suggestion, error)
}

type TemplateServiceImpl struct {
	TemplateRepo TemplateRepository
	Logger       *zap.Logger
}

func NewTemplateService(repo TemplateRepository, logger *zap.Logger) TemplateService {
	return &TemplateServiceImpl{TemplateRepo: repo, Logger: logger}
}

func (s *TemplateServiceImpl) Create(ctx context.Context, tmpl *ReportTemplate) (*ReportTemplate, error) {
	if strings.TrimSpace(tmpl.Name) == "" {
		return nil, errs.New(errs.KindBadRequest, "template name is required")
	}
	existing, err := s.TemplateRepo.FindByName(ctx, tmpl.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Distinct error kind so the caller can offer update-vs-rename.
		return nil, errs.New(errs.KindNameConflict, "template %q already exists", tmpl.Name).
			With("existing_template_id", existing.ID.Hex())
	}
	tmpl.IsActive = true
	if tmpl.Mapping == nil {
		tmpl.Mapping = map[string]common_models.ColumnMappingEntry{}
	}
	if err := s.TemplateRepo.Create(ctx, tmpl); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errs.New(errs.KindNameConflict, "template %q already exists", tmpl.Name)
		}
		return nil, err
	}
	return tmpl, nil
}

func (s *TemplateServiceImpl) Update(ctx context.Context, id string, patch *TemplateUpdate) (*ReportTemplate, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != "" && patch.Name != current.Name {
		existing, err := s.TemplateRepo.FindByName(ctx, patch.Name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errs.New(errs.KindNameConflict, "template %q already exists", patch.Name)
		}
		current.Name = patch.Name
	}
	if patch.Description != "" {
		current.Description = patch.Description
	}
	if patch.TargetTable != "" {
		current.TargetTable = patch.TargetTable
	}
	if patch.Fields != nil {
		current.Fields = patch.Fields
	}
	if patch.FilenamePatterns != nil {
		current.FilenamePatterns = patch.FilenamePatterns
	}
	if patch.IsActive != nil {
		current.IsActive = *patch.IsActive
	}

	err = s.TemplateRepo.Update(ctx, id, bson.M{
		"name":              current.Name,
		"description":       current.Description,
		"target_table":      current.TargetTable,
		"fields":            current.Fields,
		"filename_patterns": current.FilenamePatterns,
		"is_active":         current.IsActive,
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (s *TemplateServiceImpl) Delete(ctx context.Context, id string) error {
	if err := s.TemplateRepo.Delete(ctx, id); err != nil {
		if err == mongo.ErrNoDocuments {
			return errs.New(errs.KindNotFound, "template %s not found", id)
		}
		return err
	}
	return nil
}

func (s *TemplateServiceImpl) Get(ctx context.Context, id string) (*ReportTemplate, error) {
	tmpl, err := s.TemplateRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, errs.New(errs.KindNotFound, "template %s not found", id)
	}
	return tmpl, nil
}

func (s *TemplateServiceImpl) List(ctx context.Context) ([]ReportTemplate, error) {
	return s.TemplateRepo.List(ctx)
}

func (s *TemplateServiceImpl) GetMapping(ctx context.Context, id string) (map[string]common_models.ColumnMappingEntry, []common_models.RelationshipSpec, error) {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return tmpl.Mapping, tmpl.Relationships, nil
}

func (s *TemplateServiceImpl) SetMapping(ctx context.Context, id string, mapping map[string]common_models.ColumnMappingEntry, relationships []common_models.RelationshipSpec) error {
	for header, entry := range mapping {
		if err := entry.Validate(); err != nil {
			return errs.Wrap(errs.KindBadRequest, err, "invalid mapping for header %q", header)
		}
	}
	for i := range relationships {
		if err := relationships[i].Validate(); err != nil {
			return errs.Wrap(errs.KindBadRequest, err, "invalid relationship %d", i)
		}
	}
	err := s.TemplateRepo.Update(ctx, id, bson.M{
		"mapping":       mapping,
		"relationships": relationships,
	})
	if err == mongo.ErrNoDocuments {
		return errs.New(errs.KindNotFound, "template %s not found", id)
	}
	return err
}

func (s *TemplateServiceImpl) Detect(ctx context.Context, headers []string, filename string) (*Detection, error) {
	templates, err := s.TemplateRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return detect(templates, headers, filename), nil
}

// detect is the pure detection policy: filename pattern first, then
// column-set similarity above the threshold.
func detect(templates []ReportTemplate, headers []string, filename string) *Detection {
	lowerName := strings.ToLower(path.Base(filename))

	for _, tmpl := range templates {
		for _, pattern := range tmpl.FilenamePatterns {
			if matchFilename(lowerName, strings.ToLower(pattern)) {
				return &Detection{TemplateID: tmpl.ID.Hex(), Reason: ReasonFilenamePattern, Score: 1.0}
			}
		}
	}

	if len(headers) == 0 {
		return nil
	}
	normHeaders := make([]string, len(headers))
	for i, h := range headers {
		normHeaders[i] = matcher.Normalize(h)
	}

	var best *Detection
	for _, tmpl := range templates {
		fieldSet := map[string]bool{}
		for _, f := range tmpl.Fields {
			fieldSet[matcher.Normalize(f)] = true
		}
		if len(fieldSet) == 0 {
			continue
		}
		found := 0
		for _, h := range normHeaders {
			if fieldSet[h] {
				found++
			}
		}
		score := float64(found) / float64(len(normHeaders))
		if score >= columnSimilarityThreshold && (best == nil || score > best.Score) {
			best = &Detection{TemplateID: tmpl.ID.Hex(), Reason: ReasonColumnSimilarity, Score: score}
		}
	}
	return best
}

// matchFilename treats a pattern containing glob metacharacters as a glob,
// anything else as a substring fragment.
func matchFilename(name, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, name)
		return err == nil && ok
	}
	return strings.Contains(name, pattern)
}

func (s *TemplateServiceImpl) SuggestMapping(ctx context.Context, id string, headers []string, samples map[string][]interface{}) (map[string]matcher.Suggestion, error) {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return matcher.Suggest(headers, tmpl.Fields, samples), nil
}
