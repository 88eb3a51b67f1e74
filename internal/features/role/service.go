package role

import (
	"context"
	"slices"

	"go.uber.org/zap"
)

// RoleService is the permission oracle for the import workflow. Role documents
// may grant fine-grained permissions; the built-in Admin/Moderator names keep
// their semantics even when no documents are seeded.
type RoleService interface {
	IsInRole(roleNames []string, wanted ...string) bool
	IsManager(roleNames []string) bool
	HasPermission(ctx context.Context, roleNames []string, permission string) bool
	SeedDefaults(ctx context.Context) error
}

type RoleServiceImpl struct {
	RoleRepo RoleRepository
	Logger   *zap.Logger
}

func NewRoleService(roleRepo RoleRepository, logger *zap.Logger) RoleService {
	return &RoleServiceImpl{RoleRepo: roleRepo, Logger: logger}
}

func (s *RoleServiceImpl) IsInRole(roleNames []string, wanted ...string) bool {
	for _, w := range wanted {
		if slices.Contains(roleNames, w) {
			return true
		}
	}
	return false
}

// IsManager reports whether any role may edit mappings or approve imports.
func (s *RoleServiceImpl) IsManager(roleNames []string) bool {
	return s.IsInRole(roleNames, RoleAdmin, RoleModerator)
}

func (s *RoleServiceImpl) HasPermission(ctx context.Context, roleNames []string, permission string) bool {
	if s.IsManager(roleNames) {
		return true
	}
	if permission == PermImportUpload && len(roleNames) > 0 {
		return true
	}
	roles, err := s.RoleRepo.FindByNames(ctx, roleNames)
	if err != nil {
		s.Logger.Warn("role lookup failed, denying permission",
			zap.Strings("roles", roleNames), zap.Error(err))
		return false
	}
	for _, r := range roles {
		if slices.Contains(r.Permissions, permission) {
			return true
		}
	}
	return false
}

// SeedDefaults inserts the three built-in roles when missing.
func (s *RoleServiceImpl) SeedDefaults(ctx context.Context) error {
	defaults := []Role{
		{Name: RoleAdmin, Description: "Full access", IsSystem: true,
			Permissions: []string{PermImportUpload, PermImportMapping, PermImportApprove, PermTemplateEdit}},
		{Name: RoleModerator, Description: "Mapping and approval access", IsSystem: true,
			Permissions: []string{PermImportUpload, PermImportMapping, PermImportApprove, PermTemplateEdit}},
		{Name: RoleUser, Description: "Upload only", IsSystem: true,
			Permissions: []string{PermImportUpload}},
	}
	for i := range defaults {
		existing, err := s.RoleRepo.FindByName(ctx, defaults[i].Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.RoleRepo.Create(ctx, &defaults[i]); err != nil {
			return err
		}
	}
	return nil
}
