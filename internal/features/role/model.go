package role

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Permission codes used by the import workflow.
const (
	PermImportUpload  = "import:upload"
	PermImportMapping = "import:mapping"
	PermImportApprove = "import:approve"
	PermTemplateEdit  = "template:edit"
)

// Role names with built-in semantics. Admin and Moderator may edit mappings
// and approve imports; everyone authenticated may upload.
const (
	RoleAdmin     = "Admin"
	RoleModerator = "Moderator"
	RoleUser      = "User"
)

type Role struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description" bson:"description"`
	Permissions []string           `json:"permissions" bson:"permissions"`
	IsSystem    bool               `json:"is_system" bson:"is_system"` // Prevent deletion of system roles
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}
