package template

import (
	"time"

	common_models "go-mis/internal/common/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Detection reason codes returned by Detect.
const (
	ReasonFilenamePattern  = "filename_pattern"
	ReasonColumnSimilarity = "column_similarity"
)

// ReportTemplate is a reusable mapping configuration. Sessions copy the
// mapping at selection time, so deleting a template never invalidates
// sessions that already adopted it.
type ReportTemplate struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"` // Unique
	Description string             `json:"description" bson:"description"`
	TargetTable string             `json:"target_table,omitempty" bson:"target_table,omitempty"`

	// Declared target fields, in order. Used for detection and for matcher
	// suggestions when the template is selected.
	Fields []string `json:"fields" bson:"fields"`

	// Persisted header -> target resolution and relationship declarations.
	Mapping       map[string]common_models.ColumnMappingEntry `json:"mapping" bson:"mapping"`
	Relationships []common_models.RelationshipSpec            `json:"relationships" bson:"relationships"`

	// Detection hints: substring fragments or glob-style patterns matched
	// against uploaded filenames.
	FilenamePatterns []string `json:"filename_patterns" bson:"filename_patterns"`

	IsActive  bool      `json:"is_active" bson:"is_active"`
	CreatedBy string    `json:"created_by,omitempty" bson:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// TemplateUpdate is a partial update. Zero-valued string fields and nil
// slices leave the stored value alone; IsActive is a pointer so a template
// can be deactivated without clobbering the flag on unrelated updates.
type TemplateUpdate struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	TargetTable      string   `json:"target_table"`
	Fields           []string `json:"fields"`
	FilenamePatterns []string `json:"filename_patterns"`
	IsActive         *bool    `json:"is_active"`
}

// Detection is the outcome of template auto-detection for an upload.
type Detection struct {
	TemplateID string  `json:"template_id"`
	Reason     string  `json:"reason"`
	Score      float64 `json:"score"`
}
