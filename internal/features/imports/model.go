package imports

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	common_models "go-mis/internal/common/models"
	"go-mis/internal/features/commit"
	"go-mis/internal/features/resolver"
	"go-mis/internal/features/validation"
)

type Status string

const (
	StatusFileUploaded      Status = "file_uploaded"
	StatusAnalyzing         Status = "analyzing"
	StatusTemplateSuggested Status = "template_suggested"
	StatusMappingDefined    Status = "mapping_defined"
	StatusDataValidated     Status = "data_validated"
	StatusPendingApproval   Status = "pending_approval"
	StatusMappingApproved   Status = "mapping_approved"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusDeleted           Status = "deleted"
	StatusFailed            Status = "failed"
	StatusRolledBack        Status = "rolled_back"
)

// Terminal reports whether no further transitions are possible. A completed
// session is terminal for the pipeline but may still be rolled back.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDeleted || s == StatusRolledBack
}

// SystemNote is an append-only trace of what the pipeline did to a session,
// shown to the user alongside the data.
type SystemNote struct {
	At   time.Time `json:"at" bson:"at"`
	Note string    `json:"note" bson:"note"`
}

// ImportSession owns one import attempt from upload through commit. Status
// changes persist atomically with whatever payload the transition carries;
// concurrent operations are serialized optimistically by the status guard.
type ImportSession struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID       string             `json:"user_id" bson:"user_id"`
	ConnectionID string             `json:"connection_id" bson:"connection_id"`

	Filename string `json:"filename" bson:"filename"`
	FilePath string `json:"-" bson:"file_path"`
	FileHash string `json:"-" bson:"file_hash"`

	Status   Status `json:"status" bson:"status"`
	RowCount int    `json:"row_count" bson:"row_count"`

	Headers    []string            `json:"headers" bson:"headers"`
	SampleRows []map[string]string `json:"sample_rows,omitempty" bson:"sample_rows,omitempty"`

	TargetTable        string              `json:"target_table,omitempty" bson:"target_table,omitempty"`
	SelectedTemplateID *primitive.ObjectID `json:"selected_template_id,omitempty" bson:"selected_template_id,omitempty"`
	DetectedTemplateID *primitive.ObjectID `json:"detected_template_id,omitempty" bson:"detected_template_id,omitempty"`
	DetectedReason     string              `json:"detected_template_reason,omitempty" bson:"detected_template_reason,omitempty"`
	DetectedScore      float64             `json:"detected_template_score,omitempty" bson:"detected_template_score,omitempty"`

	SuggestedMapping map[string]common_models.ColumnMappingEntry `json:"suggested_mapping,omitempty" bson:"suggested_mapping,omitempty"`
	Confidences      map[string]float64                          `json:"confidences,omitempty" bson:"confidences,omitempty"`

	Mapping       map[string]common_models.ColumnMappingEntry `json:"mapping,omitempty" bson:"mapping,omitempty"`
	Relationships []common_models.RelationshipSpec            `json:"relationships,omitempty" bson:"relationships,omitempty"`
	Plan          *resolver.ExecutionPlan                     `json:"plan,omitempty" bson:"plan,omitempty"`

	Validation *validation.ValidationOutcome `json:"validation,omitempty" bson:"validation,omitempty"`
	Decisions  []commit.Decision             `json:"decisions,omitempty" bson:"decisions,omitempty"`

	ImportMode string         `json:"import_mode,omitempty" bson:"import_mode,omitempty"`
	Progress   int            `json:"import_progress" bson:"import_progress"`
	Result     *commit.Result `json:"result,omitempty" bson:"result,omitempty"`
	LastError  string         `json:"last_error,omitempty" bson:"last_error,omitempty"`

	Notes []SystemNote `json:"system_notes,omitempty" bson:"system_notes,omitempty"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// AddNote appends a system note with the current time.
func (s *ImportSession) AddNote(note string) {
	s.Notes = append(s.Notes, SystemNote{At: time.Now(), Note: note})
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID        primitive.ObjectID `json:"id"`
	Filename  string             `json:"filename"`
	Status    Status             `json:"status"`
	RowCount  int                `json:"row_count"`
	Progress  int                `json:"import_progress"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (s *ImportSession) Summary() SessionSummary {
	return SessionSummary{
		ID: s.ID, Filename: s.Filename, Status: s.Status, RowCount: s.RowCount,
		Progress: s.Progress, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

// SuggestedMappingView is the payload of get_suggested_mapping.
type SuggestedMappingView struct {
	Mapping            map[string]common_models.ColumnMappingEntry `json:"mapping"`
	Confidences        map[string]float64                          `json:"confidences"`
	DetectedTemplateID *primitive.ObjectID                         `json:"detected_template_id,omitempty"`
	DetectedReason     string                                      `json:"detected_template_reason,omitempty"`
	TargetColumns      []string                                    `json:"target_columns"`
}

// FinalReview is the payload of get_final_review.
type FinalReview struct {
	Summary          map[string]interface{}      `json:"summary"`
	Duplicates       []validation.RowSample      `json:"duplicates"`
	Conflicts        []validation.RowSample      `json:"conflicts"`
	PerTablePlan     []validation.TableOutcome   `json:"per_table_plan"`
	SchemaChanges    []resolver.SchemaChange     `json:"schema_changes"`
	CanApprove       bool                        `json:"can_approve"`
	AwaitingApproval bool                        `json:"awaiting_approval"`
}
