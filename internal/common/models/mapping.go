package models

import "fmt"

// MappingKind tags a ColumnMappingEntry variant. Entries are a closed union:
// exactly one variant's fields are meaningful, and the resolver handles every
// kind exhaustively.
type MappingKind string

const (
	MappingExisting     MappingKind = "existing"      // maps to target_table.target_column
	MappingCreateTable  MappingKind = "create_table"  // requests a brand-new table
	MappingCreateColumn MappingKind = "create_column" // requests a new column on a table
	MappingFill         MappingKind = "fill"          // synthetic value, no file header behind it
)

const (
	FillConstant     = "constant"
	FillAutoSequence = "auto_sequence"
)

// TableRole tags a newly proposed table: fact tables hold transactional rows,
// ref tables hold lookup/dimension rows.
const (
	TableRoleFact = "fact"
	TableRoleRef  = "ref"
)

// ColumnMappingEntry resolves one file header (or, for fills, one destination
// column with no file counterpart). ClientID correlates create_table entries
// with create_column entries that forward-reference them in the same save.
type ColumnMappingEntry struct {
	Kind MappingKind `json:"kind" bson:"kind"`

	// Kind == existing
	TargetTable  string `json:"target_table,omitempty" bson:"target_table,omitempty"`
	TargetColumn string `json:"target_column,omitempty" bson:"target_column,omitempty"`

	// Kind == create_table
	TableRole string `json:"table_role,omitempty" bson:"table_role,omitempty"` // fact|ref
	Label     string `json:"label,omitempty" bson:"label,omitempty"`
	ClientID  string `json:"client_id,omitempty" bson:"client_id,omitempty"`

	// Kind == create_column. Exactly one of Table / TableClientID is set.
	Table         string `json:"table,omitempty" bson:"table,omitempty"`
	TableClientID string `json:"table_client_id,omitempty" bson:"table_client_id,omitempty"`
	ColumnType    string `json:"column_type,omitempty" bson:"column_type,omitempty"`

	// Kind == fill
	FillMode  string      `json:"fill_mode,omitempty" bson:"fill_mode,omitempty"` // constant|auto_sequence
	FillValue interface{} `json:"fill_value,omitempty" bson:"fill_value,omitempty"`
}

// Validate checks variant-internal consistency; cross-entry rules (client id
// resolution, table existence) belong to the resolver.
func (e *ColumnMappingEntry) Validate() error {
	switch e.Kind {
	case MappingExisting:
		if e.TargetTable == "" || e.TargetColumn == "" {
			return fmt.Errorf("existing mapping requires target_table and target_column")
		}
	case MappingCreateTable:
		if e.Label == "" || e.ClientID == "" {
			return fmt.Errorf("create_table mapping requires label and client_id")
		}
		if e.TableRole != TableRoleFact && e.TableRole != TableRoleRef {
			return fmt.Errorf("create_table role must be fact or ref, got %q", e.TableRole)
		}
	case MappingCreateColumn:
		if e.Label == "" {
			return fmt.Errorf("create_column mapping requires a label")
		}
		if (e.Table == "") == (e.TableClientID == "") {
			return fmt.Errorf("create_column mapping requires exactly one of table or table_client_id")
		}
	case MappingFill:
		if e.FillMode != FillConstant && e.FillMode != FillAutoSequence {
			return fmt.Errorf("fill mode must be constant or auto_sequence, got %q", e.FillMode)
		}
		if e.TargetTable == "" || e.TargetColumn == "" {
			return fmt.Errorf("fill mapping requires target_table and target_column")
		}
	default:
		return fmt.Errorf("unknown mapping kind %q", e.Kind)
	}
	return nil
}

// PKStrategy controls how parent primary keys are synthesized when the parent
// table has no auto-increment key.
type PKStrategy struct {
	Mode   string `json:"mode" bson:"mode"` // auto|uuid|max_plus_one|pattern
	Prefix string `json:"prefix,omitempty" bson:"prefix,omitempty"`
	Width  int    `json:"width,omitempty" bson:"width,omitempty"` // zero-pad width for pattern mode
}

const (
	PKAuto       = "auto"
	PKUUID       = "uuid"
	PKMaxPlusOne = "max_plus_one"
	PKPattern    = "pattern"
)

// RelationshipSpec declares a one-to-many link inferred from the file: values
// of NaturalKeyColumn identify parent rows; each child row gets the resolved
// parent key stamped into ChildFKColumn.
type RelationshipSpec struct {
	ParentTable      string     `json:"parent_table" bson:"parent_table"`
	NaturalKeyColumn string     `json:"natural_key_column" bson:"natural_key_column"` // A file header
	ChildTable       string     `json:"child_table" bson:"child_table"`
	ChildFKColumn    string     `json:"child_fk_column" bson:"child_fk_column"`
	NKNormalize      bool       `json:"nk_normalize" bson:"nk_normalize"` // case/whitespace-insensitive matching
	AddIndex         bool       `json:"add_index" bson:"add_index"`
	AddFKConstraint  bool       `json:"add_fk_constraint" bson:"add_fk_constraint"`
	EnforceUnique    bool       `json:"enforce_unique" bson:"enforce_unique"`
	PKStrategy       PKStrategy `json:"pk_strategy" bson:"pk_strategy"`
}

func (r *RelationshipSpec) Validate() error {
	if r.ParentTable == "" || r.ChildTable == "" || r.NaturalKeyColumn == "" {
		return fmt.Errorf("relationship requires parent_table, child_table and natural_key_column")
	}
	switch r.PKStrategy.Mode {
	case "", PKAuto, PKUUID, PKMaxPlusOne:
	case PKPattern:
		if r.PKStrategy.Prefix == "" {
			return fmt.Errorf("pattern pk_strategy requires a prefix")
		}
	default:
		return fmt.Errorf("unknown pk_strategy mode %q", r.PKStrategy.Mode)
	}
	return nil
}
