package resolver

import (
	common_models "go-mis/internal/common/models"
)

type SchemaChangeKind string

const (
	ChangeCreateTable     SchemaChangeKind = "create_table"
	ChangeCreateColumn    SchemaChangeKind = "create_column"
	ChangeAddIndex        SchemaChangeKind = "add_index"
	ChangeAddFKConstraint SchemaChangeKind = "add_fk_constraint"
)

// SchemaChange is one DDL step. Changes come out of Resolve already in
// dependency order: tables first (referenced tables before referencing ones),
// then columns, then indexes, then foreign key constraints.
type SchemaChange struct {
	Kind       SchemaChangeKind `json:"kind" bson:"kind"`
	Table      string           `json:"table" bson:"table"`
	TableRole  string           `json:"table_role,omitempty" bson:"table_role,omitempty"`
	Column     string           `json:"column,omitempty" bson:"column,omitempty"`
	ColumnType string           `json:"column_type,omitempty" bson:"column_type,omitempty"`
	RefTable   string           `json:"ref_table,omitempty" bson:"ref_table,omitempty"`
	RefColumn  string           `json:"ref_column,omitempty" bson:"ref_column,omitempty"`
}

type ValueRuleKind string

const (
	RuleCopy         ValueRuleKind = "copy"
	RuleConstant     ValueRuleKind = "constant"
	RuleAutoSequence ValueRuleKind = "auto_sequence"
	RuleForeignKey   ValueRuleKind = "foreign_key"
)

// ValueRule derives one destination column value for every row written to its
// table. Copy rules read a file header, fill rules synthesize, foreign key
// rules substitute the parent key resolved from the row's natural key value.
type ValueRule struct {
	Kind         ValueRuleKind `json:"kind" bson:"kind"`
	Column       string        `json:"column" bson:"column"`
	ColumnType   string        `json:"column_type,omitempty" bson:"column_type,omitempty"`
	SourceHeader string        `json:"source_header,omitempty" bson:"source_header,omitempty"`
	Constant     interface{}   `json:"constant,omitempty" bson:"constant,omitempty"`
	Relationship string        `json:"relationship,omitempty" bson:"relationship,omitempty"` // parent table of the backing RelationshipPlan
}

// TablePlan is everything the validator and executor need for one destination
// table: which columns get written and how each value is derived.
type TablePlan struct {
	Table string      `json:"table" bson:"table"`
	IsNew bool        `json:"is_new" bson:"is_new"`
	Role  string      `json:"role,omitempty" bson:"role,omitempty"`
	Rules []ValueRule `json:"rules" bson:"rules"`
}

// Rule returns the rule writing the named column, or nil.
func (t *TablePlan) Rule(column string) *ValueRule {
	for i := range t.Rules {
		if t.Rules[i].Column == column {
			return &t.Rules[i]
		}
	}
	return nil
}

// RelationshipPlan is a resolved RelationshipSpec: tables are concrete names
// and the normalize/enforce flags are carried through for the validator and
// the executor.
type RelationshipPlan struct {
	ParentTable      string                   `json:"parent_table" bson:"parent_table"`
	NaturalKeyColumn string                   `json:"natural_key_column" bson:"natural_key_column"`
	ChildTable       string                   `json:"child_table" bson:"child_table"`
	ChildFKColumn    string                   `json:"child_fk_column" bson:"child_fk_column"`
	Normalize        bool                     `json:"normalize" bson:"normalize"`
	EnforceUnique    bool                     `json:"enforce_unique" bson:"enforce_unique"`
	ParentIsNew      bool                     `json:"parent_is_new" bson:"parent_is_new"`
	PKStrategy       common_models.PKStrategy `json:"pk_strategy" bson:"pk_strategy"`
}

// ExecutionPlan is the resolved, ready-to-apply output of Resolve. Tables are
// ordered parent before child so foreign keys can be stamped as rows land.
type ExecutionPlan struct {
	SchemaChanges []SchemaChange     `json:"schema_changes" bson:"schema_changes"`
	Tables        []TablePlan        `json:"tables" bson:"tables"`
	Relationships []RelationshipPlan `json:"relationships" bson:"relationships"`
}

// Table returns the plan for the named table, or nil.
func (p *ExecutionPlan) Table(name string) *TablePlan {
	for i := range p.Tables {
		if p.Tables[i].Table == name {
			return &p.Tables[i]
		}
	}
	return nil
}
