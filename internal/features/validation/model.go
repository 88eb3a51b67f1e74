package validation

import "go-mis/internal/common/errs"

// Issue is one validation finding. Row is zero-based into the file's data
// rows, or -1 for findings not tied to a row (missing required columns).
type Issue struct {
	Kind    errs.Kind `json:"kind" bson:"kind"`
	Table   string    `json:"table,omitempty" bson:"table,omitempty"`
	Column  string    `json:"column,omitempty" bson:"column,omitempty"`
	Row     int       `json:"row" bson:"row"`
	Message string    `json:"message" bson:"message"`
}

// RowSample is one classified row kept for preview. Values hold the derived
// destination column values, Key the duplicate-sensitive key it clashed on.
type RowSample struct {
	Row    int                    `json:"row" bson:"row"`
	Key    string                 `json:"key,omitempty" bson:"key,omitempty"`
	Values map[string]interface{} `json:"values" bson:"values"`
}

// TableOutcome classifies every candidate row for one destination table.
// Counts are always exact; samples are capped for UI responsiveness.
type TableOutcome struct {
	Table            string      `json:"table" bson:"table"`
	IsNew            bool        `json:"is_new" bson:"is_new"`
	ToInsert         int         `json:"to_insert" bson:"to_insert"`
	Duplicates       int         `json:"duplicates" bson:"duplicates"`
	Conflicts        int         `json:"conflicts" bson:"conflicts"`
	InsertSamples    []RowSample `json:"insert_samples,omitempty" bson:"insert_samples,omitempty"`
	DuplicateSamples []RowSample `json:"duplicate_samples,omitempty" bson:"duplicate_samples,omitempty"`
	ConflictSamples  []RowSample `json:"conflict_samples,omitempty" bson:"conflict_samples,omitempty"`
}

// MasterDataValue is a natural-key value a relationship parent would insert
// into an already-populated reference table. Each needs master-data approval
// before it silently becomes canonical.
type MasterDataValue struct {
	Table string `json:"table" bson:"table"`
	Value string `json:"value" bson:"value"`
}

// ValidationOutcome is the full result of a validation pass. Errors block the
// approval gate; warnings do not. Partial results are kept even when blocking
// errors exist.
type ValidationOutcome struct {
	Errors     []Issue           `json:"errors" bson:"errors"`
	Warnings   []Issue           `json:"warnings" bson:"warnings"`
	Tables     []TableOutcome    `json:"tables" bson:"tables"`
	MasterData []MasterDataValue `json:"master_data,omitempty" bson:"master_data,omitempty"`
	RowCount   int               `json:"row_count" bson:"row_count"`
}

func (o *ValidationOutcome) HasBlockingErrors() bool { return len(o.Errors) > 0 }

// Table returns the outcome for the named table, or nil.
func (o *ValidationOutcome) Table(name string) *TableOutcome {
	for i := range o.Tables {
		if o.Tables[i].Table == name {
			return &o.Tables[i]
		}
	}
	return nil
}
