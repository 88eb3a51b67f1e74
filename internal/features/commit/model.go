package commit

import "strconv"

// Import modes control what an approved duplicate does to the row already in
// the destination table.
const (
	ModeAppend  = "append"  // insert regardless, keeping the existing row
	ModeReplace = "replace" // overwrite the existing row's non-key values
	ModeUpsert  = "upsert"  // same as replace for matches, insert otherwise
)

const (
	ActionApprove  = "approve"
	ActionSkip     = "skip"
	ActionOverride = "override" // required for conflict rows
)

// Decision is a per-row resolution recorded before commit. Row indexes the
// file's data rows. An empty Table applies the decision to every table the
// row lands in.
type Decision struct {
	Table  string `json:"table,omitempty" bson:"table,omitempty"`
	Row    int    `json:"row" bson:"row"`
	Action string `json:"action" bson:"action"`
}

// TableCounts accounts exactly for every attempted row in one table's batch.
type TableCounts struct {
	Attempted int `json:"attempted" bson:"attempted"`
	Inserted  int `json:"inserted" bson:"inserted"`
	Updated   int `json:"updated" bson:"updated"`
	Skipped   int `json:"skipped" bson:"skipped"`
	Failed    int `json:"failed" bson:"failed"`
}

// RowRef points at one row the run inserted, by primary key. Rows whose
// key could not be read back are not referenced and cannot be rolled back.
type RowRef struct {
	Table    string      `json:"table" bson:"table"`
	PKColumn string      `json:"pk_column" bson:"pk_column"`
	PK       interface{} `json:"pk" bson:"pk"`
}

// Result is the outcome of a commit run. PerTable is populated for every
// table whose batch started, including a batch that failed partway, and
// Lineage references every inserted row so a completed run can be undone.
type Result struct {
	ImportedCount int                     `json:"imported_count" bson:"imported_count"`
	PerTable      map[string]*TableCounts `json:"per_table_counts" bson:"per_table_counts"`
	Lineage       []RowRef                `json:"-" bson:"-"`
}

// Progress reports running completion in percent, 0 to 100.
type Progress func(percent int)

type decisionIndex map[string]string

func indexDecisions(decisions []Decision) decisionIndex {
	idx := decisionIndex{}
	for _, d := range decisions {
		idx[decisionKey(d.Table, d.Row)] = d.Action
	}
	return idx
}

func (idx decisionIndex) lookup(table string, row int) string {
	if a, ok := idx[decisionKey(table, row)]; ok {
		return a
	}
	return idx[decisionKey("", row)]
}

func decisionKey(table string, row int) string {
	return table + "\x00" + strconv.Itoa(row)
}
