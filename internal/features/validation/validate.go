package validation

import (
	"fmt"
	"strings"

	"go-mis/internal/common/errs"
	"go-mis/internal/features/catalog"
	"go-mis/internal/features/resolver"
)

const keySep = "\x1f"

type RowClass string

const (
	ClassInsert    RowClass = "to_insert"
	ClassDuplicate RowClass = "duplicate"
	ClassConflict  RowClass = "conflict"
)

// ClassifiedRow is one candidate destination row with its derived values and
// duplicate classification. Row indexes the file's data rows; NaturalKey is
// the raw natural key value for relationship parents, empty otherwise.
type ClassifiedRow struct {
	Row        int
	Class      RowClass
	Key        string
	NaturalKey string
	Values     map[string]interface{}
}

// Validate type-checks and classifies every candidate row against the plan.
// rows are the file's data rows keyed by header; existing holds the
// destination rows already committed, keyed by table, as fetched by the
// caller. Validate never touches the destination store itself.
func Validate(
	plan *resolver.ExecutionPlan,
	rows []map[string]string,
	defs map[string]*catalog.TableDefinition,
	existing map[string][]map[string]interface{},
	sampleLimit int,
) *ValidationOutcome {
	out := &ValidationOutcome{RowCount: len(rows)}
	if sampleLimit <= 0 {
		sampleLimit = 50
	}

	for ti := range plan.Tables {
		tp := &plan.Tables[ti]
		def := defs[tp.Table]
		checkRequiredColumns(out, tp, def)

		classified, issues := ClassifyTable(plan, tp, rows, def, existing[tp.Table])
		for _, iss := range issues {
			if iss.Kind == errs.KindBadRequest || iss.Kind == errs.KindMasterDataApproval {
				out.Warnings = append(out.Warnings, iss)
			} else {
				out.Errors = append(out.Errors, iss)
			}
		}

		// A value new to a populated parent table is pending master data:
		// surfaced as a warning and collected for candidate review.
		rel := parentRelationship(plan, tp.Table)
		if rel != nil && !tp.IsNew {
			seenMD := map[string]bool{}
			for _, cr := range classified {
				if cr.Class != ClassInsert || cr.NaturalKey == "" || seenMD[cr.Key] {
					continue
				}
				seenMD[cr.Key] = true
				out.MasterData = append(out.MasterData, MasterDataValue{Table: tp.Table, Value: cr.NaturalKey})
				out.Warnings = append(out.Warnings, Issue{
					Kind: errs.KindMasterDataApproval, Table: tp.Table, Column: rel.NaturalKeyColumn,
					Row: cr.Row, Message: fmt.Sprintf("value %q requires master-data approval", cr.NaturalKey),
				})
			}
		}

		to := TableOutcome{Table: tp.Table, IsNew: tp.IsNew}
		for _, cr := range classified {
			sample := RowSample{Row: cr.Row, Key: cr.Key, Values: cr.Values}
			switch cr.Class {
			case ClassDuplicate:
				to.Duplicates++
				if len(to.DuplicateSamples) < sampleLimit {
					to.DuplicateSamples = append(to.DuplicateSamples, sample)
				}
			case ClassConflict:
				to.Conflicts++
				if len(to.ConflictSamples) < sampleLimit {
					to.ConflictSamples = append(to.ConflictSamples, sample)
				}
			default:
				to.ToInsert++
				if len(to.InsertSamples) < sampleLimit {
					to.InsertSamples = append(to.InsertSamples, sample)
				}
			}
		}
		out.Tables = append(out.Tables, to)
	}
	return out
}

// ClassifyTable derives destination values for every row of one table plan
// and classifies each candidate as insert, duplicate or conflict against both
// the destination rows and earlier rows in the same file. For a relationship
// parent, rows collapse to one candidate per distinct natural key value; keys
// whose rows disagree on non-key values yield AmbiguousNaturalKey issues when
// the relationship enforces uniqueness.
//
// The commit executor runs the same classification against fresh destination
// rows, so validation preview and commit agree by construction.
func ClassifyTable(
	plan *resolver.ExecutionPlan,
	tp *resolver.TablePlan,
	rows []map[string]string,
	def *catalog.TableDefinition,
	existing []map[string]interface{},
) ([]ClassifiedRow, []Issue) {
	var issues []Issue
	rel := parentRelationship(plan, tp.Table)
	keyCols, normalize := duplicateKey(tp, def, rel)

	var cands []ClassifiedRow
	seenNK := map[string]int{}
	for ri, row := range rows {
		values := map[string]interface{}{}
		for _, rule := range tp.Rules {
			switch rule.Kind {
			case resolver.RuleCopy:
				v, err := Coerce(row[rule.SourceHeader], rule.ColumnType)
				if err != nil {
					issues = append(issues, Issue{
						Kind: errs.KindTypeMismatch, Table: tp.Table, Column: rule.Column,
						Row: ri, Message: err.Error(),
					})
					continue
				}
				values[rule.Column] = v
			case resolver.RuleConstant:
				values[rule.Column] = rule.Constant
			case resolver.RuleAutoSequence:
				values[rule.Column] = int64(ri + 1)
			case resolver.RuleForeignKey:
				// Stamped at commit time from the resolved parent key.
			}
		}

		if rel == nil || rel.ParentTable != tp.Table {
			cands = append(cands, ClassifiedRow{Row: ri, Values: values})
			continue
		}

		nk := strings.TrimSpace(row[rel.NaturalKeyColumn])
		if nk == "" {
			issues = append(issues, Issue{
				Kind: errs.KindBadRequest, Table: tp.Table, Column: rel.NaturalKeyColumn,
				Row: ri, Message: "empty natural key value, row will not resolve a parent",
			})
			continue
		}
		folded := nk
		if rel.Normalize {
			folded = NormalizeKey(nk)
		}
		if prev, ok := seenNK[folded]; ok {
			if sameValues(cands[prev].Values, values) {
				// Same parent row, collapse.
				continue
			}
			if rel.EnforceUnique {
				issues = append(issues, Issue{
					Kind: errs.KindAmbiguousNaturalKey, Table: tp.Table, Row: ri,
					Message: fmt.Sprintf("natural key %q maps to differing rows in the file", nk),
				})
				continue
			}
			// Differing payload without uniqueness enforcement is surfaced
			// as a conflict candidate, never silently merged.
			cands = append(cands, ClassifiedRow{Row: ri, NaturalKey: nk, Values: values})
			continue
		}
		seenNK[folded] = len(cands)
		cands = append(cands, ClassifiedRow{Row: ri, NaturalKey: nk, Values: values})
	}

	existingByKey := indexExisting(existing, keyCols, normalize)
	seen := map[string]map[string]interface{}{}
	for i := range cands {
		cr := &cands[i]
		cr.Key = rowKey(cr.Values, keyCols, normalize)
		switch {
		case len(keyCols) == 0 || cr.Key == "":
			cr.Class = ClassInsert
		case existingByKey[cr.Key] == nil && seen[cr.Key] == nil:
			cr.Class = ClassInsert
		case payloadMatches(cr.Values, existingByKey[cr.Key], seen[cr.Key], keyCols):
			cr.Class = ClassDuplicate
		default:
			cr.Class = ClassConflict
		}
		if cr.Key != "" && seen[cr.Key] == nil {
			seen[cr.Key] = cr.Values
		}
	}
	return cands, issues
}

// KeyColumns exposes the duplicate-sensitive key columns for a table plan and
// whether key comparison folds case and whitespace.
func KeyColumns(plan *resolver.ExecutionPlan, tp *resolver.TablePlan, def *catalog.TableDefinition) ([]string, bool) {
	return duplicateKey(tp, def, parentRelationship(plan, tp.Table))
}

// IndexByKey indexes destination rows by the duplicate-sensitive key. First
// row wins on a clash.
func IndexByKey(rows []map[string]interface{}, keyCols []string, normalize bool) map[string]map[string]interface{} {
	return indexExisting(rows, keyCols, normalize)
}

// checkRequiredColumns reports one error per required destination column that
// no rule writes. New tables have no pre-existing requirements.
func checkRequiredColumns(out *ValidationOutcome, tp *resolver.TablePlan, def *catalog.TableDefinition) {
	if def == nil {
		return
	}
	fkCols := map[string]bool{}
	for _, rule := range tp.Rules {
		if rule.Kind == resolver.RuleForeignKey {
			fkCols[rule.Column] = true
		}
	}
	for i := range def.Columns {
		col := &def.Columns[i]
		if col.Nullable || col.IsAutoInc || fkCols[col.Name] {
			continue
		}
		if col.IsPrimaryKey && len(def.PrimaryKey) == 1 && tp.Rule(col.Name) == nil {
			// Single-column pk is assumed destination-assigned unless mapped.
			continue
		}
		if tp.Rule(col.Name) == nil {
			out.Errors = append(out.Errors, Issue{
				Kind: errs.KindRequiredColumnMissing, Table: tp.Table, Column: col.Name, Row: -1,
				Message: fmt.Sprintf("required column %q has no mapped header and no fill strategy", col.Name),
			})
		}
	}
}

func parentRelationship(plan *resolver.ExecutionPlan, table string) *resolver.RelationshipPlan {
	for i := range plan.Relationships {
		if plan.Relationships[i].ParentTable == table {
			return &plan.Relationships[i]
		}
	}
	return nil
}

// duplicateKey picks the columns duplicate detection compares on: the natural
// key column for a relationship parent, else the first unique constraint the
// plan fully writes.
func duplicateKey(tp *resolver.TablePlan, def *catalog.TableDefinition, rel *resolver.RelationshipPlan) ([]string, bool) {
	if rel != nil && rel.ParentTable == tp.Table {
		for _, rule := range tp.Rules {
			if rule.Kind == resolver.RuleCopy && rule.SourceHeader == rel.NaturalKeyColumn {
				return []string{rule.Column}, rel.Normalize
			}
		}
	}
	if def == nil {
		return nil, false
	}
	for _, uc := range def.UniqueConstraints {
		covered := true
		for _, c := range uc {
			if tp.Rule(c) == nil {
				covered = false
				break
			}
		}
		if covered {
			return uc, false
		}
	}
	return nil, false
}

func rowKey(values map[string]interface{}, keyCols []string, normalize bool) string {
	if len(keyCols) == 0 {
		return ""
	}
	parts := make([]string, len(keyCols))
	for i, c := range keyCols {
		v := values[c]
		if v == nil {
			return ""
		}
		if normalize {
			parts[i] = NormalizeKey(v)
		} else {
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return strings.Join(parts, keySep)
}

func indexExisting(rows []map[string]interface{}, keyCols []string, normalize bool) map[string]map[string]interface{} {
	idx := map[string]map[string]interface{}{}
	if len(keyCols) == 0 {
		return idx
	}
	for _, row := range rows {
		if key := rowKey(row, keyCols, normalize); key != "" {
			if _, ok := idx[key]; !ok {
				idx[key] = row
			}
		}
	}
	return idx
}

// payloadMatches reports whether the candidate's non-key values agree with
// whichever prior row shares its key. Agreement means duplicate; disagreement
// means conflict.
func payloadMatches(values, existingRow, fileRow map[string]interface{}, keyCols []string) bool {
	prior := existingRow
	if prior == nil {
		prior = fileRow
	}
	if prior == nil {
		return false
	}
	keySet := map[string]bool{}
	for _, c := range keyCols {
		keySet[c] = true
	}
	for col, v := range values {
		if keySet[col] {
			continue
		}
		pv, ok := prior[col]
		if !ok {
			continue
		}
		if fmt.Sprintf("%v", pv) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

func sameValues(a, b map[string]interface{}) bool {
	for col, v := range a {
		if bv, ok := b[col]; ok && fmt.Sprintf("%v", bv) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}
