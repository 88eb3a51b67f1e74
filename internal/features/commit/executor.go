package commit

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"go-mis/internal/common/errs"
	common_models "go-mis/internal/common/models"
	"go-mis/internal/features/catalog"
	"go-mis/internal/features/resolver"
	"go-mis/internal/features/validation"
)

// Executor applies a resolved plan to the destination store: schema changes
// first in dependency order, then row writes table by table, parents before
// children. Each table's batch runs in its own transaction, so an aborted run
// keeps the tables already committed (per-table partial commit).
type Executor struct {
	Catalog catalog.CatalogService
	Logger  *zap.Logger
}

func NewExecutor(catalogService catalog.CatalogService, logger *zap.Logger) *Executor {
	return &Executor{Catalog: catalogService, Logger: logger}
}

// Execute runs the plan. On failure the returned Result still carries exact
// counts for every batch that started; the caller attaches the error to the
// session rather than discarding it.
func (e *Executor) Execute(
	ctx context.Context,
	connectionID string,
	plan *resolver.ExecutionPlan,
	rows []map[string]string,
	decisions []Decision,
	mode string,
	progress Progress,
) (*Result, error) {
	if mode == "" {
		mode = ModeAppend
	}
	if mode != ModeAppend && mode != ModeReplace && mode != ModeUpsert {
		return nil, errs.New(errs.KindBadRequest, "unknown import mode %q", mode)
	}

	db, conn, err := e.Catalog.DB(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	result := &Result{PerTable: map[string]*TableCounts{}}
	idx := indexDecisions(decisions)

	totalSteps := len(plan.SchemaChanges) + len(plan.Tables)
	step := 0
	report := func() {
		if progress != nil && totalSteps > 0 {
			progress(step * 100 / totalSteps)
		}
	}
	report()

	for _, ch := range plan.SchemaChanges {
		stmt := ddlStatement(conn.Driver, conn.Schema, ch)
		e.Logger.Info("applying schema change",
			zap.String("table", ch.Table), zap.String("kind", string(ch.Kind)))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return result, errs.Wrap(errs.KindImportError, err, "schema change failed").
				With("table", ch.Table).With("change", string(ch.Kind))
		}
		step++
		report()
	}

	// Re-reflect after DDL so new tables and columns are visible.
	defs := map[string]*catalog.TableDefinition{}
	for i := range plan.Tables {
		name := plan.Tables[i].Table
		def, err := e.Catalog.GetTableDefinition(ctx, connectionID, name)
		if err != nil {
			if errs.KindOf(err) == errs.KindNotFound {
				continue
			}
			return result, err
		}
		defs[name] = def
	}

	parentKeys := map[string]map[string]interface{}{}

	for ti := range plan.Tables {
		tp := &plan.Tables[ti]
		counts := &TableCounts{}
		result.PerTable[tp.Table] = counts
		if err := e.commitTable(ctx, db, conn, plan, tp, rows, defs[tp.Table], idx, mode, result, parentKeys); err != nil {
			return result, err
		}
		result.ImportedCount += counts.Inserted + counts.Updated
		step++
		report()
	}
	if progress != nil {
		progress(100)
	}
	return result, nil
}

func (e *Executor) commitTable(
	ctx context.Context,
	db *sql.DB,
	conn *catalog.Connection,
	plan *resolver.ExecutionPlan,
	tp *resolver.TablePlan,
	rows []map[string]string,
	def *catalog.TableDefinition,
	idx decisionIndex,
	mode string,
	result *Result,
	parentKeys map[string]map[string]interface{},
) error {
	counts := result.PerTable[tp.Table]
	driver := conn.Driver
	schema, bare := catalog.SplitTableName(tp.Table, conn.Schema)
	qualified := catalog.QualifyTable(driver, schema, bare)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindImportError, err, "failed to begin transaction").With("table", tp.Table)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	pkCol := "id"
	if def != nil && len(def.PrimaryKey) == 1 {
		pkCol = def.PrimaryKey[0]
	}

	rel := parentRel(plan, tp.Table)
	var gen resolver.KeyGenerator
	if rel != nil {
		seed, err := reserveSeed(ctx, tx, driver, qualified, pkCol, rel.PKStrategy)
		if err != nil {
			return errs.Wrap(errs.KindImportError, err, "failed to reserve key range").With("table", tp.Table)
		}
		gen, err = resolver.NewKeyGenerator(rel.PKStrategy, seed)
		if err != nil {
			return err
		}
		if parentKeys[tp.Table] == nil {
			parentKeys[tp.Table] = map[string]interface{}{}
		}
	}

	existing, err := FetchExisting(ctx, tx, driver, qualified, tp, pkCol)
	if err != nil {
		return errs.Wrap(errs.KindImportError, err, "failed to read existing rows").With("table", tp.Table)
	}

	classified, _ := validation.ClassifyTable(plan, tp, rows, def, existing)
	keyCols, normalize := validation.KeyColumns(plan, tp, def)
	existingByKey := validation.IndexByKey(existing, keyCols, normalize)
	childRels := childRelationships(plan, tp.Table)

	// Lineage joins the result only once the batch commits; a rolled-back
	// batch left nothing behind to undo.
	var lineage []RowRef

	recordParentKey := func(cr *validation.ClassifiedRow, pk interface{}) {
		if rel == nil || cr.NaturalKey == "" || pk == nil {
			return
		}
		folded := cr.NaturalKey
		if rel.Normalize {
			folded = validation.NormalizeKey(cr.NaturalKey)
		}
		parentKeys[tp.Table][folded] = pk
	}

	for i := range classified {
		cr := &classified[i]
		counts.Attempted++
		action := idx.lookup(tp.Table, cr.Row)

		prior := existingByKey[cr.Key]

		asUpdate := false
		switch cr.Class {
		case validation.ClassDuplicate:
			if action != ActionApprove {
				// Skipped parents leave no key, so their child rows are
				// dropped too.
				counts.Skipped++
				continue
			}
			if rel != nil && prior != nil {
				// An approved duplicate parent reuses the existing row;
				// approval means "link children to it", not "insert twice".
				counts.Skipped++
				recordParentKey(cr, prior[pkCol])
				continue
			}
			asUpdate = mode != ModeAppend
		case validation.ClassConflict:
			// Conflicts are never blanket-approved.
			if action != ActionOverride {
				counts.Skipped++
				continue
			}
			asUpdate = rel != nil || mode != ModeAppend
		}

		values := make(map[string]interface{}, len(cr.Values)+len(childRels))
		for k, v := range cr.Values {
			values[k] = v
		}
		if !stampForeignKeys(values, childRels, rows[cr.Row], parentKeys) {
			// Parent row was skipped, so the child cannot link.
			counts.Skipped++
			continue
		}

		if asUpdate && prior != nil {
			if err := updateRow(ctx, tx, driver, qualified, values, keyCols, pkCol, prior[pkCol]); err != nil {
				counts.Failed++
				return errs.Wrap(errs.KindImportError, err, "row update failed").
					With("table", tp.Table).With("row", cr.Row)
			}
			counts.Updated++
			recordParentKey(cr, prior[pkCol])
			continue
		}

		var pk interface{}
		if gen != nil {
			pk = gen.Next()
			if pk != nil {
				values[pkCol] = pk
			}
		}
		wantPK := pk == nil && def != nil && def.Column(pkCol) != nil
		insertedPK, err := insertRow(ctx, tx, driver, qualified, values, pkCol, wantPK)
		if err != nil {
			counts.Failed++
			return errs.Wrap(errs.KindImportError, err, "row insert failed").
				With("table", tp.Table).With("row", cr.Row)
		}
		counts.Inserted++
		if pk == nil {
			pk = insertedPK
		}
		recordParentKey(cr, pk)
		if pk != nil {
			lineage = append(lineage, RowRef{Table: tp.Table, PKColumn: pkCol, PK: pk})
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindImportError, err, "commit failed").With("table", tp.Table)
	}
	committed = true
	result.Lineage = append(result.Lineage, lineage...)
	return nil
}

// DeleteRows removes previously imported rows from one destination table by
// primary key. The whole table's batch runs in a single transaction, chunked
// to keep statements within placeholder limits.
func (e *Executor) DeleteRows(ctx context.Context, connectionID, table, pkCol string, pks []interface{}) (int64, error) {
	if len(pks) == 0 {
		return 0, nil
	}
	db, conn, err := e.Catalog.DB(ctx, connectionID)
	if err != nil {
		return 0, err
	}
	schema, bare := catalog.SplitTableName(table, conn.Schema)
	qualified := catalog.QualifyTable(conn.Driver, schema, bare)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.Wrap(errs.KindImportError, err, "failed to begin transaction").With("table", table)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var total int64
	const chunk = 500
	for start := 0; start < len(pks); start += chunk {
		end := start + chunk
		if end > len(pks) {
			end = len(pks)
		}
		batch := pks[start:end]
		marks := make([]string, len(batch))
		for i := range batch {
			marks[i] = catalog.Placeholder(conn.Driver, i+1)
		}
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
			qualified, catalog.QuoteIdent(conn.Driver, pkCol), strings.Join(marks, ", "))
		res, err := tx.ExecContext(ctx, stmt, batch...)
		if err != nil {
			return 0, errs.Wrap(errs.KindImportError, err, "rollback delete failed").With("table", table)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errs.Wrap(errs.KindImportError, err, "rollback commit failed").With("table", table)
	}
	committed = true
	return total, nil
}

// lockKeyRange serializes synthesized-key reservation per parent table.
// A FOR UPDATE read locks nothing on an empty postgres table, so two
// first-ever commits could both seed 0; a transaction-scoped advisory lock
// covers that case. InnoDB's next-key locking already blocks concurrent
// inserts for the locking reads reserveSeed issues, empty table included.
func lockKeyRange(ctx context.Context, tx *sql.Tx, driver, qualified string) error {
	if driver != "postgresql" {
		return nil
	}
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", qualified)
	return err
}

// reserveSeed reads the current high-water mark for synthesized keys, held
// under lockKeyRange for the rest of the transaction so concurrent commits
// against the same parent table cannot hand out colliding keys.
func reserveSeed(ctx context.Context, tx *sql.Tx, driver, qualified, pkCol string, strategy common_models.PKStrategy) (int64, error) {
	switch strategy.Mode {
	case common_models.PKMaxPlusOne, common_models.PKPattern:
		if err := lockKeyRange(ctx, tx, driver, qualified); err != nil {
			return 0, err
		}
	default:
		return 0, nil
	}

	lock := ""
	if driver == "mysql" || driver == "postgresql" {
		lock = " FOR UPDATE"
	}

	if strategy.Mode == common_models.PKMaxPlusOne {
		q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT 1%s",
			catalog.QuoteIdent(driver, pkCol), qualified, catalog.QuoteIdent(driver, pkCol), lock)
		var max sql.NullInt64
		err := tx.QueryRowContext(ctx, q).Scan(&max)
		if err == sql.ErrNoRows {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return max.Int64, nil
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIKE %s%s",
		catalog.QuoteIdent(driver, pkCol), qualified, catalog.QuoteIdent(driver, pkCol),
		catalog.Placeholder(driver, 1), lock)
	rows, err := tx.QueryContext(ctx, q, strategy.Prefix+"%")
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return 0, err
		}
		keys = append(keys, k)
	}
	return patternSeed(keys, strategy.Prefix), rows.Err()
}

// patternSeed recovers the numeric high-water mark from existing patterned
// keys. Counting rows would re-issue keys after deletions, so the seed is
// the largest numeric suffix that parses under the prefix.
func patternSeed(keys []string, prefix string) int64 {
	var max int64
	for _, k := range keys {
		suffix := strings.TrimPrefix(k, prefix)
		if suffix == k {
			continue
		}
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil || n <= max {
			continue
		}
		max = n
	}
	return max
}

// Querier abstracts *sql.DB and *sql.Tx for reads.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// FetchExisting reads the rule columns plus the primary key for every row of
// the table. The executor calls it inside the batch transaction; validation
// calls it with a plain handle for preview classification.
func FetchExisting(ctx context.Context, q Querier, driver, qualified string, tp *resolver.TablePlan, pkCol string) ([]map[string]interface{}, error) {
	if tp.IsNew {
		// A table created in this run is empty.
		return nil, nil
	}
	cols := []string{pkCol}
	seen := map[string]bool{pkCol: true}
	for _, rule := range tp.Rules {
		if rule.Kind == resolver.RuleForeignKey || seen[rule.Column] {
			continue
		}
		seen[rule.Column] = true
		cols = append(cols, rule.Column)
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = catalog.QuoteIdent(driver, c)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), qualified)
	rows, err := q.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		for i := range raw {
			raw[i] = new(interface{})
		}
		if err := rows.Scan(raw...); err != nil {
			return nil, err
		}
		row := map[string]interface{}{}
		for i, c := range cols {
			v := *(raw[i].(*interface{}))
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[c] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// stampForeignKeys fills in child fk columns from resolved parent keys.
// Returns false when a needed parent key is unavailable.
func stampForeignKeys(values map[string]interface{}, childRels []*resolver.RelationshipPlan, row map[string]string, parentKeys map[string]map[string]interface{}) bool {
	for _, rel := range childRels {
		nk := strings.TrimSpace(row[rel.NaturalKeyColumn])
		if nk == "" {
			return false
		}
		folded := nk
		if rel.Normalize {
			folded = validation.NormalizeKey(nk)
		}
		pk, ok := parentKeys[rel.ParentTable][folded]
		if !ok {
			return false
		}
		values[rel.ChildFKColumn] = pk
	}
	return true
}

func insertRow(ctx context.Context, tx *sql.Tx, driver, qualified string, values map[string]interface{}, pkCol string, wantPK bool) (interface{}, error) {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	stmt := insertSQL(driver, qualified, cols)

	if wantPK {
		if driver == "mysql" {
			res, err := tx.ExecContext(ctx, stmt, args...)
			if err != nil {
				return nil, err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return nil, err
			}
			return id, nil
		}
		stmt += " RETURNING " + catalog.QuoteIdent(driver, pkCol)
		var pk interface{}
		if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&pk); err != nil {
			return nil, err
		}
		return pk, nil
	}
	_, err := tx.ExecContext(ctx, stmt, args...)
	return nil, err
}

func updateRow(ctx context.Context, tx *sql.Tx, driver, qualified string, values map[string]interface{}, keyCols []string, pkCol string, pk interface{}) error {
	keySet := map[string]bool{pkCol: true}
	for _, c := range keyCols {
		keySet[c] = true
	}
	var setCols []string
	for c := range values {
		if !keySet[c] {
			setCols = append(setCols, c)
		}
	}
	if len(setCols) == 0 {
		return nil
	}
	sort.Strings(setCols)
	args := make([]interface{}, 0, len(setCols)+1)
	for _, c := range setCols {
		args = append(args, values[c])
	}
	args = append(args, pk)
	stmt := updateSQL(driver, qualified, setCols, []string{pkCol})
	_, err := tx.ExecContext(ctx, stmt, args...)
	return err
}

func parentRel(plan *resolver.ExecutionPlan, table string) *resolver.RelationshipPlan {
	for i := range plan.Relationships {
		if plan.Relationships[i].ParentTable == table {
			return &plan.Relationships[i]
		}
	}
	return nil
}

func childRelationships(plan *resolver.ExecutionPlan, table string) []*resolver.RelationshipPlan {
	var rels []*resolver.RelationshipPlan
	for i := range plan.Relationships {
		if plan.Relationships[i].ChildTable == table {
			rels = append(rels, &plan.Relationships[i])
		}
	}
	return rels
}

