package resolver

import (
	"sort"

	"go-mis/internal/common/errs"
	common_models "go-mis/internal/common/models"
	"go-mis/internal/features/catalog"
	"go-mis/pkg/utils"
)

// Resolve turns a header mapping plus relationship declarations into an
// ExecutionPlan against the known destination schema. It assigns every
// create_table/create_column request a concrete identity (entries sharing a
// client_id land on the same physical table), orders schema changes so parent
// tables exist before the columns and constraints that reference them, and
// orders table writes parent before child.
//
// Resolve is structural only: it never touches file rows. Row-dependent rules
// (natural key ambiguity, duplicates) belong to validation.
func Resolve(
	mapping map[string]common_models.ColumnMappingEntry,
	relationships []common_models.RelationshipSpec,
	known map[string]*catalog.TableDefinition,
) (*ExecutionPlan, error) {
	if len(mapping) == 0 {
		return nil, errs.New(errs.KindEmptyMapping, "no columns mapped")
	}

	headers := make([]string, 0, len(mapping))
	for h := range mapping {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	for _, h := range headers {
		entry := mapping[h]
		if err := entry.Validate(); err != nil {
			return nil, errs.Wrap(errs.KindBadRequest, err, "invalid mapping entry").
				With("header", h)
		}
	}
	for i := range relationships {
		if err := relationships[i].Validate(); err != nil {
			return nil, errs.Wrap(errs.KindBadRequest, err, "invalid relationship")
		}
	}

	// Pass 1: new tables, keyed by client id.
	type newTable struct {
		name string
		role string
	}
	newByClientID := map[string]newTable{}
	newTableOrder := []string{}
	newTables := map[string]bool{}
	for _, h := range headers {
		entry := mapping[h]
		if entry.Kind != common_models.MappingCreateTable {
			continue
		}
		name := utils.TableIdent(entry.TableRole, entry.Label)
		if prev, ok := newByClientID[entry.ClientID]; ok {
			if prev.name != name {
				return nil, errs.New(errs.KindBadRequest, "client_id declared twice with different tables").
					With("client_id", entry.ClientID).
					With("tables", []string{prev.name, name})
			}
			continue
		}
		if _, exists := known[name]; exists {
			return nil, errs.New(errs.KindNameConflict, "proposed table already exists").
				With("table", name)
		}
		newByClientID[entry.ClientID] = newTable{name: name, role: entry.TableRole}
		newTableOrder = append(newTableOrder, entry.ClientID)
		newTables[name] = true
	}

	tableExists := func(name string) bool {
		if newTables[name] {
			return true
		}
		_, ok := known[name]
		return ok
	}

	// Pass 2: per-table value rules.
	plans := map[string]*TablePlan{}
	planOrder := []string{}
	planFor := func(table string, isNew bool, role string) *TablePlan {
		if p, ok := plans[table]; ok {
			return p
		}
		p := &TablePlan{Table: table, IsNew: isNew, Role: role}
		plans[table] = p
		planOrder = append(planOrder, table)
		return p
	}

	var columnChanges []SchemaChange
	for _, h := range headers {
		entry := mapping[h]
		switch entry.Kind {
		case common_models.MappingExisting:
			if !tableExists(entry.TargetTable) {
				return nil, errs.New(errs.KindUnresolvedReference, "mapping targets an unknown table").
					With("header", h).With("table", entry.TargetTable)
			}
			p := planFor(entry.TargetTable, newTables[entry.TargetTable], "")
			colType := ""
			if def, ok := known[entry.TargetTable]; ok {
				if col := def.Column(entry.TargetColumn); col != nil {
					colType = col.DataType
				}
			}
			p.Rules = append(p.Rules, ValueRule{
				Kind: RuleCopy, Column: entry.TargetColumn, ColumnType: colType, SourceHeader: h,
			})

		case common_models.MappingCreateTable:
			nt := newByClientID[entry.ClientID]
			column := utils.SnakeIdent(h, 63)
			p := planFor(nt.name, true, nt.role)
			p.Rules = append(p.Rules, ValueRule{
				Kind:         RuleCopy,
				Column:       column,
				ColumnType:   catalog.TypeText,
				SourceHeader: h,
			})
			columnChanges = append(columnChanges, SchemaChange{
				Kind: ChangeCreateColumn, Table: nt.name, Column: column, ColumnType: catalog.TypeText,
			})

		case common_models.MappingCreateColumn:
			table := entry.Table
			isNew := false
			role := ""
			if entry.TableClientID != "" {
				nt, ok := newByClientID[entry.TableClientID]
				if !ok {
					return nil, errs.New(errs.KindUnresolvedReference, "create_column references an undeclared table client_id").
						With("header", h).With("table_client_id", entry.TableClientID)
				}
				table, isNew, role = nt.name, true, nt.role
			} else if !tableExists(table) {
				return nil, errs.New(errs.KindUnresolvedReference, "create_column targets an unknown table").
					With("header", h).With("table", table)
			} else {
				isNew = newTables[table]
			}
			colType := entry.ColumnType
			if colType == "" {
				colType = catalog.TypeText
			}
			column := utils.SnakeIdent(entry.Label, 63)
			p := planFor(table, isNew, role)
			p.Rules = append(p.Rules, ValueRule{
				Kind: RuleCopy, Column: column, ColumnType: colType, SourceHeader: h,
			})
			columnChanges = append(columnChanges, SchemaChange{
				Kind: ChangeCreateColumn, Table: table, Column: column, ColumnType: colType,
			})

		case common_models.MappingFill:
			if !tableExists(entry.TargetTable) {
				if nt, ok := newByClientID[entry.TargetTable]; ok {
					entry.TargetTable = nt.name
				} else {
					return nil, errs.New(errs.KindUnresolvedReference, "fill targets an unknown table").
						With("header", h).With("table", entry.TargetTable)
				}
			}
			p := planFor(entry.TargetTable, newTables[entry.TargetTable], "")
			rule := ValueRule{Column: entry.TargetColumn}
			if entry.FillMode == common_models.FillAutoSequence {
				rule.Kind = RuleAutoSequence
				rule.ColumnType = catalog.TypeInteger
			} else {
				rule.Kind = RuleConstant
				rule.Constant = entry.FillValue
			}
			p.Rules = append(p.Rules, rule)
		}
	}

	// Pass 3: relationships. Parent/child must resolve to plan or known tables,
	// the natural key must be a mapped header, and the parent/child graph must
	// be acyclic.
	resolveTable := func(name string) (string, bool, error) {
		if nt, ok := newByClientID[name]; ok {
			return nt.name, true, nil
		}
		if tableExists(name) {
			return name, newTables[name], nil
		}
		return "", false, errs.New(errs.KindUnresolvedReference, "relationship references an unknown table").
			With("table", name)
	}

	var relPlans []RelationshipPlan
	edges := map[string][]string{}
	for i := range relationships {
		rel := relationships[i]
		parent, parentNew, err := resolveTable(rel.ParentTable)
		if err != nil {
			return nil, err
		}
		child, childNew, err := resolveTable(rel.ChildTable)
		if err != nil {
			return nil, err
		}
		if _, ok := mapping[rel.NaturalKeyColumn]; !ok {
			return nil, errs.New(errs.KindUnresolvedReference, "natural key column is not a mapped file header").
				With("natural_key_column", rel.NaturalKeyColumn)
		}
		fkColumn := rel.ChildFKColumn
		if fkColumn == "" {
			fkColumn = utils.SnakeIdent(parent, 60) + "_id"
		}
		relPlans = append(relPlans, RelationshipPlan{
			ParentTable:      parent,
			NaturalKeyColumn: rel.NaturalKeyColumn,
			ChildTable:       child,
			ChildFKColumn:    fkColumn,
			Normalize:        rel.NKNormalize,
			EnforceUnique:    rel.EnforceUnique,
			ParentIsNew:      parentNew,
			PKStrategy:       rel.PKStrategy,
		})
		edges[parent] = append(edges[parent], child)

		// Child tables pulled in only through a relationship still need a plan
		// so the fk column write is accounted for.
		planFor(parent, parentNew, "")
		cp := planFor(child, childNew, "")
		cp.Rules = append(cp.Rules, ValueRule{
			Kind: RuleForeignKey, Column: fkColumn, Relationship: parent,
			ColumnType: fkColumnType(rel.PKStrategy, known[parent]),
		})
		columnChanges = append(columnChanges, SchemaChange{
			Kind: ChangeCreateColumn, Table: child, Column: fkColumn,
			ColumnType: fkColumnType(rel.PKStrategy, known[parent]),
		})
	}

	ordered, err := orderTables(planOrder, edges)
	if err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{Relationships: relPlans}
	for _, name := range ordered {
		plan.Tables = append(plan.Tables, *plans[name])
	}

	// New parent tables keyed by a string-minting strategy need a text pk
	// instead of the default autoincrement.
	pkTypes := map[string]string{}
	for _, rp := range relPlans {
		if !rp.ParentIsNew {
			continue
		}
		switch rp.PKStrategy.Mode {
		case common_models.PKUUID, common_models.PKPattern:
			pkTypes[rp.ParentTable] = catalog.TypeText
		}
	}

	// Schema changes: new tables in write order, then columns, then indexes
	// and fk constraints.
	for _, name := range ordered {
		if newTables[name] {
			plan.SchemaChanges = append(plan.SchemaChanges, SchemaChange{
				Kind: ChangeCreateTable, Table: name, TableRole: plans[name].Role,
				ColumnType: pkTypes[name],
			})
		}
	}
	plan.SchemaChanges = append(plan.SchemaChanges, dedupeColumnChanges(columnChanges, known)...)
	for i := range relationships {
		rel := relationships[i]
		rp := relPlans[i]
		if rel.AddIndex {
			plan.SchemaChanges = append(plan.SchemaChanges, SchemaChange{
				Kind: ChangeAddIndex, Table: rp.ChildTable, Column: rp.ChildFKColumn,
			})
		}
		if rel.AddFKConstraint {
			plan.SchemaChanges = append(plan.SchemaChanges, SchemaChange{
				Kind:      ChangeAddFKConstraint,
				Table:     rp.ChildTable,
				Column:    rp.ChildFKColumn,
				RefTable:  rp.ParentTable,
				RefColumn: parentPKColumn(known[rp.ParentTable]),
			})
		}
	}
	return plan, nil
}

// orderTables topologically sorts tables with parents before children.
// A cycle among the relationship edges is a resolution failure.
func orderTables(tables []string, edges map[string][]string) ([]string, error) {
	indegree := map[string]int{}
	for _, t := range tables {
		indegree[t] = 0
	}
	for _, children := range edges {
		for _, c := range children {
			if _, ok := indegree[c]; ok {
				indegree[c]++
			}
		}
	}
	// Stable: scan declaration order each round.
	var ordered []string
	done := map[string]bool{}
	for len(ordered) < len(tables) {
		progressed := false
		for _, t := range tables {
			if done[t] || indegree[t] > 0 {
				continue
			}
			done[t] = true
			ordered = append(ordered, t)
			for _, c := range edges[t] {
				if _, ok := indegree[c]; ok {
					indegree[c]--
				}
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, t := range tables {
				if !done[t] {
					stuck = append(stuck, t)
				}
			}
			return nil, errs.New(errs.KindCyclicRelationship, "relationships form a parent/child cycle").
				With("tables", stuck)
		}
	}
	return ordered, nil
}

// dedupeColumnChanges drops create_column steps that duplicate each other or
// name a column the destination table already has.
func dedupeColumnChanges(changes []SchemaChange, known map[string]*catalog.TableDefinition) []SchemaChange {
	seen := map[string]bool{}
	var out []SchemaChange
	for _, ch := range changes {
		key := ch.Table + "\x00" + ch.Column
		if seen[key] {
			continue
		}
		seen[key] = true
		if def, ok := known[ch.Table]; ok && def.Column(ch.Column) != nil {
			continue
		}
		out = append(out, ch)
	}
	return out
}

func parentPKColumn(def *catalog.TableDefinition) string {
	if def != nil && len(def.PrimaryKey) == 1 {
		return def.PrimaryKey[0]
	}
	return "id"
}

// fkColumnType picks the logical type of a synthesized child fk column.
// uuid and pattern strategies mint string keys, so the fk column must be
// text. For auto and max_plus_one the reflected parent pk type wins when
// the parent already exists; new parents get an integer pk.
func fkColumnType(strategy common_models.PKStrategy, parentDef *catalog.TableDefinition) string {
	switch strategy.Mode {
	case common_models.PKUUID, common_models.PKPattern:
		return catalog.TypeText
	}
	if parentDef != nil {
		if col := parentDef.Column(parentPKColumn(parentDef)); col != nil && col.DataType != "" {
			return col.DataType
		}
	}
	return catalog.TypeInteger
}
