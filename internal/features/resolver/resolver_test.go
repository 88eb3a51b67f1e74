package resolver

import (
	"testing"

	"go-mis/internal/common/errs"
	common_models "go-mis/internal/common/models"
	"go-mis/internal/features/catalog"
)

func knownSchema() map[string]*catalog.TableDefinition {
	return map[string]*catalog.TableDefinition{
		"fact_sales": {
			TableName: "fact_sales",
			Columns: []catalog.Column{
				{Name: "id", DataType: catalog.TypeInteger, IsPrimaryKey: true, IsAutoInc: true},
				{Name: "amount", DataType: catalog.TypeNumber},
				{Name: "sold_at", DataType: catalog.TypeDate},
			},
			PrimaryKey: []string{"id"},
		},
		"ref_buyers": {
			TableName: "ref_buyers",
			Columns: []catalog.Column{
				{Name: "id", DataType: catalog.TypeInteger, IsPrimaryKey: true, IsAutoInc: true},
				{Name: "name", DataType: catalog.TypeText, IsUnique: true},
			},
			PrimaryKey:        []string{"id"},
			UniqueConstraints: [][]string{{"name"}},
		},
	}
}

func TestResolveExistingMapping(t *testing.T) {
	mapping := map[string]common_models.ColumnMappingEntry{
		"Amount":  {Kind: common_models.MappingExisting, TargetTable: "fact_sales", TargetColumn: "amount"},
		"Sold At": {Kind: common_models.MappingExisting, TargetTable: "fact_sales", TargetColumn: "sold_at"},
	}
	plan, err := Resolve(mapping, nil, knownSchema())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.SchemaChanges) != 0 {
		t.Fatalf("expected no schema changes, got %v", plan.SchemaChanges)
	}
	tp := plan.Table("fact_sales")
	if tp == nil || len(tp.Rules) != 2 {
		t.Fatalf("expected fact_sales plan with 2 rules, got %+v", tp)
	}
	rule := tp.Rule("amount")
	if rule == nil || rule.Kind != RuleCopy || rule.SourceHeader != "Amount" {
		t.Fatalf("unexpected amount rule %+v", rule)
	}
	if rule.ColumnType != catalog.TypeNumber {
		t.Fatalf("expected column type from catalog, got %q", rule.ColumnType)
	}
}

func TestResolveClientIDMerging(t *testing.T) {
	mapping := map[string]common_models.ColumnMappingEntry{
		"Region": {Kind: common_models.MappingCreateTable, TableRole: common_models.TableRoleRef,
			Label: "Regions", ClientID: "t1"},
		"Region Code": {Kind: common_models.MappingCreateColumn, Label: "Code", TableClientID: "t1",
			ColumnType: catalog.TypeText},
	}
	plan, err := Resolve(mapping, nil, knownSchema())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	tp := plan.Table("ref_regions")
	if tp == nil {
		t.Fatalf("expected ref_regions plan, tables %+v", plan.Tables)
	}
	if !tp.IsNew {
		t.Fatal("expected ref_regions marked new")
	}
	if len(tp.Rules) != 2 {
		t.Fatalf("expected 2 rules on the merged table, got %+v", tp.Rules)
	}
	if tp.Rule("code") == nil {
		t.Fatalf("expected create_column entry to land on the same table, rules %+v", tp.Rules)
	}
	var sawCreateTable bool
	for _, ch := range plan.SchemaChanges {
		if ch.Kind == ChangeCreateTable && ch.Table == "ref_regions" {
			sawCreateTable = true
		}
	}
	if !sawCreateTable {
		t.Fatalf("expected a create_table change, got %+v", plan.SchemaChanges)
	}
}

func TestResolveUnresolvedReference(t *testing.T) {
	mapping := map[string]common_models.ColumnMappingEntry{
		"Region Code": {Kind: common_models.MappingCreateColumn, Label: "Code",
			TableClientID: "never-declared"},
	}
	_, err := Resolve(mapping, nil, knownSchema())
	if errs.KindOf(err) != errs.KindUnresolvedReference {
		t.Fatalf("expected UnresolvedReference, got %v", err)
	}
}

func TestResolveCyclicRelationship(t *testing.T) {
	mapping := map[string]common_models.ColumnMappingEntry{
		"Buyer":  {Kind: common_models.MappingExisting, TargetTable: "ref_buyers", TargetColumn: "name"},
		"Amount": {Kind: common_models.MappingExisting, TargetTable: "fact_sales", TargetColumn: "amount"},
	}
	rels := []common_models.RelationshipSpec{
		{ParentTable: "ref_buyers", ChildTable: "fact_sales", NaturalKeyColumn: "Buyer"},
		{ParentTable: "fact_sales", ChildTable: "ref_buyers", NaturalKeyColumn: "Amount"},
	}
	_, err := Resolve(mapping, rels, knownSchema())
	if errs.KindOf(err) != errs.KindCyclicRelationship {
		t.Fatalf("expected CyclicRelationship, got %v", err)
	}
}

func TestResolveParentBeforeChild(t *testing.T) {
	mapping := map[string]common_models.ColumnMappingEntry{
		"Buyer":  {Kind: common_models.MappingExisting, TargetTable: "ref_buyers", TargetColumn: "name"},
		"Amount": {Kind: common_models.MappingExisting, TargetTable: "fact_sales", TargetColumn: "amount"},
	}
	rels := []common_models.RelationshipSpec{
		{ParentTable: "ref_buyers", ChildTable: "fact_sales", NaturalKeyColumn: "Buyer",
			ChildFKColumn: "buyer_id", AddIndex: true, AddFKConstraint: true},
	}
	plan, err := Resolve(mapping, rels, knownSchema())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var parentIdx, childIdx int
	for i, tp := range plan.Tables {
		switch tp.Table {
		case "ref_buyers":
			parentIdx = i
		case "fact_sales":
			childIdx = i
		}
	}
	if parentIdx > childIdx {
		t.Fatalf("expected ref_buyers before fact_sales, got order %+v", plan.Tables)
	}
	child := plan.Table("fact_sales")
	fk := child.Rule("buyer_id")
	if fk == nil || fk.Kind != RuleForeignKey || fk.Relationship != "ref_buyers" {
		t.Fatalf("expected foreign key rule on child, got %+v", fk)
	}
	var sawIndex, sawFK bool
	for _, ch := range plan.SchemaChanges {
		switch ch.Kind {
		case ChangeAddIndex:
			sawIndex = true
		case ChangeAddFKConstraint:
			sawFK = true
			if ch.RefTable != "ref_buyers" || ch.RefColumn != "id" {
				t.Fatalf("unexpected fk constraint %+v", ch)
			}
		}
	}
	if !sawIndex || !sawFK {
		t.Fatalf("expected index and fk constraint changes, got %+v", plan.SchemaChanges)
	}
}

func TestResolveForeignKeyColumnType(t *testing.T) {
	// The fk column must hold whatever the pk strategy mints: strings for
	// uuid and pattern, integers for auto and max_plus_one.
	cases := []struct {
		mode string
		want string
	}{
		{common_models.PKAuto, catalog.TypeInteger},
		{common_models.PKMaxPlusOne, catalog.TypeInteger},
		{common_models.PKUUID, catalog.TypeText},
		{common_models.PKPattern, catalog.TypeText},
	}
	for _, tc := range cases {
		mapping := map[string]common_models.ColumnMappingEntry{
			"Unit":   {Kind: common_models.MappingCreateTable, TableRole: common_models.TableRoleRef, Label: "Units", ClientID: "t1"},
			"Amount": {Kind: common_models.MappingExisting, TargetTable: "fact_sales", TargetColumn: "amount"},
		}
		rels := []common_models.RelationshipSpec{
			{ParentTable: "t1", ChildTable: "fact_sales", NaturalKeyColumn: "Unit",
				ChildFKColumn: "unit_id",
				PKStrategy:    common_models.PKStrategy{Mode: tc.mode, Prefix: "U", Width: 3}},
		}
		plan, err := Resolve(mapping, rels, knownSchema())
		if err != nil {
			t.Fatalf("mode %s: Resolve: %v", tc.mode, err)
		}
		var fkChange *SchemaChange
		for i, ch := range plan.SchemaChanges {
			if ch.Kind == ChangeCreateColumn && ch.Column == "unit_id" {
				fkChange = &plan.SchemaChanges[i]
			}
		}
		if fkChange == nil {
			t.Fatalf("mode %s: no create_column change for unit_id, got %+v", tc.mode, plan.SchemaChanges)
		}
		if fkChange.ColumnType != tc.want {
			t.Errorf("mode %s: fk column type = %q, want %q", tc.mode, fkChange.ColumnType, tc.want)
		}
		if fk := plan.Table("fact_sales").Rule("unit_id"); fk == nil || fk.ColumnType != tc.want {
			t.Errorf("mode %s: fk rule type = %+v, want %q", tc.mode, fk, tc.want)
		}
	}
}

func TestResolveForeignKeyTypeFollowsExistingParentPK(t *testing.T) {
	known := knownSchema()
	known["ref_styles"] = &catalog.TableDefinition{
		TableName: "ref_styles",
		Columns: []catalog.Column{
			{Name: "code", DataType: catalog.TypeText, IsPrimaryKey: true},
			{Name: "name", DataType: catalog.TypeText},
		},
		PrimaryKey: []string{"code"},
	}
	mapping := map[string]common_models.ColumnMappingEntry{
		"Style":  {Kind: common_models.MappingExisting, TargetTable: "ref_styles", TargetColumn: "name"},
		"Amount": {Kind: common_models.MappingExisting, TargetTable: "fact_sales", TargetColumn: "amount"},
	}
	rels := []common_models.RelationshipSpec{
		{ParentTable: "ref_styles", ChildTable: "fact_sales", NaturalKeyColumn: "Style",
			ChildFKColumn: "style_code"},
	}
	plan, err := Resolve(mapping, rels, known)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, ch := range plan.SchemaChanges {
		if ch.Kind == ChangeCreateColumn && ch.Column == "style_code" {
			if ch.ColumnType != catalog.TypeText {
				t.Fatalf("fk to text pk should be text, got %q", ch.ColumnType)
			}
			return
		}
	}
	t.Fatalf("no create_column change for style_code, got %+v", plan.SchemaChanges)
}

func TestResolveNaturalKeyMustBeHeader(t *testing.T) {
	mapping := map[string]common_models.ColumnMappingEntry{
		"Amount": {Kind: common_models.MappingExisting, TargetTable: "fact_sales", TargetColumn: "amount"},
	}
	rels := []common_models.RelationshipSpec{
		{ParentTable: "ref_buyers", ChildTable: "fact_sales", NaturalKeyColumn: "Buyer"},
	}
	_, err := Resolve(mapping, rels, knownSchema())
	if errs.KindOf(err) != errs.KindUnresolvedReference {
		t.Fatalf("expected UnresolvedReference for missing natural key header, got %v", err)
	}
}

func TestResolveEmptyMapping(t *testing.T) {
	_, err := Resolve(nil, nil, knownSchema())
	if errs.KindOf(err) != errs.KindEmptyMapping {
		t.Fatalf("expected EmptyMapping, got %v", err)
	}
}
