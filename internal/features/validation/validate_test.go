package validation

import (
	"testing"

	"go-mis/internal/common/errs"
	"go-mis/internal/features/catalog"
	"go-mis/internal/features/resolver"
)

func unitsDef() *catalog.TableDefinition {
	return &catalog.TableDefinition{
		TableName: "units",
		Columns: []catalog.Column{
			{Name: "id", DataType: catalog.TypeInteger, IsPrimaryKey: true, IsAutoInc: true},
			{Name: "name", DataType: catalog.TypeText, IsUnique: true},
		},
		PrimaryKey:        []string{"id"},
		UniqueConstraints: [][]string{{"name"}},
	}
}

func TestValidateDuplicateAgainstDestination(t *testing.T) {
	plan := &resolver.ExecutionPlan{
		Tables: []resolver.TablePlan{
			{Table: "units", Rules: []resolver.ValueRule{
				{Kind: resolver.RuleCopy, Column: "name", ColumnType: catalog.TypeText, SourceHeader: "Unit Name"},
			}},
			{Table: "fact_stock", IsNew: true, Rules: []resolver.ValueRule{
				{Kind: resolver.RuleCopy, Column: "qty", ColumnType: catalog.TypeInteger, SourceHeader: "Qty"},
				{Kind: resolver.RuleForeignKey, Column: "unit_id", Relationship: "units"},
			}},
		},
		Relationships: []resolver.RelationshipPlan{
			{ParentTable: "units", NaturalKeyColumn: "Unit Name", ChildTable: "fact_stock", ChildFKColumn: "unit_id"},
		},
	}
	rows := []map[string]string{
		{"Unit Name": "Box", "Qty": "5"},
		{"Unit Name": "Pallet", "Qty": "2"},
	}
	existing := map[string][]map[string]interface{}{
		"units": {{"id": int64(1), "name": "Box"}},
	}

	out := Validate(plan, rows, map[string]*catalog.TableDefinition{"units": unitsDef()}, existing, 50)
	if out.HasBlockingErrors() {
		t.Fatalf("unexpected errors %+v", out.Errors)
	}
	units := out.Table("units")
	if units.Duplicates != 1 || units.ToInsert != 1 || units.Conflicts != 0 {
		t.Fatalf("units outcome %+v", units)
	}
	if len(units.DuplicateSamples) != 1 || units.DuplicateSamples[0].Values["name"] != "Box" {
		t.Fatalf("duplicate samples %+v", units.DuplicateSamples)
	}
	facts := out.Table("fact_stock")
	if facts.ToInsert != 2 {
		t.Fatalf("fact outcome %+v", facts)
	}
}

func TestValidateConflictOnDifferingPayload(t *testing.T) {
	plan := &resolver.ExecutionPlan{
		Tables: []resolver.TablePlan{
			{Table: "units", Rules: []resolver.ValueRule{
				{Kind: resolver.RuleCopy, Column: "name", ColumnType: catalog.TypeText, SourceHeader: "Name"},
				{Kind: resolver.RuleCopy, Column: "code", ColumnType: catalog.TypeText, SourceHeader: "Code"},
			}},
		},
	}
	def := unitsDef()
	def.Columns = append(def.Columns, catalog.Column{Name: "code", DataType: catalog.TypeText, Nullable: true})
	rows := []map[string]string{{"Name": "Box", "Code": "BX-2"}}
	existing := map[string][]map[string]interface{}{
		"units": {{"id": int64(1), "name": "Box", "code": "BX-1"}},
	}

	out := Validate(plan, rows, map[string]*catalog.TableDefinition{"units": def}, existing, 50)
	units := out.Table("units")
	if units.Conflicts != 1 || units.Duplicates != 0 {
		t.Fatalf("expected a conflict, got %+v", units)
	}
}

func TestValidateInFileDuplicate(t *testing.T) {
	plan := &resolver.ExecutionPlan{
		Tables: []resolver.TablePlan{
			{Table: "units", Rules: []resolver.ValueRule{
				{Kind: resolver.RuleCopy, Column: "name", ColumnType: catalog.TypeText, SourceHeader: "Name"},
			}},
		},
	}
	rows := []map[string]string{
		{"Name": "Box"},
		{"Name": "Box"},
		{"Name": "Pallet"},
	}
	out := Validate(plan, rows, map[string]*catalog.TableDefinition{"units": unitsDef()}, nil, 50)
	units := out.Table("units")
	if units.ToInsert != 2 || units.Duplicates != 1 {
		t.Fatalf("outcome %+v", units)
	}
}

func TestValidateRequiredColumnMissingOnce(t *testing.T) {
	def := unitsDef()
	def.Columns = append(def.Columns, catalog.Column{Name: "status", DataType: catalog.TypeText})
	plan := &resolver.ExecutionPlan{
		Tables: []resolver.TablePlan{
			{Table: "units", Rules: []resolver.ValueRule{
				{Kind: resolver.RuleCopy, Column: "name", ColumnType: catalog.TypeText, SourceHeader: "Name"},
			}},
		},
	}
	rows := []map[string]string{{"Name": "a"}, {"Name": "b"}, {"Name": "c"}}

	out := Validate(plan, rows, map[string]*catalog.TableDefinition{"units": def}, nil, 50)
	var missing []Issue
	for _, iss := range out.Errors {
		if iss.Kind == errs.KindRequiredColumnMissing {
			missing = append(missing, iss)
		}
	}
	if len(missing) != 1 || missing[0].Column != "status" || missing[0].Row != -1 {
		t.Fatalf("expected exactly one RequiredColumnMissing for status, got %+v", missing)
	}
}

func TestValidateTypeMismatchPerRow(t *testing.T) {
	plan := &resolver.ExecutionPlan{
		Tables: []resolver.TablePlan{
			{Table: "facts", IsNew: true, Rules: []resolver.ValueRule{
				{Kind: resolver.RuleCopy, Column: "qty", ColumnType: catalog.TypeInteger, SourceHeader: "Qty"},
			}},
		},
	}
	rows := []map[string]string{{"Qty": "5"}, {"Qty": "many"}}
	out := Validate(plan, rows, nil, nil, 50)
	if len(out.Errors) != 1 {
		t.Fatalf("errors %+v", out.Errors)
	}
	iss := out.Errors[0]
	if iss.Kind != errs.KindTypeMismatch || iss.Row != 1 || iss.Column != "qty" {
		t.Fatalf("issue %+v", iss)
	}
}

func TestValidateSampleCap(t *testing.T) {
	plan := &resolver.ExecutionPlan{
		Tables: []resolver.TablePlan{
			{Table: "facts", IsNew: true, Rules: []resolver.ValueRule{
				{Kind: resolver.RuleCopy, Column: "v", ColumnType: catalog.TypeText, SourceHeader: "V"},
			}},
		},
	}
	rows := make([]map[string]string, 10)
	for i := range rows {
		rows[i] = map[string]string{"V": "x"}
	}
	out := Validate(plan, rows, nil, nil, 3)
	facts := out.Table("facts")
	if facts.ToInsert != 10 {
		t.Fatalf("counts must stay exact, got %+v", facts)
	}
	if len(facts.InsertSamples) != 3 {
		t.Fatalf("samples must be capped, got %d", len(facts.InsertSamples))
	}
}

func TestValidateAmbiguousNaturalKey(t *testing.T) {
	plan := &resolver.ExecutionPlan{
		Tables: []resolver.TablePlan{
			{Table: "units", Rules: []resolver.ValueRule{
				{Kind: resolver.RuleCopy, Column: "name", ColumnType: catalog.TypeText, SourceHeader: "Name"},
				{Kind: resolver.RuleCopy, Column: "code", ColumnType: catalog.TypeText, SourceHeader: "Code"},
			}},
		},
		Relationships: []resolver.RelationshipPlan{
			{ParentTable: "units", NaturalKeyColumn: "Name", ChildTable: "facts",
				ChildFKColumn: "unit_id", EnforceUnique: true},
		},
	}
	rows := []map[string]string{
		{"Name": "Box", "Code": "BX-1"},
		{"Name": "Box", "Code": "BX-2"},
	}
	out := Validate(plan, rows, nil, nil, 50)
	found := false
	for _, iss := range out.Errors {
		if iss.Kind == errs.KindAmbiguousNaturalKey {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected AmbiguousNaturalKey, errors %+v", out.Errors)
	}
}

func TestCoerce(t *testing.T) {
	cases := []struct {
		raw     string
		typ     string
		want    interface{}
		wantErr bool
	}{
		{"5", catalog.TypeInteger, int64(5), false},
		{"1,234", catalog.TypeInteger, int64(1234), false},
		{"5.0", catalog.TypeInteger, int64(5), false},
		{"many", catalog.TypeInteger, nil, true},
		{"3.14", catalog.TypeNumber, 3.14, false},
		{"yes", catalog.TypeBoolean, true, false},
		{"0", catalog.TypeBoolean, false, false},
		{"maybe", catalog.TypeBoolean, nil, true},
		{"2025-03-01", catalog.TypeDate, "2025-03-01", false},
		{"01.03.2025", catalog.TypeDate, "2025-03-01", false},
		{"not a date", catalog.TypeDate, nil, true},
		{"", catalog.TypeInteger, nil, false},
		{"hello", catalog.TypeText, "hello", false},
	}
	for _, tc := range cases {
		t.Run(tc.raw+"_"+tc.typ, func(t *testing.T) {
			got, err := Coerce(tc.raw, tc.typ)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("got %v (%T), want %v (%T)", got, got, tc.want, tc.want)
			}
		})
	}
}
