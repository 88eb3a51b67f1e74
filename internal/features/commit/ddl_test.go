package commit

import (
	"testing"

	"go-mis/internal/features/catalog"
	"go-mis/internal/features/resolver"
)

func TestDDLStatement(t *testing.T) {
	cases := []struct {
		name   string
		driver string
		change resolver.SchemaChange
		want   string
	}{
		{
			name:   "create table postgres",
			driver: "postgresql",
			change: resolver.SchemaChange{Kind: resolver.ChangeCreateTable, Table: "ref_regions"},
			want:   `CREATE TABLE "public"."ref_regions" (id BIGSERIAL PRIMARY KEY)`,
		},
		{
			name:   "create table mysql",
			driver: "mysql",
			change: resolver.SchemaChange{Kind: resolver.ChangeCreateTable, Table: "ref_regions"},
			want:   "CREATE TABLE `public`.`ref_regions` (id BIGINT AUTO_INCREMENT PRIMARY KEY)",
		},
		{
			name:   "create table with text pk",
			driver: "postgresql",
			change: resolver.SchemaChange{Kind: resolver.ChangeCreateTable, Table: "ref_regions",
				ColumnType: catalog.TypeText},
			want: `CREATE TABLE "public"."ref_regions" (id TEXT PRIMARY KEY)`,
		},
		{
			name:   "create table with text pk mysql",
			driver: "mysql",
			change: resolver.SchemaChange{Kind: resolver.ChangeCreateTable, Table: "ref_regions",
				ColumnType: catalog.TypeText},
			want: "CREATE TABLE `public`.`ref_regions` (id VARCHAR(64) PRIMARY KEY)",
		},
		{
			name:   "add column",
			driver: "postgresql",
			change: resolver.SchemaChange{Kind: resolver.ChangeCreateColumn, Table: "ref_regions",
				Column: "code", ColumnType: catalog.TypeText},
			want: `ALTER TABLE "public"."ref_regions" ADD COLUMN "code" TEXT`,
		},
		{
			name:   "add index",
			driver: "postgresql",
			change: resolver.SchemaChange{Kind: resolver.ChangeAddIndex, Table: "fact_sales", Column: "region_id"},
			want:   `CREATE INDEX "ix_fact_sales_region_id" ON "public"."fact_sales" ("region_id")`,
		},
		{
			name:   "add fk constraint",
			driver: "postgresql",
			change: resolver.SchemaChange{Kind: resolver.ChangeAddFKConstraint, Table: "fact_sales",
				Column: "region_id", RefTable: "ref_regions", RefColumn: "id"},
			want: `ALTER TABLE "public"."fact_sales" ADD CONSTRAINT "fk_fact_sales_region_id" FOREIGN KEY ("region_id") REFERENCES "public"."ref_regions" ("id")`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ddlStatement(tc.driver, "public", tc.change)
			if got != tc.want {
				t.Fatalf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestSQLColumnType(t *testing.T) {
	if got := sqlColumnType("mysql", catalog.TypeNumber); got != "DOUBLE" {
		t.Fatalf("got %q", got)
	}
	if got := sqlColumnType("postgresql", catalog.TypeJSON); got != "JSONB" {
		t.Fatalf("got %q", got)
	}
	if got := sqlColumnType("postgresql", "unknown"); got != "TEXT" {
		t.Fatalf("got %q", got)
	}
}

func TestInsertAndUpdateSQL(t *testing.T) {
	got := insertSQL("postgresql", `"units"`, []string{"name", "qty"})
	want := `INSERT INTO "units" ("name", "qty") VALUES ($1, $2)`
	if got != want {
		t.Fatalf("got %s", got)
	}
	got = insertSQL("mysql", "`units`", []string{"name"})
	want = "INSERT INTO `units` (`name`) VALUES (?)"
	if got != want {
		t.Fatalf("got %s", got)
	}
	got = updateSQL("postgresql", `"units"`, []string{"code"}, []string{"id"})
	want = `UPDATE "units" SET "code" = $1 WHERE "id" = $2`
	if got != want {
		t.Fatalf("got %s", got)
	}
}

func TestDecisionIndex(t *testing.T) {
	idx := indexDecisions([]Decision{
		{Row: 3, Action: ActionApprove},
		{Table: "units", Row: 3, Action: ActionSkip},
	})
	if got := idx.lookup("units", 3); got != ActionSkip {
		t.Fatalf("table-scoped decision should win, got %q", got)
	}
	if got := idx.lookup("fact_sales", 3); got != ActionApprove {
		t.Fatalf("row-wide decision should apply, got %q", got)
	}
	if got := idx.lookup("units", 9); got != "" {
		t.Fatalf("missing decision should be empty, got %q", got)
	}
}
