package commit

import (
	"context"
	"database/sql"
	"testing"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"go-mis/internal/common/errs"
	common_models "go-mis/internal/common/models"
	"go-mis/internal/features/catalog"
	"go-mis/internal/features/resolver"
)

// stubCatalog serves a single in-memory destination. The "mysql" driver
// conventions (backtick quoting, ? placeholders, LastInsertId) are all valid
// sqlite, and sqlite's default schema is literally named "main".
type stubCatalog struct {
	db   *sql.DB
	conn *catalog.Connection
	defs map[string]*catalog.TableDefinition
}

func (s *stubCatalog) CreateConnection(ctx context.Context, conn *catalog.Connection) error {
	return nil
}
func (s *stubCatalog) ListConnections(ctx context.Context) ([]catalog.Connection, error) {
	return nil, nil
}
func (s *stubCatalog) GetConnection(ctx context.Context, id string) (*catalog.Connection, error) {
	return s.conn, nil
}
func (s *stubCatalog) DB(ctx context.Context, connectionID string) (*sql.DB, *catalog.Connection, error) {
	return s.db, s.conn, nil
}
func (s *stubCatalog) ListTables(ctx context.Context, connectionID string) ([]string, error) {
	return nil, nil
}
func (s *stubCatalog) GetTableDefinition(ctx context.Context, connectionID, table string) (*catalog.TableDefinition, error) {
	if def, ok := s.defs[table]; ok {
		return def, nil
	}
	return nil, errs.New(errs.KindNotFound, "table %s not found", table)
}

func buyersDefinition() *catalog.TableDefinition {
	return &catalog.TableDefinition{
		TableName: "ref_buyers",
		Columns: []catalog.Column{
			{Name: "id", DataType: catalog.TypeText, IsPrimaryKey: true},
			{Name: "name", DataType: catalog.TypeText},
			{Name: "region", DataType: catalog.TypeText, Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}
}

func ordersDefinition() *catalog.TableDefinition {
	return &catalog.TableDefinition{
		TableName: "fact_orders",
		Columns: []catalog.Column{
			{Name: "id", DataType: catalog.TypeInteger, IsPrimaryKey: true, IsAutoInc: true},
			{Name: "amount", DataType: catalog.TypeInteger, Nullable: true},
			{Name: "buyer_id", DataType: catalog.TypeText, Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}
}

// newCommitFixture stands up the buyers/orders pair: an existing parent table
// keyed by a uuid strategy and a child fact table linking to it.
func newCommitFixture(t *testing.T) (*Executor, *sql.DB, *resolver.ExecutionPlan) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	ddl := []string{
		"CREATE TABLE ref_buyers (id TEXT PRIMARY KEY, name TEXT, region TEXT)",
		"CREATE TABLE fact_orders (id INTEGER PRIMARY KEY AUTOINCREMENT, amount INTEGER, buyer_id TEXT)",
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}

	known := map[string]*catalog.TableDefinition{
		"ref_buyers":  buyersDefinition(),
		"fact_orders": ordersDefinition(),
	}
	mapping := map[string]common_models.ColumnMappingEntry{
		"Buyer":  {Kind: common_models.MappingExisting, TargetTable: "ref_buyers", TargetColumn: "name"},
		"Region": {Kind: common_models.MappingExisting, TargetTable: "ref_buyers", TargetColumn: "region"},
		"Amount": {Kind: common_models.MappingExisting, TargetTable: "fact_orders", TargetColumn: "amount"},
	}
	rels := []common_models.RelationshipSpec{
		{
			ParentTable: "ref_buyers", NaturalKeyColumn: "Buyer",
			ChildTable: "fact_orders", ChildFKColumn: "buyer_id",
			PKStrategy: common_models.PKStrategy{Mode: common_models.PKUUID},
		},
	}
	plan, err := resolver.Resolve(mapping, rels, known)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	cat := &stubCatalog{
		db:   db,
		conn: &catalog.Connection{Driver: "mysql", Schema: "main", Name: "warehouse"},
		defs: known,
	}
	return NewExecutor(cat, zap.NewNop()), db, plan
}

func orderLinks(t *testing.T, db *sql.DB) map[int64]string {
	t.Helper()
	rows, err := db.Query("SELECT amount, buyer_id FROM fact_orders ORDER BY id")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	out := map[int64]string{}
	for rows.Next() {
		var amount int64
		var buyerID string
		if err := rows.Scan(&amount, &buyerID); err != nil {
			t.Fatal(err)
		}
		out[amount] = buyerID
	}
	return out
}

func TestExecuteApprovedDuplicateReusesParent(t *testing.T) {
	exec, db, plan := newCommitFixture(t)
	if _, err := db.Exec("INSERT INTO ref_buyers (id, name, region) VALUES ('B-1', 'Acme', 'east')"); err != nil {
		t.Fatal(err)
	}

	rows := []map[string]string{
		{"Buyer": "Acme", "Region": "east", "Amount": "100"},
		{"Buyer": "Nova", "Region": "west", "Amount": "250"},
	}
	decisions := []Decision{{Table: "ref_buyers", Row: 0, Action: ActionApprove}}

	result, err := exec.Execute(context.Background(), "conn-1", plan, rows, decisions, ModeAppend, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Approving the duplicate links its children to the existing row, it
	// never inserts the parent a second time.
	buyers := result.PerTable["ref_buyers"]
	if buyers.Inserted != 1 || buyers.Skipped != 1 || buyers.Attempted != 2 {
		t.Fatalf("buyer counts = %+v", buyers)
	}
	var buyerCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM ref_buyers").Scan(&buyerCount); err != nil {
		t.Fatal(err)
	}
	if buyerCount != 2 {
		t.Fatalf("buyers in store = %d, want 2", buyerCount)
	}

	links := orderLinks(t, db)
	if links[100] != "B-1" {
		t.Fatalf("duplicate's child linked to %q, want the pre-existing B-1", links[100])
	}
	var novaID string
	if err := db.QueryRow("SELECT id FROM ref_buyers WHERE name = 'Nova'").Scan(&novaID); err != nil {
		t.Fatal(err)
	}
	if links[250] != novaID {
		t.Fatalf("new parent's child linked to %q, want %q", links[250], novaID)
	}

	// Lineage covers only rows this run inserted: one buyer, two orders.
	perTable := map[string]int{}
	for _, ref := range result.Lineage {
		perTable[ref.Table]++
	}
	if perTable["ref_buyers"] != 1 || perTable["fact_orders"] != 2 {
		t.Fatalf("lineage = %+v", result.Lineage)
	}
	if result.ImportedCount != 3 {
		t.Fatalf("imported = %d, want 3", result.ImportedCount)
	}
}

func TestExecuteSkippedParentDropsChildren(t *testing.T) {
	exec, db, plan := newCommitFixture(t)
	if _, err := db.Exec("INSERT INTO ref_buyers (id, name, region) VALUES ('B-1', 'Acme', 'east')"); err != nil {
		t.Fatal(err)
	}

	rows := []map[string]string{
		{"Buyer": "Acme", "Region": "east", "Amount": "100"},
	}
	result, err := exec.Execute(context.Background(), "conn-1", plan, rows, nil, ModeAppend, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := result.PerTable["ref_buyers"].Skipped; got != 1 {
		t.Fatalf("buyer skipped = %d, want 1", got)
	}
	if got := result.PerTable["fact_orders"].Skipped; got != 1 {
		t.Fatalf("order skipped = %d, want 1", got)
	}
	var orderCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM fact_orders").Scan(&orderCount); err != nil {
		t.Fatal(err)
	}
	if orderCount != 0 {
		t.Fatalf("orders in store = %d, want none", orderCount)
	}
	if len(result.Lineage) != 0 {
		t.Fatalf("lineage = %+v, want empty", result.Lineage)
	}
}

func TestExecuteConflictRequiresOverride(t *testing.T) {
	exec, db, plan := newCommitFixture(t)
	if _, err := db.Exec("INSERT INTO ref_buyers (id, name, region) VALUES ('B-1', 'Acme', 'east')"); err != nil {
		t.Fatal(err)
	}

	// Same natural key, differing region: a conflict, and even approve is
	// not enough to write over the destination row.
	rows := []map[string]string{
		{"Buyer": "Acme", "Region": "west", "Amount": "100"},
	}
	approve := []Decision{{Table: "ref_buyers", Row: 0, Action: ActionApprove}}
	result, err := exec.Execute(context.Background(), "conn-1", plan, rows, approve, ModeAppend, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := result.PerTable["ref_buyers"].Skipped; got != 1 {
		t.Fatalf("conflict without override skipped = %d, want 1", got)
	}
	var region string
	if err := db.QueryRow("SELECT region FROM ref_buyers WHERE id = 'B-1'").Scan(&region); err != nil {
		t.Fatal(err)
	}
	if region != "east" {
		t.Fatalf("region = %q, destination row must be untouched without override", region)
	}

	override := []Decision{{Table: "ref_buyers", Row: 0, Action: ActionOverride}}
	result, err = exec.Execute(context.Background(), "conn-1", plan, rows, override, ModeAppend, nil)
	if err != nil {
		t.Fatalf("Execute with override: %v", err)
	}
	if got := result.PerTable["ref_buyers"].Updated; got != 1 {
		t.Fatalf("override updated = %d, want 1", got)
	}
	if err := db.QueryRow("SELECT region FROM ref_buyers WHERE id = 'B-1'").Scan(&region); err != nil {
		t.Fatal(err)
	}
	if region != "west" {
		t.Fatalf("region = %q, want overridden value", region)
	}
	// The overridden parent still links its child.
	if links := orderLinks(t, db); links[100] != "B-1" {
		t.Fatalf("child linked to %q, want B-1", links[100])
	}
}

func TestExecutePartialCommitKeepsFinishedTables(t *testing.T) {
	exec, db, plan := newCommitFixture(t)
	// A required child column no rule writes: the child batch fails, the
	// parent batch has already committed.
	if _, err := db.Exec("DROP TABLE fact_orders"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE fact_orders (id INTEGER PRIMARY KEY AUTOINCREMENT, amount INTEGER, buyer_id TEXT, status TEXT NOT NULL)"); err != nil {
		t.Fatal(err)
	}

	rows := []map[string]string{
		{"Buyer": "Acme", "Region": "east", "Amount": "100"},
	}
	result, err := exec.Execute(context.Background(), "conn-1", plan, rows, nil, ModeAppend, nil)
	if errs.KindOf(err) != errs.KindImportError {
		t.Fatalf("kind = %s, want import_error", errs.KindOf(err))
	}

	if got := result.PerTable["ref_buyers"].Inserted; got != 1 {
		t.Fatalf("buyer inserted = %d, want 1", got)
	}
	if got := result.PerTable["fact_orders"].Failed; got != 1 {
		t.Fatalf("order failed = %d, want 1", got)
	}
	var buyerCount, orderCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM ref_buyers").Scan(&buyerCount); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM fact_orders").Scan(&orderCount); err != nil {
		t.Fatal(err)
	}
	if buyerCount != 1 || orderCount != 0 {
		t.Fatalf("store = %d buyers / %d orders, want the parent batch kept and the child batch rolled back", buyerCount, orderCount)
	}

	// Only the committed batch is undoable.
	for _, ref := range result.Lineage {
		if ref.Table != "ref_buyers" {
			t.Fatalf("lineage references %s from an uncommitted batch", ref.Table)
		}
	}
	if len(result.Lineage) != 1 {
		t.Fatalf("lineage = %+v, want the one committed buyer", result.Lineage)
	}
}

func TestReserveSeed(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE ref_units (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	seedOf := func(strategy common_models.PKStrategy) int64 {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer tx.Rollback()
		seed, err := reserveSeed(ctx, tx, "sqlite", `"main"."ref_units"`, "id", strategy)
		if err != nil {
			t.Fatalf("reserveSeed: %v", err)
		}
		return seed
	}

	maxPlusOne := common_models.PKStrategy{Mode: common_models.PKMaxPlusOne}
	// An empty table has no max-key row to lock; the seed is still well
	// defined and the first generated key is 1.
	if got := seedOf(maxPlusOne); got != 0 {
		t.Fatalf("empty-table seed = %d, want 0", got)
	}
	gen, err := resolver.NewKeyGenerator(maxPlusOne, 0)
	if err != nil {
		t.Fatal(err)
	}
	if first := gen.Next(); first != int64(1) {
		t.Fatalf("first key = %v, want 1", first)
	}

	if _, err := db.Exec("INSERT INTO ref_units (id) VALUES (5), (9)"); err != nil {
		t.Fatal(err)
	}
	if got := seedOf(maxPlusOne); got != 9 {
		t.Fatalf("seed = %d, want 9", got)
	}

	if _, err := db.Exec(`CREATE TABLE ref_codes (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatal(err)
	}
	// Three keys once existed; one was deleted. The next key must not
	// collide with the survivors.
	if _, err := db.Exec("INSERT INTO ref_codes (id) VALUES ('C-001'), ('C-002'), ('C-003')"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("DELETE FROM ref_codes WHERE id = 'C-002'"); err != nil {
		t.Fatal(err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	pattern := common_models.PKStrategy{Mode: common_models.PKPattern, Prefix: "C-", Width: 3}
	seed, err := reserveSeed(ctx, tx, "sqlite", `"main"."ref_codes"`, "id", pattern)
	if err != nil {
		t.Fatalf("reserveSeed: %v", err)
	}
	if seed != 3 {
		t.Fatalf("pattern seed = %d, want 3 (high-water mark, not row count)", seed)
	}
	gen, err = resolver.NewKeyGenerator(pattern, seed)
	if err != nil {
		t.Fatal(err)
	}
	if next := gen.Next(); next != "C-004" {
		t.Fatalf("next key = %v, want C-004", next)
	}
}

func TestPatternSeed(t *testing.T) {
	// Deleted rows leave gaps; the seed is the parsed high-water mark, not
	// the row count.
	keys := []string{"U-0007", "U-0003", "U-note", "X-9", "U-12"}
	if got := patternSeed(keys, "U-"); got != 12 {
		t.Fatalf("seed = %d, want 12", got)
	}
	if got := patternSeed(nil, "U-"); got != 0 {
		t.Fatalf("empty seed = %d, want 0", got)
	}
	if got := patternSeed([]string{"U-"}, "U-"); got != 0 {
		t.Fatalf("bare prefix seed = %d, want 0", got)
	}
}
