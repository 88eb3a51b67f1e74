package commit

import (
	"fmt"
	"strings"

	"go-mis/internal/features/catalog"
	"go-mis/internal/features/resolver"
)

// sqlColumnType maps a logical type onto the destination-native type.
func sqlColumnType(driver, logicalType string) string {
	mysql := driver == "mysql"
	switch logicalType {
	case catalog.TypeInteger:
		return "BIGINT"
	case catalog.TypeNumber:
		if mysql {
			return "DOUBLE"
		}
		return "DOUBLE PRECISION"
	case catalog.TypeDate:
		return "DATE"
	case catalog.TypeDatetime:
		if mysql {
			return "DATETIME"
		}
		return "TIMESTAMP"
	case catalog.TypeBoolean:
		return "BOOLEAN"
	case catalog.TypeJSON:
		if mysql {
			return "JSON"
		}
		return "JSONB"
	default:
		return "TEXT"
	}
}

// ddlStatement renders one schema change. New tables get a surrogate `id`
// primary key; their data columns follow as separate create_column changes.
func ddlStatement(driver, defaultSchema string, ch resolver.SchemaChange) string {
	schema, table := catalog.SplitTableName(ch.Table, defaultSchema)
	qualified := catalog.QualifyTable(driver, schema, table)

	switch ch.Kind {
	case resolver.ChangeCreateTable:
		// ColumnType carries the pk type when the table is keyed by a
		// string-minting strategy; otherwise the pk autoincrements.
		pk := "id BIGSERIAL PRIMARY KEY"
		switch {
		case ch.ColumnType == catalog.TypeText && driver == "mysql":
			pk = "id VARCHAR(64) PRIMARY KEY"
		case ch.ColumnType == catalog.TypeText:
			pk = "id TEXT PRIMARY KEY"
		case driver == "mysql":
			pk = "id BIGINT AUTO_INCREMENT PRIMARY KEY"
		}
		return fmt.Sprintf("CREATE TABLE %s (%s)", qualified, pk)
	case resolver.ChangeCreateColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			qualified, catalog.QuoteIdent(driver, ch.Column), sqlColumnType(driver, ch.ColumnType))
	case resolver.ChangeAddIndex:
		name := indexName("ix", table, ch.Column)
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			catalog.QuoteIdent(driver, name), qualified, catalog.QuoteIdent(driver, ch.Column))
	case resolver.ChangeAddFKConstraint:
		refSchema, refTable := catalog.SplitTableName(ch.RefTable, defaultSchema)
		name := indexName("fk", table, ch.Column)
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			qualified, catalog.QuoteIdent(driver, name), catalog.QuoteIdent(driver, ch.Column),
			catalog.QualifyTable(driver, refSchema, refTable), catalog.QuoteIdent(driver, ch.RefColumn))
	}
	return ""
}

func indexName(prefix, table, column string) string {
	name := prefix + "_" + table + "_" + column
	if len(name) > 63 {
		name = name[:63]
	}
	return strings.TrimRight(name, "_")
}

// insertSQL renders a parameterized insert for cols in order.
func insertSQL(driver, qualified string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = catalog.QuoteIdent(driver, c)
		marks[i] = catalog.Placeholder(driver, i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualified, strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

// updateSQL renders an update of setCols keyed by whereCols.
func updateSQL(driver, qualified string, setCols, whereCols []string) string {
	sets := make([]string, len(setCols))
	n := 0
	for i, c := range setCols {
		n++
		sets[i] = catalog.QuoteIdent(driver, c) + " = " + catalog.Placeholder(driver, n)
	}
	wheres := make([]string, len(whereCols))
	for i, c := range whereCols {
		n++
		wheres[i] = catalog.QuoteIdent(driver, c) + " = " + catalog.Placeholder(driver, n)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		qualified, strings.Join(sets, ", "), strings.Join(wheres, " AND "))
}
