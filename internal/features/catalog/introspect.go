package catalog

import (
	"context"
	"database/sql"
	"strings"

	"go-mis/internal/common/errs"
)

func loadColumns(ctx context.Context, db *sql.DB, driver string, def *TableDefinition) error {
	var query string
	var args []interface{}

	if driver == "postgresql" {
		query = `
			SELECT column_name, data_type, is_nullable,
			       COALESCE(column_default, ''), COALESCE(is_identity, 'NO')
			FROM information_schema.columns
			WHERE table_name = $1
		`
		args = append(args, def.TableName)
		if def.Schema != "" {
			query += " AND table_schema = $2"
			args = append(args, def.Schema)
		}
		query += " ORDER BY ordinal_position"
	} else { // mysql
		query = `
			SELECT column_name, data_type, is_nullable,
			       COALESCE(column_default, ''), IF(extra LIKE '%auto_increment%', 'YES', 'NO')
			FROM information_schema.columns
			WHERE table_name = ? AND table_schema = DATABASE()
			ORDER BY ordinal_position
		`
		args = append(args, def.TableName)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.KindCatalogUnavailable, err, "failed to inspect columns of %s", def.TableName)
	}
	defer rows.Close()

	for rows.Next() {
		var name, dbType, nullable, colDefault, identity string
		if err := rows.Scan(&name, &dbType, &nullable, &colDefault, &identity); err != nil {
			return errs.Wrap(errs.KindCatalogUnavailable, err, "failed to scan column row")
		}
		def.Columns = append(def.Columns, Column{
			Name:     name,
			DataType: NormalizeDBType(dbType),
			DBType:   dbType,
			Nullable: strings.EqualFold(nullable, "YES"),
			IsAutoInc: strings.EqualFold(identity, "YES") ||
				strings.Contains(colDefault, "nextval("),
		})
	}
	return rows.Err()
}

func loadConstraints(ctx context.Context, db *sql.DB, driver string, def *TableDefinition) error {
	var query string
	var args []interface{}

	if driver == "postgresql" {
		query = `
			SELECT tc.constraint_type, tc.constraint_name, kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			 AND tc.table_schema = kcu.table_schema
			WHERE tc.table_name = $1
			  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
		`
		args = append(args, def.TableName)
		if def.Schema != "" {
			query += " AND tc.table_schema = $2"
			args = append(args, def.Schema)
		}
		query += " ORDER BY tc.constraint_name, kcu.ordinal_position"
	} else { // mysql
		query = `
			SELECT tc.constraint_type, tc.constraint_name, kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			 AND tc.table_schema = kcu.table_schema
			 AND tc.table_name = kcu.table_name
			WHERE tc.table_name = ? AND tc.table_schema = DATABASE()
			  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
			ORDER BY tc.constraint_name, kcu.ordinal_position
		`
		args = append(args, def.TableName)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.KindCatalogUnavailable, err, "failed to inspect constraints of %s", def.TableName)
	}
	defer rows.Close()

	uniqueByName := map[string][]string{}
	var uniqueOrder []string
	for rows.Next() {
		var ctype, cname, column string
		if err := rows.Scan(&ctype, &cname, &column); err != nil {
			return errs.Wrap(errs.KindCatalogUnavailable, err, "failed to scan constraint row")
		}
		if ctype == "PRIMARY KEY" {
			def.PrimaryKey = append(def.PrimaryKey, column)
			continue
		}
		if _, seen := uniqueByName[cname]; !seen {
			uniqueOrder = append(uniqueOrder, cname)
		}
		uniqueByName[cname] = append(uniqueByName[cname], column)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range uniqueOrder {
		def.UniqueConstraints = append(def.UniqueConstraints, uniqueByName[name])
	}
	return nil
}
