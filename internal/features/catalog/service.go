package catalog

import (
	"context"
	"database/sql"
	"strings"

	"go-mis/internal/common/errs"

	"go.uber.org/zap"
)

// CatalogService reflects destination store metadata. Reflection is read-only;
// failures to reach the store surface as KindCatalogUnavailable so callers can
// degrade to "no suggestions" instead of failing the session.
type CatalogService interface {
	CreateConnection(ctx context.Context, conn *Connection) error
	ListConnections(ctx context.Context) ([]Connection, error)
	GetConnection(ctx context.Context, id string) (*Connection, error)

	// DB resolves the live handle for a connection id. Shared with the commit
	// executor so reflection and writes use the same pool.
	DB(ctx context.Context, connectionID string) (*sql.DB, *Connection, error)

	ListTables(ctx context.Context, connectionID string) ([]string, error)
	GetTableDefinition(ctx context.Context, connectionID, table string) (*TableDefinition, error)
}

type CatalogServiceImpl struct {
	ConnectionRepo ConnectionRepository
	Pool           *ConnectorPool
	Logger         *zap.Logger
}

func NewCatalogService(repo ConnectionRepository, pool *ConnectorPool, logger *zap.Logger) CatalogService {
	return &CatalogServiceImpl{ConnectionRepo: repo, Pool: pool, Logger: logger}
}

func (s *CatalogServiceImpl) CreateConnection(ctx context.Context, conn *Connection) error {
	if conn.Driver != "postgresql" && conn.Driver != "mysql" {
		return errs.New(errs.KindBadRequest, "unsupported driver %q", conn.Driver)
	}
	return s.ConnectionRepo.Create(ctx, conn)
}

func (s *CatalogServiceImpl) ListConnections(ctx context.Context) ([]Connection, error) {
	return s.ConnectionRepo.List(ctx)
}

func (s *CatalogServiceImpl) GetConnection(ctx context.Context, id string) (*Connection, error) {
	conn, err := s.ConnectionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, errs.New(errs.KindNotFound, "connection %s not found", id)
	}
	return conn, nil
}

func (s *CatalogServiceImpl) DB(ctx context.Context, connectionID string) (*sql.DB, *Connection, error) {
	conn, err := s.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, nil, err
	}
	db, err := s.Pool.Open(ctx, conn)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindCatalogUnavailable, err, "destination store unreachable")
	}
	return db, conn, nil
}

func (s *CatalogServiceImpl) ListTables(ctx context.Context, connectionID string) ([]string, error) {
	db, conn, err := s.DB(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	var query string
	if conn.Driver == "postgresql" {
		query = `
			SELECT table_schema, table_name FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema NOT IN ('pg_catalog', 'information_schema')
			ORDER BY table_schema, table_name
		`
	} else { // mysql
		query = `
			SELECT table_schema, table_name FROM information_schema.tables
			WHERE table_type = 'BASE TABLE' AND table_schema = DATABASE()
			ORDER BY table_name
		`
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindCatalogUnavailable, err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, errs.Wrap(errs.KindCatalogUnavailable, err, "failed to scan table row")
		}
		if conn.Driver == "postgresql" && schema != "public" {
			tables = append(tables, schema+"."+name)
		} else {
			tables = append(tables, name)
		}
	}
	return tables, rows.Err()
}

func (s *CatalogServiceImpl) GetTableDefinition(ctx context.Context, connectionID, table string) (*TableDefinition, error) {
	db, conn, err := s.DB(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	schema, bare := SplitTableName(table, conn.Schema)
	def := &TableDefinition{Schema: schema, TableName: bare}

	if err := loadColumns(ctx, db, conn.Driver, def); err != nil {
		return nil, err
	}
	if len(def.Columns) == 0 {
		return nil, errs.New(errs.KindNotFound, "table %s not found", table)
	}
	if err := loadConstraints(ctx, db, conn.Driver, def); err != nil {
		return nil, err
	}

	for _, pk := range def.PrimaryKey {
		if c := def.Column(pk); c != nil {
			c.IsPrimaryKey = true
		}
	}
	for _, set := range def.UniqueConstraints {
		if len(set) == 1 {
			if c := def.Column(set[0]); c != nil {
				c.IsUnique = true
			}
		}
	}
	return def, nil
}

// NormalizeDBType maps a destination-native type name onto the logical type
// set the pipeline reasons about.
func NormalizeDBType(dbType string) string {
	t := strings.ToLower(dbType)
	switch {
	case strings.Contains(t, "bool"):
		return TypeBoolean
	case strings.Contains(t, "timestamp"), strings.Contains(t, "datetime"):
		return TypeDatetime
	case strings.Contains(t, "date"):
		return TypeDate
	case strings.Contains(t, "int"), strings.Contains(t, "serial"):
		return TypeInteger
	case strings.Contains(t, "numeric"), strings.Contains(t, "decimal"),
		strings.Contains(t, "double"), strings.Contains(t, "float"), strings.Contains(t, "real"):
		return TypeNumber
	case strings.Contains(t, "json"):
		return TypeJSON
	default:
		return TypeText
	}
}
