package catalog

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Connection is a registered destination relational store. Imports always run
// against one connection; the catalog and the commit executor resolve the
// *sql.DB handle through it.
type Connection struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name"`
	Driver    string             `json:"driver" bson:"driver"` // "postgresql" or "mysql"
	DSN       string             `json:"-" bson:"dsn"`
	Schema    string             `json:"schema,omitempty" bson:"schema,omitempty"` // Default schema for unqualified names
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// Logical column types the import pipeline reasons about. Destination-native
// types are normalized into this set.
const (
	TypeText     = "text"
	TypeInteger  = "integer"
	TypeNumber   = "number"
	TypeDate     = "date"
	TypeDatetime = "datetime"
	TypeBoolean  = "boolean"
	TypeJSON     = "json"
)

type Column struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"` // Normalized logical type
	DBType       string `json:"db_type"`   // Destination-native type, verbatim
	Nullable     bool   `json:"nullable"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	IsUnique     bool   `json:"is_unique"`
	IsAutoInc    bool   `json:"is_auto_increment"`
}

// TableDefinition is the reflected shape of one destination table.
type TableDefinition struct {
	Schema            string     `json:"schema,omitempty"`
	TableName         string     `json:"table_name"`
	Columns           []Column   `json:"columns"` // In ordinal position order
	PrimaryKey        []string   `json:"primary_key"`
	UniqueConstraints [][]string `json:"unique_constraints"`
}

// Column returns the named column, or nil.
func (t *TableDefinition) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns names in ordinal order.
func (t *TableDefinition) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Qualified returns the schema-qualified table name.
func (t *TableDefinition) Qualified() string {
	if t.Schema != "" {
		return t.Schema + "." + t.TableName
	}
	return t.TableName
}
