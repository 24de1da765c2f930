package writer

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
)

// Backend is the writer's narrow dialect abstraction (spec.md S9, "Dialect
// abstraction"): connect, introspect-table, create-table, add-column,
// alter-column, add-foreign-key, insert-and-return-id, and a
// value-to-placeholder marshaller. Each backend overrides type strings and
// dialect quirks; the writer's orchestration loop is otherwise dialect-free.
type Backend interface {
	// StatementBuilder returns a squirrel builder configured with this
	// dialect's placeholder format.
	StatementBuilder() sq.StatementBuilderType

	// IntrospectTable reports the columns the database currently has for
	// table, or ok=false if the table does not exist yet.
	IntrospectTable(ctx context.Context, table string) (cols map[string]ColumnInfo, ok bool, err error)

	// CreateTable issues a CREATE TABLE for a new table with the given
	// columns (always including the table's own "_id" primary key).
	CreateTable(ctx context.Context, table string, cols []*ColumnDefinition) error

	// AddColumn issues an ALTER TABLE ... ADD COLUMN.
	AddColumn(ctx context.Context, table string, col *ColumnDefinition) error

	// WidenColumn issues an ALTER TABLE ... MODIFY/ALTER COLUMN to grow an
	// existing column's type or precision.
	WidenColumn(ctx context.Context, table string, col *ColumnDefinition) error

	// AddForeignKey adds a foreign key constraint from child(column) to
	// parent(_id), per spec.md S4.5 step 8. The column must already exist;
	// the SQLite backend issues no statement.
	AddForeignKey(ctx context.Context, child, column, parent string) error

	// InsertRow inserts one row into table and returns its generated _id.
	InsertRow(ctx context.Context, table string, cols []string, vals []interface{}) (int64, error)

	// TypeString renders t/precision as this dialect's DDL type spelling
	// (spec.md S6's semantic-type -> SQL-type mapping table).
	TypeString(t SQLType, precision int) string

	Close() error
}

// ColumnInfo is what IntrospectTable reports about an existing column.
type ColumnInfo struct {
	SQLType   SQLType
	Precision int
}

// sqlExecutor is the subset of *sqlx.DB used by backend implementations,
// factored out so tests can substitute a fake.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}
