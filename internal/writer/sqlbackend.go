package writer

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// sqlBackend is the dialect-independent core shared by the MySQL and
// SQLite backends: both speak through jmoiron/sqlx and differ only in
// connection tuning, DDL type strings, and whether ALTER ... MODIFY is
// available (spec.md S9, "Each backend overrides type strings and any
// dialect quirks").
type sqlBackend struct {
	db                 *sqlx.DB
	dialect            string
	typeFn             func(t SQLType, precision int) string
	canAlterColumnType bool
}

func (b *sqlBackend) StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(atPlaceholder{})
}

func (b *sqlBackend) TypeString(t SQLType, precision int) string {
	return b.typeFn(t, precision)
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}

func (b *sqlBackend) IntrospectTable(ctx context.Context, table string) (map[string]ColumnInfo, bool, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1=0", quoteIdent(table)))
	if err != nil {
		// A missing table is reported as ok=false, not an error: the
		// writer treats this the same as "table not yet materialized".
		return nil, false, nil
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, false, err
	}
	cols := make(map[string]ColumnInfo, len(types))
	for _, ct := range types {
		cols[ct.Name()] = columnInfoFromDB(ct)
	}
	return cols, true, nil
}

func (b *sqlBackend) CreateTable(ctx context.Context, table string, cols []*ColumnDefinition) error {
	var sb strings.Builder
	if b.dialect == "mysql" {
		fmt.Fprintf(&sb, "CREATE TABLE %s (_id BIGINT PRIMARY KEY AUTO_INCREMENT", quoteIdent(table))
	} else {
		fmt.Fprintf(&sb, "CREATE TABLE %s (_id INTEGER PRIMARY KEY AUTOINCREMENT", quoteIdent(table))
	}
	for _, c := range cols {
		fmt.Fprintf(&sb, ", %s %s", quoteIdent(c.Name), b.typeFn(c.SQLType, c.Precision))
	}
	sb.WriteString(")")
	_, err := b.db.ExecContext(ctx, sb.String())
	return err
}

func (b *sqlBackend) AddColumn(ctx context.Context, table string, col *ColumnDefinition) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(col.Name), b.typeFn(col.SQLType, col.Precision))
	_, err := b.db.ExecContext(ctx, stmt)
	return err
}

func (b *sqlBackend) WidenColumn(ctx context.Context, table string, col *ColumnDefinition) error {
	if !b.canAlterColumnType {
		// SQLite has no reliable ALTER COLUMN TYPE; its columns are
		// dynamically typed, so the written value already fits under the
		// looser affinity. The precision bookkeeping still updates.
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s", quoteIdent(table), quoteIdent(col.Name), b.typeFn(col.SQLType, col.Precision))
	_, err := b.db.ExecContext(ctx, stmt)
	return err
}

func (b *sqlBackend) AddForeignKey(ctx context.Context, child, column, parent string) error {
	if b.dialect == "sqlite3" {
		// SQLite cannot add a foreign key constraint to an existing table;
		// the parent-linkage column alone carries the relationship.
		return nil
	}
	stmt := fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(_id)",
		quoteIdent(child), quoteIdent(fkConstraintName(child, column)), quoteIdent(column), quoteIdent(parent),
	)
	_, err := b.db.ExecContext(ctx, stmt)
	return err
}

func (b *sqlBackend) InsertRow(ctx context.Context, table string, cols []string, vals []interface{}) (int64, error) {
	builder := b.StatementBuilder().Insert(table).Columns(cols...).Values(vals...)
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	result, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}
