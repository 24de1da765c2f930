package writer

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// mysqlTypeString renders t/precision per spec.md S6's semantic-type ->
// SQL-type mapping table, translated into real MySQL DDL syntax (spec.md
// S6's table is illustrative, not a MySQL grammar: TIMESTAMP uses
// DATETIME(6) rather than the SQL-Server-only DATETIME2, and GUID uses
// CHAR(36) rather than UNIQUEIDENTIFIER, matching the hyphenated hex
// string marshalValue renders GUIDs as).
func mysqlTypeString(t SQLType, precision int) string {
	switch t {
	case SQLBit:
		return "BIT"
	case SQLInt32:
		return "INT"
	case SQLInt64:
		return "BIGINT"
	case SQLBigNumeric:
		return "NUMERIC(20,0)"
	case SQLFloat:
		return "FLOAT"
	case SQLTimestamp:
		return "DATETIME(6)"
	case SQLStringNarrow:
		return fmt.Sprintf("VARCHAR(%d)", precision)
	case SQLStringWide:
		return fmt.Sprintf("NVARCHAR(%d)", precision)
	case SQLBytes:
		return "BLOB"
	case SQLGUID:
		return "CHAR(36)"
	default:
		return "NVARCHAR(4000)"
	}
}

// sqliteTypeString renders t/precision for the SQLite dialect, whose
// storage classes are dynamically typed: timestamps fall back to the
// VARCHAR(27) form noted in spec.md S6 (SQLite has no DATETIME(6)
// equivalent), and GUIDs/bignumerics fall back to their documented
// VARCHAR fallbacks since SQLite has no native equivalents.
func sqliteTypeString(t SQLType, precision int) string {
	switch t {
	case SQLBit:
		return "INTEGER"
	case SQLInt32:
		return "INTEGER"
	case SQLInt64:
		return "INTEGER"
	case SQLBigNumeric:
		return "DECIMAL(20,0)"
	case SQLFloat:
		return "REAL"
	case SQLTimestamp:
		return "VARCHAR(27)"
	case SQLStringNarrow:
		return fmt.Sprintf("VARCHAR(%d)", precision)
	case SQLStringWide:
		return fmt.Sprintf("VARCHAR(%d)", precision)
	case SQLBytes:
		return "BLOB"
	case SQLGUID:
		return "VARCHAR(36)"
	default:
		return "VARCHAR(4000)"
	}
}

func columnInfoFromDB(ct *sql.ColumnType) ColumnInfo {
	length, ok := ct.Length()
	if !ok {
		length = 0
	}
	return ColumnInfo{SQLType: sqlTypeFromDBTypeName(ct.DatabaseTypeName()), Precision: int(length)}
}

func sqlTypeFromDBTypeName(name string) SQLType {
	switch name {
	case "BIT", "TINYINT":
		return SQLBit
	case "INT", "INTEGER":
		return SQLInt32
	case "BIGINT":
		return SQLInt64
	case "NUMERIC", "DECIMAL":
		return SQLBigNumeric
	case "FLOAT", "REAL", "DOUBLE":
		return SQLFloat
	case "DATETIME", "VARCHAR(27)":
		return SQLTimestamp
	case "VARBINARY", "BLOB":
		return SQLBytes
	case "CHAR":
		return SQLGUID
	case "NVARCHAR":
		return SQLStringWide
	default:
		return SQLStringNarrow
	}
}

// fkConstraintName derives a unique constraint name for a child/column
// foreign key, suffixed with a short random token so repeated schema
// migrations across tables never collide (spec.md S4.5 step 8).
func fkConstraintName(child, column string) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("fk_%s_%s_%s", child, column, suffix)
}
