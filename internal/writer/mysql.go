package writer

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewMySQLBackend connects to a MySQL/MariaDB database and returns a
// Backend, grounded on the connection-tuning pattern of a
// production jmoiron/sqlx user (SetConnMaxLifetime/SetMaxOpenConns for a
// pooled server connection, vs. SQLite's single-connection discipline).
func NewMySQLBackend(dsn string) (Backend, error) {
	db, err := sqlx.Open("mysql", fmt.Sprintf("%s?multiStatements=true&parseTime=true", dsn))
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	return &sqlBackend{
		db:                 db,
		dialect:            "mysql",
		typeFn:             mysqlTypeString,
		canAlterColumnType: true,
	}, nil
}
