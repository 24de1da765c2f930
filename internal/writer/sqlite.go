package writer

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteBackend opens a SQLite database file and returns a Backend.
// SQLite does not multithread writes; a single open connection avoids
// callers waiting on the database's own locking.
func NewSQLiteBackend(path string) (Backend, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	return &sqlBackend{
		db:                 db,
		dialect:            "sqlite3",
		typeFn:             sqliteTypeString,
		canAlterColumnType: false,
	}, nil
}
