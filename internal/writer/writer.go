package writer

import (
	"context"
	"sync"
	"time"

	"github.com/m-lab/go/logx"
	"github.com/m-lab/pdmlsql"
	"github.com/m-lab/pdmlsql/internal/pdml"
	"github.com/m-lab/pdmlsql/internal/value"
	"github.com/m-lab/pdmlsql/metrics"
)

var logRowError = logx.NewLogEvery(nil, 10*time.Second)
var logIdentifierCollision = logx.NewLogEvery(nil, 10*time.Second)

const parentColumnPrefix = "parent_"

// tableNameScope is the collisionTracker scope key for table-name
// collisions: it contains a byte EscapeIdentifier never produces, so it
// can never alias a real table's own column-collision scope.
const tableNameScope = "\x00tables"

// Config configures a Writer's optional behavior.
type Config struct {
	Filter             *Filter
	DropByteColumns    bool
	DisableForeignKeys bool
}

// Queue is the subset of *rowqueue.Queue the Writer consumes, factored out
// to keep this package independent of rowqueue's import.
type Queue interface {
	Pop() (row *pdml.DataRow, ok bool)
}

// Writer is the Async Database Writer (spec.md S4.5, component G): a
// single background consumer draining a row queue, evolving an adaptive
// relational schema, and inserting rows with parent and source-file
// linkage.
type Writer struct {
	backend Backend
	queue   Queue
	cfg     Config

	tablesMu sync.Mutex
	tables   map[string]*TableDefinition

	sourceFiles *sourceFileIndex
	collisions  *collisionTracker

	// current is the row-info context for the packet presently being
	// drained; the queue guarantees no two packets' rows interleave, so a
	// single mutable field is enough for the one consumer goroutine
	// (spec.md S4.5 step 3, S5 ordering guarantee).
	current *rowInfo

	consecutiveFailures int
}

// New returns a Writer ready to Run against queue.
func New(backend Backend, queue Queue, cfg Config) *Writer {
	if cfg.Filter == nil {
		cfg.Filter = NewFilter()
	}
	return &Writer{
		backend:     backend,
		queue:       queue,
		cfg:         cfg,
		tables:      make(map[string]*TableDefinition),
		sourceFiles: newSourceFileIndex(),
		collisions:  newCollisionTracker(),
	}
}

// escapeTableName escapes a raw table name and records it in the
// collision tracker, logging the first time two distinct raw names
// escape to the same identifier (spec.md S9: "log a warning on first
// collision per table").
func (w *Writer) escapeTableName(name string) string {
	escaped := EscapeIdentifier(name)
	if w.collisions.check(tableNameScope, escaped, name) {
		logIdentifierCollision.Println("writer: table name collision on", escaped, "from", name)
	}
	return escaped
}

// escapeColumnName escapes a raw column name within table and records it
// in the collision tracker, scoped per table (spec.md S9).
func (w *Writer) escapeColumnName(table, name string) string {
	escaped := EscapeIdentifier(name)
	if w.collisions.check(table, escaped, name) {
		logIdentifierCollision.Println("writer: column name collision in", table, "on", escaped, "from", name)
	}
	return escaped
}

// Run drains the queue until it is flushed (closed), processing one
// top-level packet row tree at a time. It returns a *pdmlsql.FatalError
// (FatalConsumerFailures) if ConsumerFailureLimit consecutive row
// failures occur; the caller should then stop enqueuing.
func (w *Writer) Run(ctx context.Context) error {
	for {
		row, ok := w.queue.Pop()
		if !ok {
			return nil
		}
		if row.TableName == "geninfo" {
			w.current = nil
		}
		if _, err := w.processRow(ctx, row, 0, ""); err != nil {
			w.consecutiveFailures++
			metrics.ConsumerFailureCount.Inc()
			logRowError.Println("writer: row failed:", err)
			if w.consecutiveFailures >= pdmlsql.ConsumerFailureLimit {
				return pdmlsql.NewFatalError(pdmlsql.FatalConsumerFailures, err)
			}
			continue
		}
		w.consecutiveFailures = 0
	}
}

// processRow writes one row (and recurses into its children), returning
// the row's new _id. parentID/parentTable identify the row's parent, if
// any, for foreign-key linkage (spec.md S4.5 steps 1-8).
func (w *Writer) processRow(ctx context.Context, row *pdml.DataRow, parentID int64, parentTable string) (int64, error) {
	table := w.escapeTableName(row.TableName)

	// childID/childParentTable are what this row's children link against:
	// this row's own _id and table when written, or this row's own parent
	// when denied (spec.md S4.5 step 2: "deny on the table short-circuits
	// — children are still recursed ... but the current row is not
	// written").
	childID, childParentTable := parentID, parentTable

	if w.cfg.Filter.AllowTable(table) {
		rowID, err := w.writeRow(ctx, table, row, parentID, parentTable)
		if err != nil {
			return 0, err
		}
		metrics.RowsCommitted.WithLabelValues(table).Inc()
		childID, childParentTable = rowID, table
	}

	for _, child := range row.ChildRows {
		if _, err := w.processRow(ctx, child, childID, childParentTable); err != nil {
			metrics.RowsFailed.WithLabelValues(EscapeIdentifier(child.TableName)).Inc()
			logRowError.Println("writer: child row failed:", err)
		}
	}
	return childID, nil
}

func (w *Writer) writeRow(ctx context.Context, table string, row *pdml.DataRow, parentID int64, parentTable string) (int64, error) {
	timer := metrics.FlushDuration.WithLabelValues(table)
	start := time.Now()
	defer func() { timer.Observe(time.Since(start).Seconds()) }()

	cols := make([]columnValue, 0, len(row.Columns)+4)
	for _, c := range row.Columns {
		cols = append(cols, columnValue{name: w.escapeColumnName(table, c.Name), val: c.Value})
	}

	if table == "geninfo" {
		if err := w.establishRowInfo(ctx, row); err != nil {
			return 0, err
		}
	} else if w.current != nil {
		cols = append(cols,
			columnValue{name: "_sourcefileid", val: value.SmallestUnsigned(uint64(w.current.sourceFileID))},
			columnValue{name: "_number", val: value.SmallestUnsigned(uint64(w.current.number))},
		)
		if w.current.hasTimestamp {
			cols = append(cols, columnValue{name: "_timestamp", val: w.current.timestamp})
		}
	}

	var parentColumn string
	if parentTable != "" {
		parentColumn = parentColumnPrefix + parentTable
		cols = append(cols, columnValue{name: parentColumn, val: value.SmallestSigned(parentID)})
	}

	def, err := w.tableDefinition(ctx, table)
	if err != nil {
		return 0, err
	}
	if err := w.evolveSchema(ctx, table, def, cols); err != nil {
		return 0, err
	}
	if parentColumn != "" {
		if err := w.ensureForeignKey(ctx, table, parentColumn, parentTable, def); err != nil {
			return 0, err
		}
	}

	names := make([]string, 0, len(cols))
	vals := make([]interface{}, 0, len(cols))
	for _, c := range cols {
		col, _ := def.column(c.name)
		names = append(names, c.name)
		vals = append(vals, marshalValue(c.val, col, table, c.name, marshalOptions{dropByteColumns: w.cfg.DropByteColumns}))
	}

	id, err := w.backend.InsertRow(ctx, table, names, vals)
	if err != nil {
		return 0, err
	}
	return id, nil
}

type columnValue struct {
	name string
	val  value.Value
}

// establishRowInfo extracts file/number/timestamp from a geninfo row and
// acquires its sourcefile _id (spec.md S4.5 step 3).
func (w *Writer) establishRowInfo(ctx context.Context, row *pdml.DataRow) error {
	var path string
	var number int64
	var timestamp value.Value
	var hasTimestamp bool
	for _, c := range row.Columns {
		switch c.Name {
		case "file":
			path = c.Value.Text
		case "num":
			n, _ := c.Value.AsInt64()
			number = n
		case "timestamp":
			timestamp, hasTimestamp = c.Value, true
		}
	}
	id, err := w.sourceFiles.acquire(ctx, w.backend, path)
	if err != nil {
		return err
	}
	w.current = &rowInfo{sourceFileID: id, number: number, timestamp: timestamp, hasTimestamp: hasTimestamp}
	return nil
}

// tableDefinition returns the cached TableDefinition for table, loading it
// from the database's existing columns on first reference (spec.md S4.5
// step 4).
func (w *Writer) tableDefinition(ctx context.Context, table string) (*TableDefinition, error) {
	w.tablesMu.Lock()
	defer w.tablesMu.Unlock()

	if def, ok := w.tables[table]; ok {
		return def, nil
	}
	def := newTableDefinition(table)
	if existing, ok, err := w.backend.IntrospectTable(ctx, table); err != nil {
		return nil, err
	} else if ok {
		def.Committed = true
		for name, info := range existing {
			def.addColumn(&ColumnDefinition{Name: name, SQLType: info.SQLType, Precision: info.Precision, Committed: true})
		}
	}
	w.tables[table] = def
	return def, nil
}

// evolveSchema materializes def's table (if new) and adds/widens columns
// to accommodate cols, issuing DDL as needed (spec.md S4.5 step 4).
func (w *Writer) evolveSchema(ctx context.Context, table string, def *TableDefinition, cols []columnValue) error {
	var toCreate []*ColumnDefinition
	for _, c := range cols {
		existing, ok := def.column(c.name)
		if !ok {
			t, p := typeForValue(c.val)
			nc := &ColumnDefinition{Name: c.name, SQLType: t, Precision: p}
			def.addColumn(nc)
			toCreate = append(toCreate, nc)
			continue
		}
		newType, newPrecision, changed := widen(existing.SQLType, existing.Precision, c.val)
		if !changed {
			continue
		}
		existing.SQLType, existing.Precision = newType, newPrecision
		if existing.Committed {
			metrics.ColumnWidenCount.WithLabelValues(table).Inc()
			if err := w.backend.WidenColumn(ctx, table, existing); err != nil {
				return err
			}
		}
	}

	if !def.Committed {
		if err := w.backend.CreateTable(ctx, table, def.OrderedColumns()); err != nil {
			return err
		}
		metrics.DDLCount.WithLabelValues("create_table").Inc()
		def.Committed = true
		for _, c := range def.OrderedColumns() {
			c.Committed = true
		}
		return nil
	}

	for _, c := range toCreate {
		if err := w.backend.AddColumn(ctx, table, c); err != nil {
			return err
		}
		metrics.DDLCount.WithLabelValues("add_column").Inc()
		c.Committed = true
	}
	return nil
}

// ensureForeignKey adds the parent-linkage column (handled by evolveSchema
// as an ordinary column already) and the foreign key constraint itself, on
// first reference for this child/parent pair (spec.md S4.5 step 8).
func (w *Writer) ensureForeignKey(ctx context.Context, child, column, parentTable string, def *TableDefinition) error {
	if w.cfg.DisableForeignKeys || def.fkDone[column] {
		return nil
	}
	if err := w.backend.AddForeignKey(ctx, child, column, EscapeIdentifier(parentTable)); err != nil {
		return err
	}
	def.fkDone[column] = true
	metrics.DDLCount.WithLabelValues("add_foreign_key").Inc()
	return nil
}
