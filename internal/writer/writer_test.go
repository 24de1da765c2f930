package writer

import (
	"context"
	"strings"
	"testing"

	"github.com/m-lab/pdmlsql/internal/pdml"
	"github.com/m-lab/pdmlsql/internal/value"
)

// fakeQueue replays a fixed slice of rows, mimicking rowqueue.Queue's Pop
// contract (one nil-free row per call, ok=false once drained).
type fakeQueue struct {
	rows []*pdml.DataRow
	i    int
}

func (q *fakeQueue) Pop() (*pdml.DataRow, bool) {
	if q.i >= len(q.rows) {
		return nil, false
	}
	r := q.rows[q.i]
	q.i++
	return r, true
}

func newTestBackend(t *testing.T) Backend {
	t.Helper()
	b, err := NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func geninfoRow(file string, num int64) *pdml.DataRow {
	r := &pdml.DataRow{TableName: "geninfo"}
	r.Columns = []pdml.Column{
		{Name: "file", Value: value.Text(file)},
		{Name: "num", Value: value.SmallestSigned(num)},
	}
	return r
}

func TestWriterSchemaEvolutionWidensStringColumn(t *testing.T) {
	backend := newTestBackend(t)
	w := New(backend, &fakeQueue{}, Config{})
	ctx := context.Background()

	short := &pdml.DataRow{TableName: "ip.host", Columns: []pdml.Column{
		{Name: "value", Value: value.Text("short")},
	}}
	if _, err := w.processRow(ctx, short, 0, ""); err != nil {
		t.Fatalf("first processRow() error = %v", err)
	}

	long := &pdml.DataRow{TableName: "ip.host", Columns: []pdml.Column{
		{Name: "value", Value: value.Text(strings.Repeat("z", 1500))},
	}}
	if _, err := w.processRow(ctx, long, 0, ""); err != nil {
		t.Fatalf("second processRow() error = %v", err)
	}

	def := w.tables["ip_host"]
	if def == nil {
		t.Fatal("table ip_host was never materialized")
	}
	col, ok := def.column("value")
	if !ok {
		t.Fatal("column value not found")
	}
	if col.Precision != 2000 {
		t.Fatalf("column precision = %d, want 2000 after widening", col.Precision)
	}

	smaller := &pdml.DataRow{TableName: "ip.host", Columns: []pdml.Column{
		{Name: "value", Value: value.Text(strings.Repeat("q", 300))},
	}}
	if _, err := w.processRow(ctx, smaller, 0, ""); err != nil {
		t.Fatalf("third processRow() error = %v", err)
	}
	if def.Columns["value"].Precision != 2000 {
		t.Fatal("a smaller value should not narrow the already-widened column")
	}
}

func TestWriterParentLinkageAddsForeignKeyColumn(t *testing.T) {
	backend := newTestBackend(t)
	w := New(backend, &fakeQueue{}, Config{})
	ctx := context.Background()

	parent := &pdml.DataRow{TableName: "ip", Columns: []pdml.Column{
		{Name: "addr", Value: value.Text("10.0.0.1")},
	}}
	parentID, err := w.processRow(ctx, parent, 0, "")
	if err != nil {
		t.Fatalf("parent processRow() error = %v", err)
	}

	child := &pdml.DataRow{TableName: "ip.flags", Columns: []pdml.Column{
		{Name: "value", Value: value.Boolean(true)},
	}}
	childID, err := w.processRow(ctx, child, parentID, "ip")
	if err != nil {
		t.Fatalf("child processRow() error = %v", err)
	}
	if childID == 0 {
		t.Fatal("child row was not inserted")
	}

	def := w.tables["ip_flags"]
	if def == nil {
		t.Fatal("table ip_flags was never materialized")
	}
	if _, ok := def.column("parent_ip"); !ok {
		t.Fatal("expected a parent_ip linkage column")
	}
	if !def.fkDone["parent_ip"] {
		t.Fatal("expected the foreign key to have been issued")
	}
}

func TestWriterGeninfoEstablishesRowInfoForSubsequentRows(t *testing.T) {
	backend := newTestBackend(t)
	w := New(backend, &fakeQueue{}, Config{})
	ctx := context.Background()

	if _, err := w.processRow(ctx, geninfoRow("/cap/one.pcap", 7), 0, ""); err != nil {
		t.Fatalf("geninfo processRow() error = %v", err)
	}
	if w.current == nil || w.current.number != 7 {
		t.Fatal("geninfo row did not establish row info")
	}

	eth := &pdml.DataRow{TableName: "eth", Columns: []pdml.Column{
		{Name: "src", Value: value.Text("aa:bb:cc:dd:ee:ff")},
	}}
	if _, err := w.processRow(ctx, eth, 0, ""); err != nil {
		t.Fatalf("eth processRow() error = %v", err)
	}
	def := w.tables["eth"]
	if _, ok := def.column("_sourcefileid"); !ok {
		t.Fatal("non-geninfo row should carry an auto-injected _sourcefileid column")
	}
	if _, ok := def.column("_number"); !ok {
		t.Fatal("non-geninfo row should carry an auto-injected _number column")
	}
}

func TestWriterDeniedTableStillRecursesChildren(t *testing.T) {
	backend := newTestBackend(t)
	filter, err := LoadFilterFile([]byte(`<filter><tables><deny tableName="^secret$"/></tables></filter>`))
	if err != nil {
		t.Fatalf("LoadFilterFile() error = %v", err)
	}
	w := New(backend, &fakeQueue{}, Config{Filter: filter})
	ctx := context.Background()

	row := &pdml.DataRow{
		TableName: "secret",
		Columns:   []pdml.Column{{Name: "value", Value: value.Text("x")}},
		ChildRows: []*pdml.DataRow{
			{TableName: "visible", Columns: []pdml.Column{{Name: "value", Value: value.Text("y")}}},
		},
	}
	if _, err := w.processRow(ctx, row, 0, ""); err != nil {
		t.Fatalf("processRow() error = %v", err)
	}
	if _, ok := w.tables["secret"]; ok {
		t.Fatal("denied table should never be materialized")
	}
	if _, ok := w.tables["visible"]; !ok {
		t.Fatal("child of a denied row should still be written")
	}
}

func TestWriterRunStopsAfterConsecutiveFailures(t *testing.T) {
	backend := newTestBackend(t)
	backend.Close() // force every subsequent write to fail

	rows := []*pdml.DataRow{
		{TableName: "a", Columns: []pdml.Column{{Name: "v", Value: value.Text("1")}}},
		{TableName: "a", Columns: []pdml.Column{{Name: "v", Value: value.Text("2")}}},
		{TableName: "a", Columns: []pdml.Column{{Name: "v", Value: value.Text("3")}}},
	}
	w := New(backend, &fakeQueue{rows: rows}, Config{})

	err := w.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should return a fatal error after repeated failures")
	}
	if !strings.Contains(err.Error(), "consumer_failures") {
		t.Fatalf("Run() error = %v, want a consumer_failures FatalError", err)
	}
}
