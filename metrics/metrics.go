// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//   - things coming into or going out of the system: catalog lines, packets, rows.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogLineCount counts schema catalog lines processed by the Schema
	// Loader, broken down by catalog and outcome ("ok", "skip").
	CatalogLineCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdmlsql_catalog_line_count",
			Help: "Number of schema catalog lines processed, by catalog and outcome.",
		}, []string{"catalog", "status"})

	// PacketCount counts packets read from the PDML stream, by outcome.
	PacketCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdmlsql_packet_count",
			Help: "Number of packets read from the dissector XML stream, by outcome.",
		}, []string{"status"})

	// RowsEnqueued counts rows enqueued into the row queue, by table.
	RowsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdmlsql_rows_enqueued",
			Help: "Number of rows enqueued for writing, by table.",
		}, []string{"table"})

	// RowsCommitted counts rows committed to the database, by table.
	RowsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdmlsql_rows_committed",
			Help: "Number of rows committed to the database, by table.",
		}, []string{"table"})

	// RowsFailed counts per-row write failures, by table.
	RowsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdmlsql_rows_failed",
			Help: "Number of rows that failed to write, by table.",
		}, []string{"table"})

	// QueueDepth tracks the current depth of the row queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdmlsql_queue_depth",
		Help: "Current number of rows buffered in the row queue.",
	})

	// DDLCount counts schema-evolution DDL statements issued, by kind
	// ("create_table", "add_column", "add_foreign_key"). Column widenings
	// are counted by ColumnWidenCount instead.
	DDLCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdmlsql_ddl_count",
			Help: "Number of DDL statements issued by the writer, by kind.",
		}, []string{"kind"})

	// ColumnWidenCount counts column widening events, by table.
	ColumnWidenCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdmlsql_column_widen_count",
			Help: "Number of times a column's SQL type was widened.",
		}, []string{"table"})

	// TruncatedStringCount counts string values truncated to fit a column.
	TruncatedStringCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdmlsql_truncated_string_count",
			Help: "Number of string values truncated when bound to a column.",
		}, []string{"table", "column"})

	// IdentifierCollisionCount counts escaped-identifier collisions.
	IdentifierCollisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdmlsql_identifier_collision_count",
			Help: "Number of distinct logical names that collided after escaping/truncation.",
		}, []string{"table"})

	// ConsumerFailureCount counts writer-consumer row failures; it is never
	// reset.
	ConsumerFailureCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdmlsql_consumer_failure_count",
		Help: "Number of consumer errors encountered by the async writer.",
	})

	// FlushDuration measures the latency of a single row-write, by table.
	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdmlsql_flush_duration_seconds",
			Help:    "Latency of writing a single row to the database, by table.",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"})
)
