// pdmlsql-load runs one ingestion pass: it dissects every input file,
// flattens the resulting packet trees against the schema/fixups catalogs,
// and drains the rows into a SQL database (spec.md S1-S6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/pdmlsql"
	"github.com/m-lab/pdmlsql/internal/dissector"
	"github.com/m-lab/pdmlsql/internal/fixups"
	"github.com/m-lab/pdmlsql/internal/pdml"
	"github.com/m-lab/pdmlsql/internal/rowqueue"
	"github.com/m-lab/pdmlsql/internal/schema"
	"github.com/m-lab/pdmlsql/internal/writer"
)

var usage = `
SUMMARY
  Dissect one or more capture files and load the flattened result into a
  relational database, evolving the schema as new fields are seen.

USAGE
  $ pdmlsql-load -dissector tshark -backend sqlite3 -dsn ./out.db capture1.pcap capture2.pcap

`

var (
	dissectorPath = flag.String("dissector", "tshark", "Path to (or name of) the dissector binary")
	backendName   = flagx.Enum{Options: []string{"mysql", "sqlite3"}, Value: "sqlite3"}
	dsn           = flag.String("dsn", "", "Database DSN (driver-specific connection string)")
	catalogDir    = flag.String("catalog_dir", "", "Directory to write/read dissector catalog dumps (default: a temp dir, re-dumped every run)")
	ruleFile      = flag.String("rules", "", "Path to an external fixups rule file (optional; built-in rules always load first)")
	filterFile    = flag.String("filter", "", "Path to a table/column filter XML file (optional; default allows everything)")
	dropBytes     = flag.Bool("drop_byte_columns", false, "Drop byte-sequence columns instead of writing them as hex")
	noForeignKeys = flag.Bool("no_foreign_keys", false, "Skip issuing parent-child foreign key constraints")
	metricsAddr   = flag.String("metrics_address", "", "If set, serve Prometheus metrics on this address (e.g. :9090)")
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	flag.Var(&backendName, "backend", "Database backend: mysql or sqlite3")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n", os.Args[0])
		fmt.Fprintln(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "Flags:")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")

	inputs := flag.Args()
	if len(inputs) == 0 {
		log.Fatal("no input files given")
	}
	if *dsn == "" {
		log.Fatal("-dsn is required")
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Println(http.ListenAndServe(*metricsAddr, nil))
		}()
	}

	ctx := context.Background()
	if err := run(ctx, inputs); err != nil {
		if fe, ok := err.(*pdmlsql.FatalError); ok {
			log.Fatalf("fatal (%s): %v", fe.Kind, fe.Err)
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context, inputs []string) error {
	runner, err := dissector.NewRunner(*dissectorPath)
	if err != nil {
		return err
	}

	dir := *catalogDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "pdmlsql-catalogs")
		if err != nil {
			return fmt.Errorf("creating catalog dir: %w", err)
		}
		defer os.RemoveAll(dir)
	}
	cats, err := runner.DumpCatalogs(ctx, dir)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cats)
	if err != nil {
		return err
	}

	eng, err := fixups.NewEngine()
	if err != nil {
		return err
	}
	if *ruleFile != "" {
		f, err := os.Open(*ruleFile)
		if err != nil {
			return fmt.Errorf("opening rule file: %w", err)
		}
		err = eng.LoadFile(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("loading rule file: %w", err)
		}
	}

	cfg := writer.Config{DropByteColumns: *dropBytes, DisableForeignKeys: *noForeignKeys}
	if *filterFile != "" {
		data, err := os.ReadFile(*filterFile)
		if err != nil {
			return fmt.Errorf("reading filter file: %w", err)
		}
		cfg.Filter, err = writer.LoadFilterFile(data)
		if err != nil {
			return fmt.Errorf("parsing filter file: %w", err)
		}
	}

	backend, err := openBackend()
	if err != nil {
		return pdmlsql.NewFatalError(pdmlsql.FatalDBUnreachable, err)
	}
	defer backend.Close()

	queue := rowqueue.NewDefault()
	w := writer.New(backend, queue, cfg)

	writeErr := make(chan error, 1)
	go func() { writeErr <- w.Run(ctx) }()

	for _, in := range inputs {
		if err := ingestFile(ctx, runner, reg, eng, queue, in); err != nil {
			log.Printf("skipping %s: %v", in, err)
		}
	}
	queue.Flush()

	return <-writeErr
}

func ingestFile(ctx context.Context, runner *dissector.Runner, reg *schema.Registry, eng *fixups.Engine, queue *rowqueue.Queue, inputPath string) error {
	absPath, err := filepath.Abs(inputPath)
	if err != nil {
		return pdmlsql.NewFatalError(pdmlsql.FatalInputUnreadable, err)
	}

	dataPath, err := runner.DissectFile(ctx, absPath)
	if err != nil {
		return err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return pdmlsql.NewFatalError(pdmlsql.FatalInputUnreadable, err)
	}
	defer f.Close()

	pr := pdml.NewReader(f, reg, eng, absPath)
	for {
		rows, ok, err := pr.Next()
		if err != nil {
			log.Printf("%s: packet stream ended early: %v", inputPath, err)
			return nil
		}
		if !ok {
			return nil
		}
		for _, row := range rows {
			queue.Push(row)
		}
	}
}

func loadRegistry(cats dissector.Catalogs) (*schema.Registry, error) {
	protocols, err := os.Open(cats.Protocols)
	if err != nil {
		return nil, err
	}
	defer protocols.Close()
	fields, err := os.Open(cats.Fields)
	if err != nil {
		return nil, err
	}
	defer fields.Close()
	values, err := os.Open(cats.Values)
	if err != nil {
		return nil, err
	}
	defer values.Close()
	decodes, err := os.Open(cats.Decodes)
	if err != nil {
		return nil, err
	}
	defer decodes.Close()

	return schema.LoadCatalogs(schema.Catalogs{
		Protocols: protocols,
		Fields:    fields,
		Values:    values,
		Decodes:   decodes,
	}), nil
}

func openBackend() (writer.Backend, error) {
	switch backendName.Value {
	case "mysql":
		return writer.NewMySQLBackend(*dsn)
	default:
		return writer.NewSQLiteBackend(*dsn)
	}
}
