// pdmlsql-schema-dump dumps the dissector's protocol/field/value/decode
// catalogs and prints the resulting field registry, for inspecting what a
// pdmlsql-load run would see without touching a database (spec.md S1, S4.1).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/pdmlsql/internal/dissector"
	"github.com/m-lab/pdmlsql/internal/schema"
)

var usage = `
SUMMARY
  Dump the dissector's field registry as plain text.

USAGE
  $ pdmlsql-schema-dump -dissector tshark
  ip (Internet Protocol Version 4)
    ip.ttl                         uint8
  tcp (Transmission Control Protocol)
    tcp.port                       uint16
  ...

`

var dissectorPath = flag.String("dissector", "tshark", "Path to (or name of) the dissector binary")

func init() {
	log.SetFlags(0)
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

	dir, err := os.MkdirTemp("", "pdmlsql-schema-dump")
	rtx.Must(err, "Could not create temp dir")
	defer os.RemoveAll(dir)

	runner, err := dissector.NewRunner(*dissectorPath)
	rtx.Must(err, "Could not locate dissector binary")

	cats, err := runner.DumpCatalogs(context.Background(), dir)
	rtx.Must(err, "Could not dump catalogs")

	reg, err := loadRegistry(cats)
	rtx.Must(err, "Could not load registry")

	printRegistry(reg)
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

func printRegistry(reg *schema.Registry) {
	protocols := reg.Protocols()
	sort.Slice(protocols, func(i, j int) bool { return protocols[i].ShortName < protocols[j].ShortName })

	for _, p := range protocols {
		fmt.Printf("%s (%s)\n", p.ShortName, p.LongName)
		fields := append([]*schema.Field(nil), p.Fields...)
		sort.Slice(fields, func(i, j int) bool { return fields[i].ShortName < fields[j].ShortName })
		for _, f := range fields {
			fmt.Printf("  %-30s %s\n", f.ShortName, f.Type)
		}
	}
}
