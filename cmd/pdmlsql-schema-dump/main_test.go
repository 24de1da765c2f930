package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-lab/pdmlsql/internal/dissector"
)

func writeCatalogFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", name, err)
	}
	return path
}

func TestLoadRegistryReadsAllFourCatalogs(t *testing.T) {
	dir := t.TempDir()
	cats := dissector.Catalogs{
		Protocols: writeCatalogFile(t, dir, "protocols.catalog", "Internet Protocol\tip\tip\n"),
		Fields:    writeCatalogFile(t, dir, "fields.catalog", "F\tIP Address\tip.addr\tFT_STRING\tip\tIP Address\tBASE_NONE\t0\n"),
		Values:    writeCatalogFile(t, dir, "values.catalog", ""),
		Decodes:   writeCatalogFile(t, dir, "decodes.catalog", ""),
	}

	reg, err := loadRegistry(cats)
	if err != nil {
		t.Fatalf("loadRegistry() error = %v", err)
	}
	if _, ok := reg.Field("ip.addr"); !ok {
		t.Fatal("loadRegistry() did not register ip.addr")
	}
}

func TestPrintRegistryListsFieldsUnderTheirProtocol(t *testing.T) {
	dir := t.TempDir()
	cats := dissector.Catalogs{
		Protocols: writeCatalogFile(t, dir, "protocols.catalog", "Internet Protocol\tip\tip\n"),
		Fields:    writeCatalogFile(t, dir, "fields.catalog", "F\tIP Address\tip.addr\tFT_STRING\tip\tIP Address\tBASE_NONE\t0\n"),
		Values:    writeCatalogFile(t, dir, "values.catalog", ""),
		Decodes:   writeCatalogFile(t, dir, "decodes.catalog", ""),
	}
	reg, err := loadRegistry(cats)
	if err != nil {
		t.Fatalf("loadRegistry() error = %v", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe() error = %v", err)
	}
	saved := os.Stdout
	os.Stdout = w
	printRegistry(reg)
	w.Close()
	os.Stdout = saved

	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	out := string(buf[:n])
	if !strings.Contains(out, "ip.addr") {
		t.Fatalf("printRegistry() output = %q, want it to mention ip.addr", out)
	}
}
