package main

import (
	"os"
	"path/filepath"
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

func TestOpenBackendDefaultsToSQLite(t *testing.T) {
	backendName.Value = "sqlite3"
	path := filepath.Join(t.TempDir(), "test.db")
	savedDSN := *dsn
	*dsn = path
	defer func() { *dsn = savedDSN }()

	b, err := openBackend()
	if err != nil {
		t.Fatalf("openBackend() error = %v", err)
	}
	defer b.Close()
}
