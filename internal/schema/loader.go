package schema

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m-lab/go/logx"

	"github.com/m-lab/pdmlsql/metrics"
)

// Catalogs is the set of four tab-delimited streams the dissector emits
// (spec.md S4.1/S6): protocols, fields, values, decodes.
type Catalogs struct {
	Protocols io.Reader
	Fields    io.Reader
	Values    io.Reader
	Decodes   io.Reader
}

var logBadLine = logx.NewLogEvery(nil, 10*time.Second)

// LoadCatalogs parses the four catalogs into a single Registry. Per-line
// failures are logged and skipped (spec.md S4.1/S7); LoadCatalogs always
// returns a (possibly partial) Registry and never an error of its own.
//
// The decodes catalog is read independently of (and concurrently with) the
// protocols/fields/values chain: decodes is reserved and doesn't touch the
// registry, so it has no ordering dependency on the other three, while
// fields and values each depend on the catalog loaded immediately before
// them and must run in that order.
func LoadCatalogs(c Catalogs) *Registry {
	reg := NewRegistry()

	g := new(errgroup.Group)
	g.Go(func() error {
		loadDecodes(c.Decodes)
		return nil
	})
	g.Go(func() error {
		loadProtocols(c.Protocols, reg)
		loadFields(c.Fields, reg)
		loadValues(c.Values, reg)
		return nil
	})
	_ = g.Wait() // neither goroutine returns an error; loading is always best-effort.

	return reg
}

func scanLines(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1<<20)
	return s
}

func loadProtocols(r io.Reader, reg *Registry) {
	if r == nil {
		return
	}
	s := scanLines(r)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.SplitN(line, "\t", 3)
		if len(cols) != 3 {
			logCatalogWarning("protocols", line, fmt.Errorf("expected 3 columns, got %d", len(cols)))
			continue
		}
		longName, shortName, filterName := cols[0], cols[1], cols[2]
		if err := reg.RegisterProtocol(shortName, longName, filterName); err != nil {
			logCatalogWarning("protocols", line, err)
			continue
		}
		metrics.CatalogLineCount.WithLabelValues("protocols", "ok").Inc()
	}
}

func loadFields(r io.Reader, reg *Registry) {
	if r == nil {
		return
	}
	s := scanLines(r)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := loadFieldLine(line, reg); err != nil {
			logCatalogWarning("fields", line, err)
			continue
		}
		metrics.CatalogLineCount.WithLabelValues("fields", "ok").Inc()
	}
}

func loadFieldLine(line string, reg *Registry) error {
	tag := line
	if idx := strings.IndexByte(line, '\t'); idx >= 0 {
		tag = line[:idx]
	}
	switch tag {
	case "F":
		cols := strings.SplitN(line, "\t", 8)
		if len(cols) != 8 {
			return fmt.Errorf("F line: expected 8 columns, got %d", len(cols))
		}
		_, longName, shortName, ftenumToken, parentShortName, description, displayBase, bitmask :=
			cols[0], cols[1], cols[2], cols[3], cols[4], cols[5], cols[6], cols[7]
		ftype, ok := ParseFieldType(ftenumToken)
		if !ok {
			return fmt.Errorf("field %q: unknown dissector type token %q", shortName, ftenumToken)
		}
		return reg.RegisterField(shortName, longName, description, DisplayBase(displayBase), bitmask, parentShortName, ftype)
	case "P":
		cols := strings.SplitN(line, "\t", 3)
		if len(cols) != 3 {
			return fmt.Errorf("P line: expected 3 columns, got %d", len(cols))
		}
		_, longName, shortName := cols[0], cols[1], cols[2]
		if _, exists := reg.Protocol(shortName); !exists {
			return reg.RegisterProtocol(shortName, longName, strings.ToLower(shortName))
		}
		// Already registered (e.g. by the protocols catalog): merge the
		// longName only, without asserting a filterName this P line never supplied.
		return reg.RegisterProtocol(shortName, longName, "")
	default:
		return fmt.Errorf("unknown field record tag %q", tag)
	}
}

func loadValues(r io.Reader, reg *Registry) {
	if r == nil {
		return
	}
	s := scanLines(r)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := loadValueLine(line, reg); err != nil {
			logCatalogWarning("values", line, err)
			continue
		}
		metrics.CatalogLineCount.WithLabelValues("values", "ok").Inc()
	}
}

func loadValueLine(line string, reg *Registry) error {
	tag := line
	if idx := strings.IndexByte(line, '\t'); idx >= 0 {
		tag = line[:idx]
	}
	switch tag {
	case "V":
		cols := strings.SplitN(line, "\t", 4)
		if len(cols) != 4 {
			return fmt.Errorf("V line: expected 4 columns, got %d", len(cols))
		}
		field, rawValue, label := cols[1], cols[2], cols[3]
		value, err := ParseInt(rawValue)
		if err != nil {
			return fmt.Errorf("V line: %w", err)
		}
		return reg.RegisterSingle(field, value, label)
	case "R":
		cols := strings.SplitN(line, "\t", 5)
		if len(cols) != 5 {
			return fmt.Errorf("R line: expected 5 columns, got %d", len(cols))
		}
		field, rawLo, rawHi, label := cols[1], cols[2], cols[3], cols[4]
		lo, err := ParseInt(rawLo)
		if err != nil {
			return fmt.Errorf("R line: %w", err)
		}
		hi, err := ParseInt(rawHi)
		if err != nil {
			return fmt.Errorf("R line: %w", err)
		}
		return reg.RegisterRange(field, lo, hi, label)
	case "T":
		cols := strings.SplitN(line, "\t", 4)
		if len(cols) != 4 {
			return fmt.Errorf("T line: expected 4 columns, got %d", len(cols))
		}
		field, trueLabel, falseLabel := cols[1], cols[2], cols[3]
		return reg.RegisterBoolean(field, trueLabel, falseLabel)
	default:
		return fmt.Errorf("unknown value record tag %q", tag)
	}
}

// loadDecodes reads and discards the decodes catalog. The source this spec
// was distilled from never consumes this catalog either (spec.md S9, "Open
// question (ambiguous source behavior)"); we preserve the same no-op, minus
// inventing semantics for it.
func loadDecodes(r io.Reader) {
	if r == nil {
		return
	}
	s := scanLines(r)
	for s.Scan() {
		metrics.CatalogLineCount.WithLabelValues("decodes", "ok").Inc()
	}
}

func logCatalogWarning(catalog, line string, err error) {
	metrics.CatalogLineCount.WithLabelValues(catalog, "skip").Inc()
	logBadLine.Println(fmt.Sprintf("schema: skipping malformed %s line %q: %v", catalog, line, err))
}
