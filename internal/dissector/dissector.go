// Package dissector drives the external network-protocol dissector binary
// as a child process (spec.md S1, S6): one invocation per input file
// producing a packet XML side-car, and four catalog-dump invocations used
// once at startup to feed the Schema Loader.
package dissector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/m-lab/pdmlsql"
)

// pollInterval is the period on which DissectFile polls the child process
// for exit, per spec.md S5 ("the dissector invocation waits on the child
// process with a 500 ms poll until exit").
const pollInterval = 500 * time.Millisecond

// Runner invokes the dissector binary, grounded on the exec.Command
// child-process pattern of a production Go service (fire a subprocess,
// ignore its exit status, consume whatever it produced).
type Runner struct {
	BinaryPath string
}

// NewRunner returns a Runner for binaryPath, failing fast
// (pdmlsql.FatalDissectorMissing) if the binary cannot be found or is not
// executable, per spec.md S7's fatal-condition list.
func NewRunner(binaryPath string) (*Runner, error) {
	path, err := exec.LookPath(binaryPath)
	if err != nil {
		return nil, pdmlsql.NewFatalError(pdmlsql.FatalDissectorMissing, err)
	}
	return &Runner{BinaryPath: path}, nil
}

// DataSidecarPath returns the per-input-file XML side-car path the
// dissector's output is redirected to (spec.md S6, "Process-boundary
// conventions").
func DataSidecarPath(inputPath string) string {
	return inputPath + ".data"
}

// DissectFile invokes the dissector on inputPath, redirecting its PDML XML
// output to the file's side-car (spec.md S6). It waits for the child with
// a poll loop rather than a single blocking Wait, so callers can observe
// run duration and so the implementation matches the documented 500 ms
// poll cadence exactly. The child's exit code is not checked: a truncated
// or non-zero-exit dissection is still handed to the XML reader, which
// tolerates truncation.
func (r *Runner) DissectFile(ctx context.Context, inputPath string) (string, error) {
	dataPath := DataSidecarPath(inputPath)
	out, err := os.Create(dataPath)
	if err != nil {
		return "", fmt.Errorf("dissector: creating side-car %s: %w", dataPath, err)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, r.BinaryPath, "-r", inputPath, "-T", "pdml")
	cmd.Stdout = out

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("dissector: starting %s: %w", r.BinaryPath, err)
	}
	r.waitWithPoll(cmd)
	return dataPath, nil
}

// waitWithPoll waits for cmd to exit, polling every pollInterval. The exit
// status and any Wait error are deliberately discarded (spec.md S6: "exit
// code is not checked").
func (r *Runner) waitWithPoll(cmd *exec.Cmd) {
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			// Still running; loop back and poll again.
		}
	}
}

// Catalogs are the four file paths the dissector's registry-dump
// invocations write to, ready for schema.Catalogs' readers (spec.md S1,
// S6 "Dissector catalogs").
type Catalogs struct {
	Protocols string
	Fields    string
	Values    string
	Decodes   string
}

// DumpCatalogs invokes the dissector's four registry-dump subcommands
// (`-G protocols|fields|values|decodes`, mirroring tshark's own `-G`
// registry-dump convention) once at startup, writing each to its own file
// under dir, and returns their paths.
func (r *Runner) DumpCatalogs(ctx context.Context, dir string) (Catalogs, error) {
	paths := map[string]string{}
	for _, registry := range []string{"protocols", "fields", "values", "decodes"} {
		path := filepath.Join(dir, registry+".catalog")
		if err := r.dumpOne(ctx, registry, path); err != nil {
			return Catalogs{}, err
		}
		paths[registry] = path
	}
	return Catalogs{
		Protocols: paths["protocols"],
		Fields:    paths["fields"],
		Values:    paths["values"],
		Decodes:   paths["decodes"],
	}, nil
}

func (r *Runner) dumpOne(ctx context.Context, registry, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("dissector: creating catalog file %s: %w", outPath, err)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, r.BinaryPath, "-G", registry)
	cmd.Stdout = out
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("dissector: starting catalog dump (%s): %w", registry, err)
	}
	r.waitWithPoll(cmd)
	return nil
}
