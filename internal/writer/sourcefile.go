package writer

import (
	"context"
	"sync"

	"github.com/m-lab/pdmlsql/internal/value"
)

// sourceFileIndex caches path -> sourcefile._id, so repeated packets from
// the same input file only insert once (spec.md S4.5 step 3,
// "acquireSourceFileId(path)").
type sourceFileIndex struct {
	mu  sync.Mutex
	ids map[string]int64
}

func newSourceFileIndex() *sourceFileIndex {
	return &sourceFileIndex{ids: make(map[string]int64)}
}

// acquire returns the cached _id for path, inserting a new sourcefile row
// via backend if path has not been seen before (and creating the
// sourcefile table first if it does not exist yet).
func (s *sourceFileIndex) acquire(ctx context.Context, backend Backend, path string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.ids[path]; ok {
		return id, nil
	}
	if _, exists, err := backend.IntrospectTable(ctx, "sourcefile"); err != nil {
		return 0, err
	} else if !exists {
		cols := []*ColumnDefinition{{Name: "path", SQLType: SQLStringNarrow, Precision: 4000}}
		if err := backend.CreateTable(ctx, "sourcefile", cols); err != nil {
			return 0, err
		}
	}
	id, err := backend.InsertRow(ctx, "sourcefile", []string{"path"}, []interface{}{path})
	if err != nil {
		return 0, err
	}
	s.ids[path] = id
	return id, nil
}

// rowInfo carries the per-packet context auto-injected onto every
// non-geninfo row once the geninfo row has established it (spec.md S4.5
// step 3): _sourcefileid, _number, _timestamp.
type rowInfo struct {
	sourceFileID int64
	number       int64
	timestamp    value.Value
	hasTimestamp bool
}
