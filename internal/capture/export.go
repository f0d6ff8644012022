package capture

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
)

// Exporter mirrors captured snapshots to JSON files on disk, one file per
// snapshot, for inspection and out-of-band backup.
type Exporter struct {
	dir string
}

// NewExporter creates the export directory if needed.
func NewExporter(dir string) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: create export dir: %w", err)
	}
	return &Exporter{dir: dir}, nil
}

// Export writes rec to <dir>/<id>.json and returns the file path.
func (e *Exporter) Export(rec *snapshot.Record) (string, error) {
	payload, err := snapshot.EncodeIndent(rec)
	if err != nil {
		return "", err
	}
	path := filepath.Join(e.dir, rec.ID+".json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("capture: write export file: %w", err)
	}
	return path, nil
}

// LoadFile reads a previously exported snapshot file. Files that do not
// look like snapshot payloads are rejected before decoding.
func LoadFile(path string) (*snapshot.Record, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture: read export file: %w", err)
	}
	if !snapshot.IsSnapshotPayload(payload) {
		return nil, snapshot.NewError(snapshot.CodeMalformed, path+" is not a snapshot file", nil)
	}
	return snapshot.Decode(payload)
}
