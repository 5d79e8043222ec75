package sparse

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

const snapshotVersion = 1

// snapshotFile is the on-disk form. Only the chunks and tuning parameters
// are persisted; postings are cheap to rebuild and tokenization is
// deterministic, so derived state stays out of the file.
type snapshotFile struct {
	Version int            `json:"version"`
	K1      float64        `json:"k1"`
	B       float64        `json:"b"`
	Chunks  []*types.Chunk `json:"chunks"`
}

// Save writes the current corpus to path as a versioned JSON snapshot. The
// write goes through a temp file and rename, so a crash never leaves a
// truncated snapshot behind.
func (idx *Index) Save(path string) error {
	snap := idx.snap.Load()
	chunks := make([]*types.Chunk, len(snap.docs))
	for i, d := range snap.docs {
		chunks[i] = d.chunk
	}

	data, err := json.Marshal(snapshotFile{
		Version: snapshotVersion,
		K1:      idx.k1,
		B:       idx.b,
		Chunks:  chunks,
	})
	if err != nil {
		return fmt.Errorf("marshal sparse snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sparse snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace sparse snapshot: %w", err)
	}

	idx.logger.WithField("chunks", len(chunks)).Info("saved sparse index snapshot")
	return nil
}

// Load replaces the corpus with the snapshot at path. The tuning
// parameters of the running index win over persisted ones; chunks are
// re-tokenized on the way in.
func (idx *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sparse snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode sparse snapshot: %w", err)
	}
	if file.Version != snapshotVersion {
		return fmt.Errorf("unsupported sparse snapshot version %d", file.Version)
	}

	idx.Reset()
	if len(file.Chunks) == 0 {
		return nil
	}
	if err := idx.Upsert(file.Chunks...); err != nil {
		return fmt.Errorf("restore sparse snapshot: %w", err)
	}

	idx.logger.WithField("chunks", len(file.Chunks)).Info("loaded sparse index snapshot")
	return nil
}
