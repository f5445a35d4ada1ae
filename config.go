package sparsevec

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/sparsevec/index/inverted"
	"github.com/hupe1980/sparsevec/persistence"
)

// configSchemaVersion is the version of the persisted config record.
// Bump on incompatible changes; Open rejects unknown versions.
const configSchemaVersion = 1

const (
	configFileName   = "config.json"
	postingsFileName = "postings.bin"
)

// configRecord is the on-disk description of a persisted index instance.
type configRecord struct {
	SchemaVersion      int                `json:"schema_version"`
	IndexType          inverted.IndexType `json:"index_type"`
	FullScanThreshold  int                `json:"full_scan_threshold"`
	IndexedVectorCount int                `json:"indexed_vector_count"`
}

func saveConfig(dir string, rec configRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return persistence.SaveToFile(filepath.Join(dir, configFileName), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// loadConfig reads the config record from dir. A missing file is reported
// via os.IsNotExist on the returned error.
func loadConfig(dir string) (configRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		return configRecord{}, err
	}

	var rec configRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return configRecord{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if rec.SchemaVersion != configSchemaVersion {
		return configRecord{}, fmt.Errorf("%w: config schema version %d", persistence.ErrInvalidVersion, rec.SchemaVersion)
	}

	return rec, nil
}
