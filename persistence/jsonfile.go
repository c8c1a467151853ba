package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/datablock"
)

// JSONFile keeps the snapshot in a JSON file keyed by datablock id.
type JSONFile struct {
	path string
	log  zerolog.Logger
}

// NewJSONFile creates a gateway backed by the JSON file at path.
func NewJSONFile(path string, log zerolog.Logger) *JSONFile {
	return &JSONFile{
		path: path,
		log:  log.With().Str("component", "persistence").Str("path", path).Logger(),
	}
}

// Load reads the snapshot file.
func (f *JSONFile) Load() datablock.Snapshot {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.log.Info().Msg("no snapshot to restore")
		return datablock.Snapshot{}
	}

	if err != nil {
		f.log.Warn().Err(err).Msg("cannot read snapshot, starting empty")
		return datablock.Snapshot{}
	}

	snap := datablock.Snapshot{}
	if err := json.Unmarshal(data, &snap); err != nil {
		f.log.Warn().Err(err).Msg("cannot parse snapshot, starting empty")
		return datablock.Snapshot{}
	}

	return snap
}

// Save writes the snapshot to a temporary file next to the target and renames
// it over the target.
func (f *JSONFile) Save(snap datablock.Snapshot) error {
	if snap == nil {
		snap = datablock.Snapshot{}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary snapshot: %w", err)
	}

	if err := writeAndSync(tmp, data); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}

	f.log.Debug().Int("datablocks", len(snap)).Msg("snapshot saved")

	return nil
}

func writeAndSync(file *os.File, data []byte) error {
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}

	return file.Close()
}
