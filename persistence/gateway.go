// Package persistence stores datablock snapshots across restarts.
package persistence

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/datablock"
)

// Gateway loads and saves snapshots.
type Gateway interface {
	// Load returns the last saved snapshot. A missing or unreadable snapshot
	// is logged and yields an empty snapshot.
	Load() datablock.Snapshot

	// Save replaces the stored snapshot. A failed Save leaves the previously
	// saved snapshot intact.
	Save(snap datablock.Snapshot) error
}

// Snapshot formats.
const (
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// FormatOf infers the snapshot format from the file extension of path.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sqlite", ".sqlite3", ".db":
		return FormatSQLite
	default:
		return FormatJSON
	}
}

// Open creates the gateway for path. An empty format is inferred from the
// extension.
func Open(path, format string, log zerolog.Logger) (Gateway, error) {
	if format == "" {
		format = FormatOf(path)
	}

	switch format {
	case FormatJSON:
		return NewJSONFile(path, log), nil
	case FormatSQLite:
		return NewSQLite(path, log), nil
	default:
		return nil, fmt.Errorf("persistence: unknown snapshot format %q", format)
	}
}
