package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/datablock"
)

const createDatablocksTable = `CREATE TABLE IF NOT EXISTS datablocks (
	id   INTEGER PRIMARY KEY,
	size INTEGER NOT NULL,
	data BLOB NOT NULL
);`

// SQLite keeps the snapshot in a SQLite database, one row per datablock.
// Every Save replaces all rows in a single transaction.
type SQLite struct {
	path string
	log  zerolog.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewSQLite creates a gateway backed by the SQLite database at path. The
// database is opened on first use.
func NewSQLite(path string, log zerolog.Logger) *SQLite {
	return &SQLite{
		path: path,
		log:  log.With().Str("component", "persistence").Str("path", path).Logger(),
	}
}

// Load reads every row of the datablocks table.
func (s *SQLite) Load() datablock.Snapshot {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		s.log.Info().Msg("no snapshot to restore")
		return datablock.Snapshot{}
	}

	snap, err := s.load()
	if err != nil {
		s.log.Warn().Err(err).Msg("cannot read snapshot, starting empty")
		return datablock.Snapshot{}
	}

	return snap
}

func (s *SQLite) load() (datablock.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.open()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT id, size, data FROM datablocks ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := datablock.Snapshot{}
	for rows.Next() {
		var rec datablock.Record
		var data []byte

		if err := rows.Scan(&rec.ID, &rec.Size, &data); err != nil {
			return nil, err
		}

		rec.Data = data
		snap[rec.ID] = rec
	}

	return snap, rows.Err()
}

// Save replaces the stored rows with the snapshot.
func (s *SQLite) Save(snap datablock.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.open()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}

	if err := replaceRows(tx, snap); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	s.log.Debug().Int("datablocks", len(snap)).Msg("snapshot saved")

	return nil
}

func replaceRows(tx *sql.Tx, snap datablock.Snapshot) error {
	if _, err := tx.Exec(createDatablocksTable); err != nil {
		return fmt.Errorf("create datablocks table: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM datablocks"); err != nil {
		return fmt.Errorf("clear datablocks table: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO datablocks (id, size, data) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range snap.IDs() {
		rec := snap[id]

		data := []byte(rec.Data)
		if data == nil {
			data = []byte{}
		}

		if _, err := stmt.Exec(rec.ID, rec.Size, data); err != nil {
			return fmt.Errorf("insert datablock %d: %w", rec.ID, err)
		}
	}

	return nil
}

func (s *SQLite) open() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	if _, err := db.Exec(createDatablocksTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create datablocks table: %w", err)
	}

	s.db = db

	return db, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}
