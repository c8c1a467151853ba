// Package journal records every change made to the datablocks, and every
// remote access served by the area engine, into a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/area"
	"github.com/sarchlab/dbsim/datablock"
	"github.com/sarchlab/dbsim/hooking"
	"github.com/tebeka/atexit"
)

const createMutationsTable = `CREATE TABLE IF NOT EXISTS mutations (
	entry_id    TEXT PRIMARY KEY,
	at_ns       INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	datablock   INTEGER NOT NULL,
	byte_offset INTEGER NOT NULL,
	length      INTEGER NOT NULL,
	field_type  TEXT NOT NULL,
	field_value TEXT NOT NULL,
	bit         INTEGER NOT NULL
);`

// Entry kinds for accesses served by the area engine.
const (
	KindRemoteRead  = "remote_read"
	KindRemoteWrite = "remote_write"
)

// Entry is one journal row.
type Entry struct {
	EntryID   string    `json:"entry_id"`
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	Datablock int       `json:"datablock"`
	Offset    int       `json:"offset"`
	Length    int       `json:"length"`
	Type      string    `json:"type,omitempty"`
	Value     string    `json:"value,omitempty"`
	Bit       int       `json:"bit"`
}

// A Recorder is a hook that buffers entries and writes them to SQLite in
// batches.
type Recorder struct {
	*sql.DB

	log       zerolog.Logger
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	pending []Entry
	closed  bool
}

// Builder builds Recorders.
type Builder struct {
	path      string
	batchSize int
	log       zerolog.Logger
}

// MakeBuilder creates a Builder with a batch size of 1000 entries.
func MakeBuilder() Builder {
	return Builder{
		batchSize: 1000,
		log:       zerolog.Nop(),
	}
}

// WithPath sets the database file. Without a path a new file named after a
// unique id is created in the working directory.
func (b Builder) WithPath(path string) Builder {
	b.path = path
	return b
}

// WithBatchSize sets how many entries are buffered before they are written.
func (b Builder) WithBatchSize(n int) Builder {
	b.batchSize = n
	return b
}

// WithLogger sets the logger of the recorder.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.batchSize <= 0 {
		panic("journal batch size must be positive")
	}
}

// Build opens the database and creates the mutations table. Buffered entries
// are flushed when the process exits through atexit.
func (b Builder) Build() (*Recorder, error) {
	b.parametersMustBeValid()

	path := b.path
	if path == "" {
		path = "dbsim_journal_" + xid.New().String() + ".sqlite3"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := db.Exec(createMutationsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create mutations table: %w", err)
	}

	r := &Recorder{
		DB:        db,
		log:       b.log.With().Str("component", "journal").Logger(),
		batchSize: b.batchSize,
		now:       time.Now,
	}

	r.log.Info().Str("path", path).Msg("journal recording")

	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			r.log.Error().Err(err).Msg("flush journal at exit")
		}
	})

	return r, nil
}

// Func records the item of a datablock or area hook.
func (r *Recorder) Func(ctx hooking.HookCtx) {
	var e Entry

	switch item := ctx.Item.(type) {
	case datablock.Mutation:
		e = r.fromMutation(item)
	case area.Access:
		e = r.fromAccess(ctx.Pos, item)
	default:
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, e)
	full := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if full {
		if err := r.Flush(); err != nil {
			r.log.Error().Err(err).Msg("flush journal")
		}
	}
}

func (r *Recorder) fromMutation(m datablock.Mutation) Entry {
	e := Entry{
		EntryID:   xid.New().String(),
		Time:      r.now(),
		Kind:      m.Kind.String(),
		Datablock: m.ID,
		Offset:    m.Index,
		Length:    m.Length,
	}

	if m.Kind == datablock.MutationWriteField {
		e.Type = m.Value.Type().String()
		e.Value = fmt.Sprint(m.Value.Interface())
		e.Bit = m.Bit
	}

	return e
}

func (r *Recorder) fromAccess(pos *hooking.HookPos, acc area.Access) Entry {
	kind := KindRemoteRead
	if pos == area.HookPosWrite {
		kind = KindRemoteWrite
	}

	return Entry{
		EntryID:   xid.New().String(),
		Time:      r.now(),
		Kind:      kind,
		Datablock: acc.ID,
		Offset:    acc.Offset,
		Length:    acc.Length,
	}
}

// Flush writes all buffered entries in one transaction. It does nothing once
// the recorder is closed.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	entries := r.pending
	r.pending = nil
	r.mu.Unlock()

	return r.write(entries)
}

func (r *Recorder) write(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}

	if err := insertEntries(tx, entries); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal: %w", err)
	}

	r.log.Debug().Int("entries", len(entries)).Msg("journal flushed")

	return nil
}

func insertEntries(tx *sql.Tx, entries []Entry) error {
	stmt, err := tx.Prepare(`INSERT INTO mutations
		(entry_id, at_ns, kind, datablock, byte_offset, length, field_type,
		field_value, bit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.Exec(e.EntryID, e.Time.UnixNano(), e.Kind, e.Datablock,
			e.Offset, e.Length, e.Type, e.Value, e.Bit)
		if err != nil {
			return fmt.Errorf("insert journal entry %s: %w", e.EntryID, err)
		}
	}

	return nil
}

// Entries returns the most recent flushed entries, newest first. A positive
// datablockID restricts the result to one datablock. A non-positive limit
// returns every entry.
func (r *Recorder) Entries(
	ctx context.Context,
	datablockID int,
	limit int,
) ([]Entry, error) {
	query := `SELECT entry_id, at_ns, kind, datablock, byte_offset, length,
		field_type, field_value, bit FROM mutations`
	args := []any{}

	if datablockID > 0 {
		query += " WHERE datablock = ?"
		args = append(args, datablockID)
	}

	query += " ORDER BY at_ns DESC, rowid DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			nanos int64
		)

		err := rows.Scan(&e.EntryID, &nanos, &e.Kind, &e.Datablock, &e.Offset,
			&e.Length, &e.Type, &e.Value, &e.Bit)
		if err != nil {
			return nil, err
		}

		e.Time = time.Unix(0, nanos)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Close flushes the buffered entries and closes the database. Entries
// recorded after Close are dropped. Closing twice is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	entries := r.pending
	r.pending = nil
	r.closed = true
	r.mu.Unlock()

	flushErr := r.write(entries)
	closeErr := r.DB.Close()

	if flushErr != nil {
		return flushErr
	}

	return closeErr
}
