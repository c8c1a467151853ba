package datablock

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/codec"
	"github.com/sarchlab/dbsim/hooking"
)

// AreaRegistrar exposes datablock buffers to the protocol engine.
type AreaRegistrar interface {
	// Running reports whether the engine is serving. The store refuses every
	// operation while it is not.
	Running() bool

	// Register grants the engine access to buf under id. It is called once
	// per successful Create, before Create returns.
	Register(id int, buf Buffer, size int) error

	// Unregister revokes the access granted by Register. It is called once
	// per successful Remove.
	Unregister(id int) error
}

// A Store owns the datablocks of one controller.
//
// The map of datablocks is guarded by a store-wide lock, taken exclusively
// only by Create, Remove and shutdown. Every datablock has its own lock, so
// writes to different datablocks never contend while writes to the same
// datablock are serialized.
type Store struct {
	*hooking.HookableBase

	registrar AreaRegistrar
	log       zerolog.Logger

	mu     sync.RWMutex
	blocks map[int]*Datablock
	closed bool
}

// List returns all datablocks ordered by id.
func (s *Store) List() ([]*Datablock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.accessible(); err != nil {
		return nil, err
	}

	list := make([]*Datablock, 0, len(s.blocks))
	for _, b := range s.blocks {
		list = append(list, b)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })

	return list, nil
}

// Len returns the number of datablocks in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.blocks)
}

// Get returns the datablock with the given id.
func (s *Store) Get(id int) (*Datablock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.accessible(); err != nil {
		return nil, err
	}

	return s.lookup(id)
}

// Create allocates a zero-filled datablock of the given size and registers
// it with the area registrar. Nothing is inserted if registration fails.
func (s *Store) Create(id, size int) (*Datablock, error) {
	s.mu.Lock()

	if err := s.accessible(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	b, err := s.insert(id, size)

	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	s.log.Debug().Int("id", id).Int("size", size).Msg("datablock created")
	s.notify(Mutation{Kind: MutationCreate, ID: id, Length: size})

	return b, nil
}

func (s *Store) insert(id, size int) (*Datablock, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	if err := ValidateSize(size); err != nil {
		return nil, err
	}

	if _, exists := s.blocks[id]; exists {
		return nil, fmt.Errorf("%w: datablock %d", ErrAlreadyExists, id)
	}

	b := newDatablock(id, size)

	if err := s.registrar.Register(id, b, size); err != nil {
		return nil, fmt.Errorf("datablock %d: register area: %w", id, err)
	}

	s.blocks[id] = b

	return b, nil
}

// WriteBulk overwrites the leading bytes of a datablock with data. Data
// longer than the datablock is rejected without writing anything.
func (s *Store) WriteBulk(id int, data []byte) error {
	s.mu.RLock()

	if err := s.accessible(); err != nil {
		s.mu.RUnlock()
		return err
	}

	b, err := s.lookup(id)
	if err == nil {
		_, err = b.WriteAt(data, 0)
	}

	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("datablock %d: %w", id, err)
	}

	s.notify(Mutation{Kind: MutationWriteBulk, ID: id, Length: len(data)})

	return nil
}

// WriteField encodes v into the datablock at byte offset index. bit selects
// the bit for bool fields. On failure the datablock is left unchanged.
func (s *Store) WriteField(id, index int, v codec.Value, bit int) error {
	s.mu.RLock()

	if err := s.accessible(); err != nil {
		s.mu.RUnlock()
		return err
	}

	length := 0
	b, err := s.lookup(id)
	if err == nil {
		length, err = b.encode(index, v, bit)
	}

	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("datablock %d: %w", id, err)
	}

	s.notify(Mutation{
		Kind:   MutationWriteField,
		ID:     id,
		Index:  index,
		Length: length,
		Value:  v,
		Bit:    bit,
	})

	return nil
}

// ReadField decodes a field of type t from the datablock at byte offset
// index.
func (s *Store) ReadField(
	id, index int,
	t codec.FieldType,
	bit int,
) (codec.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.accessible(); err != nil {
		return codec.Value{}, err
	}

	b, err := s.lookup(id)
	if err != nil {
		return codec.Value{}, err
	}

	v, err := b.decode(index, t, bit)
	if err != nil {
		return codec.Value{}, fmt.Errorf("datablock %d: %w", id, err)
	}

	return v, nil
}

// Remove deletes a datablock and unregisters its area. If the registrar
// fails to unregister, the datablock stays in the store.
func (s *Store) Remove(id int) error {
	s.mu.Lock()

	if err := s.accessible(); err != nil {
		s.mu.Unlock()
		return err
	}

	b, err := s.lookup(id)
	if err == nil {
		err = s.registrar.Unregister(id)
		if err != nil {
			err = fmt.Errorf("datablock %d: unregister area: %w", id, err)
		} else {
			delete(s.blocks, id)
		}
	}

	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.log.Debug().Int("id", id).Msg("datablock removed")
	s.notify(Mutation{Kind: MutationRemove, ID: id, Length: b.Size()})

	return nil
}

// Snapshot copies the content of every datablock. Each datablock is copied
// under its own lock; the snapshot as a whole is not atomic.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	blocks := make([]*Datablock, 0, len(s.blocks))
	for _, b := range s.blocks {
		blocks = append(blocks, b)
	}
	s.mu.RUnlock()

	snap := make(Snapshot, len(blocks))
	for _, b := range blocks {
		snap[b.id] = b.record()
	}

	return snap
}

// Restore replays a snapshot through Create and WriteBulk. Records that
// cannot be restored are logged and skipped. It returns the number of
// datablocks restored.
func (s *Store) Restore(snap Snapshot) int {
	restored := 0

	for _, id := range snap.IDs() {
		rec := snap[id]

		if err := s.restoreRecord(id, rec); err != nil {
			s.log.Warn().Err(err).Int("id", id).Msg("skipping datablock from snapshot")
			continue
		}

		restored++
	}

	s.log.Info().Int("restored", restored).Int("total", len(snap)).
		Msg("snapshot restored")

	return restored
}

func (s *Store) restoreRecord(id int, rec Record) error {
	if rec.ID != id {
		return fmt.Errorf("record id %d stored under key %d", rec.ID, id)
	}

	if err := rec.Validate(); err != nil {
		return err
	}

	if _, err := s.Create(rec.ID, rec.Size); err != nil {
		return err
	}

	if err := s.WriteBulk(rec.ID, rec.Data); err != nil {
		if rmErr := s.Remove(rec.ID); rmErr != nil {
			return errors.Join(err, rmErr)
		}

		return err
	}

	return nil
}

// Close makes the store refuse every further operation with ErrClosed.
// Snapshot and UnregisterAll keep working so that the owner can persist and
// tear down after closing.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}

// UnregisterAll unregisters the area of every datablock and empties the
// store.
func (s *Store) UnregisterAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.blocks))
	for id := range s.blocks {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	var errs []error
	for _, id := range ids {
		if err := s.registrar.Unregister(id); err != nil {
			errs = append(errs, fmt.Errorf("datablock %d: unregister area: %w", id, err))
		}

		delete(s.blocks, id)
	}

	return errors.Join(errs...)
}

func (s *Store) accessible() error {
	if s.closed {
		return ErrClosed
	}

	if !s.registrar.Running() {
		return ErrEngineNotRunning
	}

	return nil
}

func (s *Store) lookup(id int) (*Datablock, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	b, ok := s.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%w: datablock %d", ErrNotFound, id)
	}

	return b, nil
}

func (s *Store) notify(m Mutation) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    m.Kind.hookPos(),
		Item:   m,
	})
}
