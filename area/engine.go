// Package area provides an in-process area engine. It stands in for the bus
// protocol engine: it keeps a table of the datablock buffers that are exposed
// to remote clients and serves reads and writes against them.
package area

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/datablock"
	"github.com/sarchlab/dbsim/hooking"
)

// Errors returned by the Engine.
var (
	ErrNotRunning     = errors.New("area: engine not running")
	ErrAlreadyRunning = errors.New("area: engine already running")
	ErrAreaExists     = errors.New("area: already registered")
	ErrAreaNotFound   = errors.New("area: not registered")
)

// Hook positions raised when remote clients access an area. The hook item is
// an Access.
var (
	HookPosRead  = &hooking.HookPos{Name: "Area Read"}
	HookPosWrite = &hooking.HookPos{Name: "Area Write"}
)

// Access describes one read or write served by the engine.
type Access struct {
	ID     int
	Offset int
	Length int
}

// Info describes a registered area.
type Info struct {
	ID           int       `json:"id"`
	Size         int       `json:"size"`
	RegisteredAt time.Time `json:"registered_at"`
}

type area struct {
	buf          datablock.Buffer
	size         int
	registeredAt time.Time
}

// An Engine exposes registered datablock buffers. It implements
// datablock.AreaRegistrar.
type Engine struct {
	*hooking.HookableBase

	log zerolog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	areas     map[int]area
}

// NewEngine creates a stopped engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		HookableBase: hooking.NewHookableBase(),
		log:          log.With().Str("component", "area").Logger(),
		areas:        make(map[int]area),
	}
}

// Start starts serving areas.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	e.running = true
	e.startedAt = time.Now()
	e.log.Info().Msg("area engine started")

	return nil
}

// Stop stops serving areas. Areas that are still registered stay in the
// table and become reachable again after the next Start.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNotRunning
	}

	e.running = false
	e.log.Info().Int("areas", len(e.areas)).Msg("area engine stopped")

	return nil
}

// Running reports whether the engine is serving.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.running
}

// Register exposes buf under id.
func (e *Engine) Register(id int, buf datablock.Buffer, size int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNotRunning
	}

	if _, ok := e.areas[id]; ok {
		return fmt.Errorf("%w: %d", ErrAreaExists, id)
	}

	e.areas[id] = area{buf: buf, size: size, registeredAt: time.Now()}
	e.log.Debug().Int("id", id).Int("size", size).Msg("area registered")

	return nil
}

// Unregister withdraws the area registered under id. It works on a stopped
// engine so that areas can be torn down during shutdown.
func (e *Engine) Unregister(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.areas[id]; !ok {
		return fmt.Errorf("%w: %d", ErrAreaNotFound, id)
	}

	delete(e.areas, id)
	e.log.Debug().Int("id", id).Msg("area unregistered")

	return nil
}

// Read returns n bytes of area id starting at offset, as a remote client
// would see them.
func (e *Engine) Read(id, offset, n int) ([]byte, error) {
	a, err := e.find(id)
	if err != nil {
		return nil, err
	}

	if err := checkRange(a, offset, n); err != nil {
		return nil, err
	}

	p := make([]byte, n)
	if _, err := a.buf.ReadAt(p, int64(offset)); err != nil {
		return nil, fmt.Errorf("area %d: %w", id, err)
	}

	e.notify(HookPosRead, Access{ID: id, Offset: offset, Length: n})

	return p, nil
}

// Write stores data into area id at offset, as a remote client would.
func (e *Engine) Write(id, offset int, data []byte) error {
	a, err := e.find(id)
	if err != nil {
		return err
	}

	if err := checkRange(a, offset, len(data)); err != nil {
		return err
	}

	if _, err := a.buf.WriteAt(data, int64(offset)); err != nil {
		return fmt.Errorf("area %d: %w", id, err)
	}

	e.notify(HookPosWrite, Access{ID: id, Offset: offset, Length: len(data)})

	return nil
}

// Areas lists the registered areas ordered by id.
func (e *Engine) Areas() []Info {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]Info, 0, len(e.areas))
	for id, a := range e.areas {
		infos = append(infos, Info{ID: id, Size: a.size, RegisteredAt: a.registeredAt})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos
}

// Status summarizes the state of the engine.
type Status struct {
	Running   bool
	StartedAt time.Time
	Areas     []Info
}

// Status returns a summary of the engine state.
func (e *Engine) Status() Status {
	areas := e.Areas()

	e.mu.RLock()
	defer e.mu.RUnlock()

	return Status{
		Running:   e.running,
		StartedAt: e.startedAt,
		Areas:     areas,
	}
}

func (e *Engine) find(id int) (area, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.running {
		return area{}, ErrNotRunning
	}

	a, ok := e.areas[id]
	if !ok {
		return area{}, fmt.Errorf("%w: %d", ErrAreaNotFound, id)
	}

	return a, nil
}

func checkRange(a area, offset, n int) error {
	if offset < 0 || n < 0 || offset+n > a.size {
		return fmt.Errorf("%w: %d bytes at %d, size %d",
			datablock.ErrExceedsLength, n, offset, a.size)
	}

	return nil
}

func (e *Engine) notify(pos *hooking.HookPos, acc Access) {
	if e.NumHooks() == 0 {
		return
	}

	e.InvokeHook(hooking.HookCtx{Domain: e, Pos: pos, Item: acc})
}

var _ datablock.AreaRegistrar = (*Engine)(nil)
