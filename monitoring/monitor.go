// Package monitoring serves the datablocks of a running node over HTTP.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/area"
	"github.com/sarchlab/dbsim/codec"
	"github.com/sarchlab/dbsim/datablock"
	"github.com/sarchlab/dbsim/journal"
)

// Store is the part of the datablock store exposed by the API.
type Store interface {
	List() ([]*datablock.Datablock, error)
	Get(id int) (*datablock.Datablock, error)
	Create(id, size int) (*datablock.Datablock, error)
	WriteBulk(id int, data []byte) error
	WriteField(id, index int, v codec.Value, bit int) error
	ReadField(id, index int, t codec.FieldType, bit int) (codec.Value, error)
	Remove(id int) error
}

// Engine reports the state of the area engine.
type Engine interface {
	Status() area.Status
}

// Journal lists recorded mutations.
type Journal interface {
	Entries(ctx context.Context, datablockID, limit int) ([]journal.Entry, error)
}

// Monitor turns a store into a web server so that datablocks can be
// inspected and changed from outside the process.
type Monitor struct {
	store   Store
	engine  Engine
	journal Journal
	saver   func() error
	addr    string
	log     zerolog.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewMonitor creates a Monitor serving store on 127.0.0.1 at a random port.
func NewMonitor(store Store) *Monitor {
	return &Monitor{
		store: store,
		addr:  "127.0.0.1:0",
		log:   zerolog.Nop(),
	}
}

// WithAddress sets the listen address of the monitor.
func (m *Monitor) WithAddress(addr string) *Monitor {
	m.addr = addr
	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(log zerolog.Logger) *Monitor {
	m.log = log.With().Str("component", "monitoring").Logger()
	return m
}

// RegisterEngine registers the area engine reported by /api/engine.
func (m *Monitor) RegisterEngine(e Engine) {
	m.engine = e
}

// RegisterJournal registers the journal listed by /api/journal.
func (m *Monitor) RegisterJournal(j Journal) {
	m.journal = j
}

// RegisterSaver registers the function that POST /api/snapshot calls.
func (m *Monitor) RegisterSaver(save func() error) {
	m.saver = save
}

// Handler returns the router serving the API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(m.log))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/datablocks", m.listDatablocks).Methods(http.MethodGet)
	api.HandleFunc("/datablocks", m.createDatablock).Methods(http.MethodPost)
	api.HandleFunc("/datablocks/{id}", m.getDatablock).Methods(http.MethodGet)
	api.HandleFunc("/datablocks/{id}", m.writeBulk).Methods(http.MethodPut)
	api.HandleFunc("/datablocks/{id}", m.removeDatablock).Methods(http.MethodDelete)
	api.HandleFunc("/datablocks/{id}/fields", m.writeField).Methods(http.MethodPut)
	api.HandleFunc("/datablocks/{id}/fields", m.readField).Methods(http.MethodGet)
	api.HandleFunc("/snapshot", m.saveSnapshot).Methods(http.MethodPost)
	api.HandleFunc("/journal", m.listJournal).Methods(http.MethodGet)
	api.HandleFunc("/engine", m.engineStatus).Methods(http.MethodGet)
	api.HandleFunc("/resource", m.listResources).Methods(http.MethodGet)
	api.HandleFunc("/profile", m.collectProfile).Methods(http.MethodGet)
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, fmt.Errorf("%w: no such endpoint", errNoRoute))
	})
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.MethodNotAllowedHandler = api.MethodNotAllowedHandler

	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

// StartServer starts listening and serves the API in the background. It
// returns the address actually listened on.
func (m *Monitor) StartServer() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return "", errors.New("monitoring: server already started")
	}

	listener, err := net.Listen("tcp", m.addr)
	if err != nil {
		return "", fmt.Errorf("monitoring: listen on %s: %w", m.addr, err)
	}

	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := m.server
	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("monitoring server stopped")
		}
	}()

	addr := listener.Addr().String()
	m.log.Info().Str("url", "http://"+addr).Msg("monitoring datablocks")

	return addr, nil
}

// Shutdown stops accepting requests and waits for the running ones to
// finish or for ctx to expire.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	server := m.server
	m.server = nil
	m.mu.Unlock()

	if server == nil {
		return nil
	}

	return server.Shutdown(ctx)
}
