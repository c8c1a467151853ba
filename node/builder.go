package node

import (
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/area"
	"github.com/sarchlab/dbsim/datablock"
	"github.com/sarchlab/dbsim/journal"
	"github.com/sarchlab/dbsim/monitoring"
	"github.com/sarchlab/dbsim/persistence"
)

// Builder can be used to build a node.
type Builder struct {
	log         zerolog.Logger
	gateway     persistence.Gateway
	journalPath string
	monitorOn   bool
	listen      string
	autosave    time.Duration
}

// MakeBuilder creates a builder for a node with monitoring on a random local
// port, without persistence and without a journal.
func MakeBuilder() Builder {
	return Builder{
		log:       zerolog.Nop(),
		monitorOn: true,
		listen:    "127.0.0.1:0",
	}
}

// WithLogger sets the logger shared by the components of the node.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

// WithGateway sets where snapshots are loaded from and saved to.
func (b Builder) WithGateway(gw persistence.Gateway) Builder {
	b.gateway = gw
	return b
}

// WithJournal records every mutation into the SQLite file at path.
func (b Builder) WithJournal(path string) Builder {
	b.journalPath = path
	return b
}

// WithoutMonitoring disables the HTTP API.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithListenAddress sets the address of the HTTP API.
func (b Builder) WithListenAddress(addr string) Builder {
	b.listen = addr
	return b
}

// WithAutosaveInterval saves a snapshot periodically while the node runs.
func (b Builder) WithAutosaveInterval(d time.Duration) Builder {
	b.autosave = d
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.autosave < 0 {
		panic("autosave interval cannot be negative")
	}

	if b.autosave > 0 && b.gateway == nil {
		panic("autosave requires a gateway")
	}

	if b.monitorOn && b.listen == "" {
		panic("monitoring requires a listen address")
	}
}

// Build builds a stopped node.
func (b Builder) Build() (*Node, error) {
	b.parametersMustBeValid()

	n := &Node{
		id:       xid.New().String(),
		gateway:  b.gateway,
		autosave: b.autosave,
	}

	n.log = b.log.With().Str("node", n.id).Logger()
	n.engine = area.NewEngine(n.log)
	n.store = datablock.MakeBuilder().
		WithRegistrar(n.engine).
		WithLogger(n.log).
		Build()

	if b.journalPath != "" {
		recorder, err := journal.MakeBuilder().
			WithPath(b.journalPath).
			WithLogger(n.log).
			Build()
		if err != nil {
			return nil, err
		}

		n.journal = recorder
	}

	if b.monitorOn {
		n.monitor = monitoring.NewMonitor(n.store).
			WithAddress(b.listen).
			WithLogger(n.log)
		n.monitor.RegisterEngine(n.engine)

		if n.gateway != nil {
			n.monitor.RegisterSaver(n.Save)
		}

		if n.journal != nil {
			n.monitor.RegisterJournal(n.journal)
		}
	}

	return n, nil
}
