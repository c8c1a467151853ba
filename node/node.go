// Package node wires a datablock store, its area engine, persistence, the
// journal and the HTTP API into one running controller.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/area"
	"github.com/sarchlab/dbsim/datablock"
	"github.com/sarchlab/dbsim/journal"
	"github.com/sarchlab/dbsim/monitoring"
	"github.com/sarchlab/dbsim/persistence"
)

// ErrNoGateway is returned by Save on a node built without a gateway.
var ErrNoGateway = errors.New("node: no snapshot gateway")

const shutdownTimeout = 5 * time.Second

// A Node owns the datablocks of one simulated controller.
type Node struct {
	id       string
	log      zerolog.Logger
	engine   *area.Engine
	store    *datablock.Store
	gateway  persistence.Gateway
	journal  *journal.Recorder
	monitor  *monitoring.Monitor
	autosave time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	hooked  bool
	addr    string
	cancel  context.CancelFunc
	done    chan struct{}
}

// ID returns the unique id of the node.
func (n *Node) ID() string {
	return n.id
}

// Store returns the datablock store of the node.
func (n *Node) Store() *datablock.Store {
	return n.store
}

// Engine returns the area engine of the node.
func (n *Node) Engine() *area.Engine {
	return n.engine
}

// Address returns the address the HTTP API listens on, or an empty string
// when monitoring is off or the node is not running.
func (n *Node) Address() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.addr
}

// Start starts the engine, restores the last snapshot and starts serving.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return errors.New("node: already started")
	}

	if err := n.engine.Start(); err != nil {
		return err
	}

	if n.gateway != nil {
		n.store.Restore(n.gateway.Load())
	}

	if n.journal != nil && !n.hooked {
		n.store.AcceptHook(n.journal)
		n.engine.AcceptHook(n.journal)
		n.hooked = true
	}

	if n.monitor != nil {
		addr, err := n.monitor.StartServer()
		if err != nil {
			return errors.Join(err, n.store.UnregisterAll(), n.engine.Stop())
		}

		n.addr = addr
	}

	if n.autosave > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		n.cancel = cancel
		n.done = make(chan struct{})

		go n.autosaveLoop(ctx, n.autosave, n.done)
	}

	n.started = true

	n.log.Info().
		Int("datablocks", n.store.Len()).
		Str("address", n.addr).
		Msg("node started")

	return nil
}

func (n *Node) autosaveLoop(
	ctx context.Context,
	every time.Duration,
	done chan<- struct{},
) {
	defer close(done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.Save(); err != nil {
				n.log.Error().Err(err).Msg("autosave failed")
			}
		}
	}
}

// Save writes a snapshot of every datablock through the gateway.
func (n *Node) Save() error {
	if n.gateway == nil {
		return ErrNoGateway
	}

	snap := n.store.Snapshot()
	if err := n.gateway.Save(snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	n.log.Debug().Int("datablocks", len(snap)).Msg("snapshot saved")

	return nil
}

// Stop shuts the node down: the HTTP API stops, the store refuses further
// operations, the final snapshot is saved, every area is unregistered and
// the engine stops. Stop is safe to call more than once; calls after the
// first do nothing.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started || n.stopped {
		return nil
	}

	n.stopped = true

	if n.cancel != nil {
		n.cancel()
		<-n.done
	}

	var errs []error

	if n.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, n.monitor.Shutdown(ctx))
		cancel()
	}

	n.store.Close()

	if n.gateway != nil {
		errs = append(errs, n.Save())
	}

	errs = append(errs, n.store.UnregisterAll(), n.engine.Stop())

	if n.journal != nil {
		errs = append(errs, n.journal.Close())
	}

	if closer, ok := n.gateway.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}

	err := errors.Join(errs...)
	if err != nil {
		n.log.Error().Err(err).Msg("node stopped with errors")
	} else {
		n.log.Info().Msg("node stopped")
	}

	n.addr = ""

	return err
}
