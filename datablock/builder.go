package datablock

import (
	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/hooking"
)

// Builder builds Stores.
type Builder struct {
	registrar AreaRegistrar
	log       zerolog.Logger
}

// MakeBuilder creates a Builder that logs nothing.
func MakeBuilder() Builder {
	return Builder{
		log: zerolog.Nop(),
	}
}

// WithRegistrar sets the area registrar that the store notifies when
// datablocks are created and removed.
func (b Builder) WithRegistrar(r AreaRegistrar) Builder {
	b.registrar = r
	return b
}

// WithLogger sets the logger of the store.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.registrar == nil {
		panic("datablock store requires an area registrar")
	}
}

// Build creates an empty Store.
func (b Builder) Build() *Store {
	b.parametersMustBeValid()

	return &Store{
		HookableBase: hooking.NewHookableBase(),
		registrar:    b.registrar,
		log:          b.log.With().Str("component", "datablock").Logger(),
		blocks:       make(map[int]*Datablock),
	}
}
