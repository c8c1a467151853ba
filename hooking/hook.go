// Package hooking lets observers attach to the points where a store or an
// engine changes state.
package hooking

import (
	"reflect"
	"sync"
)

// HookPos names a position at which hooks fire.
type HookPos struct {
	Name string
}

// HookCtx describes the site where a hook fires.
type HookCtx struct {
	// Domain is the hookable object raising the hook.
	Domain Hookable

	// Pos identifies where the hook fires from.
	Pos *HookPos

	// Item is the subject of the hook, for example a mutation record.
	Item any

	// Detail holds optional auxiliary data and may be nil.
	Detail any
}

// Hookable is an object that accepts hooks.
type Hookable interface {
	// AcceptHook registers a hook. Hooks cannot be removed; a hook that should
	// stop reacting must disable itself.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// InvokeHook triggers every registered hook.
	InvokeHook(ctx HookCtx)
}

// Hook is invoked by a Hookable.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) { f(ctx) }

// HookableBase implements Hookable and is meant to be embedded. Hooks may be
// invoked from several goroutines at once, so hook implementations must be
// safe for concurrent use.
type HookableBase struct {
	mu       sync.RWMutex
	hookList []Hook
}

// NewHookableBase creates a HookableBase with no hooks.
func NewHookableBase() *HookableBase {
	return &HookableBase{}
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.hookList)
}

// AcceptHook registers a hook. Registering the same comparable hook twice
// panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if reflect.TypeOf(hook).Comparable() {
		for _, existing := range h.hookList {
			if existing == hook {
				panic("duplicated hook")
			}
		}
	}

	h.hookList = append(h.hookList, hook)
}

// InvokeHook triggers the registered hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	h.mu.RLock()
	hooks := h.hookList
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.Func(ctx)
	}
}

var _ Hookable = (*HookableBase)(nil)
