// Package hook is the in-process event bus. Services emit domain events after
// a state change commits; audit and metrics subscribe to them.
package hook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInterrupt signals that a handler wants to stop further processing.
var ErrInterrupt = errors.New("hook interrupted")

// Wildcard subscribes a handler to every event.
const Wildcard = "*"

// Event names.
const (
	UserRegister  = "user.register"
	UserLogin     = "user.login"
	UserLogout    = "user.logout"
	FriendRequest = "friend.request"
	FriendHandle  = "friend.handle"
	FriendDelete  = "friend.delete"
)

// Event is the payload passed to handlers.
type Event struct {
	Name     string
	UserID   int64 // acting user; zero when anonymous
	TargetID int64 // user or friendship the action touched
	Detail   map[string]interface{}
}

// HookFn handles one event. Returning ErrInterrupt stops the chain; any other
// error is collected and the chain continues.
type HookFn func(ctx context.Context, ev *Event) error

type hookEntry struct {
	priority int
	fn       HookFn
	name     string
}

// HookCenter manages event hook registrations.
type HookCenter struct {
	mu    sync.RWMutex
	hooks map[string][]*hookEntry
}

// NewHookCenter creates a new HookCenter.
func NewHookCenter() *HookCenter {
	return &HookCenter{hooks: make(map[string][]*hookEntry)}
}

// Register adds fn for event with the given priority (lower runs first).
// name is used for Unregister.
func (hc *HookCenter) Register(event string, priority int, name string, fn HookFn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := append(hc.hooks[event], &hookEntry{priority: priority, fn: fn, name: name})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	hc.hooks[event] = entries
}

// Unregister removes all hooks with the given name for the given event.
func (hc *HookCenter) Unregister(event, name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.hooks[event] = without(hc.hooks[event], name)
}

// UnregisterAll removes every hook registered under name.
func (hc *HookCenter) UnregisterAll(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for event, entries := range hc.hooks {
		hc.hooks[event] = without(entries, name)
	}
}

func without(entries []*hookEntry, name string) []*hookEntry {
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	return entries[:n]
}

func (hc *HookCenter) snapshot(event string) []*hookEntry {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	specific, wild := hc.hooks[event], hc.hooks[Wildcard]
	out := make([]*hookEntry, 0, len(specific)+len(wild))
	out = append(out, specific...)
	out = append(out, wild...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

// Emit runs every handler registered for ev.Name plus the wildcard handlers,
// in priority order. A nil center is a no-op so services can run without one.
// Handler panics are converted to errors.
func (hc *HookCenter) Emit(ctx context.Context, ev *Event) error {
	if hc == nil || ev == nil {
		return nil
	}
	var errs []error
	for _, e := range hc.snapshot(ev.Name) {
		err := call(ctx, e, ev)
		if errors.Is(err, ErrInterrupt) {
			return err
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("hook %s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

func call(ctx context.Context, e *hookEntry, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.fn(ctx, ev)
}
