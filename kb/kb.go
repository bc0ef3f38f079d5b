// Package kb holds the body catalog: every celestial body in the loaded
// scene, the models that drive it, and its last evaluated state.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/celestial-simulator/model"
)

var (
	// ErrBodyExists indicates a body with the same ID is already cataloged.
	ErrBodyExists = errors.New("body already exists")
	// ErrBodyNotFound indicates a requested body was not found.
	ErrBodyNotFound = errors.New("body not found")
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventBodyAdded EventType = iota
	EventBodyUpdated
	EventBodyRemoved
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type   EventType
	BodyID string
	State  model.BodyState
}

// Body is a cataloged body. Rotation or Trajectory may be nil when the
// declaration had no usable model.
type Body struct {
	Definition model.BodyDefinition
	Rotation   model.RotationModel
	Trajectory model.TrajectoryModel

	state model.BodyState
}

// BodyCountRecorder receives the catalog size after every change.
type BodyCountRecorder interface {
	SetBodies(n int)
}

// Catalog is an in-memory, thread-safe store of bodies. Removing a body
// releases any engine resources held by its models.
type Catalog struct {
	mu sync.RWMutex

	bodies map[string]*Body
	subs   []func(Event)

	metrics BodyCountRecorder
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithBodyCountRecorder reports catalog size changes to r.
func WithBodyCountRecorder(r BodyCountRecorder) Option {
	return func(c *Catalog) { c.metrics = r }
}

// NewCatalog constructs an empty catalog.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{bodies: make(map[string]*Body)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddBody adds a new body. It returns ErrBodyExists if the ID is taken.
func (c *Catalog) AddBody(b *Body) error {
	if b == nil || b.Definition.ID == "" {
		return fmt.Errorf("add body: empty ID")
	}
	c.mu.Lock()
	if _, exists := c.bodies[b.Definition.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("body %q: %w", b.Definition.ID, ErrBodyExists)
	}
	c.bodies[b.Definition.ID] = b
	c.reportLocked()
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	notify(subs, Event{Type: EventBodyAdded, BodyID: b.Definition.ID})
	return nil
}

// GetBody returns the body with the given ID, or nil if not found.
func (c *Catalog) GetBody(id string) *Body {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bodies[id]
}

// ListBodies returns a snapshot of all bodies sorted by ID.
func (c *Catalog) ListBodies() []*Body {
	c.mu.RLock()
	res := make([]*Body, 0, len(c.bodies))
	for _, b := range c.bodies {
		res = append(res, b)
	}
	c.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].Definition.ID < res[j].Definition.ID })
	return res
}

// Len returns the number of cataloged bodies.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bodies)
}

// State returns the last evaluated state of a body.
func (c *Catalog) State(id string) (model.BodyState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bodies[id]
	if !ok {
		return model.BodyState{}, false
	}
	return b.state, true
}

// UpdateState stores a body's evaluated state and notifies subscribers.
func (c *Catalog) UpdateState(id string, state model.BodyState) error {
	c.mu.Lock()
	b, ok := c.bodies[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("body %q: %w", id, ErrBodyNotFound)
	}
	b.state = state
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, Event{Type: EventBodyUpdated, BodyID: id, State: state})
	return nil
}

// RemoveBody deletes a body and releases its models.
func (c *Catalog) RemoveBody(id string) error {
	c.mu.Lock()
	b, ok := c.bodies[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("body %q: %w", id, ErrBodyNotFound)
	}
	delete(c.bodies, id)
	c.reportLocked()
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	release(b)
	notify(subs, Event{Type: EventBodyRemoved, BodyID: id})
	return nil
}

// Clear removes every body, releasing their models. It is used when a scene
// is reloaded.
func (c *Catalog) Clear() {
	c.mu.Lock()
	old := c.bodies
	c.bodies = make(map[string]*Body)
	c.reportLocked()
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	ids := make([]string, 0, len(old))
	for id := range old {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		release(old[id])
		notify(subs, Event{Type: EventBodyRemoved, BodyID: id})
	}
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
	idx := len(c.subs) - 1

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < 0 || idx >= len(c.subs) {
			return
		}
		c.subs = append(c.subs[:idx], c.subs[idx+1:]...)
		idx = -1
	}
}

func (c *Catalog) reportLocked() {
	if c.metrics != nil {
		c.metrics.SetBodies(len(c.bodies))
	}
}

func release(b *Body) {
	if r, ok := b.Rotation.(model.Releaser); ok {
		r.Release()
	}
	if r, ok := b.Trajectory.(model.Releaser); ok {
		r.Release()
	}
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
