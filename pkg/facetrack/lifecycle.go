package facetrack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Hooks are the callbacks a Resource reports through.
type Hooks struct {
	// OnFrame is called once per processed camera frame.
	OnFrame func(Frame, Result)

	// OnBlendshapeNames is called once, possibly asynchronously, when the
	// tracker knows its blendshape names.
	OnBlendshapeNames func(names []string)
}

// Resource is the external tracker: camera capture plus tracking model.
// It starts producing frames as soon as the Factory returns it.
type Resource interface {
	// Stop pauses frame production without releasing the camera.
	Stop() error

	// Restart resumes frame production after Stop.
	Restart() error

	// Close stops and releases everything. It is called exactly once.
	Close() error
}

// Factory allocates a started Resource reporting through hooks.
type Factory func(ctx context.Context, hooks Hooks) (Resource, error)

// State is the tracker lifecycle state.
type State int

const (
	Uninitialized State = iota
	Created
	Running
	Paused
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Created:
		return "created"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to State) bool {
	switch to {
	case Created:
		return from == Uninitialized
	case Running:
		return from == Created || from == Paused
	case Paused:
		return from == Running
	case Destroyed:
		return from != Destroyed
	case Uninitialized:
		// failed creation rolls back
		return from == Created
	}
	return false
}

// Controller owns one tracker Resource from creation to destruction.
// Its methods are safe for concurrent use.
type Controller struct {
	factory    Factory
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu       sync.Mutex
	state    State
	resource Resource
	creates  int
}

// NewController creates a controller whose resource reports into d.
func NewController(factory Factory, d *Dispatcher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		factory:    factory,
		dispatcher: d,
		logger:     logger.With("component", "facetrack.controller"),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Allocations returns how many times the factory has been invoked.
func (c *Controller) Allocations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates
}

// Create allocates the resource and starts tracking. It is a no-op once a
// resource exists or is being created, and returns ErrDestroyed after Destroy.
func (c *Controller) Create(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Destroyed:
		c.mu.Unlock()
		return ErrDestroyed
	case Created, Running, Paused:
		c.mu.Unlock()
		return nil
	}
	if c.factory == nil {
		c.mu.Unlock()
		return ErrNoFactory
	}
	c.state = Created
	c.creates++
	c.mu.Unlock()

	res, err := c.factory(ctx, Hooks{
		OnFrame:           c.dispatcher.Dispatch,
		OnBlendshapeNames: c.dispatcher.DeliverNames,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Destroyed {
		// Destroy ran while the factory was working.
		if err == nil && res != nil {
			c.release(res)
		}
		return ErrDestroyed
	}
	if err != nil {
		c.state = Uninitialized
		return fmt.Errorf("create tracker: %w", err)
	}

	c.resource = res
	c.state = Running
	c.logger.Info("tracker created")
	return nil
}

// Pause stops frame production. It is a no-op unless the tracker is running.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Destroyed:
		return ErrDestroyed
	case Running:
	default:
		return nil
	}

	if err := c.resource.Stop(); err != nil {
		return fmt.Errorf("pause tracker: %w", err)
	}
	c.state = Paused
	c.logger.Info("tracker paused")
	return nil
}

// Resume restarts frame production. It is a no-op unless the tracker is paused.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Destroyed:
		return ErrDestroyed
	case Paused:
	default:
		return nil
	}

	if err := c.resource.Restart(); err != nil {
		return fmt.Errorf("resume tracker: %w", err)
	}
	c.state = Running
	c.logger.Info("tracker resumed")
	return nil
}

// Destroy stops and releases the resource. It is terminal, idempotent and
// safe to call before creation finished.
func (c *Controller) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Destroyed {
		return nil
	}
	prev := c.state
	c.state = Destroyed
	c.dispatcher.Close()

	res := c.resource
	c.resource = nil
	if res == nil {
		c.logger.Info("tracker destroyed before creation completed", "previous", prev)
		return nil
	}

	err := c.release(res)
	c.logger.Info("tracker destroyed", "previous", prev)
	return err
}

// release must be called with c.mu held.
func (c *Controller) release(res Resource) error {
	var errs []error
	if err := res.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop: %w", err))
	}
	if err := res.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if len(errs) > 0 {
		err := fmt.Errorf("destroy tracker: %w", errors.Join(errs...))
		c.logger.Warn("tracker release failed", "error", err)
		return err
	}
	return nil
}
