// Package tooltip holds the host-independent tooltip state: one Spec or
// nothing, mutated only through Show and Hide. The host editor renders as a
// pure projection of that state through the change callback, so the state
// machine works the same under any UI toolkit.
package tooltip

import (
	"sync"

	"github.com/dshills/lspbridge/internal/protocol"
)

// Spec describes the tooltip to display.
type Spec struct {
	URI      protocol.DocumentURI
	Anchor   protocol.Position
	Contents protocol.MarkupContent
}

// Controller owns the current tooltip. A nil current value means hidden.
type Controller struct {
	mu       sync.Mutex
	current  *Spec
	onChange func(*Spec)
}

// NewController creates a controller. onChange receives the new state after
// every transition (the Spec on show, nil on hide) and may be nil.
func NewController(onChange func(*Spec)) *Controller {
	return &Controller{onChange: onChange}
}

// Show replaces the current tooltip.
func (c *Controller) Show(spec Spec) {
	c.mu.Lock()
	c.current = &spec
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(&spec)
	}
}

// Hide clears the tooltip. Hiding an already-hidden tooltip is a no-op and
// does not re-notify.
func (c *Controller) Hide() {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	c.current = nil
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(nil)
	}
}

// Current returns a copy of the displayed spec, or nil when hidden.
func (c *Controller) Current() *Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	spec := *c.current
	return &spec
}

// Visible reports whether a tooltip is displayed.
func (c *Controller) Visible() bool {
	return c.Current() != nil
}
