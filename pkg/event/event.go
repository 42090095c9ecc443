// Package event implements an ordered, synchronous multicast callback list.
//
// A Node holds the callbacks registered for one event kind. Fire invokes them in subscription
// order on a snapshot of the list taken when the dispatch starts, so callbacks can subscribe or
// unsubscribe (themselves or others) while the node is firing. Nothing is queued or deferred.
package event

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultMaxDepth is the default bound on reentrant dispatch of a single node.
const DefaultMaxDepth = 64

// ErrRecursionLimit is returned when a node is fired reentrantly more than its depth bound, e.g.,
// when a callback re-triggers the mutation that fired it.
var ErrRecursionLimit = errors.New("recursion limit exceeded")

// Callback is a subscriber of a Node.
type Callback[E any] func(E) error

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	cancel func()
	active bool
}

// Unsubscribe removes the callback from its node. It is a no-op on an already cancelled
// subscription and safe to call while the node is firing.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active {
		return
	}
	s.active = false
	s.cancel()
}

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool { return s != nil && s.active }

type handle[E any] struct {
	callback Callback[E]
	sub      *Subscription
}

// Node is an ordered list of callbacks for one event kind. The zero value is ready to use.
type Node[E any] struct {
	handles  []*handle[E]
	depth    int
	maxDepth int
}

// SetMaxDepth sets the reentrancy bound. Non-positive values restore the default.
func (n *Node[E]) SetMaxDepth(depth int) { n.maxDepth = depth }

// Subscribe appends a callback and returns its handle.
func (n *Node[E]) Subscribe(callback Callback[E]) *Subscription {
	h := &handle[E]{callback: callback}
	h.sub = &Subscription{active: true, cancel: func() { n.remove(h) }}
	n.handles = append(n.handles, h)
	return h.sub
}

// Fire invokes every callback registered at call time, in order, and stops at the first error.
func (n *Node[E]) Fire(e E) error {
	if len(n.handles) == 0 {
		return nil
	}

	maxDepth := n.maxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if n.depth >= maxDepth {
		return fmt.Errorf("%w: event dispatch nested %d levels deep", ErrRecursionLimit, n.depth)
	}
	n.depth++
	defer func() { n.depth-- }()

	for _, h := range slices.Clone(n.handles) {
		if err := h.callback(e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of registered callbacks.
func (n *Node[E]) Len() int { return len(n.handles) }

// Clear cancels every subscription.
func (n *Node[E]) Clear() {
	for _, h := range slices.Clone(n.handles) {
		h.sub.Unsubscribe()
	}
}

func (n *Node[E]) remove(h *handle[E]) {
	n.handles = slices.DeleteFunc(n.handles, func(x *handle[E]) bool { return x == h })
}
